package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/roomcast-chat/roomcast/config"
	"github.com/roomcast-chat/roomcast/globals"
	"github.com/roomcast-chat/roomcast/types"
)

// OIDCVerifier verifies ID tokens against one of the configured OpenID
// Connect providers. The subject is taken from the "email" claim.
// TODO: make the subject claim configurable. But: ensure that it is unique across the user base!
type OIDCVerifier struct {
	configs []config.OIDCConfig
}

func NewOIDCVerifier(configs []config.OIDCConfig) *OIDCVerifier {
	return &OIDCVerifier{configs: configs}
}

func (v *OIDCVerifier) Verify(ctx context.Context, token, provider string) (string, error) {
	if token == "" || len(v.configs) == 0 {
		return "", types.ErrAuth
	}
	var oidcConf *config.OIDCConfig
	for i, c := range v.configs {
		if c.Name == provider {
			oidcConf = &v.configs[i]
			break
		}
	}
	if oidcConf == nil {
		globals.AppLogger.Debug("no oidc config found for provider", "provider", provider)
		return "", fmt.Errorf("unknown provider %q: %w", provider, types.ErrAuth)
	}
	oidcProvider, err := oidc.NewProvider(ctx, oidcConf.ProviderUrl)
	if err != nil {
		return "", err
	}
	conf := oidc.Config{}
	if oidcConf.ClientId == "" {
		conf.SkipClientIDCheck = true
	} else {
		conf.ClientID = oidcConf.ClientId
	}
	verifier := oidcProvider.Verifier(&conf)
	verifiedIdToken, err := verifier.Verify(ctx, token)
	if err != nil {
		globals.AppLogger.Debug("token verification failed", "error", err)
		return "", fmt.Errorf("%s: %w", err, types.ErrAuth)
	}

	claims := struct {
		Email string `json:"email"`
	}{}
	err = verifiedIdToken.Claims(&claims)
	if err != nil {
		return "", err
	}
	if claims.Email == "" {
		return "", fmt.Errorf("empty e-mail claim: %w", types.ErrAuth)
	}
	return claims.Email, nil
}

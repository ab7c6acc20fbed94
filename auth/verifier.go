package auth

import (
	"context"
	"fmt"

	"github.com/roomcast-chat/roomcast/config"
)

// A TokenVerifier checks a signed session token and returns the directory key
// (user id) it was issued for. The token format is opaque to the chat core.
type TokenVerifier interface {
	// Verify returns the subject of the token. The provider argument is only
	// meaningful for OIDC deployments and names the configured provider the
	// token was issued by.
	Verify(ctx context.Context, token, provider string) (string, error)
}

// NewVerifier builds the verifier selected by the auth configuration.
func NewVerifier(cfg *config.Config) (TokenVerifier, error) {
	switch cfg.AuthConfig.Mode {
	case "jwt":
		return NewJWTVerifier(cfg.AuthConfig.JWTSecret)

	case "oidc":
		return NewOIDCVerifier(cfg.AuthConfig.OIDCConfigs), nil
	}
	return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthConfig.Mode)
}

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/roomcast-chat/roomcast/globals"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultHistorySize       = 20
	defaultMentionCacheSize  = 1024
	defaultNotifyQueueSize   = 256
	defaultReapSchedule      = "@every 1m"
	defaultMentionPattern    = "username"
	defaultPersistenceType   = "sqlite"
	defaultNotificationsType = "log"
)

// Config is the global configuration object which is filled via the configuration file
type Config struct {
	HistoryConfig       HistoryConfig       `mapstructure:"history"`
	AuthConfig          AuthConfig          `mapstructure:"auth"`
	PersistenceConfig   PersistenceConfig   `mapstructure:"persistence"`
	MentionConfig       MentionConfig       `mapstructure:"mentions"`
	EphemeralConfig     EphemeralConfig     `mapstructure:"ephemeral"`
	NotificationsConfig NotificationsConfig `mapstructure:"notifications"`
	LogLevel            string              `mapstructure:"log_level"`
}

// HistoryConfig configures the size of the per-room message history that is
// kept in memory in a ring buffer and replayed to newly joined sessions.
type HistoryConfig struct {
	HistorySize int `mapstructure:"history_size" validate:"gte=0"`
}

// AuthConfig selects how session tokens are verified. "jwt" verifies HMAC
// signed tokens locally, "oidc" delegates to one of the configured OpenID
// Connect providers.
type AuthConfig struct {
	Mode        string       `mapstructure:"mode" validate:"oneof=jwt oidc"`
	JWTSecret   string       `mapstructure:"jwt_secret" validate:"required_if=Mode jwt"`
	OIDCConfigs []OIDCConfig `mapstructure:"oidc"`
}

// An OIDCConfig object configures an OpenID Connect provider that is used to
// authenticate users. Clients provide an ID token and the provider name, the
// authentication is then performed via verification of the token.
type OIDCConfig struct {
	Name        string `mapstructure:"name"`
	ClientId    string `mapstructure:"client_id"`
	ProviderUrl string `mapstructure:"provider_url"` // f.e. "https://accounts.google.com"
}

// PersistenceConfig configures the persistence backend. "sqlite" and
// "postgres" go through gorm, "buntdb" uses the file-backed key/value store.
type PersistenceConfig struct {
	Type string `mapstructure:"type" validate:"oneof=sqlite postgres buntdb"`
	DSN  string `mapstructure:"dsn" validate:"required"`
}

// MentionConfig selects the mention extraction strategy. Exactly one pattern
// is active per deployment: "username" matches @name tokens, "email" matches
// @local@domain.tld tokens.
type MentionConfig struct {
	Pattern   string `mapstructure:"pattern" validate:"oneof=username email"`
	CacheSize int    `mapstructure:"cache_size" validate:"gt=0"`
}

// EphemeralConfig tunes open_ephemeral rooms. When RequireExistingRoom is
// false, joining a room without a durable record creates a transient room on
// the fly; when true, such joins fail with RoomNotFound.
type EphemeralConfig struct {
	RequireExistingRoom bool   `mapstructure:"require_existing_room"`
	ReapSchedule        string `mapstructure:"reap_schedule"`
}

// NotificationsConfig configures the mention notification dispatcher.
type NotificationsConfig struct {
	Type      string `mapstructure:"type" validate:"oneof=log"`
	QueueSize int    `mapstructure:"queue_size" validate:"gt=0"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.String("log-level", "", "log level (DEBUG/INFO/WARN/ERROR)")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	from := "-"
	to := "_"
	name = strings.Replace(name, from, to, -1)
	return pflag.NormalizedName(name)
}

// ReadConfiguration reads and parses the configuration located at configPath, which can either point to a single TOML
// file or to a directory, in which case all *.toml files in this directory are concatenated. It returns a validated
// Config object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("log_level", "INFO")
	viper.SetDefault("history.history_size", defaultHistorySize)
	viper.SetDefault("auth.mode", "jwt")
	viper.SetDefault("persistence.type", defaultPersistenceType)
	viper.SetDefault("persistence.dsn", "roomcast.db")
	viper.SetDefault("mentions.pattern", defaultMentionPattern)
	viper.SetDefault("mentions.cache_size", defaultMentionCacheSize)
	viper.SetDefault("ephemeral.reap_schedule", defaultReapSchedule)
	viper.SetDefault("notifications.type", defaultNotificationsType)
	viper.SetDefault("notifications.queue_size", defaultNotifyQueueSize)
	err := viper.BindPFlags(flagSet)
	if err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("ROOMCAST")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		err = viper.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	err = viper.Unmarshal(&cfg)
	if err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, err
	}

	globals.AppLogger.Debug("config", "cfg", cfg)
	return &cfg, nil
}

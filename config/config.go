package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the gateway.
// Tags use mapstructure for Viper unmarshalling and env binding.
type ServerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// SessionTTLHours bounds how long a session entry lives in the store.
	// Zero disables store-side expiry entirely.
	SessionTTLHours int `mapstructure:"SESSION_TTL_HOURS"`
	// StoreTimeoutSec bounds every session-store and user-store round
	// trip. A call that misses the deadline is treated as unavailability.
	StoreTimeoutSec int `mapstructure:"STORE_TIMEOUT_SEC"`

	OIDCIssuer         string `mapstructure:"OIDC_ISSUER"`
	OIDCClientID       string `mapstructure:"OIDC_CLIENT_ID"`
	OIDCClientSecret   string `mapstructure:"OIDC_CLIENT_SECRET"`
	OIDCRedirectURL    string `mapstructure:"OIDC_REDIRECT_URL"`
	OIDCResponseType   string `mapstructure:"OIDC_RESPONSE_TYPE"`
	OIDCResponseMode   string `mapstructure:"OIDC_RESPONSE_MODE"`
	OIDCTenantID       string `mapstructure:"OIDC_TENANT_ID"`
	OIDCAllowedIssuers string `mapstructure:"OIDC_ALLOWED_ISSUERS"` // comma-separated

	PostLogoutRedirectURL string `mapstructure:"POST_LOGOUT_REDIRECT_URL"`
	LoginFailureURL       string `mapstructure:"LOGIN_FAILURE_URL"`
	LoginSuccessURL       string `mapstructure:"LOGIN_SUCCESS_URL"`
	CookieDomain          string `mapstructure:"COOKIE_DOMAIN"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`
}

// Validate rejects settings the gateway cannot honor. Only the
// authorization-code flow is implemented, so any other response type is a
// startup error rather than a silently ignored knob.
func (c *ServerConfig) Validate() error {
	if c.OIDCResponseType != "code" {
		return fmt.Errorf("unsupported OIDC_RESPONSE_TYPE %q: only \"code\" is supported", c.OIDCResponseType)
	}
	return nil
}

// AllowedIssuerSet splits the comma-separated issuer list into a set.
func (c *ServerConfig) AllowedIssuerSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, iss := range strings.Split(c.OIDCAllowedIssuers, ",") {
		iss = strings.TrimSpace(iss)
		if iss != "" {
			set[iss] = struct{}{}
		}
	}
	return set
}

// SessionTTL returns the configured store-side session expiry.
func (c *ServerConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// StoreTimeout returns the per-call deadline for external store round trips.
func (c *ServerConfig) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSec) * time.Second
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/authgate/")
	v.AddConfigPath("$HOME/.authgate")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "3003")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/authgate_dev")
	v.SetDefault("MONGO_DB_NAME", "authgate_dev")
	v.SetDefault("REDIS_ADDR", "redis:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SESSION_TTL_HOURS", 120) // 5 days, matches the cookie
	v.SetDefault("STORE_TIMEOUT_SEC", 5)
	// Empty defaults keep the OIDC keys visible to Unmarshal so that
	// AutomaticEnv can bind them.
	v.SetDefault("OIDC_ISSUER", "")
	v.SetDefault("OIDC_CLIENT_ID", "")
	v.SetDefault("OIDC_CLIENT_SECRET", "")
	v.SetDefault("OIDC_REDIRECT_URL", "")
	v.SetDefault("OIDC_RESPONSE_TYPE", "code")
	v.SetDefault("OIDC_RESPONSE_MODE", "form_post")
	v.SetDefault("OIDC_TENANT_ID", "")
	v.SetDefault("OIDC_ALLOWED_ISSUERS", "")
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("POST_LOGOUT_REDIRECT_URL", "/")
	v.SetDefault("LOGIN_FAILURE_URL", "/login")
	v.SetDefault("LOGIN_SUCCESS_URL", "/")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, env vars and defaults apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}

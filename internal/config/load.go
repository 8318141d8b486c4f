package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Load reads and validates the config file, resolving env references
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the resolved config is complete and coherent
func Validate(cfg *Config) error {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	if cfg.Upstream == "" {
		return fmt.Errorf("upstream is required")
	}
	if err := validateURL("upstream", cfg.Upstream); err != nil {
		return err
	}

	auth := &cfg.Auth
	for name, value := range map[string]string{
		"auth.authorizeUrl": auth.AuthorizeURL,
		"auth.tokenUrl":     auth.TokenURL,
		"auth.userinfoUrl":  auth.UserInfoURL,
	} {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
		if err := validateURL(name, value); err != nil {
			return err
		}
	}

	if auth.ClientID == "" {
		return fmt.Errorf("auth.clientId is required")
	}
	if auth.ClientSecret == "" {
		return fmt.Errorf("auth.clientSecret is required")
	}

	if auth.PathPrefix != "" && !strings.HasPrefix(auth.PathPrefix, "/") {
		return fmt.Errorf("auth.pathPrefix must start with /")
	}
	if strings.HasSuffix(auth.PathPrefix, "/") {
		return fmt.Errorf("auth.pathPrefix must not end with /")
	}

	if auth.UserInfoTTL <= 0 {
		return fmt.Errorf("auth.userinfoTtl must be positive")
	}
	if auth.SessionTTL <= 0 {
		return fmt.Errorf("auth.sessionTtl must be positive")
	}
	if auth.ProviderTimeout <= 0 {
		return fmt.Errorf("auth.providerTimeout must be positive")
	}

	return nil
}

func validateURL(name, value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL", name)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}

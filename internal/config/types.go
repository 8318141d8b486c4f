package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// AuthConfig holds the relying-party settings for the authorization-code flow.
// All fields are read-only after Load.
type AuthConfig struct {
	AuthorizeURL string `json:"authorizeUrl"`
	TokenURL     string `json:"tokenUrl"`
	UserInfoURL  string `json:"userinfoUrl"`

	ClientID     string `json:"-"`
	ClientSecret Secret `json:"-"`

	// PathPrefix is prepended to the filter's own routes, so the callback
	// lives at <PathPrefix>/oauth2/callback.
	PathPrefix string `json:"pathPrefix"`
	Scope      string `json:"scope"`

	// HostedDomain restricts accepted identities to those whose identifier
	// claim ends with this suffix. Empty means no restriction.
	HostedDomain string `json:"hostedDomain"`

	// IdentifierClaim names the claim checked against HostedDomain,
	// typically "email".
	IdentifierClaim string `json:"identifierClaim"`

	// PropagateClaims lists the user-info keys forwarded to the upstream as
	// individual headers, in this order.
	PropagateClaims []string `json:"propagateClaims"`

	UserInfoTTL     time.Duration `json:"-"`
	SessionTTL      time.Duration `json:"-"`
	ProviderTimeout time.Duration `json:"-"`

	// InsecureSkipVerify disables certificate validation toward the
	// provider. Test environments only.
	InsecureSkipVerify bool `json:"insecureSkipVerify"`

	// DefaultLandingPath is where the callback sends the browser when no
	// redirect-back cookie survived the provider round-trip.
	DefaultLandingPath string `json:"defaultLandingPath"`
}

// UnmarshalJSON resolves env references and duration strings
func (a *AuthConfig) UnmarshalJSON(data []byte) error {
	type rawAuth struct {
		AuthorizeURL       string          `json:"authorizeUrl"`
		TokenURL           string          `json:"tokenUrl"`
		UserInfoURL        string          `json:"userinfoUrl"`
		ClientID           json.RawMessage `json:"clientId"`
		ClientSecret       json.RawMessage `json:"clientSecret"`
		PathPrefix         string          `json:"pathPrefix"`
		Scope              string          `json:"scope"`
		HostedDomain       string          `json:"hostedDomain"`
		IdentifierClaim    string          `json:"identifierClaim"`
		PropagateClaims    []string        `json:"propagateClaims"`
		UserInfoTTL        string          `json:"userinfoTtl"`
		SessionTTL         string          `json:"sessionTtl"`
		ProviderTimeout    string          `json:"providerTimeout"`
		InsecureSkipVerify bool            `json:"insecureSkipVerify"`
		DefaultLandingPath string          `json:"defaultLandingPath"`
	}

	var raw rawAuth
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.AuthorizeURL = raw.AuthorizeURL
	a.TokenURL = raw.TokenURL
	a.UserInfoURL = raw.UserInfoURL
	a.PathPrefix = raw.PathPrefix
	a.Scope = raw.Scope
	a.HostedDomain = raw.HostedDomain
	a.IdentifierClaim = raw.IdentifierClaim
	a.PropagateClaims = raw.PropagateClaims
	a.InsecureSkipVerify = raw.InsecureSkipVerify
	a.DefaultLandingPath = raw.DefaultLandingPath

	if raw.ClientID != nil {
		value, err := parseValue(raw.ClientID)
		if err != nil {
			return fmt.Errorf("parsing clientId: %w", err)
		}
		a.ClientID = value
	}

	if raw.ClientSecret != nil {
		value, err := parseValue(raw.ClientSecret)
		if err != nil {
			return fmt.Errorf("parsing clientSecret: %w", err)
		}
		a.ClientSecret = Secret(value)
	}

	var err error
	if a.UserInfoTTL, err = parseDuration(raw.UserInfoTTL, 10*time.Minute); err != nil {
		return fmt.Errorf("parsing userinfoTtl: %w", err)
	}
	if a.SessionTTL, err = parseDuration(raw.SessionTTL, 24*time.Hour); err != nil {
		return fmt.Errorf("parsing sessionTtl: %w", err)
	}
	if a.ProviderTimeout, err = parseDuration(raw.ProviderTimeout, 30*time.Second); err != nil {
		return fmt.Errorf("parsing providerTimeout: %w", err)
	}

	if a.IdentifierClaim == "" {
		a.IdentifierClaim = "email"
	}
	if a.DefaultLandingPath == "" {
		a.DefaultLandingPath = "/"
	}

	return nil
}

// Config represents the full filter configuration with resolved values
type Config struct {
	Addr     string     `json:"addr"`
	Upstream string     `json:"upstream"`
	Auth     AuthConfig `json:"auth"`
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return d, nil
}

// parseValue parses a JSON value that could be a plain string or an
// {"$env": "VAR_NAME"} reference resolved against the environment
func parseValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}

	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	return value, nil
}

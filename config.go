package tenantauth

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/joho/godotenv"
)

const (
	DefaultAuthority             = "http://localhost:8080"
	DefaultRedirectURI           = "http://localhost:3000/auth/callback"
	DefaultPostLogoutRedirectURI = "http://localhost:3000"
	DefaultScopePrefix           = "urn:zitadel:iam:org:domain:primary:"
	DefaultRenewLeeway           = 60 * time.Second
	DefaultMonitorInterval       = 2 * time.Second
)

// Config is the identity provider configuration shared by every session
// client in the process. Treat it as read only once resolved.
type Config struct {
	Authority             string
	ClientID              string
	RedirectURI           string
	PostLogoutRedirectURI string
	ScopePrefix           string
	ExtraScopes           []string
	RenewLeeway           time.Duration
	MonitorInterval       time.Duration
	LoadUserInfo          bool
	SilentRenew           bool
	MonitorSession        bool
	Debug                 bool
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Authority:             DefaultAuthority,
		RedirectURI:           DefaultRedirectURI,
		PostLogoutRedirectURI: DefaultPostLogoutRedirectURI,
		ScopePrefix:           DefaultScopePrefix,
		RenewLeeway:           DefaultRenewLeeway,
		MonitorInterval:       DefaultMonitorInterval,
		LoadUserInfo:          true,
		SilentRenew:           true,
		MonitorSession:        true,
	}
}

// Validate checks the configuration is usable for a login.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Authority, validation.Required, is.RequestURL),
		validation.Field(&c.ClientID, validation.Required),
		validation.Field(&c.RedirectURI, validation.Required, is.RequestURL),
		validation.Field(&c.PostLogoutRedirectURI, validation.Required, is.RequestURL),
		validation.Field(&c.ScopePrefix, validation.Required),
	)
	if err != nil {
		return WrapCause(ErrConfigurationIncomplete, err)
	}
	return nil
}

// IssuerURL returns the authority without a trailing slash.
func (c Config) IssuerURL() string {
	return strings.TrimRight(c.Authority, "/")
}

// ScopeFor returns the scope string requested for tenantScope.
func (c Config) ScopeFor(tenantScope string) string {
	parts := []string{"openid", "email", "profile"}
	for _, s := range c.ExtraScopes {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	prefix := c.ScopePrefix
	if prefix == "" {
		prefix = DefaultScopePrefix
	}
	parts = append(parts, prefix+tenantScope)
	return strings.Join(parts, " ")
}

// configEnv holds raw env values.
type configEnv struct {
	Authority             string        `env:"ZITADEL_DOMAIN"              envDefault:"http://localhost:8080"`
	ClientID              string        `env:"ZITADEL_CLIENT_ID"`
	RedirectURI           string        `env:"REDIRECT_URI"                envDefault:"http://localhost:3000/auth/callback"`
	PostLogoutRedirectURI string        `env:"POST_LOGOUT_URI"             envDefault:"http://localhost:3000"`
	ScopePrefix           string        `env:"TENANTAUTH_SCOPE_PREFIX"     envDefault:"urn:zitadel:iam:org:domain:primary:"`
	ExtraScopes           []string      `env:"TENANTAUTH_EXTRA_SCOPES"     envSeparator:","`
	RenewLeeway           time.Duration `env:"TENANTAUTH_RENEW_LEEWAY"     envDefault:"60s"`
	MonitorInterval       time.Duration `env:"TENANTAUTH_MONITOR_INTERVAL" envDefault:"2s"`
	LoadUserInfo          bool          `env:"TENANTAUTH_LOAD_USERINFO"    envDefault:"true"`
	SilentRenew           bool          `env:"TENANTAUTH_SILENT_RENEW"     envDefault:"true"`
	MonitorSession        bool          `env:"TENANTAUTH_MONITOR_SESSION"  envDefault:"true"`
	Debug                 bool          `env:"TENANTAUTH_DEBUG"            envDefault:"false"`
}

// ResolveOption customizes ResolveConfig.
type ResolveOption func(*resolveOptions)

type resolveOptions struct {
	envFiles    []string
	environment map[string]string
	logger      Logger
}

// WithEnvFiles sets the dotenv files read before the process environment.
// Missing files are ignored. Defaults to .env.local and .env.
func WithEnvFiles(files ...string) ResolveOption {
	return func(o *resolveOptions) {
		o.envFiles = files
	}
}

// WithLookupEnv replaces the process environment and dotenv files with env.
func WithLookupEnv(environment map[string]string) ResolveOption {
	return func(o *resolveOptions) {
		o.environment = environment
		o.envFiles = nil
	}
}

// WithResolveLogger sets the logger that receives the configuration warning.
func WithResolveLogger(logger Logger) ResolveOption {
	return func(o *resolveOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// ResolveConfig reads the configuration from the environment. Unset or
// malformed variables fall back to their defaults one by one. It never
// fails: an incomplete configuration is only logged.
func ResolveConfig(opts ...ResolveOption) Config {
	o := &resolveOptions{
		envFiles: []string{".env.local", ".env"},
		logger:   defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	environment := o.environment
	if environment == nil {
		environment = o.processEnvironment()
	}

	cfg := DefaultConfig()
	var raw configEnv
	parsed := true
	if err := env.ParseWithOptions(&raw, env.Options{Environment: environment}); err != nil {
		raw = configEnv{}
		err = env.ParseWithOptions(&raw, env.Options{Environment: o.withoutInvalid(environment)})
		if err != nil {
			o.logger.Warn("config: unable to parse environment, using defaults: %v", err)
			parsed = false
		}
	}
	if parsed {
		cfg = Config{
			Authority:             raw.Authority,
			ClientID:              raw.ClientID,
			RedirectURI:           raw.RedirectURI,
			PostLogoutRedirectURI: raw.PostLogoutRedirectURI,
			ScopePrefix:           raw.ScopePrefix,
			ExtraScopes:           raw.ExtraScopes,
			RenewLeeway:           raw.RenewLeeway,
			MonitorInterval:       raw.MonitorInterval,
			LoadUserInfo:          raw.LoadUserInfo,
			SilentRenew:           raw.SilentRenew,
			MonitorSession:        raw.MonitorSession,
			Debug:                 raw.Debug,
		}
	}

	if cfg.ClientID == "" {
		o.logger.Warn("ZITADEL_CLIENT_ID is not set")
	} else if err := cfg.Validate(); err != nil {
		o.logger.Warn("config: %v", err)
	}

	return cfg
}

// withoutInvalid drops the variables that do not parse on their own, so
// they fall back to their defaults while the rest still applies.
func (o *resolveOptions) withoutInvalid(environment map[string]string) map[string]string {
	valid := make(map[string]string, len(environment))
	for k, v := range environment {
		var single configEnv
		if err := env.ParseWithOptions(&single, env.Options{Environment: map[string]string{k: v}}); err != nil {
			o.logger.Warn("config: ignoring %s, using default: %v", k, err)
			continue
		}
		valid[k] = v
	}
	return valid
}

// processEnvironment merges dotenv files under the process environment.
// Earlier files win over later ones and the process wins over both.
func (o *resolveOptions) processEnvironment() map[string]string {
	environment := map[string]string{}
	for i := len(o.envFiles) - 1; i >= 0; i-- {
		values, err := godotenv.Read(o.envFiles[i])
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				o.logger.Warn("config: unable to read %s: %v", o.envFiles[i], err)
			}
			continue
		}
		for k, v := range values {
			environment[k] = v
		}
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			environment[k] = v
		}
	}
	return environment
}

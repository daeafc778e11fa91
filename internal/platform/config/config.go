package config

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	envPrefix = "CONFIGURATOR_"

	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultShutdownTimeout     = 20 * time.Second
	defaultPricingSource       = PricingSourceMemory
	defaultPricingWarmup       = 30 * time.Second
	defaultRedisPoolSize       = 20
	defaultRedisDialTimeout    = 2 * time.Second
	defaultRedisCurrentTTL     = 30 * time.Second
	defaultRedisVersionTTL     = 24 * time.Hour
	defaultIdempotencyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultJPEGQuality         = 90
	defaultMaxSourceBytes      = 40 << 20
	defaultSecurityEnvironment = "local"
	defaultOIDCJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	defaultOIDCIssuer          = "https://accounts.google.com"
	defaultHMACSignatureHeader = "X-Signature"
	defaultHMACTimestampHeader = "X-Signature-Timestamp"
	defaultHMACClockSkew       = 5 * time.Minute
)

// Pricing sources.
const (
	PricingSourceMemory    = "memory"
	PricingSourceFirestore = "firestore"
)

// Config is the runtime configuration grouped by concern.
type Config struct {
	Server      ServerConfig
	Firestore   FirestoreConfig
	Storage     StorageConfig
	PubSub      PubSubConfig
	Redis       RedisConfig
	Idempotency IdempotencyConfig
	PSP         PSPConfig
	Pricing     PricingConfig
	Render      RenderConfig
	Security    SecurityConfig
	Features    FeatureFlags
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig names the buckets holding uploaded sources and rendered crops.
type StorageConfig struct {
	SourcesBucket string
	RendersBucket string
}

type PubSubConfig struct {
	ProjectID       string
	CropRenderTopic string
}

// RedisConfig enables the pricebook cache when Addr is set.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
	CurrentTTL  time.Duration
	VersionTTL  time.Duration
}

// IdempotencyConfig controls Idempotency-Key replay on checkout.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

type PSPConfig struct {
	StripeAPIKey string
	SuccessURL   string
	CancelURL    string
}

// PricingConfig selects where pricebooks come from.
type PricingConfig struct {
	Source          string
	FixtureFile     string
	DefaultCurrency string
	WarmupTimeout   time.Duration
}

type RenderConfig struct {
	JPEGQuality    int
	MaxSourceBytes int64
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
	HMAC        HMACConfig
}

// OIDCConfig controls verification of Google-signed push tokens.
type OIDCConfig struct {
	JWKSURL         string
	Audience        string
	Issuers         []string
	ServiceAccounts []string
}

// HMACConfig lists webhook signing secrets by integration name.
type HMACConfig struct {
	Secrets         map[string]string
	SignatureHeader string
	TimestampHeader string
	ClockSkew       time.Duration
}

type FeatureFlags struct {
	EnableDiagnostics bool
	EnableCheckout    bool
	EnableRenderJobs  bool
}

// SecretResolver resolves secret:// references.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError lists missing or invalid fields.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field names.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError describes a failed secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the dotenv path; an empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap supplies values that take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets marks secret fields (e.g. "PSP.StripeAPIKey" or
// "Security.HMAC.Secrets[pricebooks]") that must resolve to a non-empty value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// Load merges defaults, the dotenv file, the process environment and an
// explicit map (in increasing precedence), resolves secret references and
// validates the result.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}
	lookup, err := newLookup(options)
	if err != nil {
		return Config{}, err
	}
	env := func(key string) string { return envPrefix + key }

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, env("SERVER_PORT"), defaultPort),
			ReadTimeout:     durationWithDefault(lookup, env("SERVER_READ_TIMEOUT"), defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, env("SERVER_WRITE_TIMEOUT"), defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, env("SERVER_IDLE_TIMEOUT"), defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, env("SERVER_SHUTDOWN_TIMEOUT"), defaultShutdownTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, env("FIRESTORE_PROJECT_ID"), ""),
			EmulatorHost: stringWithDefault(lookup, env("FIRESTORE_EMULATOR_HOST"), ""),
		},
		Storage: StorageConfig{
			SourcesBucket: stringWithDefault(lookup, env("STORAGE_SOURCES_BUCKET"), ""),
			RendersBucket: stringWithDefault(lookup, env("STORAGE_RENDERS_BUCKET"), ""),
		},
		PubSub: PubSubConfig{
			ProjectID:       stringWithDefault(lookup, env("PUBSUB_PROJECT_ID"), ""),
			CropRenderTopic: stringWithDefault(lookup, env("PUBSUB_CROP_RENDER_TOPIC"), ""),
		},
		Redis: RedisConfig{
			Addr:        stringWithDefault(lookup, env("REDIS_ADDR"), ""),
			Password:    stringWithDefault(lookup, env("REDIS_PASSWORD"), ""),
			DB:          intWithDefault(lookup, env("REDIS_DB"), 0),
			PoolSize:    intWithDefault(lookup, env("REDIS_POOL_SIZE"), defaultRedisPoolSize),
			DialTimeout: durationWithDefault(lookup, env("REDIS_DIAL_TIMEOUT"), defaultRedisDialTimeout),
			CurrentTTL:  durationWithDefault(lookup, env("REDIS_CURRENT_TTL"), defaultRedisCurrentTTL),
			VersionTTL:  durationWithDefault(lookup, env("REDIS_VERSION_TTL"), defaultRedisVersionTTL),
		},
		Idempotency: IdempotencyConfig{
			Header: stringWithDefault(lookup, env("IDEMPOTENCY_HEADER"), defaultIdempotencyHeader),
			TTL:    durationWithDefault(lookup, env("IDEMPOTENCY_TTL"), defaultIdempotencyTTL),
		},
		PSP: PSPConfig{
			StripeAPIKey: stringWithDefault(lookup, env("PSP_STRIPE_API_KEY"), ""),
			SuccessURL:   stringWithDefault(lookup, env("PSP_SUCCESS_URL"), ""),
			CancelURL:    stringWithDefault(lookup, env("PSP_CANCEL_URL"), ""),
		},
		Pricing: PricingConfig{
			Source:          strings.ToLower(stringWithDefault(lookup, env("PRICING_SOURCE"), defaultPricingSource)),
			FixtureFile:     stringWithDefault(lookup, env("PRICING_FIXTURE_FILE"), ""),
			DefaultCurrency: strings.ToUpper(stringWithDefault(lookup, env("PRICING_DEFAULT_CURRENCY"), "")),
			WarmupTimeout:   durationWithDefault(lookup, env("PRICING_WARMUP_TIMEOUT"), defaultPricingWarmup),
		},
		Render: RenderConfig{
			JPEGQuality:    intWithDefault(lookup, env("RENDER_JPEG_QUALITY"), defaultJPEGQuality),
			MaxSourceBytes: int64(intWithDefault(lookup, env("RENDER_MAX_SOURCE_BYTES"), defaultMaxSourceBytes)),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, env("SECURITY_ENVIRONMENT"), defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:         stringWithDefault(lookup, env("SECURITY_OIDC_JWKS_URL"), defaultOIDCJWKSURL),
				Audience:        stringWithDefault(lookup, env("SECURITY_OIDC_AUDIENCE"), ""),
				Issuers:         csvWithDefault(lookup, env("SECURITY_OIDC_ISSUERS")),
				ServiceAccounts: csvWithDefault(lookup, env("SECURITY_OIDC_SERVICE_ACCOUNTS")),
			},
			HMAC: HMACConfig{
				Secrets:         mapWithDefault(lookup, env("SECURITY_HMAC_SECRETS")),
				SignatureHeader: stringWithDefault(lookup, env("SECURITY_HMAC_HEADER_SIGNATURE"), defaultHMACSignatureHeader),
				TimestampHeader: stringWithDefault(lookup, env("SECURITY_HMAC_HEADER_TIMESTAMP"), defaultHMACTimestampHeader),
				ClockSkew:       durationWithDefault(lookup, env("SECURITY_HMAC_CLOCK_SKEW"), defaultHMACClockSkew),
			},
		},
		Features: FeatureFlags{
			EnableDiagnostics: boolWithDefault(lookup, env("FEATURE_DIAGNOSTICS"), true),
			EnableCheckout:    boolWithDefault(lookup, env("FEATURE_CHECKOUT"), false),
			EnableRenderJobs:  boolWithDefault(lookup, env("FEATURE_RENDER_JOBS"), false),
		},
	}

	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultOIDCIssuer}
	}

	resolved := make(map[string]string)
	for name, value := range cfg.Security.HMAC.Secrets {
		secret, err := resolveSecret(ctx, value, options.secret)
		if err != nil {
			return Config{}, err
		}
		cfg.Security.HMAC.Secrets[name] = secret
		resolved[fmt.Sprintf("Security.HMAC.Secrets[%s]", name)] = secret
	}
	for name, field := range map[string]*string{
		"PSP.StripeAPIKey": &cfg.PSP.StripeAPIKey,
		"Redis.Password":   &cfg.Redis.Password,
	} {
		secret, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = secret
		resolved[name] = secret
	}

	if err := validate(cfg, options.requiredSecrets, resolved); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config, requiredSecrets []string, resolved map[string]string) error {
	var invalid []string
	require := func(ok bool, field string) {
		if !ok {
			invalid = append(invalid, field)
		}
	}

	require(strings.TrimSpace(cfg.Server.Port) != "", "Server.Port")
	switch cfg.Pricing.Source {
	case PricingSourceMemory:
	case PricingSourceFirestore:
		require(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	default:
		invalid = append(invalid, "Pricing.Source")
	}
	require(cfg.Render.JPEGQuality >= 1 && cfg.Render.JPEGQuality <= 100, "Render.JPEGQuality")
	require(cfg.Render.MaxSourceBytes > 0, "Render.MaxSourceBytes")
	if cfg.Features.EnableRenderJobs {
		require(cfg.Storage.SourcesBucket != "", "Storage.SourcesBucket")
		require(cfg.Storage.RendersBucket != "", "Storage.RendersBucket")
		require(cfg.PubSub.ProjectID != "", "PubSub.ProjectID")
		require(cfg.PubSub.CropRenderTopic != "", "PubSub.CropRenderTopic")
	}
	if cfg.Features.EnableCheckout {
		require(cfg.PSP.StripeAPIKey != "", "PSP.StripeAPIKey")
		require(cfg.PSP.SuccessURL != "", "PSP.SuccessURL")
		require(cfg.PSP.CancelURL != "", "PSP.CancelURL")
	}

	seen := map[string]bool{}
	for _, name := range requiredSecrets {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if strings.TrimSpace(resolved[name]) == "" {
			invalid = append(invalid, name)
		}
	}

	if len(invalid) == 0 {
		return nil
	}
	sort.Strings(invalid)
	return &ValidationError{fields: invalid}
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "secret://") && !strings.HasPrefix(trimmed, "sm://") {
		return value, nil
	}
	ref := "secret://" + strings.TrimPrefix(strings.TrimPrefix(trimmed, "sm://"), "secret://")
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

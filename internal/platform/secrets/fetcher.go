// Package secrets resolves secret:// references against Secret Manager.
package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	metricNamespace     = "github.com/hanko-field/configurator/internal/platform/secrets"
	defaultFallbackPath = ".secrets.local"
	defaultCallTimeout  = 10 * time.Second
)

type secretClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves references of the form secret://NAME, secret://NAME@VERSION
// or secret://projects/P/secrets/NAME/versions/V. Values are cached for the
// process lifetime. In the local environment a fallback file of
// "secret://NAME=value" lines is consulted when Secret Manager is unreachable.
type Fetcher struct {
	client     secretClient
	ownsClient bool
	projectID  string
	local      bool
	logger     *zap.Logger

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string

	mu    sync.RWMutex
	cache map[string]string

	latency metric.Float64Histogram
}

type config struct {
	client       secretClient
	clientOpts   []option.ClientOption
	projectID    string
	environment  string
	fallbackPath string
	logger       *zap.Logger
}

type Option func(*config)

func WithProject(projectID string) Option {
	return func(c *config) { c.projectID = strings.TrimSpace(projectID) }
}

// WithEnvironment enables the local fallback file when env is "local".
func WithEnvironment(env string) Option {
	return func(c *config) { c.environment = strings.ToLower(strings.TrimSpace(env)) }
}

func WithFallbackFile(path string) Option {
	return func(c *config) { c.fallbackPath = path }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *config) { c.logger = logger }
}

func WithClientOptions(opts ...option.ClientOption) Option {
	return func(c *config) { c.clientOpts = append(c.clientOpts, opts...) }
}

func withClient(client secretClient) Option {
	return func(c *config) { c.client = client }
}

// NewFetcher dials Secret Manager lazily through the generated client. A
// client that cannot be created is tolerated in the local environment.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := config{environment: "local", fallbackPath: defaultFallbackPath, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	f := &Fetcher{
		client:       cfg.client,
		projectID:    cfg.projectID,
		local:        cfg.environment == "local",
		logger:       cfg.logger.Named("secrets"),
		fallbackPath: cfg.fallbackPath,
		cache:        map[string]string{},
	}
	if f.client == nil {
		client, err := secretmanager.NewClient(ctx, cfg.clientOpts...)
		switch {
		case err == nil:
			f.client = client
			f.ownsClient = true
		case f.local:
			f.logger.Warn("secret manager unavailable; using fallback file only", zap.Error(err))
		default:
			return nil, fmt.Errorf("secrets: create client: %w", err)
		}
	}

	latency, err := otel.GetMeterProvider().Meter(metricNamespace).Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Secret Manager access latency"),
	)
	if err != nil {
		f.logger.Warn("unable to register latency metric", zap.Error(err))
	}
	f.latency = latency
	return f, nil
}

func (f *Fetcher) Close() error {
	if f == nil || !f.ownsClient || f.client == nil {
		return nil
	}
	return f.client.Close()
}

// ResolveSecret satisfies config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	resource, name, err := f.resourceName(ref)
	if err != nil {
		return "", err
	}

	f.mu.RLock()
	cached, ok := f.cache[resource]
	f.mu.RUnlock()
	if ok {
		return cached, nil
	}

	value, err := f.access(ctx, resource)
	if err != nil {
		if !f.local {
			return "", err
		}
		fallback, found := f.lookupFallback(name)
		if !found {
			return "", fmt.Errorf("%w (no local fallback for secret://%s)", err, name)
		}
		f.logger.Warn("using local fallback secret", zap.String("secret", name), zap.Error(err))
		value = fallback
	}

	f.mu.Lock()
	f.cache[resource] = value
	f.mu.Unlock()
	return value, nil
}

func (f *Fetcher) access(ctx context.Context, resource string) (string, error) {
	if f.client == nil {
		return "", errors.New("secrets: secret manager client not configured")
	}
	start := time.Now()
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource},
		gax.WithTimeout(defaultCallTimeout),
		gax.WithRetry(func() gax.Retryer {
			return gax.OnCodes([]codes.Code{codes.Unavailable, codes.DeadlineExceeded}, gax.Backoff{
				Initial:    100 * time.Millisecond,
				Max:        2 * time.Second,
				Multiplier: 2,
			})
		}),
	)
	if f.latency != nil {
		outcome := "ok"
		if err != nil {
			outcome = status.Code(err).String()
		}
		f.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if err != nil {
		return "", fmt.Errorf("secrets: access %s: %w", resource, err)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) resourceName(ref string) (resource, name string, err error) {
	trimmed := strings.TrimSpace(ref)
	body, ok := strings.CutPrefix(trimmed, "secret://")
	if !ok {
		body, ok = strings.CutPrefix(trimmed, "sm://")
	}
	if !ok || body == "" {
		return "", "", fmt.Errorf("secrets: %q is not a secret reference", ref)
	}
	if strings.HasPrefix(body, "projects/") {
		parts := strings.Split(body, "/")
		if len(parts) == 4 && parts[2] == "secrets" {
			return body + "/versions/latest", parts[3], nil
		}
		if len(parts) == 6 && parts[2] == "secrets" && parts[4] == "versions" {
			return body, parts[3], nil
		}
		return "", "", fmt.Errorf("secrets: malformed resource reference %q", ref)
	}
	name, version, found := strings.Cut(body, "@")
	if !found || version == "" {
		version = "latest"
	}
	if name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("secrets: malformed reference %q", ref)
	}
	if f.projectID == "" {
		return "", "", fmt.Errorf("secrets: project is required to resolve %q", ref)
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", f.projectID, name, version), name, nil
}

func (f *Fetcher) lookupFallback(name string) (string, bool) {
	f.fallbackOnce.Do(func() {
		f.fallback = map[string]string{}
		if f.fallbackPath == "" {
			return
		}
		file, err := os.Open(f.fallbackPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				f.logger.Warn("unable to read fallback file", zap.String("path", f.fallbackPath), zap.Error(err))
			}
			return
		}
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			key = strings.TrimPrefix(strings.TrimSpace(key), "secret://")
			f.fallback[key] = strings.TrimSpace(value)
		}
	})
	value, ok := f.fallback[name]
	return value, ok
}

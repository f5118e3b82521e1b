package githubapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// TokenEnvVar is the environment variable holding the GitHub token.
const TokenEnvVar = "GITHUB_TOKEN"

// DefaultTokenFile is the local fallback token file.
const DefaultTokenFile = "github_api.txt"

// TokenSource supplies a GitHub token. A blank token with a nil error means the
// source has nothing to offer.
type TokenSource interface {
	Name() string
	Token(ctx context.Context) (string, error)
}

type secretsGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerSource reads the token from an AWS Secrets Manager secret. The
// secret is either a JSON object with a github_token key or the bare token.
type SecretsManagerSource struct {
	SecretID string
	client   secretsGetter
}

// NewSecretsManagerSource loads the default AWS configuration for region.
func NewSecretsManagerSource(ctx context.Context, secretID, region string) (*SecretsManagerSource, error) {
	if strings.TrimSpace(secretID) == "" {
		return nil, fmt.Errorf("secret id is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if strings.TrimSpace(region) != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SecretsManagerSource{
		SecretID: secretID,
		client:   secretsmanager.NewFromConfig(cfg),
	}, nil
}

// Name identifies the source in logs.
func (s *SecretsManagerSource) Name() string {
	return "secrets_manager"
}

// Token fetches and decodes the secret.
func (s *SecretsManagerSource) Token(ctx context.Context) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("secrets manager source is not initialized")
	}
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.SecretID),
	})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", s.SecretID, err)
	}
	if out == nil || out.SecretString == nil {
		return "", nil
	}
	return tokenFromSecret(*out.SecretString), nil
}

func tokenFromSecret(secret string) string {
	trimmed := strings.TrimSpace(secret)
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return ""
	}
	for _, key := range []string{"github_token", TokenEnvVar} {
		if value, ok := fields[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// EnvSource reads GITHUB_TOKEN from the process environment, then from an
// optional .env file. The environment wins over the file.
type EnvSource struct {
	EnvFile string
	// Lookup is injected for testability.
	Lookup func(key string) (string, bool)
}

// Name identifies the source in logs.
func (s EnvSource) Name() string {
	return "environment"
}

// Token returns the environment token.
func (s EnvSource) Token(_ context.Context) (string, error) {
	lookup := s.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if value, ok := lookup(TokenEnvVar); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), nil
	}
	if strings.TrimSpace(s.EnvFile) == "" {
		return "", nil
	}

	values, err := godotenv.Read(s.EnvFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read env file %s: %w", s.EnvFile, err)
	}
	return strings.TrimSpace(values[TokenEnvVar]), nil
}

// FileSource reads the token from a local file.
type FileSource struct {
	Path string
}

// Name identifies the source in logs.
func (s FileSource) Name() string {
	return "file"
}

// Token returns the trimmed file contents. A missing file yields no token.
func (s FileSource) Token(_ context.Context) (string, error) {
	path := s.Path
	if strings.TrimSpace(path) == "" {
		path = DefaultTokenFile
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read token file %s: %w", path, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// TokenResolver tries sources in priority order.
type TokenResolver struct {
	Sources []TokenSource
	Logger  *zap.Logger
}

// Resolve returns the first non-blank token and the name of its source. Source
// errors are logged and skipped. An empty result means unauthenticated access.
func (r TokenResolver) Resolve(ctx context.Context) (token string, source string) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, src := range r.Sources {
		if src == nil {
			continue
		}
		value, err := src.Token(ctx)
		if err != nil {
			logger.Debug("token source failed", zap.String("source", src.Name()), zap.Error(err))
			continue
		}
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed, src.Name()
		}
	}
	logger.Warn("no github token found; requests are unauthenticated and heavily rate limited")
	return "", ""
}

// NewTokenHTTPClient returns an HTTP client that sends token as a bearer
// credential. A blank token yields a plain client.
func NewTokenHTTPClient(token string, timeout time.Duration, base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return &http.Client{Transport: base, Timeout: timeout}
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: trimmed}),
			Base:   base,
		},
		Timeout: timeout,
	}
}

package githubapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"go.uber.org/zap"
)

type fakeSecretsGetter struct {
	secret  *string
	err     error
	gotID   string
	callCnt int
}

func (f *fakeSecretsGetter) GetSecretValue(_ context.Context, params *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.callCnt++
	f.gotID = aws.ToString(params.SecretId)
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.secret}, nil
}

type staticSource struct {
	name  string
	token string
	err   error
}

func (s staticSource) Name() string { return s.name }

func (s staticSource) Token(context.Context) (string, error) { return s.token, s.err }

func TestSecretsManagerSourceToken(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		getter    *fakeSecretsGetter
		wantToken string
		wantErr   bool
	}{
		{name: "plain_secret", getter: &fakeSecretsGetter{secret: aws.String(" ghp_plain \n")}, wantToken: "ghp_plain"},
		{name: "json_lowercase_key", getter: &fakeSecretsGetter{secret: aws.String(`{"github_token":"ghp_json"}`)}, wantToken: "ghp_json"},
		{name: "json_env_key", getter: &fakeSecretsGetter{secret: aws.String(`{"GITHUB_TOKEN":"ghp_env"}`)}, wantToken: "ghp_env"},
		{name: "json_without_token", getter: &fakeSecretsGetter{secret: aws.String(`{"other":"x"}`)}, wantToken: ""},
		{name: "binary_secret", getter: &fakeSecretsGetter{}, wantToken: ""},
		{name: "api_failure", getter: &fakeSecretsGetter{err: errors.New("access denied")}, wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			source := &SecretsManagerSource{SecretID: "branchscope/github", client: tc.getter}
			token, err := source.Token(context.Background())
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Token() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Token() unexpected error: %v", err)
			}
			if token != tc.wantToken {
				t.Fatalf("Token() = %q, want %q", token, tc.wantToken)
			}
			if tc.getter.gotID != "branchscope/github" {
				t.Fatalf("SecretId = %q", tc.getter.gotID)
			}
		})
	}
}

func TestNewSecretsManagerSourceRequiresID(t *testing.T) {
	t.Parallel()

	if _, err := NewSecretsManagerSource(context.Background(), " ", "us-east-1"); err == nil {
		t.Fatalf("NewSecretsManagerSource() expected error for blank id")
	}
}

func TestEnvSourceToken(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("GITHUB_TOKEN=ghp_from_file\nOTHER=1\n"), 0o600); err != nil {
		t.Fatalf("os.WriteFile() unexpected error: %v", err)
	}
	noEnv := func(string) (string, bool) { return "", false }

	testCases := []struct {
		name      string
		source    EnvSource
		wantToken string
	}{
		{
			name: "environment_wins",
			source: EnvSource{EnvFile: envFile, Lookup: func(key string) (string, bool) {
				return "ghp_from_env", key == TokenEnvVar
			}},
			wantToken: "ghp_from_env",
		},
		{name: "falls_back_to_env_file", source: EnvSource{EnvFile: envFile, Lookup: noEnv}, wantToken: "ghp_from_file"},
		{name: "missing_env_file", source: EnvSource{EnvFile: filepath.Join(dir, "absent.env"), Lookup: noEnv}},
		{name: "no_env_file_configured", source: EnvSource{Lookup: noEnv}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			token, err := tc.source.Token(context.Background())
			if err != nil {
				t.Fatalf("Token() unexpected error: %v", err)
			}
			if token != tc.wantToken {
				t.Fatalf("Token() = %q, want %q", token, tc.wantToken)
			}
		})
	}
}

func TestFileSourceToken(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "github_api.txt")
	if err := os.WriteFile(path, []byte("  ghp_file_token\n"), 0o600); err != nil {
		t.Fatalf("os.WriteFile() unexpected error: %v", err)
	}

	token, err := FileSource{Path: path}.Token(context.Background())
	if err != nil || token != "ghp_file_token" {
		t.Fatalf("Token() = %q, %v; want ghp_file_token", token, err)
	}

	token, err = FileSource{Path: filepath.Join(dir, "missing.txt")}.Token(context.Background())
	if err != nil || token != "" {
		t.Fatalf("Token() missing file = %q, %v; want empty", token, err)
	}

	if _, err := (FileSource{Path: dir}).Token(context.Background()); err == nil {
		t.Fatalf("Token() expected error when path is a directory")
	}
}

func TestTokenResolverResolve(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		sources    []TokenSource
		wantToken  string
		wantSource string
	}{
		{
			name: "first_non_blank_wins",
			sources: []TokenSource{
				staticSource{name: "secrets_manager", err: errors.New("no credentials")},
				staticSource{name: "environment", token: "  "},
				staticSource{name: "file", token: "ghp_file"},
			},
			wantToken:  "ghp_file",
			wantSource: "file",
		},
		{
			name:    "nothing_found",
			sources: []TokenSource{nil, staticSource{name: "environment"}},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			resolver := TokenResolver{Sources: tc.sources, Logger: zap.NewNop()}
			token, source := resolver.Resolve(context.Background())
			if token != tc.wantToken || source != tc.wantSource {
				t.Fatalf("Resolve() = %q, %q; want %q, %q", token, source, tc.wantToken, tc.wantSource)
			}
		})
	}
}

func TestNewTokenHTTPClient(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var gotAuth []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	for _, token := range []string{"ghp_secret", ""} {
		client := NewTokenHTTPClient(token, 5*time.Second, nil)
		resp, err := client.Get(server.URL)
		if err != nil {
			t.Fatalf("Get() unexpected error: %v", err)
		}
		_ = resp.Body.Close()
	}

	mu.Lock()
	defer mu.Unlock()
	if len(gotAuth) != 2 {
		t.Fatalf("requests = %d, want 2", len(gotAuth))
	}
	if gotAuth[0] != "Bearer ghp_secret" {
		t.Fatalf("Authorization = %q, want bearer token", gotAuth[0])
	}
	if gotAuth[1] != "" {
		t.Fatalf("Authorization = %q, want none for blank token", gotAuth[1])
	}
}

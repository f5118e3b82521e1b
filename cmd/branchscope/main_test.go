package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/cam3ron2/branchscope/internal/githubapi"
	"github.com/cam3ron2/branchscope/internal/projectstate"
	"go.uber.org/zap/zapcore"
)

func TestLogLevel(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		raw  string
		want zapcore.Level
	}{
		{raw: "debug", want: zapcore.DebugLevel},
		{raw: " WARN ", want: zapcore.WarnLevel},
		{raw: "error", want: zapcore.ErrorLevel},
		{raw: "info", want: zapcore.InfoLevel},
		{raw: "", want: zapcore.InfoLevel},
		{raw: "verbose", want: zapcore.InfoLevel},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.raw, func(t *testing.T) {
			t.Parallel()
			if got := logLevel(tc.raw); got != tc.want {
				t.Fatalf("logLevel(%q) = %s, want %s", tc.raw, got, tc.want)
			}
		})
	}
}

func TestShouldIgnoreLoggerSyncError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "einval", err: syscall.EINVAL, want: true},
		{name: "wrapped_enotty", err: fmt.Errorf("sync /dev/stderr: %w", syscall.ENOTTY), want: true},
		{name: "other", err: errors.New("disk full"), want: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := shouldIgnoreLoggerSyncError(tc.err); got != tc.want {
				t.Fatalf("shouldIgnoreLoggerSyncError(%v) = %t, want %t", tc.err, got, tc.want)
			}
		})
	}
}

func TestParseAssignments(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		values  []string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", values: nil, want: nil},
		{
			name:   "pairs",
			values: []string{"abc123=Backend", " def456 = needs review "},
			want:   map[string]string{"abc123": "Backend", "def456": "needs review"},
		},
		{name: "value_may_contain_equals", values: []string{"abc=a=b"}, want: map[string]string{"abc": "a=b"}},
		{name: "blank_value_kept", values: []string{"abc="}, want: map[string]string{"abc": ""}},
		{name: "missing_separator", values: []string{"abc"}, wantErr: true},
		{name: "missing_sha", values: []string{"=Backend"}, wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseAssignments("--tag", tc.values)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseAssignments(%v) expected error", tc.values)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAssignments(%v) unexpected error: %v", tc.values, err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("parseAssignments(%v) = %v, want %v", tc.values, got, tc.want)
			}
			for key, value := range tc.want {
				if got[key] != value {
					t.Fatalf("parseAssignments(%v)[%q] = %q, want %q", tc.values, key, got[key], value)
				}
			}
		})
	}
}

func TestParseTargetAndStateKey(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		raw        string
		branch     string
		wantTarget string
		wantKey    string
		wantErr    bool
		wantKeyErr bool
	}{
		{
			name:       "branch_from_url",
			raw:        "https://github.com/octo/hello/tree/feature/login",
			wantTarget: "octo/hello@feature/login",
			wantKey:    "octo/hello@feature/login",
		},
		{
			name:       "flag_overrides_url",
			raw:        "github.com/octo/hello/tree/main",
			branch:     "release",
			wantTarget: "octo/hello@release",
			wantKey:    "octo/hello@release",
		},
		{
			name:       "default_branch_has_no_state_key",
			raw:        "https://github.com/octo/hello",
			wantTarget: "octo/hello@",
			wantKeyErr: true,
		},
		{name: "not_github", raw: "https://gitlab.com/octo/hello", wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			target, err := parseTarget(tc.raw, tc.branch)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseTarget(%q) expected error", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTarget(%q) unexpected error: %v", tc.raw, err)
			}
			if got := target.Owner + "/" + target.Repo + "@" + target.Branch; got != tc.wantTarget {
				t.Fatalf("parseTarget(%q) = %s, want %s", tc.raw, got, tc.wantTarget)
			}

			key, err := stateKey(tc.raw, tc.branch)
			if tc.wantKeyErr {
				if err == nil {
					t.Fatalf("stateKey(%q) expected error", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("stateKey(%q) unexpected error: %v", tc.raw, err)
			}
			if key != tc.wantKey {
				t.Fatalf("stateKey(%q) = %q, want %q", tc.raw, key, tc.wantKey)
			}
		})
	}
}

func writeTestConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "branchscope.yaml")
	body := fmt.Sprintf(`github:
  token_file: %q
  env_file: %q
cache:
  backend: memory
state:
  backend: file
  path: %q
`, filepath.Join(dir, "missing_token.txt"), filepath.Join(dir, "missing.env"), filepath.Join(dir, "project_state.json"))
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	root := newRootCommand(&stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func TestStateCommands(t *testing.T) {
	t.Setenv(githubapi.TokenEnvVar, "")

	configPath := writeTestConfig(t)
	url := "https://github.com/octo/hello/tree/feature/login"
	key := "octo/hello@feature/login"
	sha := "a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1"

	out, err := runCommand(t, "--config", configPath, "--json", "state", "set", url,
		"--start", "2026-01-05",
		"--end", "2026-02-05",
		"--extend", "2026-02-20",
		"--tag", sha+"=Backend",
		"--desc", sha+"=token refresh",
	)
	if err != nil {
		t.Fatalf("state set unexpected error: %v", err)
	}
	var record projectstate.Record
	if err := json.Unmarshal([]byte(out), &record); err != nil {
		t.Fatalf("decode state set output: %v\n%s", err, out)
	}
	if record.ProjectStart.String() != "2026-01-05" || record.EffectiveEnd().String() != "2026-02-20" {
		t.Fatalf("record window = %s..%s", record.ProjectStart, record.EffectiveEnd())
	}
	if got := record.CommitInputs[sha]; got.Tag != "Backend" || got.Desc != "token refresh" {
		t.Fatalf("annotation = %+v", got)
	}

	out, err = runCommand(t, "--config", configPath, "--no-color", "state", "get", url)
	if err != nil {
		t.Fatalf("state get unexpected error: %v", err)
	}
	for _, want := range []string{key, "2026-01-05", "2026-02-20", "token refresh"} {
		if !strings.Contains(out, want) {
			t.Fatalf("state get output missing %q:\n%s", want, out)
		}
	}

	if _, err := runCommand(t, "--config", configPath, "state", "set", url, "--tag", sha+"=Gardening"); err == nil {
		t.Fatalf("state set with an unknown tag expected error")
	}
	if _, err := runCommand(t, "--config", configPath, "state", "set", url, "--start", "2027-01-01"); err == nil {
		t.Fatalf("state set with start after end expected error")
	}

	out, err = runCommand(t, "--config", configPath, "state", "list")
	if err != nil {
		t.Fatalf("state list unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != key {
		t.Fatalf("state list = %q, want %q", out, key)
	}

	if _, err := runCommand(t, "--config", configPath, "state", "delete", url); err != nil {
		t.Fatalf("state delete unexpected error: %v", err)
	}
	out, err = runCommand(t, "--config", configPath, "state", "list")
	if err != nil {
		t.Fatalf("state list unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "" {
		t.Fatalf("state list after delete = %q, want empty", out)
	}
}

func TestStateCommandRequiresBranch(t *testing.T) {
	t.Setenv(githubapi.TokenEnvVar, "")

	configPath := writeTestConfig(t)
	_, err := runCommand(t, "--config", configPath, "state", "get", "https://github.com/octo/hello")
	if err == nil || !strings.Contains(err.Error(), "branch is required") {
		t.Fatalf("state get error = %v, want branch is required", err)
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout != 5*time.Minute {
		t.Errorf("request_timeout = %v, want 5m", cfg.Server.RequestTimeout)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "info" {
		t.Errorf("logging = %+v, want json/info", cfg.Logging)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("storage.type = %q, want memory", cfg.Storage.Type)
	}
}

func TestLoadFile_Deployments(t *testing.T) {
	t.Setenv("TEST_BACKEND_KEY", "sk-test")

	path := writeConfig(t, `
server:
  port: 9100
backends:
  - name: local
    type: textcompletion
    base_url: http://localhost:8000/v1
    api_key: ${TEST_BACKEND_KEY}
    timeout: 30s
deployments:
  - id: claude-v2
    backend: local
    model: anthropic.claude-v2
    profile: claude
    tool_protocol: legacy
    model_limit: 100000
  - id: echo
    backend: local
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100", cfg.Server.Port)
	}
	if got := cfg.Backends[0].APIKey; got != "sk-test" {
		t.Errorf("api_key = %q, want substituted value", got)
	}
	if got := cfg.Backends[0].Timeout; got != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", got)
	}

	d := cfg.Deployments[0]
	if d.Model != "anthropic.claude-v2" || d.Profile != "claude" || d.ToolProtocol != "legacy" || d.ModelLimit != 100000 {
		t.Errorf("unexpected deployment %+v", d)
	}

	// Defaults fill the second deployment.
	if cfg.Deployments[1].Model != "echo" || cfg.Deployments[1].Profile != "default" {
		t.Errorf("unexpected defaults %+v", cfg.Deployments[1])
	}
}

func TestLoadFile_EnvOverride(t *testing.T) {
	t.Setenv("DIAL_SERVER__PORT", "9000")
	t.Setenv("DIAL_STORAGE__TYPE", "none")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Storage.Type != "none" {
		t.Errorf("storage.type = %q, want none", cfg.Storage.Type)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "unknown backend",
			body: `
deployments:
  - id: a
    backend: nope
`,
			wantErr: `unknown backend "nope"`,
		},
		{
			name: "duplicate deployment",
			body: `
backends:
  - name: b
    type: echo
deployments:
  - id: a
    backend: b
  - id: a
    backend: b
`,
			wantErr: `duplicate deployment "a"`,
		},
		{
			name: "bad storage",
			body: `
storage:
  type: postgres
`,
			wantErr: "unsupported storage type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("LoadFile() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple substitution", "${TEST_VAR}", "test-value"},
		{"substitution in string", "prefix-${TEST_VAR}-suffix", "prefix-test-value-suffix"},
		{"no substitution", "plain-string", "plain-string"},
		{"undefined var", "${UNDEFINED_VAR}", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := substituteEnvVars(tt.input); got != tt.want {
				t.Errorf("substituteEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

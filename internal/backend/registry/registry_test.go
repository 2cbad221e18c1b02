package registry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/ports"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/pkg/config"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/stream"
)

type fakeInvoker struct{ name string }

func (f *fakeInvoker) Name() string { return f.name }
func (f *fakeInvoker) Complete(context.Context, *ports.Invocation) (*ports.Completion, error) {
	return &ports.Completion{}, nil
}
func (f *fakeInvoker) Stream(context.Context, *ports.Invocation) (stream.Stream, error) {
	return stream.FromSlice(), nil
}

func registerFake(t *testing.T) {
	t.Helper()
	ClearFactories()
	t.Cleanup(ClearFactories)

	RegisterFactory(BackendFactory{
		Type:   "fake",
		Create: func(cfg config.BackendConfig) (ports.Invoker, error) { return &fakeInvoker{name: cfg.Name}, nil },
		ValidateConfig: func(cfg config.BackendConfig) error {
			if cfg.BaseURL == "" {
				return errors.New("base_url is required")
			}
			return nil
		},
	})
}

func TestCreate(t *testing.T) {
	registerFake(t)

	tests := []struct {
		name    string
		cfg     config.BackendConfig
		wantErr string
	}{
		{"valid", config.BackendConfig{Name: "a", Type: "fake", BaseURL: "http://x"}, ""},
		{"validation fails", config.BackendConfig{Name: "a", Type: "fake"}, "base_url is required"},
		{"unknown type", config.BackendConfig{Name: "a", Type: "nope"}, "unknown backend type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Create(tt.cfg)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Create() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if b.Name() != "a" {
				t.Errorf("Name() = %q", b.Name())
			}
		})
	}
}

func TestCreateAll(t *testing.T) {
	registerFake(t)

	backends, err := CreateAll([]config.BackendConfig{
		{Name: "one", Type: "fake", BaseURL: "http://1"},
		{Name: "two", Type: "fake", BaseURL: "http://2"},
	})
	if err != nil {
		t.Fatalf("CreateAll() error = %v", err)
	}
	if len(backends) != 2 || backends["two"] == nil {
		t.Errorf("unexpected backends %v", backends)
	}
}

func TestRegisterFactory_Duplicate(t *testing.T) {
	registerFake(t)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	RegisterFactory(BackendFactory{Type: "fake", Create: func(config.BackendConfig) (ports.Invoker, error) { return nil, nil }})
}

func TestListBackendTypes(t *testing.T) {
	registerFake(t)

	if got := ListBackendTypes(); len(got) != 1 || got[0] != "fake" {
		t.Errorf("ListBackendTypes() = %v", got)
	}
	if !IsRegistered("fake") || IsRegistered("other") {
		t.Error("IsRegistered mismatch")
	}
}

package di

import (
	"errors"
	"testing"

	"go.uber.org/dig"
)

// Test types for dependency injection
type VariableStore struct {
	Name string
}

type Notifier struct {
	Level string
}

type Installer struct {
	Store    *VariableStore
	Notifier *Notifier
}

type Registry struct {
	Store *VariableStore
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{
			name:    "creates container with no providers",
			opts:    nil,
			wantErr: false,
		},
		{
			name: "creates container with single provider",
			opts: []Option{
				WithProviders(func() *VariableStore {
					return &VariableStore{Name: "test-db"}
				}),
			},
			wantErr: false,
		},
		{
			name: "creates container with multiple providers",
			opts: []Option{
				WithProviders(
					func() *VariableStore {
						return &VariableStore{Name: "prod-db"}
					},
					func() *Notifier {
						return &Notifier{Level: "info"}
					},
				),
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			container, err := New(tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if container == nil && !tt.wantErr {
				t.Error("New() returned nil container without error")
			}
		})
	}
}

func TestNew_InvalidProvider(t *testing.T) {
	// Attempting to provide the same type twice should fail
	_, err := New(
		WithProviders(
			func() *VariableStore {
				return &VariableStore{Name: "db1"}
			},
			func() *VariableStore {
				return &VariableStore{Name: "db2"}
			},
		),
	)

	if err == nil {
		t.Error("New() should return error when providing duplicate types")
	}
}

func TestNew_ProvidesSettings(t *testing.T) {
	container, err := New(WithServer("https://gocd.example.com", "admin", "secret"))
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}

	var settings Settings
	err = container.Invoke(func(s Settings) {
		settings = s
	})
	if err != nil {
		t.Fatalf("Invoke() unexpected error: %v", err)
	}

	if settings.ServerURL != "https://gocd.example.com" {
		t.Errorf("Settings.ServerURL = %v, want %v", settings.ServerURL, "https://gocd.example.com")
	}
	if settings.Username != "admin" {
		t.Errorf("Settings.Username = %v, want %v", settings.Username, "admin")
	}
}

func TestMustGet(t *testing.T) {
	t.Run("successfully retrieves dependency", func(t *testing.T) {
		container, err := New(
			WithProviders(func() *VariableStore {
				return &VariableStore{Name: "test-db"}
			}),
		)
		if err != nil {
			t.Fatalf("New() unexpected error: %v", err)
		}

		db := MustGet[*VariableStore](container)
		if db == nil {
			t.Error("MustGet() returned nil")
		}
		if db.Name != "test-db" {
			t.Errorf("VariableStore.Name = %v, want %v", db.Name, "test-db")
		}
	})

	t.Run("panics when dependency not found", func(t *testing.T) {
		container, err := New()
		if err != nil {
			t.Fatalf("New() unexpected error: %v", err)
		}

		defer func() {
			if r := recover(); r == nil {
				t.Error("MustGet() did not panic")
			}
		}()

		_ = MustGet[*VariableStore](container)
	})
}

func TestWithProviders(t *testing.T) {
	t.Run("adds single provider", func(t *testing.T) {
		container, err := New(
			WithProviders(func() *VariableStore {
				return &VariableStore{Name: "test-db"}
			}),
		)
		if err != nil {
			t.Fatalf("New() unexpected error: %v", err)
		}

		var db *VariableStore
		err = container.Invoke(func(d *VariableStore) {
			db = d
		})
		if err != nil {
			t.Fatalf("Invoke() unexpected error: %v", err)
		}
		if db.Name != "test-db" {
			t.Errorf("VariableStore.Name = %v, want %v", db.Name, "test-db")
		}
	})

	t.Run("chains multiple WithProviders calls", func(t *testing.T) {
		container, err := New(
			WithProviders(func() *VariableStore {
				return &VariableStore{Name: "test-db"}
			}),
			WithProviders(func() *Notifier {
				return &Notifier{Level: "info"}
			}),
		)
		if err != nil {
			t.Fatalf("New() unexpected error: %v", err)
		}

		var db *VariableStore
		var logger *Notifier
		err = container.Invoke(func(d *VariableStore, l *Notifier) {
			db = d
			logger = l
		})
		if err != nil {
			t.Fatalf("Invoke() unexpected error: %v", err)
		}
		if db == nil || logger == nil {
			t.Error("Expected both dependencies to be available")
		}
	})
}

func TestDependencyInjection(t *testing.T) {
	t.Run("resolves dependencies automatically", func(t *testing.T) {
		container, err := New(
			WithProviders(
				func() *VariableStore {
					return &VariableStore{Name: "prod-db"}
				},
				func() *Notifier {
					return &Notifier{Level: "error"}
				},
				func(db *VariableStore, logger *Notifier) *Installer {
					return &Installer{
						Store:    db,
						Notifier: logger,
					}
				},
			),
		)
		if err != nil {
			t.Fatalf("New() unexpected error: %v", err)
		}

		service := MustGet[*Installer](container)
		if service.Store.Name != "prod-db" {
			t.Errorf("Installer.Store.Name = %v, want %v", service.Store.Name, "prod-db")
		}
		if service.Notifier.Level != "error" {
			t.Errorf("Installer.Notifier.Level = %v, want %v", service.Notifier.Level, "error")
		}
	})

	t.Run("handles nested dependencies", func(t *testing.T) {
		container, err := New(
			WithProviders(
				func() *VariableStore {
					return &VariableStore{Name: "dev-db"}
				},
				func(db *VariableStore) *Registry {
					return &Registry{Store: db}
				},
			),
		)
		if err != nil {
			t.Fatalf("New() unexpected error: %v", err)
		}

		repo := MustGet[*Registry](container)
		if repo.Store.Name != "dev-db" {
			t.Errorf("Registry.Store.Name = %v, want %v", repo.Store.Name, "dev-db")
		}
	})
}

func TestContainer_Interface(t *testing.T) {
	t.Run("implements Container interface", func(t *testing.T) {
		var _ Container = (*dig.Container)(nil)
	})

	t.Run("can be used polymorphically", func(t *testing.T) {
		var container Container
		container, err := New(
			WithProviders(func() *VariableStore {
				return &VariableStore{Name: "test"}
			}),
		)
		if err != nil {
			t.Fatalf("New() unexpected error: %v", err)
		}

		err = container.Invoke(func(db *VariableStore) {
			if db.Name != "test" {
				t.Errorf("VariableStore.Name = %v, want %v", db.Name, "test")
			}
		})
		if err != nil {
			t.Fatalf("Invoke() unexpected error: %v", err)
		}
	})
}

func TestErrorHandling(t *testing.T) {
	t.Run("returns error from failing provider", func(t *testing.T) {
		providerErr := errors.New("provider initialization failed")

		// Create a provider that returns an error
		_, err := New(
			WithProviders(func() (*VariableStore, error) {
				return nil, providerErr
			}),
		)

		// dig should accept this provider (it will fail at invoke time)
		if err != nil {
			t.Logf("Provider registration failed (expected behavior): %v", err)
		}
	})

	t.Run("MustGet panics with meaningful error", func(t *testing.T) {
		container, err := New()
		if err != nil {
			t.Fatalf("New() unexpected error: %v", err)
		}

		defer func() {
			if r := recover(); r == nil {
				t.Error("MustGet() should panic when dependency is missing")
			}
		}()

		_ = MustGet[*VariableStore](container)
	})
}

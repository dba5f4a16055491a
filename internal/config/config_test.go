package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
auth:
  jwt_secret: "0123456789abcdef0123"
custody:
  qr_secret: "fedcba9876543210fedc"
  timezone: "America/Sao_Paulo"
classrooms:
  - name: Maternal
    max_capacity: 1
    ratio_children_per_adult: 1
  - name: Juniors
    max_capacity: 15
    active: false
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want default 8080", cfg.Server.Port)
	}
	if len(cfg.Classrooms) != 2 {
		t.Fatalf("len(Classrooms) = %d, want 2", len(cfg.Classrooms))
	}
	if !cfg.Classrooms[0].IsActive() {
		t.Error("classroom without active flag should be active")
	}
	if cfg.Classrooms[1].IsActive() {
		t.Error("classroom with active=false should be inactive")
	}
	if cfg.Custody.PINMaxFailures != 5 {
		t.Errorf("PINMaxFailures = %d, want 5", cfg.Custody.PINMaxFailures)
	}
	if len(cfg.Custody.OverrideRoles) != 2 {
		t.Errorf("OverrideRoles = %v, want default leader/admin", cfg.Custody.OverrideRoles)
	}
	loc, err := cfg.Custody.Location()
	if err != nil || loc.String() != "America/Sao_Paulo" {
		t.Errorf("Location() = %v, %v", loc, err)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
auth:
  jwt_secret: "0123456789abcdef0123"
custody:
  qr_secret: "fedcba9876543210fedc"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("PORT", "9999")
	t.Setenv("DB_PATH", "/tmp/override.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != "9999" {
		t.Errorf("Server.Port = %q, want 9999", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if len(cfg.Classrooms) != len(DefaultClassrooms()) {
		t.Errorf("expected default classroom catalog, got %d entries", len(cfg.Classrooms))
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:     ServerConfig{Port: "8080"},
			Auth:       AuthConfig{JWTSecret: "0123456789abcdef"},
			Custody:    CustodyConfig{QRSecret: "0123456789abcdef", PINMaxFailures: 5},
			Classrooms: DefaultClassrooms(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "short jwt secret", mutate: func(c *Config) { c.Auth.JWTSecret = "short" }, wantErr: true},
		{name: "short qr secret", mutate: func(c *Config) { c.Custody.QRSecret = "short" }, wantErr: true},
		{name: "bad timezone", mutate: func(c *Config) { c.Custody.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "zero capacity", mutate: func(c *Config) { c.Classrooms[0].MaxCapacity = 0 }, wantErr: true},
		{name: "duplicate classroom", mutate: func(c *Config) { c.Classrooms[1].Name = "nursery" }, wantErr: true},
		{name: "no pin failures", mutate: func(c *Config) { c.Custody.PINMaxFailures = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

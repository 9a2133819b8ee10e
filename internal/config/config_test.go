package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/chmdznr/ftpsync/internal/errors"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Decode(NewViper())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	cfg.Remote.Host = "ftp.example.com"
	cfg.Local.Root = t.TempDir()
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg, err := Decode(NewViper())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if cfg.Remote.Port != 21 {
		t.Errorf("Remote.Port = %d; want 21", cfg.Remote.Port)
	}
	if cfg.Sync.Tolerance != 10*time.Second {
		t.Errorf("Sync.Tolerance = %v; want 10s", cfg.Sync.Tolerance)
	}
	if cfg.Sync.BusyInterval != time.Second || cfg.Sync.IdleInterval != 10*time.Second {
		t.Errorf("unexpected intervals: %+v", cfg.Sync)
	}
	if cfg.State.Path != "ftpsync.db" {
		t.Errorf("State.Path = %q", cfg.State.Path)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("FTPSYNC_REMOTE_HOST", "files.internal")
	t.Setenv("FTPSYNC_SYNC_TOLERANCE", "3s")

	cfg, err := Decode(NewViper())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if cfg.Remote.Host != "files.internal" {
		t.Errorf("Remote.Host = %q; want files.internal", cfg.Remote.Host)
	}
	if cfg.Sync.Tolerance != 3*time.Second {
		t.Errorf("Sync.Tolerance = %v; want 3s", cfg.Sync.Tolerance)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ftpsync.yaml")
	content := "remote:\n  host: ftp.local\n  port: 2121\nlocal:\n  root: /srv/data\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Remote.Addr() != "ftp.local:2121" {
		t.Errorf("Addr() = %q", cfg.Remote.Addr())
	}
	if cfg.Local.Root != "/srv/data" {
		t.Errorf("Local.Root = %q", cfg.Local.Root)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing host", func(c *Config) { c.Remote.Host = "" }, true},
		{"missing local root", func(c *Config) { c.Local.Root = "" }, true},
		{"zero tolerance", func(c *Config) { c.Sync.Tolerance = 0 }, true},
		{"negative interval", func(c *Config) { c.Sync.BusyInterval = -time.Second }, true},
		{"unknown backend", func(c *Config) { c.Remote.Backend = "webdav" }, true},
		{"s3 without bucket", func(c *Config) { c.Remote.Backend = BackendS3 }, true},
		{"s3 with bucket", func(c *Config) {
			c.Remote.Backend = BackendS3
			c.S3.Bucket = "sync"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !apperrors.Is(err, apperrors.CodeInvalidInput) {
				t.Errorf("Validate() error code = %v; want invalid_input", err)
			}
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig() does not validate: %v", err)
	}
}

func TestLoadConfigCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q, want default 8080", cfg.Server.Port)
	}

	// The missing file was written with defaults.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	if !strings.Contains(string(data), "[tracks]") {
		t.Errorf("created config file missing tracks section:\n%s", data)
	}
}

func TestLoadConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	original := DefaultConfig()
	original.Server.Port = "9090"
	original.Tracks.ArchivePath = "/data/rides.tar.gz"
	original.Tracks.GeohashPrecision = 7
	original.RateLimit.RequestsPerSecond = 25

	if err := original.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if loaded.Server.Port != "9090" {
		t.Errorf("Port = %q, want 9090", loaded.Server.Port)
	}
	if loaded.Tracks.ArchivePath != "/data/rides.tar.gz" {
		t.Errorf("ArchivePath = %q, want /data/rides.tar.gz", loaded.Tracks.ArchivePath)
	}
	if loaded.Tracks.GeohashPrecision != 7 {
		t.Errorf("GeohashPrecision = %d, want 7", loaded.Tracks.GeohashPrecision)
	}
	if loaded.RateLimit.RequestsPerSecond != 25 {
		t.Errorf("RequestsPerSecond = %v, want 25", loaded.RateLimit.RequestsPerSecond)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty port",
			mutate:  func(c *Config) { c.Server.Port = "" },
			wantErr: "port",
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database path",
		},
		{
			name:    "empty archive path",
			mutate:  func(c *Config) { c.Tracks.ArchivePath = "" },
			wantErr: "archive path",
		},
		{
			name:    "geohash precision out of range",
			mutate:  func(c *Config) { c.Tracks.GeohashPrecision = 13 },
			wantErr: "geohash precision",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.RateLimit.RequestsPerSecond = 0 },
			wantErr: "requests per second",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "log level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "log format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestGetAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "9000"

	if got := cfg.GetAddress(); got != "127.0.0.1:9000" {
		t.Errorf("GetAddress() = %q, want 127.0.0.1:9000", got)
	}
}

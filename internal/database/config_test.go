package database

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{Host: "localhost", Port: 3306, Username: "root"}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}

	missing := Config{Port: 3306}
	if err := missing.Validate(); err == nil {
		t.Error("Expected error for missing host and username")
	}

	badPort := Config{Host: "localhost", Port: 99999, Username: "root"}
	if err := badPort.Validate(); err == nil {
		t.Error("Expected error for out-of-range port")
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{Host: "localhost", Username: "root"}.WithDefaults()
	if cfg.Port != 3306 {
		t.Errorf("Expected default port 3306, got %d", cfg.Port)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", cfg.Timeout)
	}

	custom := Config{Host: "h", Port: 3307, Username: "u", Timeout: time.Second}.WithDefaults()
	if custom.Port != 3307 || custom.Timeout != time.Second {
		t.Error("Expected explicit values to be preserved")
	}
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{
		Host:     "127.0.0.1",
		Port:     3307,
		Username: "root",
		Password: "secret",
		Timeout:  10 * time.Second,
	}

	dsn := cfg.DSN()
	if !strings.HasPrefix(dsn, "root:secret@tcp(127.0.0.1:3307)/") {
		t.Errorf("Unexpected DSN: %q", dsn)
	}
	if !strings.Contains(dsn, "timeout=10s") {
		t.Errorf("Expected timeout in DSN, got %q", dsn)
	}
}

func TestConfigAddressOmitsCredentials(t *testing.T) {
	cfg := Config{Host: "db.example.com", Port: 3306, Username: "root", Password: "secret"}
	addr := cfg.Address()
	if addr != "db.example.com:3306" {
		t.Errorf("Unexpected address: %q", addr)
	}
	if strings.Contains(addr, "secret") {
		t.Error("Address must never contain the password")
	}
}

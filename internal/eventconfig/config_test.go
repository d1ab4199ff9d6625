package eventconfig

import (
	"os"
	"testing"
)

func clearAll() {
	for _, k := range []string{
		"STACKS_CORE_EVENT_HOST", "STACKS_CORE_EVENT_PORT", "STACKS_CHAIN_ID",
		"STACKS_API_MODE", "STACKS_READ_ONLY_MODE", "STACKS_API_OFFLINE_MODE",
		"STACKS_EVENT_DATABASE_URL",
	} {
		_ = os.Unsetenv(k)
	}
}

func TestLoadRequiresHost(t *testing.T) {
	clearAll()
	defer clearAll()
	if _, err := Load(); err == nil {
		t.Fatalf("expected error when STACKS_CORE_EVENT_HOST is unset")
	}
}

func TestLoadStripsScheme(t *testing.T) {
	clearAll()
	defer clearAll()
	os.Setenv("STACKS_CORE_EVENT_HOST", "http://0.0.0.0")
	os.Setenv("STACKS_CORE_EVENT_PORT", "3700")
	os.Setenv("STACKS_CHAIN_ID", "0x80000000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Host != "0.0.0.0" {
		t.Fatalf("expected scheme stripped, got %q", cfg.Host)
	}
	if cfg.Port != 3700 {
		t.Fatalf("expected port 3700, got %d", cfg.Port)
	}
	if cfg.ChainID != 0x80000000 {
		t.Fatalf("expected chain id 0x80000000, got 0x%x", cfg.ChainID)
	}
	if cfg.Mode != ModeDefault {
		t.Fatalf("expected default mode, got %q", cfg.Mode)
	}
}

func TestLoadRejectsBadChainID(t *testing.T) {
	clearAll()
	defer clearAll()
	os.Setenv("STACKS_CORE_EVENT_HOST", "127.0.0.1")
	os.Setenv("STACKS_CORE_EVENT_PORT", "3700")
	os.Setenv("STACKS_CHAIN_ID", "not-hex")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for non-hex chain id")
	}
}

func TestLoadRejectsBadMode(t *testing.T) {
	clearAll()
	defer clearAll()
	os.Setenv("STACKS_CORE_EVENT_HOST", "127.0.0.1")
	os.Setenv("STACKS_CORE_EVENT_PORT", "3700")
	os.Setenv("STACKS_CHAIN_ID", "0x1")
	os.Setenv("STACKS_API_MODE", "bogus")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid api mode")
	}
}

func TestLoadLegacyOfflineFlag(t *testing.T) {
	clearAll()
	defer clearAll()
	os.Setenv("STACKS_CORE_EVENT_HOST", "127.0.0.1")
	os.Setenv("STACKS_CORE_EVENT_PORT", "3700")
	os.Setenv("STACKS_CHAIN_ID", "0x1")
	os.Setenv("STACKS_API_OFFLINE_MODE", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Mode != ModeOffline {
		t.Fatalf("expected offline mode via legacy flag, got %q", cfg.Mode)
	}
}

func TestVerifyChainID(t *testing.T) {
	cfg := Config{ChainID: 0x80000000}
	if err := cfg.VerifyChainID(0x80000000); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := cfg.VerifyChainID(0x1); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

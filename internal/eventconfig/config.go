// Package eventconfig loads the ingestion core's startup configuration from
// the environment, per the contract in spec section 6. Loading is one-shot:
// the result is an immutable Config returned to the caller (cmd/eventserver),
// never a package-level global.
package eventconfig

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"stacks-event-ingest/pkg/utils"
)

// APIMode is the closed set of values STACKS_API_MODE may take.
type APIMode string

const (
	ModeDefault   APIMode = "default"
	ModeReadOnly  APIMode = "readonly"
	ModeWriteOnly APIMode = "writeonly"
	ModeOffline   APIMode = "offline"
)

func (m APIMode) valid() bool {
	switch m {
	case ModeDefault, ModeReadOnly, ModeWriteOnly, ModeOffline:
		return true
	}
	return false
}

// Config is the immutable, fully-validated startup configuration for the
// event server.
type Config struct {
	Host    string
	Port    uint16
	ChainID uint32
	Mode    APIMode

	// DatabaseURL is consumed by internal/eventstore to dial Postgres. It is
	// not part of spec section 6's enumerated variables (those describe the
	// ingestion core's own contract), but every Store implementation needs a
	// DSN from somewhere, so it is read the same way as everything else.
	DatabaseURL string
}

// Load reads and validates configuration from the environment. A local .env
// file is merged in first if present (never required); real environment
// variables always win. Any validation failure is a Config-kind error and
// the caller must exit(1) per spec section 6.
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	host, ok := lookupRequired("STACKS_CORE_EVENT_HOST")
	if !ok {
		return Config{}, fmt.Errorf("config: STACKS_CORE_EVENT_HOST is required")
	}
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimPrefix(host, "https://")

	portStr, ok := lookupRequired("STACKS_CORE_EVENT_PORT")
	if !ok {
		return Config{}, fmt.Errorf("config: STACKS_CORE_EVENT_PORT is required")
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Config{}, fmt.Errorf("config: STACKS_CORE_EVENT_PORT invalid: %w", err)
	}

	chainIDStr, ok := lookupRequired("STACKS_CHAIN_ID")
	if !ok {
		return Config{}, fmt.Errorf("config: STACKS_CHAIN_ID is required")
	}
	chainID, err := strconv.ParseUint(strings.TrimPrefix(chainIDStr, "0x"), 16, 32)
	if err != nil {
		return Config{}, fmt.Errorf("config: STACKS_CHAIN_ID is not valid hex: %w", err)
	}

	mode := resolveMode()
	if !mode.valid() {
		return Config{}, fmt.Errorf("config: STACKS_API_MODE %q is not one of default|readonly|writeonly|offline", mode)
	}

	dbURL := utils.EnvOrDefault("STACKS_EVENT_DATABASE_URL", "")

	return Config{
		Host:        host,
		Port:        uint16(port),
		ChainID:     uint32(chainID),
		Mode:        mode,
		DatabaseURL: dbURL,
	}, nil
}

// VerifyChainID compares the configured chain ID against the value the node
// reports. A mismatch is a fatal Config error (spec section 6).
func (c Config) VerifyChainID(nodeChainID uint32) error {
	if c.ChainID != nodeChainID {
		return fmt.Errorf("config: chain ID mismatch: configured 0x%x, node reports 0x%x", c.ChainID, nodeChainID)
	}
	return nil
}

// resolveMode reads STACKS_API_MODE, falling back to the legacy
// STACKS_READ_ONLY_MODE / STACKS_API_OFFLINE_MODE boolean flags for
// backwards compatibility (spec section 6).
func resolveMode() APIMode {
	if raw := utils.EnvOrDefault("STACKS_API_MODE", ""); raw != "" {
		return APIMode(strings.ToLower(raw))
	}
	if utils.EnvOrDefault("STACKS_API_OFFLINE_MODE", "") == "1" {
		return ModeOffline
	}
	if utils.EnvOrDefault("STACKS_READ_ONLY_MODE", "") == "1" {
		return ModeReadOnly
	}
	return ModeDefault
}

func lookupRequired(key string) (string, bool) {
	v := utils.EnvOrDefault(key, "")
	if v == "" {
		return "", false
	}
	return v, true
}

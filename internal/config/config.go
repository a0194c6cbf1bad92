// Package config holds operator-level configuration for a redactd
// installation: data directory, evidence signing key, analyzer service
// endpoint, recognizer overrides, upload limits and retention. Values
// come from env vars (REDACT_*) or a redactd.config.yaml file; nothing
// here is per-request state.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the REDACT_ prefix
// (e.g. "signing_key" → REDACT_SIGNING_KEY) and to a YAML field in
// redactd.config.yaml.
const (
	KeyDataDir          = "data_dir"
	KeySigningKey       = "signing_key"
	KeyAnalyzerURL      = "analyzer_url"
	KeyPatternsFile     = "patterns_file"
	KeyEnabledEntities  = "enabled_entities"
	KeyDisabledEntities = "disabled_entities"
	KeyMaxUploadMB      = "max_upload_mb"
	KeyRetentionDays    = "retention_days"
	KeyListenAddr       = "listen_addr"
)

// Defaults that do not involve crypto material. The signing key has no
// baked-in default; when unset we derive a per-machine fallback and
// warn loudly.
const (
	DefaultMaxUploadMB   = 25
	DefaultRetentionDays = 30
	DefaultListenAddr    = ":8742"
)

// Config holds resolved operator-level configuration for a redactd
// process.
type Config struct {
	DataDir          string   // Base directory for all state (~/.redactd)
	SigningKey       string   // HMAC-SHA256 key for evidence signing (≥32 bytes)
	AnalyzerURL      string   // Optional PII analyzer service endpoint; empty disables it
	PatternsFile     string   // Optional operator recognizer YAML; empty means builtins only
	EnabledEntities  []string // Entity whitelist; empty means all
	DisabledEntities []string // Entity blacklist
	MaxUploadMB      int      // Maximum upload size in MB
	RetentionDays    int      // Days to keep stored files and run records
	ListenAddr       string   // HTTP listen address for redactd serve

	usingDefaultSigningKey bool
}

// UsingDefaultSigningKey returns true if the signing key was derived
// rather than set explicitly. Commands should warn when this is so.
func (c *Config) UsingDefaultSigningKey() bool {
	return c.usingDefaultSigningKey
}

// EvidenceDBPath returns the full path to the run-record SQLite
// database.
func (c *Config) EvidenceDBPath() string {
	return filepath.Join(c.DataDir, "evidence.db")
}

// UploadDir returns the directory that uploaded source documents land
// in.
func (c *Config) UploadDir() string {
	return filepath.Join(c.DataDir, "uploads")
}

// OutputDir returns the directory redacted copies are written to.
func (c *Config) OutputDir() string {
	return filepath.Join(c.DataDir, "outputs")
}

// EnsureDirs creates the data, upload and output directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.UploadDir(), c.OutputDir()} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// WarnIfDefaultKey logs a warning when the signing key is derived.
// Suppressed when REDACT_QUICKSTART=1 or true.
func (c *Config) WarnIfDefaultKey() {
	if isQuickstart() {
		return
	}
	if c.usingDefaultSigningKey {
		log.Warn().Msg("Using generated default REDACT_SIGNING_KEY — set via env var or config file for production")
	}
}

func isQuickstart() bool {
	v := os.Getenv("REDACT_QUICKSTART")
	return v == "1" || v == "true" || v == "TRUE"
}

func init() {
	viper.SetEnvPrefix("REDACT")
	viper.AutomaticEnv()
	viper.SetDefault(KeyMaxUploadMB, DefaultMaxUploadMB)
	viper.SetDefault(KeyRetentionDays, DefaultRetentionDays)
	viper.SetDefault(KeyListenAddr, DefaultListenAddr)
}

// Load reads configuration from Viper (which merges env vars, config
// file, and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:          resolveDataDir(),
		SigningKey:       viper.GetString(KeySigningKey),
		AnalyzerURL:      viper.GetString(KeyAnalyzerURL),
		PatternsFile:     viper.GetString(KeyPatternsFile),
		EnabledEntities:  viper.GetStringSlice(KeyEnabledEntities),
		DisabledEntities: viper.GetStringSlice(KeyDisabledEntities),
		MaxUploadMB:      viper.GetInt(KeyMaxUploadMB),
		RetentionDays:    viper.GetInt(KeyRetentionDays),
		ListenAddr:       viper.GetString(KeyListenAddr),
	}

	if cfg.SigningKey == "" {
		cfg.SigningKey = deriveDefaultKey(cfg.DataDir, "evidence-signing")
		cfg.usingDefaultSigningKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".redactd"
	}
	return filepath.Join(home, ".redactd")
}

// deriveDefaultKey produces a deterministic 32-byte fallback key from
// the data directory path and a salt. Not cryptographically strong; it
// exists so `redactd redact file.pdf` works out of the box while still
// signing the audit trail with a per-machine-unique key.
func deriveDefaultKey(dataDir, salt string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("redactd:%s:%s", dataDir, salt)))
	return hex.EncodeToString(h[:])
}

func (c *Config) validate() error {
	if err := validateSigningKey(c.SigningKey); err != nil {
		return err
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be positive")
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("retention_days must be positive")
	}
	return nil
}

// validateSigningKey accepts either ≥32 raw bytes or 64+ even hex
// characters decoding to ≥32 bytes. Hex is checked first so hex-shaped
// keys are validated as hex.
func validateSigningKey(key string) error {
	n := len(key)
	if n >= 64 && n%2 == 0 && isHexString(key) {
		decoded, err := hex.DecodeString(key)
		if err != nil || len(decoded) < 32 {
			return fmt.Errorf("signing_key hex must decode to at least 32 bytes: %w", err)
		}
		return nil
	}
	if n >= 32 {
		return nil
	}
	return fmt.Errorf("signing_key must be at least 32 bytes or 64+ hex characters (got %d); set REDACT_SIGNING_KEY", n)
}

func isHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

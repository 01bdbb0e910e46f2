// Package config loads the command line settings from YAML and the
// environment.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gregLibert/secure-channel/pkg/logging"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvReader          = "SECURE_CHANNEL_READER"
	EnvPairingKey      = "SECURE_CHANNEL_PAIRING_KEY"
	EnvPairingPassword = "SECURE_CHANNEL_PAIRING_PASSWORD"
	EnvEmulator        = "SECURE_CHANNEL_EMULATOR"
)

const (
	DefaultAID = "A000000820000101"

	PairingKeySize = 32

	pairingSalt       = "Secure Element Pairing Password Salt"
	pairingIterations = 50000
)

var ErrNoPairingSecret = errors.New("neither pairing key nor pairing password configured")

// Config is the resolved configuration.
type Config struct {
	Reader          string
	CardWait        time.Duration
	AID             string
	PairingKey      string
	PairingPassword string
	Emulator        bool
	LogLevel        string
}

// FileConfig mirrors the YAML file. Pointer fields distinguish "absent" from
// the zero value.
type FileConfig struct {
	Reader          string        `yaml:"reader"`
	CardWait        time.Duration `yaml:"cardWait"`
	AID             string        `yaml:"aid"`
	PairingKey      string        `yaml:"pairingKey"`
	PairingPassword string        `yaml:"pairingPassword"`
	Emulator        *bool         `yaml:"emulator"`
	LogLevel        string        `yaml:"logLevel"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		AID:      DefaultAID,
		CardWait: 10 * time.Second,
		LogLevel: "info",
	}
}

// LoadFromPath reads configPath, or the first default candidate found, merges
// it over Default and applies the environment. A missing default candidate is
// not an error; a missing explicit path is.
func LoadFromPath(configPath string) (Config, error) {
	cfg := Default()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates,
			"secure-channel.yaml",
			"configs/secure-channel.yaml",
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if configPath != "" {
				return cfg, fmt.Errorf("reading config: %w", err)
			}
			continue
		}

		var parsed FileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}

		Merge(&cfg, parsed)
		break
	}

	ApplyEnvOverrides(&cfg)
	return cfg, nil
}

// Merge copies the fields set in src over dst.
func Merge(dst *Config, src FileConfig) {
	if src.Reader != "" {
		dst.Reader = src.Reader
	}
	if src.CardWait != 0 {
		dst.CardWait = src.CardWait
	}
	if src.AID != "" {
		dst.AID = src.AID
	}
	if src.PairingKey != "" {
		dst.PairingKey = src.PairingKey
	}
	if src.PairingPassword != "" {
		dst.PairingPassword = src.PairingPassword
	}
	if src.Emulator != nil {
		dst.Emulator = *src.Emulator
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
}

// ApplyEnvOverrides lets the environment win over the file. The log level is
// read from logging.EnvLevel.
func ApplyEnvOverrides(cfg *Config) {
	if reader := strings.TrimSpace(os.Getenv(EnvReader)); reader != "" {
		cfg.Reader = reader
	}
	if key := strings.TrimSpace(os.Getenv(EnvPairingKey)); key != "" {
		cfg.PairingKey = key
	}
	if password := os.Getenv(EnvPairingPassword); password != "" {
		cfg.PairingPassword = password
	}
	cfg.LogLevel = logging.LevelFromEnv(cfg.LogLevel)

	raw := strings.TrimSpace(os.Getenv(EnvEmulator))
	if raw == "" {
		return
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return
	}
	cfg.Emulator = v
}

// Validate checks the hex fields and the pairing secret.
func (c Config) Validate() error {
	if _, err := c.AIDBytes(); err != nil {
		return err
	}
	if c.CardWait < 0 {
		return fmt.Errorf("cardWait must not be negative, got %s", c.CardWait)
	}
	_, err := c.PairingKeyBytes()
	return err
}

// AIDBytes decodes the applet AID (5 to 16 bytes).
func (c Config) AIDBytes() ([]byte, error) {
	aid, err := hex.DecodeString(strings.ReplaceAll(c.AID, " ", ""))
	if err != nil {
		return nil, fmt.Errorf("aid: %w", err)
	}
	if len(aid) < 5 || len(aid) > 16 {
		return nil, fmt.Errorf("aid must be 5 to 16 bytes, got %d", len(aid))
	}
	return aid, nil
}

// PairingKeyBytes returns the pairing key, decoding PairingKey when set and
// deriving it from PairingPassword otherwise.
func (c Config) PairingKeyBytes() ([]byte, error) {
	if c.PairingKey != "" {
		key, err := hex.DecodeString(strings.ReplaceAll(c.PairingKey, " ", ""))
		if err != nil {
			return nil, fmt.Errorf("pairingKey: %w", err)
		}
		if len(key) != PairingKeySize {
			return nil, fmt.Errorf("pairingKey must be %d bytes, got %d", PairingKeySize, len(key))
		}
		return key, nil
	}
	if c.PairingPassword != "" {
		return DerivePairingKey(c.PairingPassword), nil
	}
	return nil, ErrNoPairingSecret
}

// DerivePairingKey stretches a pairing password with PBKDF2-HMAC-SHA256 over
// its NFKD form.
func DerivePairingKey(password string) []byte {
	return pbkdf2.Key(norm.NFKD.Bytes([]byte(password)), norm.NFKD.Bytes([]byte(pairingSalt)), pairingIterations, PairingKeySize, sha256.New)
}

package quickstart

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/flashbots/nada-quickstart/protocol"
	"github.com/spf13/viper"
)

// Defaults of the quickstart run.
const (
	DefaultSeed           = "my_secure_seed"
	DefaultProgramName    = "main"
	DefaultProgramDir     = "target"
	DefaultTTLDays        = 5
	DefaultComputeTimeout = 2 * time.Minute
)

// Config holds the connection settings and run parameters.
type Config struct {
	ClusterID  string
	ClusterURL string
	ChainURL   string
	ChainID    string
	// PrivateKey is the hex payment key.
	PrivateKey string

	// Seed derives the user and node keys. Deterministic keys are only
	// suitable for local development.
	Seed        string
	ProgramName string
	ProgramDir  string
	TTLDays     uint32

	ComputeTimeout time.Duration
	PollInterval   time.Duration
}

// DefaultEnvFile is $HOME/.config/nillion/nillion-devnet.env.
func DefaultEnvFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "nillion", "nillion-devnet.env"), nil
}

// LoadConfig reads connection settings from envFile, with process
// environment variables taking precedence. A missing file is not an error as
// long as the environment supplies every setting.
func LoadConfig(envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()
	if envFile != "" {
		v.SetConfigFile(envFile)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		ClusterID:      v.GetString(protocol.EnvClusterID),
		ClusterURL:     v.GetString(protocol.EnvClusterURL),
		ChainURL:       v.GetString(protocol.EnvChainURL),
		ChainID:        v.GetString(protocol.EnvChainID),
		PrivateKey:     v.GetString(protocol.EnvPrivateKey),
		Seed:           DefaultSeed,
		ProgramName:    DefaultProgramName,
		ProgramDir:     DefaultProgramDir,
		TTLDays:        DefaultTTLDays,
		ComputeTimeout: DefaultComputeTimeout,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every connection setting is present and that the
// wait for the computation is bounded.
func (c *Config) Validate() error {
	required := []struct{ key, value string }{
		{protocol.EnvClusterID, c.ClusterID},
		{protocol.EnvClusterURL, c.ClusterURL},
		{protocol.EnvChainURL, c.ChainURL},
		{protocol.EnvChainID, c.ChainID},
		{protocol.EnvPrivateKey, c.PrivateKey},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("missing %s", r.key)
		}
	}
	if c.ProgramName == "" {
		return errors.New("missing program name")
	}
	if c.ComputeTimeout <= 0 {
		return fmt.Errorf("compute timeout must be positive, got %s", c.ComputeTimeout)
	}
	return nil
}

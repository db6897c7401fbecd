// Package config provides configuration loading for apesctl.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/apesavax/wAvaxApes/internal/artifact"
	"github.com/apesavax/wAvaxApes/internal/deployer"
	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
	"github.com/apesavax/wAvaxApes/internal/target"
)

// EnvPrefix prefixes every environment override, e.g. APESCTL_DEFAULT_TARGET.
const EnvPrefix = "APESCTL"

// Config holds all configuration for the CLI.
type Config struct {
	// DefaultTarget is used when --target is not given.
	DefaultTarget string `mapstructure:"default_target" yaml:"default_target"`
	// Targets are keyed by name. Names are case-insensitive and stored
	// lowercased.
	Targets map[string]target.Target `mapstructure:"targets" yaml:"targets"`

	ArtifactsDir string `mapstructure:"artifacts_dir" yaml:"artifacts_dir"`
	JournalDir   string `mapstructure:"journal_dir" yaml:"journal_dir"`
	// MetricsFile, when set, receives Prometheus text metrics after each run.
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file,omitempty"`
	// EnvFile is a dotenv file consulted for credential variables that are
	// not set in the process environment.
	EnvFile string `mapstructure:"env_file" yaml:"env_file"`

	Solidity artifact.CompilerSettings `mapstructure:"solidity" yaml:"solidity"`
	Deploy   deployer.Config           `mapstructure:"deploy" yaml:"deploy"`
	Log      LogConfig                 `mapstructure:"log" yaml:"log"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// Load reads configuration from the given file, or searches ./apesctl.yaml,
// ./config/apesctl.yaml and ~/.config/apesctl/apesctl.yaml when path is
// empty. Environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("apesctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/apesctl")
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: read config file: %v", apperrors.ErrConfiguration, err)
		}
		// Config file not found is OK, we use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config: %v", apperrors.ErrConfiguration, err)
	}
	cfg.File = v.ConfigFileUsed()
	return &cfg, nil
}

// Registry builds the target registry from the configured targets.
func (c *Config) Registry() (*target.Registry, error) {
	names := make([]string, 0, len(c.Targets))
	for name := range c.Targets {
		names = append(names, name)
	}
	sort.Strings(names)

	targets := make([]target.Target, 0, len(names))
	for _, name := range names {
		t := c.Targets[name]
		t.Name = name
		targets = append(targets, t)
	}

	reg, err := target.NewRegistry(targets...)
	if err != nil {
		return nil, err
	}
	return reg.WithDefault(strings.ToLower(strings.TrimSpace(c.DefaultTarget)))
}

// setDefaults mirrors the project's Hardhat networks: Avalanche C-Chain
// mainnet through Snowtrace (Routescan) and Lorescan, plus the Fuji testnet.
func setDefaults(v *viper.Viper) {
	v.SetDefault("default_target", "snowtrace")

	v.SetDefault("targets.snowtrace.rpc_url", "https://api.avax.network/ext/bc/C/rpc")
	v.SetDefault("targets.snowtrace.chain_id", 43114)
	v.SetDefault("targets.snowtrace.credential", "env:PRIVATE_KEY")
	v.SetDefault("targets.snowtrace.verification.service", "snowtrace")
	v.SetDefault("targets.snowtrace.verification.api_url", "https://api.routescan.io/v2/network/mainnet/evm/43114/etherscan")
	v.SetDefault("targets.snowtrace.verification.browser_url", "https://avalanche.routescan.io")
	v.SetDefault("targets.snowtrace.verification.api_key", "snowtrace") // Routescan accepts any key

	v.SetDefault("targets.lore.rpc_url", "https://api.avax.network/ext/bc/C/rpc")
	v.SetDefault("targets.lore.chain_id", 43114)
	v.SetDefault("targets.lore.credential", "env:PRIVATE_KEY")
	v.SetDefault("targets.lore.verification.service", "lore")
	v.SetDefault("targets.lore.verification.api_url", "https://api.lorescan.com/43114")
	v.SetDefault("targets.lore.verification.browser_url", "https://skilift.io/")
	v.SetDefault("targets.lore.verification.api_key", "lore-public")

	v.SetDefault("targets.fuji.rpc_url", "https://api.avax-test.network/ext/bc/C/rpc")
	v.SetDefault("targets.fuji.chain_id", 43113)
	v.SetDefault("targets.fuji.credential", "env:PRIVATE_KEY")
	v.SetDefault("targets.fuji.verification.service", "snowtrace")
	v.SetDefault("targets.fuji.verification.api_url", "https://api.routescan.io/v2/network/testnet/evm/43113/etherscan")
	v.SetDefault("targets.fuji.verification.browser_url", "https://testnet.snowtrace.io")
	v.SetDefault("targets.fuji.verification.api_key", "snowtrace")

	v.SetDefault("artifacts_dir", "artifacts")
	v.SetDefault("journal_dir", "deployments")
	v.SetDefault("metrics_file", "")
	v.SetDefault("env_file", ".env")

	v.SetDefault("solidity.version", "0.8.20")
	v.SetDefault("solidity.optimizer", true)
	v.SetDefault("solidity.runs", 200)
	v.SetDefault("solidity.evm_version", "paris")

	d := deployer.DefaultConfig()
	v.SetDefault("deploy.poll_interval", d.PollInterval.String())
	v.SetDefault("deploy.confirm_timeout", d.ConfirmTimeout.String())
	v.SetDefault("deploy.confirmations", d.Confirmations)
	v.SetDefault("deploy.max_poll_errors", d.MaxPollErrors)
	v.SetDefault("deploy.gas_price_boost_percent", d.GasPriceBoostPercent)
	v.SetDefault("deploy.min_gas_price_wei", d.MinGasPriceWei)
	v.SetDefault("deploy.gas_limit_buffer_percent", d.GasLimitBufferPercent)
	v.SetDefault("deploy.gas_limit", d.GasLimit)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// DefaultSettings returns the default configuration as a nested map, in the
// same shape as the YAML file.
func DefaultSettings() map[string]interface{} {
	v := viper.New()
	setDefaults(v)
	return v.AllSettings()
}

/*
Package config manages TOML config for seqtree services.

The file has three sections: [search] picks the penalty model and result
limits, [index] says where reference sequences live and how to load them,
and [server] bounds what IPC clients may ask for.
*/
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/bastiangx/seqtree/internal/utils"
	"github.com/bastiangx/seqtree/pkg/seq"
	"github.com/bastiangx/seqtree/pkg/tree"
	"github.com/charmbracelet/log"
)

// Config holds the entire config structure
type Config struct {
	Search SearchConfig `toml:"search"`
	Index  IndexConfig  `toml:"index"`
	Server ServerConfig `toml:"server"`
}

// SearchConfig selects the penalty model. Preset is "strict", "fuzzy" or
// "custom"; the explicit penalties and threshold apply to "custom" only.
type SearchConfig struct {
	Preset             string  `toml:"preset"`
	Mismatch           float64 `toml:"mismatch"`
	Deletion           float64 `toml:"deletion"`
	Insertion          float64 `toml:"insertion"`
	ThresholdBase      float64 `toml:"threshold_base"`
	ThresholdPerSymbol float64 `toml:"threshold_per_symbol"`
	// MaxErrors caps mismatches, deletions and insertions; empty is uncapped.
	MaxErrors []int `toml:"max_errors,omitempty"`
	Limit     int   `toml:"limit"`
}

// IndexConfig holds reference loading options.
type IndexConfig struct {
	Alphabet string `toml:"alphabet"`
	DataDir  string `toml:"data_dir"`
	Glob     string `toml:"glob"`
	Workers  int    `toml:"workers"`
	Snapshot string `toml:"snapshot"`
}

// ServerConfig has server related options. MaxPenalty caps every search
// budget, including per-request overrides; MaxCombinations rejects budgets
// that expand to more edit combinations than that.
type ServerConfig struct {
	MaxLimit        int     `toml:"max_limit"`
	MaxQueryLength  int     `toml:"max_query_length"`
	MaxPenalty      float64 `toml:"max_penalty"`
	MaxCombinations int     `toml:"max_combinations"`
	CacheSize       int     `toml:"cache_size"`
	MetricsAddr     string  `toml:"metrics_addr"`
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/seqtree
// 2. Current executable dir
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		return utils.GetExecutableDir()
	}
	primaryPath := filepath.Join(homeDir, ".config", "seqtree")
	if result := utils.CheckDirStatus(primaryPath); result.Writable {
		return primaryPath, nil
	}
	execDir, err := utils.GetExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: ~/.config/seqtree/config.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err := LoadConfig(customConfigPath)
			if err != nil {
				log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
			} else {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}

	config, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Search: SearchConfig{
			Preset:             "strict",
			Mismatch:           tree.Strict.Mismatch,
			Deletion:           tree.Strict.Deletion,
			Insertion:          tree.Strict.Insertion,
			ThresholdBase:      tree.Strict.Base,
			ThresholdPerSymbol: tree.Strict.PerSymbol,
			MaxErrors:          []int{3, 1, 1},
			Limit:              16,
		},
		Index: IndexConfig{
			Alphabet: "nucleotide",
			DataDir:  "data",
			Glob:     "*.fa*",
			Workers:  4,
			Snapshot: "",
		},
		Server: ServerConfig{
			MaxLimit:        256,
			MaxQueryLength:  4096,
			MaxPenalty:      8,
			MaxCombinations: 100000,
			CacheSize:       1024,
			MetricsAddr:     "",
		},
	}
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)

	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("Failed to load config from %s: %v. Using built-in defaults...", configPath, err)
		return DefaultConfig(), nil
	}
	return config, nil
}

// LoadConfig loads from a TOML file. A file that fails strict decoding is
// salvaged section by section.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		return tryPartialParse(configPath)
	}
	return config, nil
}

func tryPartialParse(configPath string) (*Config, error) {
	config := DefaultConfig()

	tempConfig, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", configPath, err)
		return config, nil
	}

	if section, ok := utils.ExtractSection(tempConfig, "search"); ok {
		extractSearchConfig(section, &config.Search)
	}
	if section, ok := utils.ExtractSection(tempConfig, "index"); ok {
		extractIndexConfig(section, &config.Index)
	}
	if section, ok := utils.ExtractSection(tempConfig, "server"); ok {
		extractServerConfig(section, &config.Server)
	}
	return config, nil
}

func extractSearchConfig(data map[string]any, search *SearchConfig) {
	if val, ok := utils.ExtractString(data, "preset"); ok {
		search.Preset = val
	}
	if val, ok := utils.ExtractFloat64(data, "mismatch"); ok {
		search.Mismatch = val
	}
	if val, ok := utils.ExtractFloat64(data, "deletion"); ok {
		search.Deletion = val
	}
	if val, ok := utils.ExtractFloat64(data, "insertion"); ok {
		search.Insertion = val
	}
	if val, ok := utils.ExtractFloat64(data, "threshold_base"); ok {
		search.ThresholdBase = val
	}
	if val, ok := utils.ExtractFloat64(data, "threshold_per_symbol"); ok {
		search.ThresholdPerSymbol = val
	}
	if val, ok := utils.ExtractIntSlice(data, "max_errors"); ok {
		search.MaxErrors = val
	}
	if val, ok := utils.ExtractInt64(data, "limit"); ok {
		search.Limit = val
	}
}

func extractIndexConfig(data map[string]any, index *IndexConfig) {
	if val, ok := utils.ExtractString(data, "alphabet"); ok {
		index.Alphabet = val
	}
	if val, ok := utils.ExtractString(data, "data_dir"); ok {
		index.DataDir = val
	}
	if val, ok := utils.ExtractString(data, "glob"); ok {
		index.Glob = val
	}
	if val, ok := utils.ExtractInt64(data, "workers"); ok {
		index.Workers = val
	}
	if val, ok := utils.ExtractString(data, "snapshot"); ok {
		index.Snapshot = val
	}
}

func extractServerConfig(data map[string]any, server *ServerConfig) {
	if val, ok := utils.ExtractInt64(data, "max_limit"); ok {
		server.MaxLimit = val
	}
	if val, ok := utils.ExtractInt64(data, "max_query_length"); ok {
		server.MaxQueryLength = val
	}
	if val, ok := utils.ExtractFloat64(data, "max_penalty"); ok {
		server.MaxPenalty = val
	}
	if val, ok := utils.ExtractInt64(data, "max_combinations"); ok {
		server.MaxCombinations = val
	}
	if val, ok := utils.ExtractInt64(data, "cache_size"); ok {
		server.CacheSize = val
	}
	if val, ok := utils.ExtractString(data, "metrics_addr"); ok {
		server.MetricsAddr = val
	}
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.SaveTOMLFile(config, configPath)
}

// GetActiveConfigPath returns the absolute path of loaded config file
func GetActiveConfigPath(configPath string) string {
	if configPath == "" {
		if defaultPath, err := GetDefaultConfigPath(); err == nil {
			return defaultPath
		}
		return "unknown"
	}
	return utils.GetAbsolutePath(configPath)
}

// Model resolves the configured penalty model.
func (s SearchConfig) Model() (tree.ScalarPenalty, error) {
	if s.Preset == "custom" {
		return tree.ScalarPenalty{
			Mismatch:  s.Mismatch,
			Deletion:  s.Deletion,
			Insertion: s.Insertion,
			Base:      s.ThresholdBase,
			PerSymbol: s.ThresholdPerSymbol,
		}, nil
	}
	return tree.PresetByName(s.Preset)
}

// Parameters builds search parameters for a reference of the given length.
func (s SearchConfig) Parameters(length int) (tree.SearchParameters, error) {
	model, err := s.Model()
	if err != nil {
		return tree.SearchParameters{}, err
	}
	var caps []int
	if len(s.MaxErrors) > 0 {
		caps = s.MaxErrors
	}
	return tree.ParametersFor(model, length, caps), nil
}

// Bound clamps params to the server budget. A zero MaxPenalty or
// MaxCombinations leaves that side unbounded.
func (s ServerConfig) Bound(params tree.SearchParameters) tree.SearchParameters {
	if s.MaxPenalty > 0 && params.MaxPenalty > s.MaxPenalty {
		params.MaxPenalty = s.MaxPenalty
	}
	if s.MaxCombinations > 0 {
		params.MaxCombinations = s.MaxCombinations
	}
	return params
}

// Validate checks values that would otherwise fail later at query time.
func (c *Config) Validate() error {
	if _, err := c.Search.Model(); err != nil {
		return err
	}
	if n := len(c.Search.MaxErrors); n != 0 && n != 3 {
		return fmt.Errorf("search.max_errors has %d entries, want 3: %w", n, seq.ErrInvalidArgument)
	}
	if _, ok := seq.AlphabetByName(c.Index.Alphabet); !ok {
		return fmt.Errorf("index.alphabet %q: %w", c.Index.Alphabet, seq.ErrInvalidArgument)
	}
	if p := c.Server.MaxPenalty; p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return fmt.Errorf("server.max_penalty %g: %w", p, seq.ErrInvalidArgument)
	}
	if c.Server.MaxCombinations < 0 {
		return fmt.Errorf("server.max_combinations %d: %w", c.Server.MaxCombinations, seq.ErrInvalidArgument)
	}
	if c.Index.Workers < 1 {
		return fmt.Errorf("index.workers %d: %w", c.Index.Workers, seq.ErrInvalidArgument)
	}
	return nil
}

// Update changes search values and saves to file
func (c *Config) Update(configPath string, preset *string, limit *int) error {
	if preset != nil {
		c.Search.Preset = *preset
	}
	if limit != nil {
		c.Search.Limit = *limit
	}
	if err := c.Validate(); err != nil {
		return err
	}
	return SaveConfig(c, configPath)
}

// Package amdwconfig loads the configuration keys listed in spec §6 using
// spf13/viper, the way the rest of the pack binds environment-driven
// config: AutomaticEnv with an AMDW_ prefix and "." -> "_" replacement.
package amdwconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/amondawa/amondawa/internal/amdwerr"
)

// Config mirrors every key in spec §6's configuration table.
type Config struct {
	StoreHistory       int64 `mapstructure:"store_history"`        // ms of history to retain
	StoreHistoryBlocks int64 `mapstructure:"store_history_blocks"` // number of archive blocks

	MTReaders    int           `mapstructure:"mt_readers"`
	MTWriters    int           `mapstructure:"mt_writers"`
	MTWriteDelay time.Duration `mapstructure:"mt_write_delay"`

	CacheDatapoints    int `mapstructure:"cache_datapoints"`
	CacheQueryIndexKey int `mapstructure:"cache_query_index_key"`
	CacheWriteIndexKey int `mapstructure:"cache_write_index_key"`

	TPReadDatapoints  int64 `mapstructure:"tp_read_datapoints"`
	TPWriteDatapoints int64 `mapstructure:"tp_write_datapoints"`
	TPReadIndexKey    int64 `mapstructure:"tp_read_index_key"`
	TPWriteIndexKey   int64 `mapstructure:"tp_write_index_key"`

	MXCreateNextMin float64 `mapstructure:"mx_create_next_min"`
	MXCreateNextPct float64 `mapstructure:"mx_create_next_pct"`
	MXTurndownMin   float64 `mapstructure:"mx_turndown_min"`
	MXTurndownPct   float64 `mapstructure:"mx_turndown_pct"`

	AMDWRegion     string `mapstructure:"amdw_region"`
	AMDWTableSpace string `mapstructure:"amdw_table_space"`
}

// BlockSize is STORE_HISTORY / STORE_HISTORY_BLOCKS, in milliseconds.
func (c *Config) BlockSize() int64 {
	return c.StoreHistory / c.StoreHistoryBlocks
}

// Blocks is STORE_HISTORY_BLOCKS + 1 (one bumper slot).
func (c *Config) Blocks() int64 {
	return c.StoreHistoryBlocks + 1
}

// AvailableHistory is (Blocks-1)*BlockSize.
func (c *Config) AvailableHistory() int64 {
	return (c.Blocks() - 1) * c.BlockSize()
}

// TableName prefixes a logical table name with the configured table space,
// matching config.table_name() in the original source.
func (c *Config) TableName(logical string) string {
	if c.AMDWTableSpace == "" {
		return logical
	}
	return c.AMDWTableSpace + "_" + logical
}

// Defaults mirrors original_source/configuration.py's defaults.
func Defaults() *Config {
	const minute = 60 * 1000
	return &Config{
		StoreHistory:       1 * 60 * minute, // 1 hour, matching the original test config
		StoreHistoryBlocks: 3,

		MTReaders:    20,
		MTWriters:    5,
		MTWriteDelay: 2 * time.Second,

		CacheDatapoints:    400,
		CacheQueryIndexKey: 400,
		CacheWriteIndexKey: 400,

		TPReadDatapoints:  80,
		TPWriteDatapoints: 160,
		TPReadIndexKey:    80,
		TPWriteIndexKey:   160,

		MXCreateNextMin: 4,
		MXCreateNextPct: 15,
		MXTurndownMin:   2,
		MXTurndownPct:   20,

		AMDWRegion:     "us-west-2",
		AMDWTableSpace: "amdw",
	}
}

// Load binds Config to viper, seeded with Defaults() and overridable via
// AMDW_* environment variables (e.g. AMDW_STORE_HISTORY_BLOCKS=12).
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("amdw")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	defaults := Defaults()
	v.SetDefault("store_history", defaults.StoreHistory)
	v.SetDefault("store_history_blocks", defaults.StoreHistoryBlocks)
	v.SetDefault("mt_readers", defaults.MTReaders)
	v.SetDefault("mt_writers", defaults.MTWriters)
	v.SetDefault("mt_write_delay", defaults.MTWriteDelay)
	v.SetDefault("cache_datapoints", defaults.CacheDatapoints)
	v.SetDefault("cache_query_index_key", defaults.CacheQueryIndexKey)
	v.SetDefault("cache_write_index_key", defaults.CacheWriteIndexKey)
	v.SetDefault("tp_read_datapoints", defaults.TPReadDatapoints)
	v.SetDefault("tp_write_datapoints", defaults.TPWriteDatapoints)
	v.SetDefault("tp_read_index_key", defaults.TPReadIndexKey)
	v.SetDefault("tp_write_index_key", defaults.TPWriteIndexKey)
	v.SetDefault("mx_create_next_min", defaults.MXCreateNextMin)
	v.SetDefault("mx_create_next_pct", defaults.MXCreateNextPct)
	v.SetDefault("mx_turndown_min", defaults.MXTurndownMin)
	v.SetDefault("mx_turndown_pct", defaults.MXTurndownPct)
	v.SetDefault("amdw_region", defaults.AMDWRegion)
	v.SetDefault("amdw_table_space", defaults.AMDWTableSpace)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, amdwerr.New(amdwerr.ConfigInvalid, "amdwconfig.Load", err)
	}
	return cfg, cfg.Validate()
}

// Validate enforces the invariants the bucketing formulas in §3 depend on.
func (c *Config) Validate() error {
	if c.StoreHistoryBlocks <= 0 {
		return amdwerr.New(amdwerr.ConfigInvalid, "amdwconfig.Validate", fmt.Errorf("store_history_blocks must be positive"))
	}
	if c.StoreHistory <= 0 || c.StoreHistory%c.StoreHistoryBlocks != 0 {
		return amdwerr.New(amdwerr.ConfigInvalid, "amdwconfig.Validate", fmt.Errorf("store_history must be a positive multiple of store_history_blocks"))
	}
	if c.MTWriters <= 0 || c.MTReaders <= 0 {
		return amdwerr.New(amdwerr.ConfigInvalid, "amdwconfig.Validate", fmt.Errorf("mt_writers and mt_readers must be positive"))
	}
	if c.CacheDatapoints <= 0 || c.CacheQueryIndexKey <= 0 || c.CacheWriteIndexKey <= 0 {
		return amdwerr.New(amdwerr.ConfigInvalid, "amdwconfig.Validate", fmt.Errorf("cache capacities must be positive"))
	}
	return nil
}

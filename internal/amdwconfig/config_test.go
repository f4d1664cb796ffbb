package amdwconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, cfg.StoreHistory/cfg.StoreHistoryBlocks, cfg.BlockSize())
	assert.Equal(t, cfg.StoreHistoryBlocks+1, cfg.Blocks())
	assert.Equal(t, (cfg.Blocks()-1)*cfg.BlockSize(), cfg.AvailableHistory())
}

func TestValidateRejectsNonDivisibleHistory(t *testing.T) {
	cfg := Defaults()
	cfg.StoreHistory = 100
	cfg.StoreHistoryBlocks = 3
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositivePools(t *testing.T) {
	cfg := Defaults()
	cfg.MTWriters = 0
	assert.Error(t, cfg.Validate())
}

func TestTableName(t *testing.T) {
	cfg := Defaults()
	cfg.AMDWTableSpace = "amdw"
	assert.Equal(t, "amdw_dp_master", cfg.TableName("dp_master"))

	cfg.AMDWTableSpace = ""
	assert.Equal(t, "dp_master", cfg.TableName("dp_master"))
}

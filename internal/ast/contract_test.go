package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractc/internal/types"
)

func TestLookupStorage(t *testing.T) {
	c := types.NewContext()
	module := &Module{
		Storage: []*StorageField{
			{Name: "counter", Type: c.U64()},
			{Name: "config", Fields: []*StorageField{
				{Name: "owner", Type: c.B256()},
				{Name: "balances", Type: c.U64(), MapKeys: []*types.Type{c.B256()}},
			}},
		},
	}

	counter := module.LookupStorage([]string{"counter"})
	require.NotNil(t, counter)
	assert.False(t, counter.IsMap())

	config := module.LookupStorage([]string{"config"})
	require.NotNil(t, config)
	assert.True(t, config.IsNamespace())

	balances := module.LookupStorage([]string{"config", "balances"})
	require.NotNil(t, balances)
	assert.True(t, balances.IsMap())

	assert.Nil(t, module.LookupStorage([]string{"config", "missing"}))
	assert.Nil(t, module.LookupStorage([]string{"counter", "x"}))
}

func TestStorageAccessKey(t *testing.T) {
	access := StorageAccess{Path: []string{"config", "balances"}}
	assert.Equal(t, "config.balances", access.Key())
}

func TestPositionString(t *testing.T) {
	assert.Equal(t, "main.sw:3:9", Position{Filename: "main.sw", Line: 3, Column: 9}.String())
	assert.Equal(t, "1:2", Position{Line: 1, Column: 2}.String())
	assert.False(t, Position{}.IsValid())
}

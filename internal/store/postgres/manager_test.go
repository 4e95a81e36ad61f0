package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.False(t, config.Enabled)
	assert.Equal(t, 5, config.MaxOpenConns)
	assert.Equal(t, 2, config.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, config.ConnMaxLifetime)
	assert.Equal(t, 5*time.Second, config.QueryTimeout)
}

func TestNewManager_Disabled(t *testing.T) {
	manager, err := NewManager(Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, manager.IsEnabled())
	assert.Nil(t, manager.Archive())
	assert.NoError(t, manager.Ping(context.Background()))
	assert.NoError(t, manager.Close())
}

func TestNewManager_MissingDSN(t *testing.T) {
	_, err := NewManager(Config{Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN is required")
}

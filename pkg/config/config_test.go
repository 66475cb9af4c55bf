package config_test

import (
	"testing"

	"github.com/onesync/core/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaultsWithoutConfigDir(t *testing.T) {
	cfg, err := config.Load("")
	assert.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.True(t, cfg.DistanceCulling)
	assert.True(t, cfg.RadiusFrequency)
	assert.Equal(t, "", cfg.LogFile)
	assert.Equal(t, 30, cfg.TickHz)
}

func TestLoadMissingConfigDirIsNotFatal(t *testing.T) {
	_, err := config.Load("/nonexistent/onesync/config/dir")
	assert.NoError(t, err)
}

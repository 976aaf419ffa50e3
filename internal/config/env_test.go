package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfig, "/tmp/custom.toml")
	t.Setenv(EnvClientID, "id.apps.googleusercontent.com")
	t.Setenv(EnvClientSecret, "shh")
	t.Setenv(EnvDataDir, "/tmp/data")

	env := ReadEnvOverrides()

	assert.Equal(t, "/tmp/custom.toml", env.ConfigPath)
	assert.Equal(t, "id.apps.googleusercontent.com", env.ClientID)
	assert.Equal(t, "shh", env.ClientSecret)
	assert.Equal(t, "/tmp/data", env.DataDir)
}

func TestReadEnvOverrides_Empty(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvClientID, "")
	t.Setenv(EnvClientSecret, "")
	t.Setenv(EnvDataDir, "")

	assert.Equal(t, EnvOverrides{}, ReadEnvOverrides())
}

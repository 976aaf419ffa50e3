package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_RequiresClient(t *testing.T) {
	res := runCLI(t, t.TempDir(), "login")
	assert.ErrorIs(t, res.err, errNoClient)
}

func TestLogout_NoTokenIsFine(t *testing.T) {
	res := runCLI(t, t.TempDir(), "logout")
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "Logged out.")
}

func TestLogout_QuietSuppressesStatus(t *testing.T) {
	res := runCLI(t, t.TempDir(), "-q", "logout")
	require.NoError(t, res.err)
	assert.NotContains(t, res.stderr, "Logged out.")
}

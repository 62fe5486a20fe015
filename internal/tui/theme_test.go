package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThemeByName(t *testing.T) {
	for _, name := range []string{"dark", "light", "mono"} {
		th, err := ThemeByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, th.Name)
	}

	th, err := ThemeByName("")
	require.NoError(t, err)
	assert.Equal(t, "dark", th.Name)

	_, err = ThemeByName("neon")
	assert.ErrorIs(t, err, ErrUnknownTheme)
}

func TestThemeTokenFallsBackToBase(t *testing.T) {
	th, err := ThemeByName("mono")
	require.NoError(t, err)
	assert.Equal(t, th.Base, th.Token(ClassString))
	assert.NotEqual(t, th.Base, th.Token(ClassKeyword))
}

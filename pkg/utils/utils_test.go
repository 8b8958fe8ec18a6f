package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vctt94/pokerhost/pkg/protocol"
)

func TestFormatCards(t *testing.T) {
	assert.Equal(t, "None", FormatCards(nil))
	assert.Equal(t, "Ah Td", FormatCards([]protocol.Card{
		{Rank: "A", Suit: "hearts"},
		{Rank: "T", Suit: "diamonds"},
	}))
}

func TestEnsureDataDirExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "pokerhost")
	require.NoError(t, EnsureDataDirExists(dir))

	fi, err := os.Stat(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())

	// Idempotent.
	require.NoError(t, EnsureDataDirExists(dir))
}

func TestDefaultDataDir(t *testing.T) {
	assert.NotEmpty(t, DefaultDataDir("pokerhost"))
}

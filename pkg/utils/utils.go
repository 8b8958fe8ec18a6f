package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/decred/dcrd/dcrutil/v4"

	"github.com/vctt94/pokerhost/pkg/protocol"
)

// DefaultDataDir is the per-user application directory for appName.
func DefaultDataDir(appName string) string {
	return dcrutil.AppDataDir(appName, false)
}

// FormatCards is a helper function for displaying cards
func FormatCards(cards []protocol.Card) string {
	if len(cards) == 0 {
		return "None"
	}

	parts := make([]string, len(cards))
	for i, card := range cards {
		suit := card.Suit
		if suit != "" {
			suit = suit[:1]
		}
		parts[i] = card.Rank + suit
	}
	return strings.Join(parts, " ")
}

// EnsureDataDirExists creates the datadir and necessary subdirectories if they don't exist
func EnsureDataDirExists(datadir string) error {
	// Create main datadir
	if err := os.MkdirAll(datadir, 0700); err != nil {
		return fmt.Errorf("failed to create datadir %s: %v", datadir, err)
	}

	// Create logs subdirectory
	logsDir := filepath.Join(datadir, "logs")
	if err := os.MkdirAll(logsDir, 0700); err != nil {
		return fmt.Errorf("failed to create logs directory %s: %v", logsDir, err)
	}

	return nil
}

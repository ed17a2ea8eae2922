package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeText(t *testing.T) {
	t.Parallel()

	t.Run("collapses whitespace and newlines", func(t *testing.T) {
		require.Equal(t, "rent for march", SanitizeText("  rent\tfor\n\nmarch "))
	})

	t.Run("strips zero-width and control characters", func(t *testing.T) {
		require.Equal(t, "Invoice 42", SanitizeText("Inv\u200Boice\x00 4\u202E2"))
	})

	t.Run("keeps ordinary unicode", func(t *testing.T) {
		require.Equal(t, "Café €20", SanitizeText("Café €20"))
	})
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	t.Run("keeps safe names", func(t *testing.T) {
		require.Equal(t, "transactions-1234567890-2024-01-15.csv", SanitizeFilename("transactions-1234567890-2024-01-15.csv", "export.csv"))
	})

	t.Run("replaces header-breaking characters", func(t *testing.T) {
		require.Equal(t, "a_b_.csv", SanitizeFilename(`a"b;.csv`, "export.csv"))
	})

	t.Run("falls back when nothing is left", func(t *testing.T) {
		require.Equal(t, "export.csv", SanitizeFilename("\u200B..", "export.csv"))
	})

	t.Run("truncates long names", func(t *testing.T) {
		actual := SanitizeFilename(strings.Repeat("a", 300), "export.csv")
		require.Len(t, actual, 255)
	})
}

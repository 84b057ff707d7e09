package symbols

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.txt")
	require.NoError(t, os.WriteFile(path, []byte("# watchlist\nsymbol\nsofi\nAAPL  # dup\nBRK.B,Berkshire\n\n"), 0644))

	got, err := Resolve([]string{"aapl", "test", "bad$", "toolongx"}, path)
	require.NoError(t, err)

	assert.Equal(t, "AAPL", got[0])
	assert.Len(t, got, 1+len(TestSymbols)-1+2, "AAPL appears once")
	assert.Contains(t, got, "SOFI")
	assert.Contains(t, got, "BRK.B")
	assert.NotContains(t, got, "BAD$")
}

func TestResolveMissingFile(t *testing.T) {
	_, err := Resolve(nil, "/does/not/exist.txt")
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	syms, err := Parse(strings.NewReader("  tsla \n#x\nnvda,NVIDIA\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"tsla", "nvda"}, syms)
}

func TestIsValidSymbol(t *testing.T) {
	for sym, want := range map[string]bool{
		"AAPL": true, "F": true, "BRK.B": true,
		"": false, ".B": false, "BRK.": false, "AB-C": false, "ABCDEFG": false,
	} {
		assert.Equal(t, want, isValidSymbol(sym), sym)
	}
}

func TestGetUniverse(t *testing.T) {
	assert.Len(t, GetUniverse(UniverseNasdaq100), 100)
	assert.Nil(t, GetUniverse("dow"))
}

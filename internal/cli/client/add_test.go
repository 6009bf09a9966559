package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.md", ".hidden"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))

	single := filepath.Join(t.TempDir(), "single.csv")
	require.NoError(t, os.WriteFile(single, []byte("x"), 0644))

	paths, err := expandPaths([]string{single, dir})
	require.NoError(t, err)
	assert.Equal(t, []string{
		single,
		filepath.Join(dir, "a.md"),
		filepath.Join(dir, "b.txt"),
	}, paths)

	_, err = expandPaths([]string{filepath.Join(dir, "missing.txt")})
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"collapse   inner\n\nspace", 40, "collapse inner space"},
		{"abcdefghij", 8, "abcde..."},
		{"äöüäöüäöü", 6, "äöü..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncate(tt.in, tt.n))
	}
}

package admin

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const handbook = `Employee handbook. Remote work is allowed up to three days per week.
Equipment requests go through the IT portal and are approved within two business days.
Travel expenses must be submitted within thirty days with receipts attached.`

func setupEnv(t *testing.T) string {
	t.Helper()
	dataDir := t.TempDir()
	t.Setenv("LEXIS_BACKEND", "sqlite")
	t.Setenv("LEXIS_DATA_DIR", dataDir)
	t.Setenv("LEXIS_EMBEDDING_PROVIDER", "hashing")
	t.Setenv("LEXIS_EMBEDDING_DIMENSIONS", "64")
	t.Setenv("LEXIS_CHUNK_SIZE", "120")
	t.Setenv("LEXIS_CHUNK_OVERLAP", "20")
	t.Setenv("LEXIS_OPENAI_API_KEY", "")
	return dataDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "lexisd", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(IndexCmd())
	root.AddCommand(IngestCmd())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestAndStats(t *testing.T) {
	dataDir := setupEnv(t)
	path := writeFile(t, "handbook.txt", handbook)

	out, err := execute(t, "ingest", path)
	require.NoError(t, err)
	assert.Contains(t, out, "indexed    handbook.txt")
	assert.FileExists(t, filepath.Join(dataDir, "lexis.db"))

	out, err = execute(t, "ingest", path, "-o", "json")
	require.NoError(t, err)
	var rows []ingestResultOutput
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Duplicate)

	out, err = execute(t, "index", "stats", "-o", "json")
	require.NoError(t, err)
	var stats struct {
		Documents int `json:"documents"`
		Fragments int `json:"fragments"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats.Documents)
	assert.Greater(t, stats.Fragments, 1)

	out, err = execute(t, "index", "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "Index is consistent")
}

func TestIngest_FailedFileExitsNonZero(t *testing.T) {
	setupEnv(t)
	path := writeFile(t, "tiny.txt", "too short")

	out, err := execute(t, "ingest", path)
	require.Error(t, err)
	assert.Contains(t, out, "FAILED     tiny.txt")
}

func TestIndexRebuildAfterSettingsChange(t *testing.T) {
	setupEnv(t)
	path := writeFile(t, "handbook.txt", handbook)

	_, err := execute(t, "ingest", path)
	require.NoError(t, err)

	t.Setenv("LEXIS_CHUNK_SIZE", "200")
	_, err = execute(t, "ingest", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index rebuild")

	out, err := execute(t, "index", "rebuild")
	require.NoError(t, err)
	assert.Contains(t, out, "indexed    handbook.txt")

	_, err = execute(t, "ingest", path)
	require.NoError(t, err)
}

func TestIndexClear(t *testing.T) {
	setupEnv(t)
	path := writeFile(t, "handbook.txt", handbook)
	_, err := execute(t, "ingest", path)
	require.NoError(t, err)

	_, err = execute(t, "index", "clear")
	require.Error(t, err)

	out, err := execute(t, "index", "clear", "--yes")
	require.NoError(t, err)
	assert.Equal(t, "Removed 1 documents", strings.TrimSpace(out))

	out, err = execute(t, "index", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Documents: 0")
}

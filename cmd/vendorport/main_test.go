package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendorport/internal/registry"
)

// run executes one CLI invocation against dsn and returns stdout.
func run(t *testing.T, dsn string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{
		"--config", filepath.Join(t.TempDir(), "absent.yaml"),
		"--storage", "sqlite",
		"--dsn", dsn,
		"--log-level", "error",
		"--log-format", "console",
	}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNormalizeCommand(t *testing.T) {
	t.Parallel()
	out, err := run(t, filepath.Join(t.TempDir(), "n.db"), "normalize", "8060: Radiator", "no code here")
	require.NoError(t, err)
	assert.Contains(t, out, "590-08060")
	assert.Contains(t, out, "leading_short_colon")
	assert.Contains(t, out, "no_match")
}

func TestIngestLifecycle(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	dsn := filepath.Join(dir, "cli.db")
	src := filepath.Join(dir, "parts.csv")
	require.NoError(t, os.WriteFile(src, []byte("Description,Price\n8060: Radiator,10\nBolt,2\n"), 0o600))
	mappingFile := filepath.Join(dir, "mapping.json")
	require.NoError(t, os.WriteFile(mappingFile, []byte(`{"590": 0, "Price": "1"}`), 0o600))

	out, err := run(t, dsn, "bootstrap")
	require.NoError(t, err)
	assert.Contains(t, out, "registry tables ready")

	out, err = run(t, dsn, "vendor", "add", "--name", "Acme", "--email", "parts@acme.test")
	require.NoError(t, err)
	assert.Contains(t, out, "vendor 1 created: Acme")

	out, err = run(t, dsn, "headers", src)
	require.NoError(t, err)
	assert.Equal(t, "0\tDescription\n1\tPrice\n", out)

	out, err = run(t, dsn, "preview", src, "--mapping", "@"+mappingFile, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"590": "590-08060"`)

	out, err = run(t, dsn, "preview", src, "--mapping", "@"+mappingFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"590", "original_description", "Price"}, strings.Fields(lines[0]))
	assert.True(t, strings.HasPrefix(lines[1], "590-08060"), lines[1])

	out, err = run(t, dsn, "ingest", src, "--mapping", "@"+mappingFile, "--vendor", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "parts.csv: done, 2/2 rows stored in imported_data_")
	_, err = os.Stat(src)
	require.NoError(t, err, "sources are kept without --remove")

	_, err = run(t, dsn, "ingest", src, "--mapping", `{"590": 0}`, "--vendor", "99")
	require.ErrorIs(t, err, registry.ErrNotFound)

	out, err = run(t, dsn, "imports", "--json")
	require.NoError(t, err)
	var ims []registry.Import
	require.NoError(t, json.Unmarshal([]byte(out), &ims))
	require.Len(t, ims, 1)
	assert.Equal(t, "Acme", ims[0].VendorName)
	assert.Equal(t, 2, ims[0].Processed)

	out, err = run(t, dsn, "delete", ims[0].Table)
	require.NoError(t, err)
	assert.Contains(t, out, "dropped the table")

	out, err = run(t, dsn, "imports")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"), "header only")

	_, err = run(t, dsn, "delete", ims[0].Table)
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestNormalizeListsRules(t *testing.T) {
	t.Parallel()
	out, err := run(t, filepath.Join(t.TempDir(), "r.db"), "normalize", "--rules")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 13)
	assert.Contains(t, lines[0], "direct_prefix")
	assert.Contains(t, lines[12], "bare_five_digit")

	_, err = run(t, filepath.Join(t.TempDir(), "r.db"), "normalize")
	require.Error(t, err)
}

func TestParallelFilesGetSeparateTables(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	dsn := filepath.Join(dir, "multi.db")
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	require.NoError(t, os.WriteFile(a, []byte("Description\n8060: Radiator\nBolt\n"), 0o600))
	require.NoError(t, os.WriteFile(b, []byte("Description\n10479: ECM\nWasher\nNut\n"), 0o600))

	_, err := run(t, dsn, "ingest", a, b, "--mapping", `{"590": 0}`, "--parallel", "2")
	require.NoError(t, err)

	out, err := run(t, dsn, "imports", "--json")
	require.NoError(t, err)
	var ims []registry.Import
	require.NoError(t, json.Unmarshal([]byte(out), &ims))
	require.Len(t, ims, 2)
	assert.NotEqual(t, ims[0].Table, ims[1].Table)

	stored := map[string]int{}
	for _, im := range ims {
		stored[im.FileName] = im.Processed
	}
	assert.Equal(t, map[string]int{"a.csv": 2, "b.csv": 3}, stored)

	// Deleting one import leaves the other's table in place.
	_, err = run(t, dsn, "delete", ims[0].Table)
	require.NoError(t, err)
	out, err = run(t, dsn, "imports", "--json")
	require.NoError(t, err)
	ims = nil
	require.NoError(t, json.Unmarshal([]byte(out), &ims))
	require.Len(t, ims, 1)
}

func TestInvalidConfigRejected(t *testing.T) {
	t.Parallel()
	_, err := run(t, filepath.Join(t.TempDir(), "x.db"), "--log-level", "loud", "normalize", "x")
	require.Error(t, err)
}

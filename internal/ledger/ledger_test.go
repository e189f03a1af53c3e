package ledger

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cik = "0001234567"

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestLoadMissingIsEmpty(t *testing.T) {
	l := Load(Path(t.TempDir(), cik), cik, quiet())
	assert.Equal(t, 0, l.Len())
	assert.False(t, l.Done("0001234567-24-000001"))
}

func TestLoadCorruptIsEmpty(t *testing.T) {
	path := Path(t.TempDir(), cik)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	l := Load(path, cik, quiet())
	assert.Equal(t, 0, l.Len())
}

func TestLoadOtherCIKIsEmpty(t *testing.T) {
	path := Path(t.TempDir(), cik)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"cik":"0000000001","processed":["x"]}`), 0o644))

	l := Load(path, cik, quiet())
	assert.Equal(t, 0, l.Len())
}

func TestMarkDonePersists(t *testing.T) {
	path := Path(t.TempDir(), cik)

	l := Load(path, cik, quiet())
	require.NoError(t, l.MarkDone("0001234567-24-000002"))
	require.NoError(t, l.MarkDone("0001234567-24-000001"))
	require.NoError(t, l.MarkDone("0001234567-24-000001"))
	assert.Equal(t, 2, l.Len())

	reloaded := Load(path, cik, quiet())
	assert.True(t, reloaded.Done("0001234567-24-000001"))
	assert.True(t, reloaded.Done("0001234567-24-000002"))
	assert.Equal(t, []string{"0001234567-24-000001", "0001234567-24-000002"}, reloaded.Processed())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, cik, snap.CIK)
	assert.False(t, snap.UpdatedAt.IsZero())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestMarkDoneWriteFailure(t *testing.T) {
	dir := t.TempDir()
	// A regular file where the CIK directory should be.
	blocker := filepath.Join(dir, cik)
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	l := Load(Path(dir, cik), cik, quiet())
	err := l.MarkDone("0001234567-24-000001")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLedgerIO))
	assert.True(t, l.Done("0001234567-24-000001"), "in-memory set keeps the entry")
}

package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { _ = os.Chdir(old) }
}

func TestEnsureDir_RelativeToCWD(t *testing.T) {
	tmp, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	defer chdir(t, tmp)()

	got, err := EnsureDir(".recreatio", "exports")
	require.NoError(t, err)

	want := filepath.Join(tmp, ".recreatio", "exports")
	require.Equal(t, want, got)

	fi, err := os.Stat(want)
	require.NoError(t, err)
	require.True(t, fi.IsDir())
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), fi.Mode().Perm()&0o700)
	}

	again, err := EnsureDir(".recreatio", "exports")
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestEnsureDir_Absolute(t *testing.T) {
	base := t.TempDir()
	got, err := EnsureDir(base, "x")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "x"), got)
}

func TestEnsureDir_FailsWhenPathIsFile(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "file"), []byte("x"), 0o600))

	_, err := EnsureDir(base, "file")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mkdir")
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteFile(dir, "auth.jsonl", []byte("line\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "auth.jsonl"), path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(b))

	_, err = WriteFile(dir, "auth.jsonl", []byte("new\n"))
	require.NoError(t, err)
	b, _ = os.ReadFile(path)
	assert.Equal(t, "new\n", string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	_, err = WriteFile(filepath.Join(dir, "missing"), "x", nil)
	assert.Error(t, err)
}

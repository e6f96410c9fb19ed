package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/arbor/pkg/adapters/file"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	ports.RunMapStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_YAMLContract(t *testing.T) {
	ports.RunMapStoreContract(t, file.New(t.TempDir(), file.WithFormat(file.FormatYAML)))
}

func TestFileStore_WritesNamedFile(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir, file.WithFormat("yml"))

	require.NoError(t, store.Save(context.Background(), "ideas", &domain.Node{ID: "root", Name: "Ideas"}))

	data, err := os.ReadFile(filepath.Join(dir, "ideas.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: Ideas")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStore_LoadsHandWrittenLegacyFile(t *testing.T) {
	dir := t.TempDir()
	raw := `{"name": "Topic", "children": [{"name": "Branch", "attribute": {"note": "Importance: 3", "importance": 3}}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy.json"), []byte(raw), 0644))

	root, err := file.New(dir).Load(context.Background(), "legacy")
	require.NoError(t, err)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "Importance: 3", root.Children[0].Attributes[domain.AttrNote])
	assert.Equal(t, "3", root.Children[0].Attributes[domain.AttrImportance])
}

func TestFileStore_RejectsPathIDs(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()

	assert.Error(t, store.Save(ctx, "../escape", nil))
	assert.Error(t, store.Save(ctx, "", nil))
	_, err := store.Load(ctx, "a/b")
	assert.Error(t, err)
}

func TestFileStore_ListMissingDir(t *testing.T) {
	store := file.New(filepath.Join(t.TempDir(), "missing"))
	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDecodeFile_Malformed(t *testing.T) {
	_, err := file.DecodeFile([]byte("{"), file.FormatJSON)
	assert.ErrorIs(t, err, domain.ErrInvalidTree)
}

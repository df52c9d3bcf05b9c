package roster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	mockprovider "github.com/saturnino-fabrica-de-software/presenca/internal/provider/mock"
)

type fakeSource struct {
	students []domain.Student
	listErr  error
	photos   map[string][]byte
}

func (f *fakeSource) ListStudents(ctx context.Context) ([]domain.Student, error) {
	return f.students, f.listErr
}

func (f *fakeSource) Download(ctx context.Context, url string) ([]byte, error) {
	data, ok := f.photos[url]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return data, nil
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestSyncer_Sync(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "stale_old.jpg", []byte("old"))

	source := &fakeSource{
		students: []domain.Student{
			{ExternalID: "1001", PhotoURL: "/uploads/1001.jpg"},
			{ExternalID: "1002", PhotoURL: "http://cdn/1002.jpg"},
			{ExternalID: "1003"},
			{PhotoURL: "/uploads/anon.jpg"},
			{ExternalID: "1004", PhotoURL: "/uploads/missing.jpg"},
			{ExternalID: "../escape", PhotoURL: "/uploads/1001.jpg"},
		},
		photos: map[string][]byte{
			"/uploads/1001.jpg":   []byte("photo-1001"),
			"http://cdn/1002.jpg": []byte("photo-1002"),
		},
	}

	var calls []int
	syncer := NewSyncer(source, dir, discardLogger(), WithProgress(func(done, total int) {
		assert.Equal(t, 6, total)
		calls = append(calls, done)
	}))

	written, err := syncer.Sync(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, written)
	assert.Equal(t, []string{"1001.jpg", "1002.jpg"}, listDir(t, dir))
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, calls)

	data, err := os.ReadFile(filepath.Join(dir, "1001.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("photo-1001"), data)
}

func TestSyncer_FetchFailureKeepsRoster(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "s001.jpg", []byte("keep"))

	syncer := NewSyncer(&fakeSource{listErr: errors.New("connection refused")}, dir, discardLogger())

	written, err := syncer.Sync(context.Background())

	assert.Error(t, err)
	assert.Zero(t, written)
	assert.Equal(t, []string{"s001.jpg"}, listDir(t, dir))
}

func TestSyncer_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "new", "roster")

	written, err := NewSyncer(&fakeSource{}, dir, discardLogger()).Sync(context.Background())

	require.NoError(t, err)
	assert.Zero(t, written)
	assert.DirExists(t, dir)
}

func TestSyncer_ThenLoad(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{
		students: []domain.Student{{ExternalID: "2001", PhotoURL: "/p/2001.jpg"}},
		photos:   map[string][]byte{"/p/2001.jpg": photo(7)},
	}

	_, err := NewSyncer(source, dir, discardLogger()).Sync(context.Background())
	require.NoError(t, err)

	store, err := NewLoader(dir, mockprovider.New(), discardLogger()).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2001"}, store.Identities())
}

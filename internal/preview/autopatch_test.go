package preview

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFailingFile(t *testing.T) {
	cases := []struct {
		text string
		file string
		ok   bool
	}{
		{`File "app.py", line 3, in <module>`, "app.py", true},
		{"Error: Cannot find module './routes.js'", "routes.js", true},
		{"SyntaxError in src/index.jsx:12", "index.jsx", true},
		{"Unexpected token in config.json", "config.json", true},
		{"segmentation fault", "", false},
		{"exit code 1", "", false},
	}

	for _, tc := range cases {
		file, ok := extractFailingFile(tc.text)
		assert.Equal(t, tc.ok, ok, "text: %q", tc.text)
		assert.Equal(t, tc.file, file, "text: %q", tc.text)
	}
}

func TestDirectoryListing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.py", "")
	writeFile(t, dir, "requirements.txt", "")
	writeFile(t, dir, "static/style.css", "")

	listing := directoryListing(dir, 2, 10)
	assert.Contains(t, listing, "app.py")
	assert.Contains(t, listing, "requirements.txt")
	assert.Contains(t, listing, "static/")
	assert.Contains(t, listing, "style.css")
}

func TestDirectoryListingBoundsFilesPerDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt"} {
		writeFile(t, dir, name, "")
	}

	listing := directoryListing(dir, 1, 2)
	assert.Contains(t, listing, "a.txt")
	assert.Contains(t, listing, "b.txt")
	assert.NotContains(t, listing, "d.txt")
	assert.Contains(t, listing, "... (and more files)")
}

func newPatchSession(t *testing.T, dir string) *Session {
	t.Helper()
	return &Session{
		ID:         "patch-session",
		ProjectDir: dir,
		logs:       NewLogBuffer(100),
	}
}

func TestTryAutoPatchApplies(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.py", "broken contents")

	var gotError, gotName, gotContents string
	reg := NewRegistry(RegistryConfig{
		Suggester: PatchSuggesterFunc(func(ctx context.Context, errorText, fileName, fileContents, listing string) (string, error) {
			gotError, gotName, gotContents = errorText, fileName, fileContents
			assert.Contains(t, listing, "app.py")
			return "fixed contents", nil
		}),
	})

	s := newPatchSession(t, dir)
	applied := reg.tryAutoPatch(context.Background(), s, `File "app.py", line 1: bad`)
	assert.True(t, applied)
	assert.True(t, s.PatchAttempted)
	assert.Contains(t, gotError, "app.py")
	assert.Equal(t, "app.py", gotName)
	assert.Equal(t, "broken contents", gotContents)

	data, err := os.ReadFile(filepath.Join(dir, "app.py"))
	require.NoError(t, err)
	assert.Equal(t, "fixed contents", string(data))
}

func TestTryAutoPatchNoSuggester(t *testing.T) {
	reg := NewRegistry(RegistryConfig{})
	s := newPatchSession(t, t.TempDir())

	assert.False(t, reg.tryAutoPatch(context.Background(), s, `File "app.py": bad`))
	assert.False(t, s.PatchAttempted)
}

func TestTryAutoPatchNoCandidateFile(t *testing.T) {
	called := false
	reg := NewRegistry(RegistryConfig{
		Suggester: PatchSuggesterFunc(func(ctx context.Context, errorText, fileName, fileContents, listing string) (string, error) {
			called = true
			return "anything", nil
		}),
	})

	s := newPatchSession(t, t.TempDir())
	assert.False(t, reg.tryAutoPatch(context.Background(), s, "segmentation fault"))
	assert.False(t, called)
	assert.False(t, s.PatchAttempted)
}

func TestTryAutoPatchFileNotReadable(t *testing.T) {
	reg := NewRegistry(RegistryConfig{
		Suggester: PatchSuggesterFunc(func(ctx context.Context, errorText, fileName, fileContents, listing string) (string, error) {
			return "anything", nil
		}),
	})

	// The failure text names a file that does not exist in the project
	s := newPatchSession(t, t.TempDir())
	assert.False(t, reg.tryAutoPatch(context.Background(), s, `File "ghost.py": bad`))
	assert.False(t, s.PatchAttempted)
}

func TestTryAutoPatchDeclined(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.py", "original")

	reg := NewRegistry(RegistryConfig{
		Suggester: PatchSuggesterFunc(func(ctx context.Context, errorText, fileName, fileContents, listing string) (string, error) {
			return "", nil
		}),
	})

	s := newPatchSession(t, dir)
	assert.False(t, reg.tryAutoPatch(context.Background(), s, `File "app.py": bad`))
	// The suggester was consulted even though it declined
	assert.True(t, s.PatchAttempted)

	data, err := os.ReadFile(filepath.Join(dir, "app.py"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestTryAutoPatchSuggesterError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.py", "original")

	reg := NewRegistry(RegistryConfig{
		Suggester: PatchSuggesterFunc(func(ctx context.Context, errorText, fileName, fileContents, listing string) (string, error) {
			return "", errors.New("upstream unavailable")
		}),
	})

	s := newPatchSession(t, dir)
	assert.False(t, reg.tryAutoPatch(context.Background(), s, `File "app.py": bad`))
	assert.True(t, s.PatchAttempted)

	data, err := os.ReadFile(filepath.Join(dir, "app.py"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

package preview

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript installs an executable stub used in place of npm or
// python during preparation tests.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestPrepareNodeInstallsModules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"dependencies":{"express":"^4.18.0"}}`)
	npm := writeScript(t, t.TempDir(), "npm", `mkdir -p "$PWD/node_modules"
echo "added 12 packages"
`)

	p := NewPreparer(PrepareConfig{NpmBin: npm})
	logs := NewLogBuffer(50)
	require.NoError(t, p.Prepare(dir, TypeExpress, logs))

	assert.DirExists(t, filepath.Join(dir, "node_modules"))

	var sawCommand, sawOutput bool
	for _, entry := range logs.Snapshot() {
		if entry.Stream == StreamSystem && entry.Line == "running: "+npm+" install" {
			sawCommand = true
		}
		if entry.Line == "added 12 packages" {
			sawOutput = true
		}
	}
	assert.True(t, sawCommand)
	assert.True(t, sawOutput)
}

func TestPrepareNodeSkipsWhenModulesPresent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{}`)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0o755))
	npm := writeScript(t, t.TempDir(), "npm", `touch "$PWD/npm-ran"
`)

	p := NewPreparer(PrepareConfig{NpmBin: npm})
	logs := NewLogBuffer(50)
	require.NoError(t, p.Prepare(dir, TypeNode, logs))

	assert.NoFileExists(t, filepath.Join(dir, "npm-ran"))
}

func TestPrepareNodeNoManifest(t *testing.T) {
	npm := writeScript(t, t.TempDir(), "npm", `exit 1
`)
	p := NewPreparer(PrepareConfig{NpmBin: npm})

	assert.NoError(t, p.Prepare(t.TempDir(), TypeNode, NewLogBuffer(10)))
}

func TestPrepareNodeInstallFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{}`)
	npm := writeScript(t, t.TempDir(), "npm", `echo "ERESOLVE unable to resolve dependency tree"
exit 1
`)

	p := NewPreparer(PrepareConfig{NpmBin: npm})
	logs := NewLogBuffer(50)
	err := p.Prepare(dir, TypeReact, logs)
	assert.ErrorIs(t, err, ErrPrepare)

	var sawOutput bool
	for _, entry := range logs.Snapshot() {
		if entry.Line == "ERESOLVE unable to resolve dependency tree" {
			sawOutput = true
		}
	}
	assert.True(t, sawOutput)
}

func TestPrepareStaticToleratesInstallFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", "<html></html>")
	writeFile(t, dir, "package.json", `{}`)
	npm := writeScript(t, t.TempDir(), "npm", `exit 1
`)

	p := NewPreparer(PrepareConfig{NpmBin: npm})
	assert.NoError(t, p.Prepare(dir, TypeStatic, NewLogBuffer(50)))
}

func TestPreparePythonCreatesVenvAndInstalls(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "requirements.txt", "flask==3.0.0\n")
	// The fake python's venv module lays down bin/python and a pip
	// stub that records its invocation.
	python := writeScript(t, t.TempDir(), "python3", `mkdir -p "$3/bin"
cp /bin/sh "$3/bin/python"
printf '#!/bin/sh\ntouch "$(dirname "$0")/pip-ran"\n' > "$3/bin/pip"
chmod +x "$3/bin/pip"
`)

	p := NewPreparer(PrepareConfig{PythonBin: python})
	require.NoError(t, p.Prepare(dir, TypeFlask, NewLogBuffer(50)))

	assert.FileExists(t, filepath.Join(dir, "venv", "bin", "python"))
	assert.FileExists(t, filepath.Join(dir, "venv", "bin", "pip-ran"))
}

func TestPreparePythonReusesExistingVenv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "requirements.txt", "flask==3.0.0\n")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "venv", "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "venv", "bin", "python"), []byte("#!/bin/sh\n"), 0o755))
	writeScript(t, filepath.Join(dir, "venv", "bin"), "pip", `touch "$(dirname "$0")/pip-ran"
`)
	python := writeScript(t, t.TempDir(), "python3", `touch "$PWD/venv-recreated"
`)

	p := NewPreparer(PrepareConfig{PythonBin: python})
	require.NoError(t, p.Prepare(dir, TypeFlask, NewLogBuffer(50)))

	assert.NoFileExists(t, filepath.Join(dir, "venv-recreated"))
	assert.FileExists(t, filepath.Join(dir, "venv", "bin", "pip-ran"))
}

func TestPreparePythonNoRequirements(t *testing.T) {
	python := writeScript(t, t.TempDir(), "python3", `exit 1
`)
	p := NewPreparer(PrepareConfig{PythonBin: python})

	assert.NoError(t, p.Prepare(t.TempDir(), TypeFlask, NewLogBuffer(10)))
}

func TestPreparePythonVenvCreationFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "requirements.txt", "flask==3.0.0\n")
	python := writeScript(t, t.TempDir(), "python3", `echo "No module named venv" >&2
exit 1
`)

	p := NewPreparer(PrepareConfig{PythonBin: python})
	err := p.Prepare(dir, TypeFlask, NewLogBuffer(50))
	assert.ErrorIs(t, err, ErrPrepare)
}

func TestPrepareDisabled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{}`)
	npm := writeScript(t, t.TempDir(), "npm", `touch "$PWD/npm-ran"
`)

	p := NewPreparer(PrepareConfig{Disabled: true, NpmBin: npm})
	require.NoError(t, p.Prepare(dir, TypeNode, NewLogBuffer(10)))
	assert.NoFileExists(t, filepath.Join(dir, "npm-ran"))
}

func TestPrepareUnknownTypeNoOp(t *testing.T) {
	p := NewPreparer(PrepareConfig{})
	assert.NoError(t, p.Prepare(t.TempDir(), TypeUnknown, NewLogBuffer(10)))
}

func TestPrepareStepTimeout(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{}`)
	npm := writeScript(t, t.TempDir(), "npm", `sleep 30
`)

	p := NewPreparer(PrepareConfig{NpmBin: npm, Timeout: 200 * time.Millisecond})
	start := time.Now()
	err := p.Prepare(dir, TypeNode, NewLogBuffer(10))
	assert.ErrorIs(t, err, ErrPrepare)
	assert.Less(t, time.Since(start), 5*time.Second)
}

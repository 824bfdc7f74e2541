package preview

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// PrepareConfig carries the environment-preparation tunables. Binaries
// default to the host's python3 and npm; Disabled skips preparation
// entirely for projects whose dependencies are managed out of band.
type PrepareConfig struct {
	Disabled  bool
	PythonBin string
	NpmBin    string
	Timeout   time.Duration
}

func (c *PrepareConfig) applyDefaults() {
	if c.PythonBin == "" {
		c.PythonBin = "python3"
	}
	if c.NpmBin == "" {
		c.NpmBin = "npm"
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Minute
	}
}

type prepareFunc func(dir string, logs *LogBuffer) error

// Preparer readies a project directory before launch: python types get
// a virtualenv and their requirements installed, node types get npm
// install when node_modules is missing. Install output goes into the
// session's log buffer so callers see why a start is taking long.
type Preparer struct {
	cfg   PrepareConfig
	table map[ProjectType]prepareFunc
}

// NewPreparer creates a preparer with the standard per-type table
func NewPreparer(cfg PrepareConfig) *Preparer {
	cfg.applyDefaults()
	p := &Preparer{cfg: cfg}
	p.table = map[ProjectType]prepareFunc{
		TypeFlask:     p.preparePython,
		TypeStreamlit: p.preparePython,
		TypePython:    p.preparePython,
		TypeExpress:   p.prepareNode,
		TypeReact:     p.prepareNode,
		TypeVue:       p.prepareNode,
		TypeAngular:   p.prepareNode,
		TypeNode:      p.prepareNode,
		TypePHP:       p.prepareNode,
		TypeStatic:    p.prepareStatic,
	}
	return p
}

// Prepare readies dir for a launch of the given type. Types without a
// preparation step are a no-op.
func (p *Preparer) Prepare(dir string, projectType ProjectType, logs *LogBuffer) error {
	if p.cfg.Disabled {
		return nil
	}
	prepare, ok := p.table[projectType]
	if !ok {
		return nil
	}
	return prepare(dir, logs)
}

// preparePython ensures a project-local virtualenv exists and installs
// requirements.txt into it. Projects without a requirements file need
// no preparation.
func (p *Preparer) preparePython(dir string, logs *LogBuffer) error {
	if _, err := os.Stat(filepath.Join(dir, "requirements.txt")); err != nil {
		return nil
	}

	venv := filepath.Join(dir, "venv")
	if _, err := os.Stat(filepath.Join(venv, "bin", "python")); err != nil {
		if err := p.runStep(dir, logs, p.cfg.PythonBin, "-m", "venv", venv); err != nil {
			return fmt.Errorf("%w: venv creation: %v", ErrPrepare, err)
		}
	}

	pip := filepath.Join(venv, "bin", "pip")
	if err := p.runStep(dir, logs, pip, "install", "-r", "requirements.txt"); err != nil {
		return fmt.Errorf("%w: pip install: %v", ErrPrepare, err)
	}
	return nil
}

// prepareNode runs npm install when the project has a manifest but no
// installed modules. An install failure is fatal for the start.
func (p *Preparer) prepareNode(dir string, logs *LogBuffer) error {
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err != nil {
		return nil
	}
	if _, err := os.Stat(filepath.Join(dir, "node_modules")); err == nil {
		logs.Append(StreamSystem, "node modules already installed")
		return nil
	}
	if err := p.runStep(dir, logs, p.cfg.NpmBin, "install"); err != nil {
		return fmt.Errorf("%w: npm install: %v", ErrPrepare, err)
	}
	return nil
}

// prepareStatic installs optional tooling for static sites that carry
// a package.json. The site is servable without it, so a failed install
// is logged and tolerated.
func (p *Preparer) prepareStatic(dir string, logs *LogBuffer) error {
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err != nil {
		return nil
	}
	if _, err := os.Stat(filepath.Join(dir, "node_modules")); err == nil {
		logs.Append(StreamSystem, "node modules already installed")
		return nil
	}
	if err := p.runStep(dir, logs, p.cfg.NpmBin, "install"); err != nil {
		logs.Append(StreamSystem, fmt.Sprintf("optional npm install failed, serving without it: %v", err))
	}
	return nil
}

// runStep executes one preparation command to completion with a bounded
// timeout, forwarding its combined output into the log buffer.
func (p *Preparer) runStep(dir string, logs *LogBuffer, argv ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()

	logs.Append(StreamSystem, "running: "+strings.Join(argv, " "))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			logs.Append(StreamStdout, line)
		}
	}
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("timed out after %s", p.cfg.Timeout)
	}
	return err
}

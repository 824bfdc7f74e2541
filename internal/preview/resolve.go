package preview

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LaunchSpec is the fully resolved launch plan for a preview process
type LaunchSpec struct {
	Argv  []string
	Dir   string
	Env   []string
	Grace time.Duration
}

// ResolverConfig carries the tunables the resolver needs. Grace values
// default to the empirical per-type waits when left zero.
type ResolverConfig struct {
	PythonBin      string
	NodeBin        string
	GraceStatic    time.Duration
	GraceFlask     time.Duration
	GraceStreamlit time.Duration
	GraceNode      time.Duration
	GraceSPA       time.Duration
	GracePHP       time.Duration
}

func (c *ResolverConfig) applyDefaults() {
	if c.PythonBin == "" {
		c.PythonBin = "python3"
	}
	if c.NodeBin == "" {
		c.NodeBin = "node"
	}
	if c.GraceStatic == 0 {
		c.GraceStatic = 2 * time.Second
	}
	if c.GraceFlask == 0 {
		c.GraceFlask = 5 * time.Second
	}
	if c.GraceStreamlit == 0 {
		c.GraceStreamlit = 5 * time.Second
	}
	if c.GraceNode == 0 {
		c.GraceNode = 3 * time.Second
	}
	if c.GraceSPA == 0 {
		c.GraceSPA = 10 * time.Second
	}
	if c.GracePHP == 0 {
		c.GracePHP = 3 * time.Second
	}
}

type resolveFunc func(dir string, port int) (*LaunchSpec, error)

// Resolver maps a project type and directory to a launch spec. Behavior
// per type is table-driven; unknown projects fail resolution rather
// than falling back to a guessed command.
type Resolver struct {
	cfg   ResolverConfig
	table map[ProjectType]resolveFunc
}

// NewResolver creates a resolver with the standard per-type table
func NewResolver(cfg ResolverConfig) *Resolver {
	cfg.applyDefaults()
	r := &Resolver{cfg: cfg}
	r.table = map[ProjectType]resolveFunc{
		TypeStatic:    r.resolveStatic,
		TypeFlask:     r.resolveFlask,
		TypeStreamlit: r.resolveStreamlit,
		TypeExpress:   r.resolveNode,
		TypeNode:      r.resolveNode,
		TypeReact:     r.resolveSPA,
		TypeVue:       r.resolveSPA,
		TypeAngular:   r.resolveSPA,
		TypePHP:       r.resolvePHP,
		TypePython:    r.resolveFlask,
	}
	return r
}

// Resolve returns the launch plan for the given project
func (r *Resolver) Resolve(dir string, projectType ProjectType, port int) (*LaunchSpec, error) {
	resolve, ok := r.table[projectType]
	if !ok {
		return nil, fmt.Errorf("%w: type %s", ErrResolution, projectType)
	}
	return resolve(dir, port)
}

var pythonEntryCandidates = []string{"app.py", "main.py", "server.py", "run.py"}
var nodeEntryCandidates = []string{"server.js", "app.js", "index.js", "main.js"}

func (r *Resolver) resolveStatic(dir string, port int) (*LaunchSpec, error) {
	root, ok := staticRoot(dir)
	if !ok {
		return nil, fmt.Errorf("%w: no index.html in %s", ErrResolution, dir)
	}
	return &LaunchSpec{
		Argv:  []string{r.cfg.PythonBin, "-m", "http.server", strconv.Itoa(port)},
		Dir:   root,
		Grace: r.cfg.GraceStatic,
	}, nil
}

func (r *Resolver) resolveFlask(dir string, port int) (*LaunchSpec, error) {
	entry, ok := firstExisting(dir, pythonEntryCandidates)
	if !ok {
		return nil, fmt.Errorf("%w: no python entry script in %s", ErrResolution, dir)
	}
	return &LaunchSpec{
		Argv:  []string{r.pythonInterpreter(dir), entry, strconv.Itoa(port)},
		Dir:   dir,
		Grace: r.cfg.GraceFlask,
	}, nil
}

func (r *Resolver) resolveStreamlit(dir string, port int) (*LaunchSpec, error) {
	entry, ok := firstExisting(dir, pythonEntryCandidates)
	if !ok {
		return nil, fmt.Errorf("%w: no streamlit entry script in %s", ErrResolution, dir)
	}
	return &LaunchSpec{
		Argv:  []string{r.pythonInterpreter(dir), "-m", "streamlit", "run", entry, "--server.port", strconv.Itoa(port)},
		Dir:   dir,
		Grace: r.cfg.GraceStreamlit,
	}, nil
}

func (r *Resolver) resolveNode(dir string, port int) (*LaunchSpec, error) {
	portEnv := []string{"PORT=" + strconv.Itoa(port)}

	if entry, ok := firstExisting(dir, nodeEntryCandidates); ok {
		return &LaunchSpec{
			Argv:  []string{r.cfg.NodeBin, entry},
			Dir:   dir,
			Env:   portEnv,
			Grace: r.cfg.GraceNode,
		}, nil
	}
	if argv, ok := npmScriptCommand(dir); ok {
		return &LaunchSpec{Argv: argv, Dir: dir, Env: portEnv, Grace: r.cfg.GraceNode}, nil
	}
	return nil, fmt.Errorf("%w: no entry file or start script in %s", ErrResolution, dir)
}

func (r *Resolver) resolveSPA(dir string, port int) (*LaunchSpec, error) {
	argv, ok := npmScriptCommand(dir)
	if !ok {
		return nil, fmt.Errorf("%w: no start script in %s", ErrResolution, dir)
	}
	return &LaunchSpec{
		Argv:  argv,
		Dir:   dir,
		Env:   []string{"PORT=" + strconv.Itoa(port)},
		Grace: r.cfg.GraceSPA,
	}, nil
}

func (r *Resolver) resolvePHP(dir string, port int) (*LaunchSpec, error) {
	return &LaunchSpec{
		Argv:  []string{"php", "-S", "0.0.0.0:" + strconv.Itoa(port), "-t", dir},
		Dir:   dir,
		Grace: r.cfg.GracePHP,
	}, nil
}

// pythonInterpreter prefers a project-local virtualenv interpreter over
// the host one.
func (r *Resolver) pythonInterpreter(dir string) string {
	for _, venv := range []string{"venv", ".venv", "env"} {
		candidate := filepath.Join(dir, venv, "bin", "python")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return r.cfg.PythonBin
}

// firstExisting returns the first candidate file present in dir
func firstExisting(dir string, candidates []string) (string, bool) {
	for _, name := range candidates {
		info, err := os.Stat(filepath.Join(dir, name))
		if err == nil && !info.IsDir() {
			return name, true
		}
	}
	return "", false
}

// npmScriptCommand maps the manifest's declared scripts to an npm
// invocation, preferring start over dev over serve.
func npmScriptCommand(dir string) ([]string, bool) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil, false
	}
	var manifest struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, false
	}
	if _, ok := manifest.Scripts["start"]; ok {
		return []string{"npm", "start"}, true
	}
	if _, ok := manifest.Scripts["dev"]; ok {
		return []string{"npm", "run", "dev"}, true
	}
	if _, ok := manifest.Scripts["serve"]; ok {
		return []string{"npm", "run", "serve"}, true
	}
	return nil, false
}

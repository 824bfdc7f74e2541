package preview

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// matcher is one classification rule: a project type and the predicate
// that recognizes it. Rules are evaluated in priority order, first
// match wins.
type matcher struct {
	projectType ProjectType
	matches     func(dir string) bool
}

// Detector classifies a project directory into a runtime kind.
// Classification never returns an error; directories matching no rule
// are reported as unknown.
type Detector struct {
	rules []matcher
}

// NewDetector creates a detector with the standard rule table
func NewDetector() *Detector {
	return &Detector{
		rules: []matcher{
			{TypeReact, hasNodeDependency("react")},
			{TypeVue, hasNodeDependency("vue")},
			{TypeAngular, hasNodeDependency("@angular/core")},
			{TypeExpress, hasNodeDependency("express")},
			{TypeFlask, hasPythonFramework("flask")},
			{TypeStreamlit, hasPythonFramework("streamlit")},
			{TypePHP, isPHPProject},
			{TypeStatic, hasIndexHTML},
			{TypePython, isGenericPython},
			{TypeNode, hasFile("package.json")},
		},
	}
}

// Classify returns the runtime kind of the project in dir
func (d *Detector) Classify(dir string) ProjectType {
	for _, rule := range d.rules {
		if rule.matches(dir) {
			return rule.projectType
		}
	}
	return TypeUnknown
}

// Detect classifies dir and also reports composite front+back layouts
func (d *Detector) Detect(dir string) Detection {
	det := Detection{Type: d.Classify(dir)}
	for _, sub := range []string{"client", "frontend", "front"} {
		if isDir(filepath.Join(dir, sub)) {
			det.Frontend = filepath.Join(dir, sub)
			break
		}
	}
	for _, sub := range []string{"server", "backend", "back", "api"} {
		if isDir(filepath.Join(dir, sub)) {
			det.Backend = filepath.Join(dir, sub)
			break
		}
	}
	return det
}

// Rule predicates

func hasFile(name string) func(dir string) bool {
	return func(dir string) bool {
		info, err := os.Stat(filepath.Join(dir, name))
		return err == nil && !info.IsDir()
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// hasNodeDependency reports whether package.json declares the given
// package in dependencies or devDependencies.
func hasNodeDependency(pkg string) func(dir string) bool {
	return func(dir string) bool {
		data, err := os.ReadFile(filepath.Join(dir, "package.json"))
		if err != nil {
			return false
		}
		var manifest struct {
			Dependencies    map[string]string `json:"dependencies"`
			DevDependencies map[string]string `json:"devDependencies"`
		}
		if err := json.Unmarshal(data, &manifest); err != nil {
			return false
		}
		if _, ok := manifest.Dependencies[pkg]; ok {
			return true
		}
		_, ok := manifest.DevDependencies[pkg]
		return ok
	}
}

// hasPythonFramework reports whether requirements.txt names the
// framework or any top-level .py file imports it.
func hasPythonFramework(framework string) func(dir string) bool {
	return func(dir string) bool {
		if data, err := os.ReadFile(filepath.Join(dir, "requirements.txt")); err == nil {
			if strings.Contains(strings.ToLower(string(data)), framework) {
				return true
			}
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return false
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".py") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				continue
			}
			content := strings.ToLower(string(data))
			if strings.Contains(content, "import "+framework) || strings.Contains(content, "from "+framework) {
				return true
			}
		}
		return false
	}
}

func isPHPProject(dir string) bool {
	if hasFile("composer.json")(dir) {
		return true
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".php") {
			return true
		}
	}
	return false
}

// hasIndexHTML checks the conventional locations for a static site root
func hasIndexHTML(dir string) bool {
	for _, sub := range []string{"", "public", "src"} {
		if hasFile("index.html")(filepath.Join(dir, sub)) {
			return true
		}
	}
	return false
}

func isGenericPython(dir string) bool {
	if !hasFile("requirements.txt")(dir) {
		return false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".py") {
			return true
		}
	}
	return false
}

// staticRoot returns the directory actually containing index.html,
// preferring the project root over public/ and src/.
func staticRoot(dir string) (string, bool) {
	for _, sub := range []string{"", "public", "src"} {
		candidate := filepath.Join(dir, sub)
		if hasFile("index.html")(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// Package prompts loads named prompt templates and fills their
// {{PLACEHOLDER}} tokens.
package prompts

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Template names understood by the generators.
const (
	OutlineTemplate = "outline.v1.txt"
	SectionTemplate = "section.v1.txt"
)

//go:embed templates/*.txt
var embedded embed.FS

// Loader resolves template names, preferring files under Root when set.
// Results are cached per name.
type Loader struct {
	Root string

	mu    sync.Mutex
	cache map[string]string
}

// NewLoader returns a Loader. root may be empty to use only the embedded
// templates.
func NewLoader(root string) *Loader {
	return &Loader{Root: root, cache: make(map[string]string)}
}

// Load returns the template text for name.
func (l *Loader) Load(name string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cache == nil {
		l.cache = make(map[string]string)
	}
	if t, ok := l.cache[name]; ok {
		return t, nil
	}

	text, err := l.read(name)
	if err != nil {
		return "", err
	}
	l.cache[name] = text
	return text, nil
}

func (l *Loader) read(name string) (string, error) {
	if filepath.IsAbs(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid template name %q", name)
	}
	if l.Root != "" {
		b, err := os.ReadFile(filepath.Join(l.Root, name))
		if err == nil {
			return string(b), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("read template %s: %w", name, err)
		}
	}
	b, err := embedded.ReadFile("templates/" + name)
	if err != nil {
		return "", fmt.Errorf("template %q not found", name)
	}
	return string(b), nil
}

// Render loads name and applies vars.
func (l *Loader) Render(name string, vars map[string]string) (string, error) {
	t, err := l.Load(name)
	if err != nil {
		return "", err
	}
	return Apply(t, vars), nil
}

// Apply replaces every {{KEY}} in template with vars[KEY]. Values are
// inserted verbatim and never re-scanned, so a value containing "{{X}}"
// stays literal. Unknown placeholders are left in place.
func Apply(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

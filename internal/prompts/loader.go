// Package prompts loads the prompt templates embedded in the binary.
// Templates are JSON objects of key to text, with {{.Name}} placeholders.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

//go:embed *.json
var promptFiles embed.FS

var (
	cache   = make(map[string]map[string]string)
	cacheMu sync.RWMutex
)

var placeholder = regexp.MustCompile(`\{\{\.([A-Za-z][A-Za-z0-9]*)\}\}`)

// Get returns the template stored under key in filename (e.g. "generation.json").
func Get(filename, key string) (string, error) {
	templates, err := loadFile(filename)
	if err != nil {
		return "", err
	}
	text, ok := templates[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	return text, nil
}

// MustGet is Get for templates that must exist; it panics otherwise.
func MustGet(filename, key string) string {
	text, err := Get(filename, key)
	if err != nil {
		panic(fmt.Sprintf("failed to load prompt: %v", err))
	}
	return text
}

// Format substitutes {{.Key}} placeholders. Unknown placeholders are left as is.
func Format(template string, data map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := data[name]; ok {
			return v
		}
		return m
	})
}

// Render loads a template and fills every placeholder. A placeholder without a
// value is an error, so a prompt never reaches a model with template syntax in it.
func Render(filename, key string, data map[string]string) (string, error) {
	template, err := Get(filename, key)
	if err != nil {
		return "", err
	}
	var missing []string
	for _, m := range placeholder.FindAllStringSubmatch(template, -1) {
		if _, ok := data[m[1]]; !ok {
			missing = append(missing, m[1])
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("prompt %s/%s: no value for %s", filename, key, strings.Join(missing, ", "))
	}
	return Format(template, data), nil
}

// List returns the keys of a file in sorted order.
func List(filename string) ([]string, error) {
	templates, err := loadFile(filename)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(templates))
	for k := range templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// ClearCache drops parsed files. Used by tests.
func ClearCache() {
	cacheMu.Lock()
	cache = make(map[string]map[string]string)
	cacheMu.Unlock()
}

func loadFile(filename string) (map[string]string, error) {
	cacheMu.RLock()
	templates, ok := cache[filename]
	cacheMu.RUnlock()
	if ok {
		return templates, nil
	}

	data, err := promptFiles.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}

	cacheMu.Lock()
	cache[filename] = templates
	cacheMu.Unlock()
	return templates, nil
}

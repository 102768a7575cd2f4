package i18n

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// DefaultLanguage is used when the host does not configure one
const DefaultLanguage = "en-US"

// Messages is one namespace's catalog for one language
type Messages map[string]interface{}

// Catalog stores message catalogs. It is safe for concurrent use.
type Catalog struct {
	mu          sync.RWMutex
	defaultLang string
	entries     map[string]map[string]Messages
}

// NewCatalog creates an empty catalog with the given default language
func NewCatalog(defaultLang string) *Catalog {
	if defaultLang == "" {
		defaultLang = DefaultLanguage
	}
	return &Catalog{
		defaultLang: Canonical(defaultLang),
		entries:     make(map[string]map[string]Messages),
	}
}

// DefaultLang returns the catalog's default language
func (c *Catalog) DefaultLang() string {
	return c.defaultLang
}

// Canonical normalizes a language tag. Unparseable tags are returned as-is.
func Canonical(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return lang
	}
	return tag.String()
}

// Fallbacks returns the languages tried for a lookup, most specific first
func Fallbacks(lang, defaultLang string) []string {
	var chain []string
	add := func(l string) {
		if l == "" {
			return
		}
		for _, existing := range chain {
			if existing == l {
				return
			}
		}
		chain = append(chain, l)
	}

	if lang != "" {
		add(Canonical(lang))
		if tag, err := language.Parse(lang); err == nil {
			if base, conf := tag.Base(); conf != language.No {
				add(base.String())
			}
		}
	}
	add(Canonical(defaultLang))
	return chain
}

// Pick selects the entry of a per-language map for lang, following the
// fallback chain. It returns the language actually used.
func Pick(byLang map[string]string, lang, defaultLang string) (string, string, bool) {
	if len(byLang) == 0 {
		return "", "", false
	}
	normalized := make(map[string]string, len(byLang))
	for l, v := range byLang {
		normalized[Canonical(l)] = v
	}
	for _, l := range Fallbacks(lang, defaultLang) {
		if v, ok := normalized[l]; ok {
			return v, l, true
		}
	}
	return "", "", false
}

// Add merges messages into a namespace for one language
func (c *Catalog) Add(namespace, lang string, messages Messages) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lang = Canonical(lang)
	ns, ok := c.entries[namespace]
	if !ok {
		ns = make(map[string]Messages)
		c.entries[namespace] = ns
	}
	existing, ok := ns[lang]
	if !ok {
		existing = make(Messages, len(messages))
		ns[lang] = existing
	}
	for k, v := range messages {
		existing[k] = v
	}
}

// RegisterDir loads a locales directory laid out as <dir>/<lang>/<file>.json
// into namespace. When file is empty every .json file of each language
// directory is merged. It returns the languages loaded.
func (c *Catalog) RegisterDir(namespace, dir, file string) ([]string, error) {
	langDirs, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read locales directory: %w", err)
	}

	var langs []string
	for _, ld := range langDirs {
		if !ld.IsDir() {
			continue
		}
		lang := ld.Name()

		var files []string
		if file != "" {
			files = []string{filepath.Join(dir, lang, file+".json")}
		} else {
			matches, _ := filepath.Glob(filepath.Join(dir, lang, "*.json"))
			files = matches
		}

		loaded := false
		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return langs, fmt.Errorf("failed to read catalog %s: %w", f, err)
			}
			var msgs Messages
			if err := json.Unmarshal(data, &msgs); err != nil {
				return langs, fmt.Errorf("failed to parse catalog %s: %w", f, err)
			}
			c.Add(namespace, lang, msgs)
			loaded = true
		}
		if loaded {
			langs = append(langs, Canonical(lang))
		}
	}

	return langs, nil
}

// Lookup returns the catalog for namespace in the best available language
func (c *Catalog) Lookup(namespace, lang string) (Messages, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ns, ok := c.entries[namespace]
	if !ok {
		return nil, "", false
	}
	for _, l := range Fallbacks(lang, c.defaultLang) {
		if msgs, ok := ns[l]; ok {
			out := make(Messages, len(msgs))
			for k, v := range msgs {
				out[k] = v
			}
			return out, l, true
		}
	}
	return nil, "", false
}

// Languages lists the languages a namespace has catalogs for
func (c *Catalog) Languages(namespace string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	for l := range c.entries[namespace] {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Has reports whether a namespace has any catalog
func (c *Catalog) Has(namespace string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[namespace]
	return ok
}

// Remove drops a namespace and, when prefix is true, every namespace under
// it (namespace + "/").
func (c *Catalog) Remove(namespace string, prefix bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, namespace)
	if !prefix {
		return
	}
	for ns := range c.entries {
		if strings.HasPrefix(ns, namespace+"/") {
			delete(c.entries, ns)
		}
	}
}

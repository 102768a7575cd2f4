package template

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	scriptBlock  = regexp.MustCompile(`(?is)<script\b([^>]*)>.*?</script\s*>`)
	templateAttr = regexp.MustCompile(`(?i)\bdata-template-name\s*=\s*["']([^"']+)["']`)
	helpAttr     = regexp.MustCompile(`(?i)\bdata-help-name\s*=\s*["']([^"']+)["']`)
	langAttr     = regexp.MustCompile(`(?i)\bdata-lang\s*=\s*["']([^"']+)["']`)
)

// Parsed is the registry's view of a template
type Parsed struct {
	// Types are the declared type names in document order
	Types []string
	// Config is the template with every help block removed
	Config string
	// Help holds the help blocks per language
	Help map[string]string
}

// Parse extracts types and help from template content. Help blocks without
// data-lang are filed under defaultLang.
func Parse(content, defaultLang string) *Parsed {
	p := &Parsed{
		Types: []string{},
		Help:  make(map[string]string),
	}

	seen := make(map[string]bool)
	var config strings.Builder
	last := 0

	for _, loc := range scriptBlock.FindAllStringSubmatchIndex(content, -1) {
		block := content[loc[0]:loc[1]]
		attrs := content[loc[2]:loc[3]]

		if m := templateAttr.FindStringSubmatch(attrs); m != nil && !seen[m[1]] {
			seen[m[1]] = true
			p.Types = append(p.Types, m[1])
		}

		if helpAttr.MatchString(attrs) {
			lang := defaultLang
			if m := langAttr.FindStringSubmatch(attrs); m != nil {
				lang = m[1]
			}
			p.Help[lang] += block
			config.WriteString(content[last:loc[0]])
			last = loc[1]
		}
	}
	config.WriteString(content[last:])
	p.Config = strings.TrimSpace(config.String())

	return p
}

// ParseFile reads and parses a template file. A missing file yields an
// empty result and no error.
func ParseFile(path, defaultLang string) (*Parsed, error) {
	if path == "" {
		return Parse("", defaultLang), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Parse("", defaultLang), nil
		}
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	return Parse(string(data), defaultLang), nil
}

// Render joins a unit's config with the help for one language
func Render(config, help string) string {
	switch {
	case help == "":
		return config
	case config == "":
		return help
	default:
		return config + "\n" + help
	}
}

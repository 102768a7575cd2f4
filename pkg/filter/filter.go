// Package filter decides which modules and unit files a scan admits, using
// include and exclude lists of exact names or shell-style glob patterns.
package filter

import (
	"path"
	"strings"
)

// Filter is a pure allow/deny predicate over module and unit names
type Filter struct {
	include []string
	exclude []string
}

// New creates a filter. An empty include list admits every name.
func New(include, exclude []string) *Filter {
	return &Filter{
		include: normalize(include),
		exclude: normalize(exclude),
	}
}

// IsIncluded reports whether name passes the include list
func (f *Filter) IsIncluded(name string) bool {
	if f == nil || len(f.include) == 0 {
		return true
	}
	return matchAny(f.include, name)
}

// IsExcluded reports whether name matches the exclude list
func (f *Filter) IsExcluded(name string) bool {
	if f == nil || len(f.exclude) == 0 {
		return false
	}
	return matchAny(f.exclude, name)
}

// Admits is IsIncluded(name) && !IsExcluded(name)
func (f *Filter) Admits(name string) bool {
	return f.IsIncluded(name) && !f.IsExcluded(name)
}

func normalize(patterns []string) []string {
	var out []string
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if p == name {
			return true
		}
		// A malformed pattern never matches
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

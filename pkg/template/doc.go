// Package template extracts what the registry needs from a unit's editor
// template: the type names it declares (data-template-name) and its help
// blocks (data-help-name), split by data-lang.
package template

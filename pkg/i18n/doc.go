// Package i18n holds message catalogs keyed by namespace and language, and
// the language fallback used for every localized lookup.
//
// A lookup for "de-CH" tries "de-CH", then the base language "de", then the
// host default. Nothing is synthesized: when none of them has an entry the
// lookup misses.
package i18n

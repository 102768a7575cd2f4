// Package descriptor holds the data model shared by the scanner, resolver,
// loader and registry: module and unit descriptors, type bindings, load
// plans and the error taxonomy.
//
// Descriptors produced by the scanner are disposable copies. Only the
// registry owns committed state, and it hands out clones from its queries.
package descriptor

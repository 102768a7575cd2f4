// Package scanner discovers node modules on disk and describes them.
//
// A full scan covers three kinds of roots:
//
//   - the core directory, plus the user's flat nodes/ directory and any
//     extra node directories, which together form one synthetic module named
//     after the host
//   - the user's node_modules directory, whose modules are marked local
//   - node_modules directories found walking up from the install directory
//
// A package directory is a candidate when its manifest declares the
// "node-red" section. A local module shadows a non-local one of the same
// name; otherwise the first one found wins. Modules depending on a name
// that was not admitted are rejected with a missing dependency error.
//
// The scanner has no side effects on registry state. Unreadable directories
// are treated as empty and broken manifests only exclude their package.
package scanner

// Package manifest reads and validates node module manifests.
//
// # Format
//
// A node module is a package directory whose package.json (or package.yaml)
// carries a "node-red" section:
//
//	{
//	  "name": "node-red-contrib-foo",
//	  "version": "1.2.0",
//	  "node-red": {
//	    "version": ">=3.0.0",
//	    "dependencies": ["node-red-contrib-bar"],
//	    "nodes": {"foo": "foo.lua"},
//	    "plugins": {"foo-sidebar": "sidebar.lua"}
//	  }
//	}
//
// Unit maps keep their declaration order, which is the order units load in.
// Manifests with the section are validated against an embedded JSON schema.
// The "version" constraint is checked against the host version with
// CheckHostVersion.
package manifest

// Package corenodes holds the compiled-in implementations of the units
// shipped in the host's core directory.
//
// Core units are native: their .node file is a marker and the
// implementation is looked up by unit id in a loader.NativeRuntime.
//
//	native := loader.NewNativeRuntime()
//	corenodes.Register(native, cfg.Host.Name)
package corenodes

// Package resolver turns scan results into load plans.
//
// BuildPlan filters a full scan against the modules the registry already
// holds and the host version, and partitions the remaining units into a
// plugin phase followed by a node phase. Within a phase units keep discovery
// order.
//
// Resolve computes the closure of modules needed to install one module
// after boot. It walks declared dependencies with an explicit worklist and
// fails as a whole when any dependency cannot be found, so an install either
// commits every module of the closure or none.
package resolver

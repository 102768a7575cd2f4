// Package registry holds the committed state of a host process: modules,
// their units, and the type bindings units register while loading.
//
// A Registry is created with New and torn down with Close. Load runs the
// boot pass (scan, plan, two phase load, commit, persist); InstallModule
// and UninstallModule change membership afterwards:
//
//	reg, err := registry.New(registry.Options{
//		Scanner: scanner.New(scanOpts),
//		Loader:  loader.New(loaderOpts),
//		Store:   store,
//		Flows:   engine,
//	})
//	if err := reg.Load(ctx); err != nil {
//		return err
//	}
//	defer reg.Close()
//
//	broken := reg.ListUnits(registry.HasError)
//
// At most one enabled unit owns a type name at a time. Unit load failures
// are recorded on the unit and never fail a pass. Writes to the store are
// best effort: failures are logged and the in-memory state stays
// authoritative.
package registry

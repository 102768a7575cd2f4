// Package loader turns planned units into loaded ones.
//
// Loading a unit has two steps. AttachMetadata reads the unit's locale
// catalogs and editor template. Execute runs the implementation through the
// Runtime registered for its file extension, handing it a RED capability
// whose RegisterType binds type names in the registry.
//
// Failures never escape as errors: a failed unit carries a UnitError, with a
// best-effort source line when the failure came from the unit's own file,
// and any types it registered before failing are rolled back.
//
// LoadPlan runs the plugin phase to completion before starting the node
// phase. Within a phase units run through an errgroup limited to
// Options.Concurrency; the default of 1 keeps strict plan order.
//
//	l := loader.New(loader.Options{
//		Runtimes: []loader.Runtime{native, lua.New(logger)},
//		Catalog:  catalog,
//	})
//	units := l.LoadPlan(ctx, plan, registry)
package loader

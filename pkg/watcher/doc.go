// Package watcher installs modules as they appear under the user's
// node_modules directory.
//
// Creating a package directory, or writing its package.json, schedules an
// install of that module once the directory has been quiet for the debounce
// interval. Scoped packages (@scope/name) are followed into their scope
// directory. Installs go through a single-worker async.WorkerPool so they
// never overlap.
//
//	w, err := watcher.New(watcher.Options{
//		Dir:       filepath.Join(cfg.Paths.UserDir, "node_modules"),
//		Installer: reg,
//		Logger:    log,
//	})
//	if err != nil {
//		return err
//	}
//	defer w.Close()
//	go w.Run(ctx)
package watcher

// Package async provides a worker pool for background tasks.
//
// Workers recover from panics, bound each task with a timeout and report
// task errors on a channel:
//
//	pool := async.NewWorkerPool(ctx, 1, "module install", time.Minute, logger)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//		return reg.InstallModule(ctx, name, registry.InstallOptions{})
//	})
//
//	for err := range pool.Errors() {
//		logger.WithError(err).Warn("Install failed")
//	}
package async

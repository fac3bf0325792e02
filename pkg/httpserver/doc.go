// Package httpserver runs the gateway's HTTP server with graceful shutdown
// and provides liveness and readiness handlers.
//
//	srv := httpserver.NewFromConfig(cfg.HTTP,
//	    httpserver.WithLogger(log),
//	    httpserver.WithShutdownHook("registry", func(context.Context) error { return registry.Close() }),
//	)
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	err := srv.Run(ctx, router)
//
// Shutdown drains in-flight requests first and runs hooks afterwards, all
// within the shutdown timeout.
package httpserver

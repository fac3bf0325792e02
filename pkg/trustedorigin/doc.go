// Package trustedorigin is the single allow-list for cross-origin callers.
//
// A Registry holds an immutable Snapshot of trusted origins: configured base
// origins plus an https and an http origin for every domain of every active or
// trial tenant. The snapshot is rebuilt on a timer and swapped atomically, so
// readers never see a partially built set.
//
// Refresh failures never empty the allow-list. If a previous snapshot exists it
// stays in service marked SourceStale; on a cold start the registry serves the
// base and emergency origins marked SourceEmergency. IsTrusted consults the
// snapshot, then the development relaxation for local origins, then the
// emergency origins.
//
//	registry := trustedorigin.NewRegistry(store,
//		trustedorigin.WithBaseOrigins("https://www.example.com"),
//		trustedorigin.WithEmergencyOrigins("app.example.com"),
//	)
//	if err := registry.Start(ctx); err != nil {
//		return err
//	}
//	defer registry.Close()
//
//	router.Use(trustedorigin.CORS(registry, trustedorigin.WithAllowCredentials(true)))
package trustedorigin

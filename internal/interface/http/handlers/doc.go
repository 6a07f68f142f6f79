// Package handlers contains reusable HTTP building blocks: health checks and
// middleware.
//
// # Health Checks
//
// The HealthChecker interface allows registering multiple named health checks
// that are executed in parallel:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("storage", handlers.NewStorageCheck(store))
//	checker.AddCheck("payment_gateway", handlers.NewBreakerCheck(gateway.Breaker()))
//
//	status := checker.Check(ctx)
//
// # Middleware
//
// Middlewares share the func(http.Handler) http.Handler shape and compose
// with Chain:
//
//	h := handlers.ChainHandler(mux,
//	    handlers.SecurityHeadersMiddleware,
//	    handlers.RequestSizeLimitMiddleware(1<<20),
//	)
package handlers

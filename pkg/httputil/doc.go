// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, data)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteBadRequest(w, "invalid input")
//
// # Errors
//
// Domain errors carry their own status by implementing StatusCoder, and may
// add Detailer (structured fields) or RetryAfterer (a Retry-After header).
// WriteAPIError turns any error into a response:
//
//	if err != nil {
//		httputil.WriteAPIError(w, logger, err)
//		return
//	}
//
// Errors without a status become an opaque 500 and are logged.
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil

// Package transport holds the HTTP-level cross-cutting middleware of the
// tenantgate server and the JSON error writer shared by every component that
// rejects a request.
//
// # Middleware
//
// [Middleware] wraps an http.Handler. [Chain] composes them so that the first
// middleware is the outermost wrapper. Built-in middleware provides panic
// recovery, request ID assignment (X-Request-ID), structured request logging
// via log/slog, HSTS and HTTP to HTTPS redirection.
//
// # Errors
//
// [WriteErrorResponse] writes an api.ErrorResponse body. Bodies carry a stable
// code and a static message only.
package transport

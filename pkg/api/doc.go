// Package api defines the error types shared by every tenantgate component.
//
// Two families exist:
//   - [ConfigError]: startup-time, fatal. The process refuses to start.
//   - [APIError]: the JSON body written for request-time failures. It carries
//     a stable machine-readable code and a static message; internal failure
//     detail is never placed in it.
//
// The package has no dependencies outside the standard library and performs no I/O.
package api

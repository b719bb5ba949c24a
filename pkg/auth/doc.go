// Package auth provides pluggable authentication and authorization for tenantgate.
//
// Authentication uses an explicit, ordered [Registry] of named schemes. Each
// scheme's [Verifier] returns a three-outcome vote: Yes (identity found), No
// (credentials of this scheme's kind but invalid), or Abstain (credentials
// not of this scheme's kind). The [Resolver] tries schemes by descending
// priority, stops at the first Yes, and otherwise reports the most specific
// failure it recorded, so a caller with an expired token learns that rather
// than "no scheme matched".
//
// Authorization is a pure function, [Authorize], over the resolved identity
// and the route's [Policy].
//
// Both are combined in HTTP [Middleware], keeping auth decoupled from the
// handlers behind it. The middleware injects the identity into the request
// context.
package auth

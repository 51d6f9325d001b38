// Package gateway implements the request admission pipeline that sits in front
// of every school API call. A request is routed, its caller identity resolved
// from a bearer token, API key or session, then checked against the
// maintenance flag, the per-client quota and the route policy before it is
// dispatched to the registered resource handler.
package gateway

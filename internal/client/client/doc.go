// Package client talks to the remote journal API.
//
// HTTPClient implements the REST surface used by the sync engine: the
// change log, entry upserts and deletes, asset download and upload, and a
// reachability probe. Every request carries the bearer token supplied by a
// TokenSource and the per-install client id. Requests pass through a
// token-bucket rate limiter so a backlog of queued transfers cannot flood
// the server.
//
// S3AssetTransport is an alternative asset backend that reads and writes
// an S3-compatible bucket directly; it satisfies the same download/upload
// method set as HTTPClient.
//
// Failures are classified into the error taxonomy in errors.go so callers
// can decide between retrying, surfacing and aborting.
package client

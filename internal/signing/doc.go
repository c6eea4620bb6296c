// Package signing issues CDN playback credentials. A policy document names
// the resource, an expiry instant, and optionally a client network; the
// policy is signed with the configured RSA key and delivered either as URL
// query parameters or as a cookie set scoped to the playback domain.
//
// Credential output is deterministic: signing the same resource with the
// same expiry always yields identical bytes.
package signing

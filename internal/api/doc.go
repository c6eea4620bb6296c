// Package api defines the transport-friendly views of jobs, upload
// sessions, and daemon state shared by the IPC server and the CLI.
//
// Conversions in this package are one-way: domain models come in, wire
// DTOs go out. Keeping the DTOs here prevents the CLI from importing the
// store packages directly and keeps the IPC protocol stable when the
// domain models grow fields.
package api

// Package logs reads the daemon log file incrementally for the CLI's
// follow mode. Tail tracks a byte offset across calls so clients resume
// where the previous read stopped instead of rescanning the file.
package logs

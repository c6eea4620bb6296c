// Package blobstore wraps the S3 client used for ingest and publish
// buckets. It owns client construction against AWS or any S3-compatible
// endpoint, plus the small set of object and multipart operations the rest
// of the pipeline needs.
package blobstore

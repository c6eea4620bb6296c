// Package upload coordinates multipart ingestion of source media into the
// ingest bucket. It owns the session records tracking in-flight uploads, the
// part plan handed to callers as presigned URLs, and the complete/abort
// protocol against the storage backend. A sessionless single-PUT path covers
// small files.
package upload

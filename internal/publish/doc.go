// Package publish moves finished job output into the publish bucket.
//
// Uploads run in phases so players never see a manifest referencing
// segments that do not exist yet: media files first with bounded
// parallelism, then rendition sub-manifests, then the top-level manifest.
// Manifests get a short cache lifetime so corrections propagate; segment
// content at a key never changes, so everything else publishes immutable.
// Re-publishing a prefix overwrites in place and is always safe.
package publish

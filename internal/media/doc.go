// Package media defines the source content model shared across the pipeline.
//
// A SourceRef identifies the piece of content a job operates on: its catalog
// type (episode, short, daily, asset), its catalog id, and the object storage
// location of the uploaded master. The Layout type derives canonical ingest
// and publish locations from those identities so uploads, transcodes, and
// playback grants all agree on where content lives.
package media

// Package transcode turns media jobs into ffmpeg invocations and runs them.
//
// The Planner decodes a job's typed parameters, fits the quality ladder to
// the probed source, and emits one Invocation per engine run along with the
// output directories those runs write into. The Runner executes a plan,
// translating ffmpeg's -progress output into monotonically non-decreasing
// fractions for the caller, and writes the master playlist for ladder jobs
// once every rendition has encoded. Neither knows about retry policy; a
// failed or timed-out invocation surfaces as a single EncodingError.
package transcode

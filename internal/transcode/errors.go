package transcode

import "fmt"

// EncodingError reports a failed engine invocation. Diagnostic carries a
// bounded tail of the engine's stderr so job records stay readable.
type EncodingError struct {
	Step       string
	Diagnostic string
	Err        error
}

func (e *EncodingError) Error() string {
	msg := fmt.Sprintf("encode %s: %v", e.Step, e.Err)
	if e.Diagnostic != "" {
		msg += ": " + e.Diagnostic
	}
	return msg
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

package media

import (
	"errors"
	"fmt"
)

// ErrArtworkUnresolved means an artwork reference could not be turned into a
// fetchable asset. The pipeline treats it as "no artwork", never as a job
// failure.
var ErrArtworkUnresolved = errors.New("artwork unresolved")

// AcquisitionError wraps a failed source download with the tool's diagnostics.
type AcquisitionError struct {
	URL    string
	Stderr string
	Err    error
}

func (e *AcquisitionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("acquisition failed for %s: %v: %s", e.URL, e.Err, e.Stderr)
	}
	return fmt.Sprintf("acquisition failed for %s: %v", e.URL, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// TranscodeError wraps a failed encode with the encoder's diagnostics.
type TranscodeError struct {
	Stderr string
	Err    error
}

func (e *TranscodeError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("transcode failed: %v: %s", e.Err, e.Stderr)
	}
	return fmt.Sprintf("transcode failed: %v", e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

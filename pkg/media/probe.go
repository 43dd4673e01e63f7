// Package media inspects downloaded assets. Generation APIs self-report
// asset metadata; duration in particular has been observed to drift from the
// actual clip, so it is re-measured locally before being shown or saved.
package media

import (
	"bytes"
	"fmt"
	"time"

	mp4 "github.com/abema/go-mp4"
)

// ProbeDuration decodes the MP4 container in data and returns the clip's
// natural duration from the movie header.
func ProbeDuration(data []byte) (time.Duration, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty video data")
	}

	info, err := mp4.Probe(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to parse video container: %w", err)
	}
	if info.Timescale == 0 {
		return 0, fmt.Errorf("video container reports no timescale")
	}

	seconds := float64(info.Duration) / float64(info.Timescale)
	return time.Duration(seconds * float64(time.Second)), nil
}

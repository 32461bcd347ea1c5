package scanner

import (
	"io"
	"strings"

	"github.com/codepulse/codepulse/internal/detector"
)

const (
	// streamChunkSize is how much of a large file is held at once.
	streamChunkSize = 256 * 1024
	// streamOverlap is carried between chunks so matches spanning a
	// boundary are seen by exactly one chunk. Must stay >= 256 bytes.
	streamOverlap = 1024
)

// analyzeStream runs the detectors chunk-by-chunk over r without holding the
// whole body in memory. Each chunk is fed with the previous chunk's tail as
// overlap; matches already emitted from that tail are skipped, and matches
// cut off at a chunk's end are deferred until the chunk that sees them whole.
func analyzeStream(r io.Reader, det *detector.Detector, filePath string) (detector.Result, error) {
	sa := det.NewStream(filePath)

	buf := make([]byte, streamChunkSize)
	carry := ""
	baseLine := 0
	first := true

	for {
		// ReadFull coalesces short network reads; every chunk except the
		// last is full-size, which the overlap-skip logic relies on.
		n, readErr := io.ReadFull(r, buf)
		final := readErr != nil
		if n > 0 {
			chunk := carry + string(buf[:n])
			skip := 0
			if !first {
				skip = len(carry)
			}
			sa.Feed(chunk, baseLine, skip, final)

			keep := streamOverlap
			if keep > len(chunk) {
				keep = len(chunk)
			}
			consumed := chunk[:len(chunk)-keep]
			baseLine += strings.Count(consumed, "\n")
			carry = chunk[len(chunk)-keep:]
			first = false
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			if n == 0 && !first && carry != "" {
				// The body was an exact multiple of the chunk size, so the
				// previous Feed was not marked final. Matches it withheld at
				// the boundary live inside the carry; emit them now.
				sa.Feed(carry, baseLine, len(carry), true)
			}
			return sa.Finish(), nil
		}
		if readErr != nil {
			return sa.Finish(), readErr
		}
	}
}

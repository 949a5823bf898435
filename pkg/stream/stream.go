package stream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"sync"
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// MaxChunk bounds a single chunk. Longer runs without a line break are split.
const MaxChunk = 64 * 1024

// Drain delivers rc to onChunk one line at a time, in order, and closes rc on every return path.
// Lines end at "\n", "\r" or "\r\n" and a chunk keeps its terminator; the final chunk may lack
// one. A line longer than MaxChunk arrives in pieces. The next chunk is not read until onChunk
// returns.
func Drain(ctx context.Context, rc io.ReadCloser, onChunk func(string) error) (err error) {
	var once sync.Once
	var closeErr error
	closeReader := func() {
		once.Do(func() {
			closeErr = rc.Close()
		})
	}
	defer func() {
		closeReader()
		if closeErr != nil && err == nil {
			err = fmt.Errorf("close stream: %w", closeErr)
		}
	}()

	// a blocked read is only interrupted by closing the reader
	stop := context.AfterFunc(ctx, closeReader)
	defer stop()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 4096), MaxChunk)
	scanner.Split(scanTerminalLines)

	for scanner.Scan() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if cbErr := onChunk(scanner.Text()); cbErr != nil {
			return cbErr
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if readErr := scanner.Err(); readErr != nil {
		return fmt.Errorf("read stream: %w", readErr)
	}
	return nil
}

// scanTerminalLines splits on "\n", "\r" and "\r\n", keeping the terminator, and never
// returns a token longer than MaxChunk.
func scanTerminalLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i+1], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i+2], nil
			}
			return i + 1, data[:i+1], nil
		}
		// a trailing "\r" may be the first half of "\r\n"
		if atEOF || len(data) >= MaxChunk {
			return i + 1, data[:i+1], nil
		}
		return 0, nil, nil
	}

	if len(data) >= MaxChunk {
		return MaxChunk, data[:MaxChunk], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// StripANSI removes terminal colour and cursor escape sequences.
func StripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

package llm

import (
	"bufio"
	"io"
	"strings"
)

const maxFrameSize = 5 * 1024 * 1024

const doneSentinel = "[DONE]"

// lineScanner reads server-sent event lines from an upstream body.
type lineScanner struct {
	scanner *bufio.Scanner
}

func newLineScanner(r io.Reader) *lineScanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), maxFrameSize)
	return &lineScanner{scanner: s}
}

// nextData advances to the next "data:" line and returns its payload.
// Comments, event names and blank lines are skipped.
func (l *lineScanner) nextData() (string, bool) {
	for l.scanner.Scan() {
		line := strings.TrimSpace(l.scanner.Text())
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			return strings.TrimSpace(data), true
		}
	}
	return "", false
}

func (l *lineScanner) err() error {
	return l.scanner.Err()
}

package render

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
)

type lineResult struct {
	line string
	err  error
}

// LineReader reads lines from one input stream for both the REPL and the
// approval prompt. A read abandoned through its context leaves the next line
// queued for the following ReadLine.
type LineReader struct {
	reader *bufio.Reader
	lines  chan lineResult
	once   sync.Once
}

func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{
		reader: bufio.NewReader(r),
		lines:  make(chan lineResult),
	}
}

// ReadLine returns the next line without its line ending. io.EOF is returned
// once the input is exhausted.
func (l *LineReader) ReadLine(ctx context.Context) (string, error) {
	l.once.Do(func() { go l.loop() })

	select {
	case res, ok := <-l.lines:
		if !ok {
			return "", io.EOF
		}
		return res.line, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (l *LineReader) loop() {
	defer close(l.lines)
	for {
		line, err := l.reader.ReadString('\n')
		if line != "" {
			l.lines <- lineResult{line: strings.TrimRight(line, "\r\n")}
		}
		if err != nil {
			if err != io.EOF {
				l.lines <- lineResult{err: err}
			}
			return
		}
	}
}

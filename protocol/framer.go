package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

var (
	// ErrLineTooLong is returned when a text frame exceeds the configured
	// maximum. The connection must be closed; the rest of the line is
	// still queued on the socket.
	ErrLineTooLong = errors.New("frame exceeds maximum line length")

	// ErrDesynchronized is returned once a declared binary payload was not
	// fully drained. Text framing cannot resume after that.
	ErrDesynchronized = errors.New("stream desynchronized by unfinished binary payload")
)

// Framer multiplexes newline-delimited text frames and declared-length binary
// payloads over one buffered cursor. NextLine and ReadExact must never be used
// concurrently: a binary payload is consumed synchronously inside the handler
// dispatched for the frame that declared it.
type Framer struct {
	br       *bufio.Reader
	maxLine  int
	pending  int64
	desynced bool
}

func NewFramer(r io.Reader, maxLine int) *Framer {
	return &Framer{
		br:      bufio.NewReader(r),
		maxLine: maxLine,
	}
}

// Desynced reports whether the cursor position no longer matches frame
// boundaries. The owning connection must tear down once this is true.
func (f *Framer) Desynced() bool {
	return f.desynced || f.pending > 0
}

// NextLine reads one newline-terminated frame, without the terminator.
func (f *Framer) NextLine() ([]byte, error) {
	if f.Desynced() {
		f.desynced = true
		return nil, ErrDesynchronized
	}

	var line []byte
	for {
		chunk, err := f.br.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > f.maxLine {
			return nil, ErrLineTooLong
		}
		if err == nil {
			break
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return nil, err
	}

	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	return line, nil
}

// ReadExact returns a reader yielding exactly n bytes from the shared cursor.
// Reading past n yields io.EOF no matter how much more is queued. If the
// reader is abandoned before n bytes were consumed, the framer stays
// desynchronized and the connection must close.
func (f *Framer) ReadExact(n int64) io.Reader {
	f.pending = n
	return &exactReader{f: f, remaining: n}
}

type exactReader struct {
	f         *Framer
	remaining int64
}

func (r *exactReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}

	n, err := r.f.br.Read(p)
	r.remaining -= int64(n)
	r.f.pending -= int64(n)

	if err != nil {
		// The socket ended before the declared count arrived.
		r.f.desynced = true
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return n, err
	}
	return n, nil
}

package protocol

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextLineTrimsTerminators(t *testing.T) {
	fr := NewFramer(strings.NewReader("hello\r\nworld\n"), 1024)

	line, err := fr.NextLine()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(line))

	line, err = fr.NextLine()
	require.NoError(t, err)
	assert.Equal(t, "world", string(line))

	_, err = fr.NextLine()
	assert.Equal(t, io.EOF, err)
}

func TestNextLineLongerThanBufferSize(t *testing.T) {
	// Longer than bufio's default buffer, still under the frame cap.
	long := strings.Repeat("x", 8192)
	fr := NewFramer(strings.NewReader(long+"\n"), 16384)

	line, err := fr.NextLine()
	require.NoError(t, err)
	assert.Equal(t, long, string(line))
}

func TestNextLineEnforcesCap(t *testing.T) {
	fr := NewFramer(strings.NewReader(strings.Repeat("x", 100)+"\n"), 50)

	_, err := fr.NextLine()
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestReadExactThenTextResumes(t *testing.T) {
	var stream bytes.Buffer
	stream.WriteString("first\n")
	stream.Write([]byte{1, 2, 3, 4, 5})
	stream.WriteString("second\n")

	fr := NewFramer(&stream, 1024)

	line, err := fr.NextLine()
	require.NoError(t, err)
	assert.Equal(t, "first", string(line))

	blob, err := io.ReadAll(fr.ReadExact(5))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, blob)
	assert.False(t, fr.Desynced())

	line, err = fr.NextLine()
	require.NoError(t, err)
	assert.Equal(t, "second", string(line))
}

func TestReadExactStopsAtDeclaredCount(t *testing.T) {
	fr := NewFramer(strings.NewReader("abcdef"), 1024)

	blob, err := io.ReadAll(fr.ReadExact(3))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(blob))

	// Reading past the declared count yields EOF even with bytes queued.
	n, err := fr.ReadExact(0).Read(make([]byte, 1))
	assert.Zero(t, n)
	assert.Equal(t, io.EOF, err)
}

func TestReadExactShortStreamDesyncs(t *testing.T) {
	fr := NewFramer(strings.NewReader("ab"), 1024)

	_, err := io.ReadAll(fr.ReadExact(10))
	assert.Equal(t, io.ErrUnexpectedEOF, err)
	assert.True(t, fr.Desynced())

	_, err = fr.NextLine()
	assert.ErrorIs(t, err, ErrDesynchronized)
}

func TestAbandonedBinaryPayloadDesyncs(t *testing.T) {
	fr := NewFramer(strings.NewReader("12345next\n"), 1024)

	r := fr.ReadExact(5)
	buf := make([]byte, 2)
	_, err := r.Read(buf)
	require.NoError(t, err)

	// Three declared bytes were never drained.
	assert.True(t, fr.Desynced())
	_, err = fr.NextLine()
	assert.ErrorIs(t, err, ErrDesynchronized)
}

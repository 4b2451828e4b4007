package storage

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	buf             bytes.Buffer
	cancelled       bool
	cancelledAtSave bool
	closed          bool
}

func (w *recordingWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *recordingWriter) Close() error {
	w.closed = true
	w.cancelledAtSave = w.cancelled
	return nil
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestWriteObject_CommitsOnSuccess(t *testing.T) {
	w := &recordingWriter{}
	err := writeObject(w, func() { w.cancelled = true }, strings.NewReader("jpg"))
	require.NoError(t, err)
	assert.True(t, w.closed)
	assert.False(t, w.cancelledAtSave)
	assert.Equal(t, "jpg", w.buf.String())
}

func TestWriteObject_CancelsBeforeCloseOnCopyError(t *testing.T) {
	w := &recordingWriter{}
	tooLarge := errors.New("file too large")
	r := io.MultiReader(strings.NewReader("partial"), failingReader{err: tooLarge})

	err := writeObject(w, func() { w.cancelled = true }, r)
	require.ErrorIs(t, err, tooLarge)
	assert.True(t, w.closed)
	assert.True(t, w.cancelledAtSave, "upload must be cancelled before the writer is closed")
}

package wire

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearbeam/nearbeam/pkg/errs"
	"github.com/nearbeam/nearbeam/pkg/fileinfo"
)

// writeSourceFile drops content into a temp file and returns its File.
func writeSourceFile(t *testing.T, name string, content []byte) fileinfo.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return fileinfo.File{Path: path, Name: name, Size: int64(len(content)), MimeType: "text/plain"}
}

// progressRecord captures every callback for later assertions.
type progressRecord struct {
	percents []float64
	done     []int64
}

func (p *progressRecord) fn(percent float64, bytesDone int64, _ float64) {
	p.percents = append(p.percents, percent)
	p.done = append(p.done, bytesDone)
}

func TestSendReceive_RoundTrip(t *testing.T) {
	content := bytes.Repeat([]byte("nearbeam payload "), 4096) // several chunks
	src := writeSourceFile(t, "notes.txt", content)
	destDir := t.TempDir()

	var stream bytes.Buffer
	var sendProg, recvProg progressRecord

	require.NoError(t, Send(context.Background(), &stream, src, MinChunkSize, nil, sendProg.fn))

	got, err := Receive(context.Background(), &stream, destDir, MinChunkSize, nil, recvProg.fn)
	require.NoError(t, err)

	assert.Equal(t, "notes.txt", got.Name)
	assert.Equal(t, src.Size, got.Size)
	assert.Equal(t, "text/plain", got.MimeType)
	assert.Equal(t, filepath.Join(destDir, "notes.txt"), got.Path)

	written, err := os.ReadFile(got.Path)
	require.NoError(t, err)
	assert.Equal(t, content, written)

	for _, prog := range []*progressRecord{&sendProg, &recvProg} {
		require.NotEmpty(t, prog.percents)
		assert.Equal(t, float64(100), prog.percents[len(prog.percents)-1])
		assert.Equal(t, src.Size, prog.done[len(prog.done)-1])
		for i := 1; i < len(prog.done); i++ {
			assert.GreaterOrEqual(t, prog.done[i], prog.done[i-1], "bytesDone must be monotonic")
		}
	}
}

func TestSendReceive_EmptyFile(t *testing.T) {
	src := writeSourceFile(t, "empty.bin", nil)
	destDir := t.TempDir()

	var stream bytes.Buffer
	var prog progressRecord
	require.NoError(t, Send(context.Background(), &stream, src, DefaultChunkSize, nil, nil))

	got, err := Receive(context.Background(), &stream, destDir, DefaultChunkSize, nil, prog.fn)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Size)

	// Even a zero-byte transfer reports completion.
	require.NotEmpty(t, prog.percents)
	assert.Equal(t, float64(100), prog.percents[len(prog.percents)-1])
}

func TestReceive_EmptyMimeGetsOctetStream(t *testing.T) {
	src := writeSourceFile(t, "blob", []byte("data"))
	src.MimeType = ""
	destDir := t.TempDir()

	var stream bytes.Buffer
	require.NoError(t, Send(context.Background(), &stream, src, DefaultChunkSize, nil, nil))

	got, err := Receive(context.Background(), &stream, destDir, DefaultChunkSize, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, OctetStream, got.MimeType)
}

func TestReceive_SanitizesRemoteName(t *testing.T) {
	src := writeSourceFile(t, "safe.txt", []byte("data"))
	src.Name = "  evil:na*me?.txt  "
	destDir := t.TempDir()

	var stream bytes.Buffer
	require.NoError(t, Send(context.Background(), &stream, src, DefaultChunkSize, nil, nil))

	got, err := Receive(context.Background(), &stream, destDir, DefaultChunkSize, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "evilname.txt", got.Name)
}

func TestReceive_CollisionSuffix(t *testing.T) {
	src := writeSourceFile(t, "report.pdf", []byte("new content"))
	destDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(destDir, "report.pdf"), []byte("old"), 0644))

	var stream bytes.Buffer
	require.NoError(t, Send(context.Background(), &stream, src, DefaultChunkSize, nil, nil))

	got, err := Receive(context.Background(), &stream, destDir, DefaultChunkSize, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "report (1).pdf"), got.Path)

	// The pre-existing file is untouched.
	old, err := os.ReadFile(filepath.Join(destDir, "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), old)
}

func TestReceive_CleanEOFSignalsBatchEnd(t *testing.T) {
	_, err := Receive(context.Background(), bytes.NewReader(nil), t.TempDir(), DefaultChunkSize, nil, nil)
	assert.Equal(t, io.EOF, err)
}

func TestReceive_PrematureStreamEnd(t *testing.T) {
	src := writeSourceFile(t, "big.bin", bytes.Repeat([]byte("x"), 64*1024))
	destDir := t.TempDir()

	var stream bytes.Buffer
	require.NoError(t, Send(context.Background(), &stream, src, DefaultChunkSize, nil, nil))

	// Drop the tail of the payload to simulate a link loss mid-file.
	truncated := bytes.NewReader(stream.Bytes()[:stream.Len()-1000])

	got, err := Receive(context.Background(), truncated, destDir, DefaultChunkSize, nil, nil)
	require.Error(t, err)
	assert.Equal(t, errs.ConnectionLost, errs.From(err).Code)

	// The partial file stays on disk; rollback is not attempted.
	info, statErr := os.Stat(got.Path)
	require.NoError(t, statErr)
	assert.Equal(t, src.Size-1000, info.Size())
}

func TestSend_SourceShrankDuringTransfer(t *testing.T) {
	src := writeSourceFile(t, "shrink.bin", bytes.Repeat([]byte("x"), 8*1024))
	require.NoError(t, os.Truncate(src.Path, 1024))

	var stream bytes.Buffer
	err := Send(context.Background(), &stream, src, DefaultChunkSize, nil, nil)
	require.Error(t, err)
	assert.Equal(t, errs.FileIO, errs.From(err).Code)
}

func TestSend_MissingSource(t *testing.T) {
	src := fileinfo.File{Path: filepath.Join(t.TempDir(), "gone"), Name: "gone", Size: 1}
	err := Send(context.Background(), &bytes.Buffer{}, src, DefaultChunkSize, nil, nil)
	require.Error(t, err)
	assert.Equal(t, errs.FileIO, errs.From(err).Code)
}

func TestSend_CancelledContext(t *testing.T) {
	src := writeSourceFile(t, "a.txt", []byte("data"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Send(ctx, &bytes.Buffer{}, src, DefaultChunkSize, nil, nil)
	assert.Equal(t, context.Canceled, err)
}

func TestSend_GatePausesBetweenChunks(t *testing.T) {
	// Several chunks so the gate is consulted more than once.
	src := writeSourceFile(t, "big.bin", bytes.Repeat([]byte("x"), 4*MinChunkSize))
	gate := NewGate()
	gate.Pause()

	var stream bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- Send(context.Background(), &stream, src, MinChunkSize, gate, nil)
	}()

	select {
	case err := <-done:
		t.Fatalf("Send finished while paused: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	gate.Resume()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Send did not resume")
	}
	assert.Equal(t, int(src.Size), stream.Len()-headerLen(t, src))
}

func headerLen(t *testing.T, f fileinfo.File) int {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, Header{Name: f.SafeName(), Size: f.Size, Mime: f.MimeType}))
	return buf.Len()
}

func TestClampChunkSize(t *testing.T) {
	assert.Equal(t, MinChunkSize, clampChunkSize(MinChunkSize))
	assert.Equal(t, MaxChunkSize, clampChunkSize(MaxChunkSize))
	assert.Equal(t, 16*1024, clampChunkSize(16*1024))
	assert.Equal(t, DefaultChunkSize, clampChunkSize(0))
	assert.Equal(t, DefaultChunkSize, clampChunkSize(-1))
	assert.Equal(t, DefaultChunkSize, clampChunkSize(MaxChunkSize+1))
}

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockWriter is a mock implementation of Writer
type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) WriteFile(ctx context.Context, rel string, data []byte) error {
	args := m.Called(ctx, rel, data)
	return args.Error(0)
}

func TestFSSink_WriteFile(t *testing.T) {
	root := t.TempDir()
	sink := NewFSSink(root)
	ctx := context.Background()

	require.NoError(t, sink.WriteFile(ctx, "organized/by_category/leave/a_organized.txt", []byte("first")))
	require.NoError(t, sink.WriteFile(ctx, "organized/by_category/leave/a_organized.txt", []byte("second")))

	data, err := os.ReadFile(filepath.Join(root, "organized", "by_category", "leave", "a_organized.txt"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "organized", "by_category", "leave"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFSSink_RejectsEscapingPaths(t *testing.T) {
	sink := NewFSSink(t.TempDir())

	for _, rel := range []string{"../x.txt", "/etc/x.txt", "a/../../x.txt"} {
		err := sink.WriteFile(context.Background(), rel, []byte("x"))
		assert.Error(t, err, rel)
	}
}

func TestFSSink_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewFSSink(t.TempDir()).WriteFile(ctx, "a.txt", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMirrorSink(t *testing.T) {
	ctx := context.Background()

	t.Run("writes to all", func(t *testing.T) {
		primary := new(MockWriter)
		mirror := new(MockWriter)
		primary.On("WriteFile", ctx, "a.txt", []byte("x")).Return(nil)
		mirror.On("WriteFile", ctx, "a.txt", []byte("x")).Return(nil)

		require.NoError(t, NewMirrorSink(primary, mirror).WriteFile(ctx, "a.txt", []byte("x")))
		primary.AssertExpectations(t)
		mirror.AssertExpectations(t)
	})

	t.Run("primary failure skips mirrors", func(t *testing.T) {
		primary := new(MockWriter)
		mirror := new(MockWriter)
		primary.On("WriteFile", ctx, "a.txt", []byte("x")).Return(errors.New("disk full"))

		err := NewMirrorSink(primary, mirror).WriteFile(ctx, "a.txt", []byte("x"))
		assert.EqualError(t, err, "disk full")
		mirror.AssertNotCalled(t, "WriteFile", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("mirror failures are collected", func(t *testing.T) {
		primary := new(MockWriter)
		m1 := new(MockWriter)
		m2 := new(MockWriter)
		primary.On("WriteFile", ctx, "a.txt", []byte("x")).Return(nil)
		m1.On("WriteFile", ctx, "a.txt", []byte("x")).Return(errors.New("timeout"))
		m2.On("WriteFile", ctx, "a.txt", []byte("x")).Return(nil)

		err := NewMirrorSink(primary, m1, m2).WriteFile(ctx, "a.txt", []byte("x"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout")
		m2.AssertExpectations(t)
	})
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/json", ContentTypeFor("metadata/a_metadata.json"))
	assert.Equal(t, "text/plain; charset=utf-8", ContentTypeFor("organized/a_organized.TXT"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("a.bin"))
}

func TestS3Sink_Key(t *testing.T) {
	sink, err := NewS3Sink(context.Background(), S3SinkConfig{
		Endpoint:        "http://localhost:9000",
		Region:          "us-east-1",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Bucket:          "corpus",
		Prefix:          "/kfg/",
		UsePathStyle:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, "kfg/organized/a_organized.txt", sink.Key("organized/a_organized.txt"))
	assert.Equal(t, "kfg/document_index.json", sink.Key("/document_index.json"))
	assert.Equal(t, "kfg/x.txt", sink.Key("../x.txt"))
}

func TestNewS3Sink_RequiresBucket(t *testing.T) {
	_, err := NewS3Sink(context.Background(), S3SinkConfig{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestFSSink_EnsureDirs(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out")
	sink := NewFSSink(root)

	require.NoError(t, sink.EnsureDirs(context.Background(), "organized/by_category", "metadata"))
	require.NoError(t, sink.EnsureDirs(context.Background(), "organized/by_category", "metadata"))

	for _, dir := range []string{root, filepath.Join(root, "organized", "by_category"), filepath.Join(root, "metadata")} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	assert.Error(t, sink.EnsureDirs(context.Background(), "../outside"))
}

func TestMirrorSink_EnsureDirs(t *testing.T) {
	root := t.TempDir()
	mirror := NewMirrorSink(NewFSSink(root), new(MockWriter))

	require.NoError(t, mirror.EnsureDirs(context.Background(), "metadata"))
	_, err := os.Stat(filepath.Join(root, "metadata"))
	assert.NoError(t, err)
}

// MockRemover is a writer that also supports removal.
type MockRemover struct {
	MockWriter
}

func (m *MockRemover) RemoveFile(ctx context.Context, rel string) error {
	args := m.Called(ctx, rel)
	return args.Error(0)
}

func TestFSSink_RemoveFile(t *testing.T) {
	ctx := context.Background()
	sink := NewFSSink(t.TempDir())
	require.NoError(t, sink.WriteFile(ctx, "organized/a_organized.txt", []byte("a")))

	require.NoError(t, sink.RemoveFile(ctx, "organized/a_organized.txt"))
	assert.NoFileExists(t, filepath.Join(sink.Root(), "organized", "a_organized.txt"))

	// already gone
	assert.NoError(t, sink.RemoveFile(ctx, "organized/a_organized.txt"))
	assert.Error(t, sink.RemoveFile(ctx, "../outside.txt"))
}

func TestMirrorSink_RemoveFile(t *testing.T) {
	ctx := context.Background()
	local := NewFSSink(t.TempDir())
	require.NoError(t, local.WriteFile(ctx, "metadata/a_metadata.json", []byte("{}")))

	remote := new(MockRemover)
	remote.On("RemoveFile", ctx, "metadata/a_metadata.json").Return(errors.New("offline"))
	writeOnly := new(MockWriter)

	err := NewMirrorSink(local, writeOnly, remote).RemoveFile(ctx, "metadata/a_metadata.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offline")
	assert.NoFileExists(t, filepath.Join(local.Root(), "metadata", "a_metadata.json"))
	remote.AssertExpectations(t)
	writeOnly.AssertNotCalled(t, "WriteFile", mock.Anything, mock.Anything, mock.Anything)
}

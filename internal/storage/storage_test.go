package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdores/selfserve-egressip/internal/domain"
)

func sampleEntries() []domain.AuditLogEntry {
	ts := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)
	return []domain.AuditLogEntry{
		{ID: 7, Timestamp: ts, Actor: "a@x.com", Action: domain.ActionSelect, TargetEmail: domain.StringPtr("a@x.com"), AssignedTo: domain.StringPtr("US")},
		{ID: 9, Timestamp: ts, Actor: "a@x.com", Action: domain.ActionReset, TargetEmail: domain.StringPtr("a@x.com"), RemovedFrom: domain.StringPtr("US")},
	}
}

func decodeNDJSON(t *testing.T, r io.Reader) []domain.AuditLogEntry {
	t.Helper()
	var out []domain.AuditLogEntry
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var e domain.AuditLogEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		out = append(out, e)
	}
	require.NoError(t, sc.Err())
	return out
}

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, data)
	return &s3.PutObjectOutput{}, nil
}

func TestNew_Disabled(t *testing.T) {
	a, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestNew_FileBackend(t *testing.T) {
	a, err := New(context.Background(), Config{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileArchiver{}, a)
}

func TestFileArchiver_Archive(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFileArchiver(dir)
	require.NoError(t, err)

	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, a.Archive(context.Background(), cutoff, sampleEntries()))
	require.NoError(t, a.Archive(context.Background(), cutoff, sampleEntries()))

	files, err := filepath.Glob(filepath.Join(dir, "2026", "03", "01", "audit-7-9-*.ndjson"))
	require.NoError(t, err)
	require.Len(t, files, 2, "repeated sweeps never overwrite")

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()
	got := decodeNDJSON(t, f)
	require.Len(t, got, 2)
	assert.Equal(t, int64(9), got[1].ID)
	assert.Equal(t, "US", *got[1].RemovedFrom)
}

func TestFileArchiver_EmptyBatch(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFileArchiver(dir)
	require.NoError(t, err)

	require.NoError(t, a.Archive(context.Background(), time.Now(), nil))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestS3Archiver_Archive(t *testing.T) {
	fp := &fakePutter{}
	a := NewS3ArchiverWithClient(fp, "audit-bucket", "egress")

	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, a.Archive(context.Background(), cutoff, sampleEntries()))

	require.Len(t, fp.inputs, 1)
	in := fp.inputs[0]
	assert.Equal(t, "audit-bucket", *in.Bucket)
	assert.True(t, strings.HasPrefix(*in.Key, "egress/2026/03/01/audit-7-9-"), *in.Key)
	assert.Equal(t, "application/x-ndjson", *in.ContentType)

	got := decodeNDJSON(t, bytes.NewReader(fp.bodies[0]))
	assert.Len(t, got, 2)
}

func TestS3Archiver_PutError(t *testing.T) {
	fp := &fakePutter{err: errors.New("access denied")}
	a := NewS3ArchiverWithClient(fp, "audit-bucket", "")

	err := a.Archive(context.Background(), time.Now(), sampleEntries())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit-bucket")
}

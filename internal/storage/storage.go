// Package storage exports expired audit entries before the retention sweep
// deletes them. Entries are written as newline-delimited JSON, one object per
// batch, either to a local directory or to an S3 bucket.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdores/selfserve-egressip/internal/domain"
)

// Config selects the archive backend. Bucket wins over Dir; with neither set
// New returns nil and archiving is disabled.
type Config struct {
	Bucket  string
	Region  string
	Prefix  string
	Profile string
	Dir     string
}

// Archiver is implemented by FileArchiver and S3Archiver.
type Archiver interface {
	Archive(ctx context.Context, cutoff time.Time, entries []domain.AuditLogEntry) error
}

// New builds the archiver described by cfg.
func New(ctx context.Context, cfg Config) (Archiver, error) {
	switch {
	case cfg.Bucket != "":
		return NewS3Archiver(ctx, cfg.Bucket, cfg.Region, cfg.Prefix, cfg.Profile)
	case cfg.Dir != "":
		return NewFileArchiver(cfg.Dir)
	default:
		return nil, nil
	}
}

// objectKey names one archived batch. The uuid keeps concurrent or repeated
// sweeps from overwriting each other.
func objectKey(prefix string, cutoff time.Time, entries []domain.AuditLogEntry) string {
	first, last := entries[0].ID, entries[len(entries)-1].ID
	name := fmt.Sprintf("audit-%d-%d-%s.ndjson", first, last, uuid.NewString())
	day := cutoff.UTC().Format("2006/01/02")
	if prefix == "" {
		return day + "/" + name
	}
	return prefix + "/" + day + "/" + name
}

func encodeEntries(entries []domain.AuditLogEntry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			return nil, fmt.Errorf("encoding audit entry %d: %w", entries[i].ID, err)
		}
	}
	return buf.Bytes(), nil
}

// FileArchiver writes batches under a local directory.
type FileArchiver struct {
	mu  sync.Mutex
	dir string
}

// NewFileArchiver creates dir if needed.
func NewFileArchiver(dir string) (*FileArchiver, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}
	return &FileArchiver{dir: dir}, nil
}

// Archive writes entries to one file.
func (a *FileArchiver) Archive(_ context.Context, cutoff time.Time, entries []domain.AuditLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	data, err := encodeEntries(entries)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	path := filepath.Join(a.dir, filepath.FromSlash(objectKey("", cutoff, entries)))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating archive dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing archive file: %w", err)
	}
	return nil
}

// Package store persists built archives by id.
package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/zeebo/xxh3"
)

var (
	ErrNotFound  = errors.New("edgezip: archive not found")
	ErrInvalidID = errors.New("edgezip: invalid archive id")
)

// Store defines operations for persisting archives.
type Store interface {
	Put(ctx context.Context, id string, data []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	// Open streams an archive; callers must close the reader.
	Open(ctx context.Context, id string) (io.ReadCloser, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
}

// Extension is appended to archive ids to form file and object names.
const Extension = ".ezip"

var idRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ID returns the content address of an archive.
func ID(data []byte) string {
	sum := xxh3.Hash128(data).Bytes()
	return hex.EncodeToString(sum[:])
}

func checkID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if !idRe.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return id, nil
}

// Kinds accepted by New.
const (
	KindMemory = "memory"
	KindDisk   = "disk"
	KindS3     = "s3"
)

// New opens the backend named by kind. dir is used by the disk backend and
// s3 by the S3 backend.
func New(kind, dir string, s3 S3Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindDisk:
		return NewDiskStore(dir)
	case KindS3:
		return NewS3Store(s3)
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}

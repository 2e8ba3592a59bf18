// Package storage is the key-value blob store the duty calendar persists into.
// Every value is one JSON document addressed by a string key and is always
// written as a whole.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Keys of the two persisted documents.
const (
	StudentsKey    = "@students"
	AssignmentsKey = "@gita_class_assignments"
)

// Backend drivers accepted by Open.
const (
	DriverBolt   = "bolt"
	DriverFile   = "file"
	DriverMemory = "memory"
)

// ErrPersistence matches every *PersistenceError via errors.Is.
var ErrPersistence = errors.New("persistence failed")

// Blobs reads and writes whole JSON documents by key.
type Blobs interface {
	// Read returns the stored document and whether the key exists.
	Read(ctx context.Context, key string) ([]byte, bool, error)
	Write(ctx context.Context, key string, value []byte) error
	Close() error
}

// PersistenceError reports a failed read, write or codec step for a key.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Open returns the backend for driver. path is a bolt file for DriverBolt and a
// directory for DriverFile; it is ignored for DriverMemory.
func Open(driver, path string) (Blobs, error) {
	switch driver {
	case DriverBolt:
		return OpenBolt(path)
	case DriverFile:
		return OpenFile(path)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// Load decodes the document stored under key into out. It reports false and
// leaves out untouched when the key is absent.
func Load[T any](ctx context.Context, b Blobs, key string, out *T) (bool, error) {
	data, ok, err := b.Read(ctx, key)
	if err != nil {
		return false, &PersistenceError{Op: "read", Key: key, Err: err}
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, &PersistenceError{Op: "decode", Key: key, Err: err}
	}
	return true, nil
}

// Writer serializes whole-document writes of one key. Every mutation takes a
// version from Next while its owner still holds its state lock. Save always
// writes the newest document handed to it so far, so a late Save of an older
// version can neither regress the durable document nor skip a pending newer
// one whose own write failed.
type Writer struct {
	blobs Blobs
	key   string

	mu      sync.Mutex
	issued  uint64
	latest  uint64 // newest version handed to Save
	pending []byte // document of latest
	written uint64 // newest version on disk
}

func NewWriter(b Blobs, key string) *Writer {
	return &Writer{blobs: b, key: key}
}

// Next hands out the version for the mutation being applied. The caller must
// hold the lock that orders its mutations.
func (w *Writer) Next() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.issued++
	return w.issued
}

// Save encodes value and writes the newest known document unless it already
// landed.
func (w *Writer) Save(ctx context.Context, version uint64, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return &PersistenceError{Op: "encode", Key: w.key, Err: err}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if version > w.latest {
		w.latest = version
		w.pending = data
	}
	if w.latest <= w.written {
		return nil
	}
	if err := w.blobs.Write(ctx, w.key, w.pending); err != nil {
		return &PersistenceError{Op: "write", Key: w.key, Err: err}
	}
	w.written = w.latest
	w.pending = nil
	return nil
}

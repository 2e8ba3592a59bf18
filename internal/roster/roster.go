// Package roster holds the ordered list of known students.
package roster

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/klabast/wb-services/duty-calendar/internal/storage"
)

var (
	ErrValidation = errors.New("student name is empty")
	ErrDuplicate  = errors.New("student already exists")
	ErrNotFound   = errors.New("student not found")
)

// Roster is the persisted, insertion-ordered list of student names. Names are
// unique ignoring case.
type Roster struct {
	mu       sync.RWMutex
	students []string

	writer *storage.Writer
	logger *zap.Logger
}

// Load reads the roster from b. A missing document yields an empty roster.
func Load(ctx context.Context, b storage.Blobs, logger *zap.Logger) (*Roster, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var students []string
	if _, err := storage.Load(ctx, b, storage.StudentsKey, &students); err != nil {
		return nil, err
	}
	if students == nil {
		students = []string{}
	}

	logger.Debug("roster loaded", zap.Int("students", len(students)))
	return &Roster{
		students: students,
		writer:   storage.NewWriter(b, storage.StudentsKey),
		logger:   logger,
	}, nil
}

// List returns a copy of the roster in insertion order.
func (r *Roster) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.students)
}

// Has reports whether name is on the roster exactly as written.
func (r *Roster) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.students, name)
}

// Add appends the trimmed name and returns the updated roster. On a
// persistence error the roster in memory is already updated and is returned
// together with the error.
func (r *Roster) Add(ctx context.Context, name string) ([]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrValidation
	}

	r.mu.Lock()
	if i := r.indexOf(name); i >= 0 {
		existing := r.students[i]
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, existing)
	}
	updated := append(slices.Clone(r.students), name)
	r.students = updated
	version := r.writer.Next()
	r.mu.Unlock()

	r.logger.Debug("student added", zap.String("student", name))
	return r.persist(ctx, version, updated)
}

// Remove deletes the entry equal to name ignoring case.
func (r *Roster) Remove(ctx context.Context, name string) ([]string, error) {
	name = strings.TrimSpace(name)

	r.mu.Lock()
	i := r.indexOf(name)
	if i < 0 {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return r.removeLocked(ctx, i)
}

// RemoveAt deletes the entry at index, as the list view does.
func (r *Roster) RemoveAt(ctx context.Context, index int) ([]string, error) {
	r.mu.Lock()
	if index < 0 || index >= len(r.students) {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	return r.removeLocked(ctx, index)
}

// removeLocked is entered with r.mu held and releases it.
func (r *Roster) removeLocked(ctx context.Context, i int) ([]string, error) {
	removed := r.students[i]
	updated := slices.Delete(slices.Clone(r.students), i, i+1)
	r.students = updated
	version := r.writer.Next()
	r.mu.Unlock()

	r.logger.Debug("student removed", zap.String("student", removed))
	return r.persist(ctx, version, updated)
}

func (r *Roster) persist(ctx context.Context, version uint64, students []string) ([]string, error) {
	if err := r.writer.Save(ctx, version, students); err != nil {
		r.logger.Error("failed to save roster", zap.Error(err))
		return slices.Clone(students), err
	}
	return slices.Clone(students), nil
}

func (r *Roster) indexOf(name string) int {
	for i, s := range r.students {
		if strings.EqualFold(s, name) {
			return i
		}
	}
	return -1
}

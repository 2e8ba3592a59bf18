// Package assignment maps calendar dates to the students on duty.
//
// Each date key is in one of three states: absent, legacy (a single name
// stored as a bare string by older versions) or multi (a list of names).
// Mutations compute a new Map from the old one and persist it whole:
//
//	absent  --Assign-->              multi(1)
//	legacy  --Assign-->              multi(2)
//	legacy  --RemoveOne/RemoveAll--> absent
//	multi   --RemoveOne (not last)-> multi(n-1)
//	multi   --RemoveOne (last)-->    absent
//	multi   --RemoveAll-->           absent
package assignment

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/klabast/wb-services/duty-calendar/internal/storage"
)

var ErrAlreadyAssigned = errors.New("student already assigned to this date")

// Store owns the in-memory Map and its persistence.
type Store struct {
	mu      sync.RWMutex
	entries Map

	writer *storage.Writer
	logger *zap.Logger
}

// Load reads the assignment map from b. A missing document yields an empty map
// and dates stored as null are treated as absent.
func Load(ctx context.Context, b storage.Blobs, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// A null value decodes to a nil pointer without reaching UnmarshalJSON.
	var raw map[string]*Entry
	if _, err := storage.Load(ctx, b, storage.AssignmentsKey, &raw); err != nil {
		return nil, err
	}
	entries := make(Map, len(raw))
	for date, e := range raw {
		if e == nil {
			logger.Warn("dropping null assignment entry", zap.String("date", date))
			continue
		}
		entries[date] = *e
	}

	logger.Debug("assignments loaded", zap.Int("dates", len(entries)))
	return &Store{
		entries: entries,
		writer:  storage.NewWriter(b, storage.AssignmentsKey),
		logger:  logger,
	}, nil
}

// Snapshot returns a copy of the current map.
func (s *Store) Snapshot() Map {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries.Clone()
}

// Entry returns the stored entry for date.
func (s *Store) Entry(date string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[date]
	return e, ok
}

// Assign adds student to date and returns the new entry. A legacy entry is
// upgraded to the list format here.
func (s *Store) Assign(ctx context.Context, date, student string) (Entry, error) {
	var entry Entry
	err := s.apply(ctx, "assign", date, student, func(m Map) (Map, error) {
		next, e, err := assign(m, date, student)
		entry = e
		return next, err
	})
	return entry, err
}

// RemoveAll clears date whatever its format. Absent dates are a no-op.
func (s *Store) RemoveAll(ctx context.Context, date string) error {
	return s.apply(ctx, "remove_all", date, "", func(m Map) (Map, error) {
		return removeAll(m, date), nil
	})
}

// RemoveOne takes student off date. A legacy entry is cleared entirely,
// whichever name is passed.
func (s *Store) RemoveOne(ctx context.Context, date, student string) error {
	return s.apply(ctx, "remove_one", date, student, func(m Map) (Map, error) {
		return removeOne(m, date, student), nil
	})
}

// EntriesForStudent returns the sorted dates whose entry contains student.
func (s *Store) EntriesForStudent(student string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return datesFor(s.entries, student)
}

// AllDates returns every assigned date, sorted.
func (s *Store) AllDates() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries.Dates()
}

// apply swaps in the map produced by fn and then persists it. Memory is
// updated before the write and stays updated if the write fails.
func (s *Store) apply(ctx context.Context, op, date, student string, fn func(Map) (Map, error)) error {
	s.mu.Lock()
	next, err := fn(s.entries)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.entries = next
	version := s.writer.Next()
	s.mu.Unlock()

	s.logger.Debug("assignments changed",
		zap.String("op", op),
		zap.String("date", date),
		zap.String("student", student),
	)

	if err := s.writer.Save(ctx, version, next); err != nil {
		s.logger.Error("failed to save assignments", zap.String("op", op), zap.Error(err))
		return err
	}
	return nil
}

func assign(m Map, date, student string) (Map, Entry, error) {
	current := m[date].Students()
	if slices.Contains(current, student) {
		return nil, Entry{}, fmt.Errorf("%w: %s on %s", ErrAlreadyAssigned, student, date)
	}

	entry := Multi(append(current, student)...)
	next := m.Clone()
	next[date] = entry
	return next, entry, nil
}

func removeAll(m Map, date string) Map {
	next := m.Clone()
	delete(next, date)
	return next
}

func removeOne(m Map, date, student string) Map {
	e, ok := m[date]
	if !ok {
		return m.Clone()
	}

	next := m.Clone()
	if e.IsLegacy() {
		delete(next, date)
		return next
	}

	remaining := slices.DeleteFunc(e.Students(), func(s string) bool { return s == student })
	if len(remaining) == 0 {
		delete(next, date)
	} else {
		next[date] = Multi(remaining...)
	}
	return next
}

func datesFor(m Map, student string) []string {
	dates := []string{}
	for date, e := range m {
		if e.Contains(student) {
			dates = append(dates, date)
		}
	}
	slices.Sort(dates)
	return dates
}

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openBackends(t *testing.T) map[string]Blobs {
	t.Helper()
	dir := t.TempDir()

	bolt, err := OpenBolt(filepath.Join(dir, "bolt", "duty.db"))
	if err != nil {
		t.Fatalf("OpenBolt() failed: %v", err)
	}
	t.Cleanup(func() { bolt.Close() })

	file, err := OpenFile(filepath.Join(dir, "files"))
	if err != nil {
		t.Fatalf("OpenFile() failed: %v", err)
	}

	return map[string]Blobs{
		DriverBolt:   bolt,
		DriverFile:   file,
		DriverMemory: NewMemory(),
	}
}

func TestBackendsReadWrite(t *testing.T) {
	ctx := context.Background()

	for name, b := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := b.Read(ctx, StudentsKey); err != nil || ok {
				t.Fatalf("Read() on empty store = ok %v, err %v; want absent", ok, err)
			}

			if err := b.Write(ctx, StudentsKey, []byte(`["Ann"]`)); err != nil {
				t.Fatalf("Write() failed: %v", err)
			}
			if err := b.Write(ctx, StudentsKey, []byte(`["Ann","Bo"]`)); err != nil {
				t.Fatalf("second Write() failed: %v", err)
			}

			data, ok, err := b.Read(ctx, StudentsKey)
			if err != nil || !ok {
				t.Fatalf("Read() = ok %v, err %v", ok, err)
			}
			if string(data) != `["Ann","Bo"]` {
				t.Errorf("Read() = %s, want latest document", data)
			}

			if _, ok, _ := b.Read(ctx, AssignmentsKey); ok {
				t.Error("keys must not share documents")
			}
		})
	}
}

func TestBackendsRespectCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, b := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.Write(ctx, StudentsKey, []byte(`[]`)); !errors.Is(err, context.Canceled) {
				t.Errorf("Write() error = %v, want context.Canceled", err)
			}
		})
	}
}

func TestFileKeepsBackup(t *testing.T) {
	ctx := context.Background()
	s, err := OpenFile(t.TempDir())
	if err != nil {
		t.Fatalf("OpenFile() failed: %v", err)
	}

	if got := filepath.Base(s.Path(AssignmentsKey)); got != "gita_class_assignments.json" {
		t.Errorf("Path() = %s", got)
	}

	if err := s.Write(ctx, StudentsKey, []byte(`["Ann"]`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, StudentsKey, []byte(`["Ann","Bo"]`)); err != nil {
		t.Fatal(err)
	}

	backup, err := os.ReadFile(s.Path(StudentsKey) + BackupSuffix)
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if string(backup) != `["Ann"]` {
		t.Errorf("backup = %s, want previous document", backup)
	}
	if _, err := os.Stat(s.Path(StudentsKey) + TmpSuffix); !os.IsNotExist(err) {
		t.Error("tmp file should be renamed away")
	}
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "duty.db")

	s, err := OpenBolt(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, AssignmentsKey, []byte(`{"2024-05-01":"Ann"}`)); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = OpenBolt(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	data, ok, err := s.Read(ctx, AssignmentsKey)
	if err != nil || !ok || string(data) != `{"2024-05-01":"Ann"}` {
		t.Errorf("Read() after reopen = %s, %v, %v", data, ok, err)
	}
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var students []string
	ok, err := Load(ctx, m, StudentsKey, &students)
	if err != nil || ok {
		t.Fatalf("Load() on absent key = %v, %v", ok, err)
	}

	m.Seed(StudentsKey, `["Ann","Bo"]`)
	ok, err = Load(ctx, m, StudentsKey, &students)
	if err != nil || !ok || len(students) != 2 {
		t.Fatalf("Load() = %v, %v, %v", ok, err, students)
	}

	m.Seed(StudentsKey, `{not json`)
	_, err = Load(ctx, m, StudentsKey, &students)
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "decode" {
		t.Fatalf("Load() error = %v, want decode PersistenceError", err)
	}
	if !errors.Is(err, ErrPersistence) {
		t.Error("PersistenceError should match ErrPersistence")
	}
}

func TestWriterDropsStaleVersions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	w := NewWriter(m, StudentsKey)

	v1 := w.Next()
	v2 := w.Next()

	if err := w.Save(ctx, v2, []string{"Ann", "Bo"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Save(ctx, v1, []string{"Ann"}); err != nil {
		t.Fatal(err)
	}

	if got := m.Raw(StudentsKey); got != `["Ann","Bo"]` {
		t.Errorf("stored = %s, want newest version", got)
	}
	if m.Writes() != 1 {
		t.Errorf("writes = %d, want 1", m.Writes())
	}
}

func TestWriterReportsWriteFailure(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("disk full")
	m.FailWrites(boom)
	w := NewWriter(m, AssignmentsKey)

	err := w.Save(ctx, w.Next(), map[string]any{})
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, boom) {
		t.Fatalf("Save() error = %v, want PersistenceError wrapping %v", err, boom)
	}

	m.FailWrites(nil)
	if err := w.Save(ctx, w.Next(), map[string]any{}); err != nil {
		t.Fatalf("Save() after recovery failed: %v", err)
	}
}

func TestWriterOlderSaveAfterFailedNewerWritesNewest(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	w := NewWriter(m, StudentsKey)

	v1 := w.Next()
	v2 := w.Next()

	m.FailWrites(errors.New("disk full"))
	if err := w.Save(ctx, v2, []string{"Ann", "Bo"}); !errors.Is(err, ErrPersistence) {
		t.Fatalf("Save(v2) error = %v, want ErrPersistence", err)
	}

	m.FailWrites(nil)
	if err := w.Save(ctx, v1, []string{"Ann"}); err != nil {
		t.Fatalf("Save(v1) failed: %v", err)
	}
	if got := m.Raw(StudentsKey); got != `["Ann","Bo"]` {
		t.Errorf("stored = %s, want the newest document", got)
	}

	// Nothing left to resync
	if err := w.Save(ctx, v1, []string{"Ann"}); err != nil {
		t.Fatal(err)
	}
	if m.Writes() != 1 {
		t.Errorf("writes = %d, want 1", m.Writes())
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open("postgres", ""); err == nil {
		t.Error("Open() with unknown driver should fail")
	}
}

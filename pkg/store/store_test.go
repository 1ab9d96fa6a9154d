package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

type backend struct {
	name string
	open func(t *testing.T) Store
}

func backends() []backend {
	return []backend{
		{"sqlite", func(t *testing.T) Store {
			s, err := OpenSQLite(t.TempDir(), zerolog.Nop())
			if err != nil {
				t.Fatalf("OpenSQLite failed: %v", err)
			}
			return s
		}},
		{"bolt", func(t *testing.T) Store {
			s, err := OpenBolt(t.TempDir(), zerolog.Nop())
			if err != nil {
				t.Fatalf("OpenBolt failed: %v", err)
			}
			return s
		}},
		{"memory", func(t *testing.T) Store { return NewMemory() }},
	}
}

func TestStoreGetPut(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()

			if _, err := s.Get(ctx, KeyVault); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get on empty store error = %v, want ErrNotFound", err)
			}

			if err := s.Put(ctx, KeyVault, []byte("first")); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if err := s.Put(ctx, KeyVault, []byte("second")); err != nil {
				t.Fatalf("Put overwrite failed: %v", err)
			}
			if err := s.Put(ctx, KeyMeta, []byte("meta")); err != nil {
				t.Fatalf("Put meta failed: %v", err)
			}

			got, err := s.Get(ctx, KeyVault)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if !bytes.Equal(got, []byte("second")) {
				t.Errorf("Get = %q, want %q", got, "second")
			}
			got, _ = s.Get(ctx, KeyMeta)
			if string(got) != "meta" {
				t.Errorf("Get(meta) = %q", got)
			}
		})
	}
}

func TestSQLiteReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenSQLite(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	if err := s.Put(ctx, KeyMeta, []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	s.Close()

	info, err := os.Stat(filepath.Join(dir, DBFileName))
	if err != nil {
		t.Fatalf("database file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		t.Errorf("database permissions = %04o, want 0600", perm)
	}

	s, err = OpenSQLite(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()
	got, err := s.Get(ctx, KeyMeta)
	if err != nil || string(got) != `{"v":1}` {
		t.Errorf("Get after reopen = %q, %v", got, err)
	}

	problems, err := s.Check(ctx)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(problems) != 0 {
		t.Errorf("Check reported %v", problems)
	}
}

func TestMemoryIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	v := []byte("abc")
	m.Put(ctx, KeyVault, v)
	v[0] = 'X'
	got, _ := m.Get(ctx, KeyVault)
	if string(got) != "abc" {
		t.Errorf("Memory kept caller's slice: %q", got)
	}

	m.Close()
	if _, err := m.Get(ctx, KeyVault); !errors.Is(err, ErrClosed) || !errors.Is(err, ErrStorage) {
		t.Errorf("Get after Close error = %v, want ErrStorage and ErrClosed", err)
	}
	if err := m.Put(ctx, KeyVault, v); !errors.Is(err, ErrStorage) {
		t.Errorf("Put after Close error = %v, want ErrStorage", err)
	}
}

func TestStorePutAll(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()

			err := s.PutAll(ctx,
				Entry{Key: KeyVault, Value: []byte("sealed")},
				Entry{Key: KeyMeta, Value: []byte("salt")},
			)
			if err != nil {
				t.Fatalf("PutAll failed: %v", err)
			}
			for key, want := range map[string]string{KeyVault: "sealed", KeyMeta: "salt"} {
				got, err := s.Get(ctx, key)
				if err != nil || string(got) != want {
					t.Errorf("Get(%s) = %q, %v, want %q", key, got, err, want)
				}
			}
		})
	}
}

func TestSQLitePutAllRollsBack(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer s.Close()

	if err := s.Put(ctx, KeyVault, []byte("old")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	_, err = s.db.Exec(`
		CREATE TRIGGER reject_meta BEFORE INSERT ON kv WHEN NEW.key = 'meta'
		BEGIN SELECT RAISE(ABORT, 'meta rejected'); END
	`)
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	err = s.PutAll(ctx,
		Entry{Key: KeyVault, Value: []byte("new")},
		Entry{Key: KeyMeta, Value: []byte("meta")},
	)
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("PutAll error = %v, want ErrStorage", err)
	}
	got, err := s.Get(ctx, KeyVault)
	if err != nil || string(got) != "old" {
		t.Errorf("vault after failed PutAll = %q, %v, want old", got, err)
	}
}

func TestBoltPutAllRollsBack(t *testing.T) {
	ctx := context.Background()
	s, err := OpenBolt(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	defer s.Close()

	if err := s.Put(ctx, KeyVault, []byte("old")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	// bbolt rejects empty keys, which fails the second write.
	err = s.PutAll(ctx,
		Entry{Key: KeyVault, Value: []byte("new")},
		Entry{Key: "", Value: []byte("x")},
	)
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("PutAll error = %v, want ErrStorage", err)
	}
	got, err := s.Get(ctx, KeyVault)
	if err != nil || string(got) != "old" {
		t.Errorf("vault after failed PutAll = %q, %v, want old", got, err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.Get(canceled, KeyVault); !errors.Is(err, ErrStorage) || !errors.Is(err, context.Canceled) {
		t.Errorf("Get with canceled context = %v", err)
	}
	if err := s.Put(canceled, KeyVault, []byte("x")); !errors.Is(err, ErrStorage) {
		t.Errorf("Put with canceled context = %v", err)
	}
}

func TestSQLiteSchemaVersion(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenSQLite(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	version, err := getSchemaVersion(s.db)
	if err != nil {
		t.Fatalf("getSchemaVersion failed: %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("schema version = %d, want %d", version, CurrentSchemaVersion)
	}

	if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", CurrentSchemaVersion+1); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	s.Close()

	if _, err := OpenSQLite(dir, zerolog.Nop()); !errors.Is(err, ErrSchemaTooNew) {
		t.Errorf("OpenSQLite on newer schema = %v, want ErrSchemaTooNew", err)
	}
}

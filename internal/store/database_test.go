package store

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
)

func mountedDB(t *testing.T) (*Database, *MemoryMedia) {
	t.Helper()
	media := NewMemoryMedia()
	db := NewDatabase(media, 0)
	if err := db.Format(context.Background()); err != nil {
		t.Fatalf("Format: %v", err)
	}
	return db, media
}

func commit(t *testing.T, db *Database, stage func(*Transaction) error) {
	t.Helper()
	tx := db.WriteTransaction()
	if err := stage(tx); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestDatabase_MountBlank(t *testing.T) {
	db := NewDatabase(NewMemoryMedia(), 0)
	err := db.Mount(context.Background())
	if !errors.Is(err, ErrCorrupt) || !errors.Is(err, ErrBlank) {
		t.Fatalf("err = %v, want ErrCorrupt wrapping ErrBlank", err)
	}
	if _, err := db.Read(context.Background(), "x"); !errors.Is(err, ErrNotMounted) {
		t.Errorf("Read before mount: err = %v, want ErrNotMounted", err)
	}
}

func TestDatabase_WriteReadPersist(t *testing.T) {
	ctx := context.Background()
	db, media := mountedDB(t)

	commit(t, db, func(tx *Transaction) error {
		if err := tx.Write("logo", []byte("frames")); err != nil {
			return err
		}
		return tx.Write("bus", bytes.Repeat([]byte("ab"), 500))
	})

	got, err := db.Read(ctx, "logo")
	if err != nil || string(got) != "frames" {
		t.Fatalf("Read = %q, %v", got, err)
	}

	remounted := NewDatabase(media, 0)
	if err := remounted.Mount(ctx); err != nil {
		t.Fatalf("Mount after commit: %v", err)
	}
	keys := remounted.Keys()
	if len(keys) != 2 || keys[0] != "bus" || keys[1] != "logo" {
		t.Errorf("Keys = %v, want [bus logo]", keys)
	}
	big, _ := remounted.Read(ctx, "bus")
	if len(big) != 1000 {
		t.Errorf("bus value has %d bytes, want 1000", len(big))
	}
}

func TestDatabase_WriteReplaces(t *testing.T) {
	db, _ := mountedDB(t)
	commit(t, db, func(tx *Transaction) error { return tx.Write("k", []byte("long value")) })
	commit(t, db, func(tx *Transaction) error { return tx.Write("k", []byte("v2")) })

	got, _ := db.Read(context.Background(), "k")
	if string(got) != "v2" {
		t.Errorf("Read = %q, want full replacement v2", got)
	}
	if len(db.Keys()) != 1 {
		t.Errorf("expected one record per key, got %v", db.Keys())
	}
}

func TestDatabase_Delete(t *testing.T) {
	db, _ := mountedDB(t)
	commit(t, db, func(tx *Transaction) error { return tx.Write("k", []byte("v")) })
	commit(t, db, func(tx *Transaction) error { return tx.Delete("k") })

	if _, err := db.Read(context.Background(), "k"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("err = %v, want ErrKeyNotFound", err)
	}
}

func TestDatabase_FailedCommitKeepsState(t *testing.T) {
	db, media := mountedDB(t)
	commit(t, db, func(tx *Transaction) error { return tx.Write("k", []byte("v")) })

	media.FailSave(errors.New("flash write failed"))
	tx := db.WriteTransaction()
	tx.Write("other", []byte("x"))
	if err := tx.Commit(context.Background()); err == nil {
		t.Fatal("expected commit to fail")
	}

	if _, err := db.Read(context.Background(), "other"); !errors.Is(err, ErrKeyNotFound) {
		t.Error("failed commit must not become visible")
	}
}

func TestTransaction_Limits(t *testing.T) {
	media := NewMemoryMedia()
	db := NewDatabase(media, 8)
	tx := db.WriteTransaction()

	tests := []struct {
		name  string
		key   string
		value []byte
		want  error
	}{
		{"empty key", "", nil, ErrInvalidKey},
		{"long key", strings.Repeat("k", MaxKeyLength+1), nil, ErrInvalidKey},
		{"bad utf8", string([]byte{0xff, 0xfe}), nil, ErrInvalidKey},
		{"large value", "k", make([]byte, 9), ErrValueTooLarge},
		{"max key", strings.Repeat("k", MaxKeyLength), make([]byte, 8), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tx.Write(tt.key, tt.value)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestImage_DetectsCorruption(t *testing.T) {
	image, err := encodeImage(map[string][]byte{"a": []byte("hello")})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"truncated header", func(b []byte) []byte { return b[:10] }},
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"bad version", func(b []byte) []byte { b[4] = 99; return b }},
		{"flipped payload bit", func(b []byte) []byte { b[len(b)-1] ^= 0x01; return b }},
		{"flipped checksum", func(b []byte) []byte { b[12] ^= 0x80; return b }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			damaged := tt.mutate(append([]byte(nil), image...))
			if _, err := decodeImage(damaged); !errors.Is(err, ErrCorrupt) {
				t.Errorf("err = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestImage_CompressesRepetitiveData(t *testing.T) {
	records := map[string][]byte{"pattern": bytes.Repeat([]byte{1, 2, 3, 4}, 4096)}
	image, err := encodeImage(records)
	if err != nil {
		t.Fatal(err)
	}
	if image[5]&flagLZ4 == 0 {
		t.Error("expected lz4 flag for repetitive payload")
	}
	if len(image) >= 4*4096 {
		t.Errorf("image is %d bytes, expected compression", len(image))
	}

	decoded, err := decodeImage(image)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded["pattern"], records["pattern"]) {
		t.Error("decoded value differs")
	}
}

func TestFileMedia(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "part", "storage.img")
	media := NewFileMedia(path, 0)

	if _, err := media.Load(ctx); !errors.Is(err, ErrBlank) {
		t.Fatalf("Load on missing file: err = %v, want ErrBlank", err)
	}

	db := NewDatabase(media, 0)
	if err := MountOrFormat(ctx, db, &countingQuiescer{}, testLogger()); err != nil {
		t.Fatalf("MountOrFormat: %v", err)
	}
	commit(t, db, func(tx *Transaction) error { return tx.Write("k", []byte("v")) })

	again := NewDatabase(NewFileMedia(path, 0), 0)
	if err := again.Mount(ctx); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if v, _ := again.Read(ctx, "k"); string(v) != "v" {
		t.Errorf("Read = %q, want v", v)
	}

	if err := media.Erase(ctx); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if err := media.Erase(ctx); err != nil {
		t.Errorf("Erase on missing file should succeed: %v", err)
	}
}

func TestFileMedia_Capacity(t *testing.T) {
	media := NewFileMedia(filepath.Join(t.TempDir(), "small.img"), 16)
	err := media.Save(context.Background(), make([]byte, 17))
	if !errors.Is(err, ErrMediaFull) {
		t.Errorf("err = %v, want ErrMediaFull", err)
	}
}

func TestRedisMedia(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 1})
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	media := NewRedisMedia(rdb, "test:matrx-display:storage")
	media.Erase(ctx)
	defer media.Erase(ctx)

	if _, err := media.Load(ctx); !errors.Is(err, ErrBlank) {
		t.Fatalf("Load on missing key: err = %v, want ErrBlank", err)
	}

	db := NewDatabase(media, 0)
	if err := db.Format(ctx); err != nil {
		t.Fatalf("Format: %v", err)
	}
	commit(t, db, func(tx *Transaction) error { return tx.Write("logo", []byte("qoi")) })

	again := NewDatabase(media, 0)
	if err := again.Mount(ctx); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if v, _ := again.Read(ctx, "logo"); string(v) != "qoi" {
		t.Errorf("Read = %q, want qoi", v)
	}
}

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage() failed: %v", err)
	}

	if err := st.Write(ctx, "shots/a.jpg", []byte("jpeg")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	data, err := st.Read(ctx, "shots/a.jpg")
	if err != nil || string(data) != "jpeg" {
		t.Fatalf("Read() = %q, %v", data, err)
	}

	if err := st.Delete(ctx, "shots/a.jpg"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := st.Read(ctx, "shots/a.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read() after delete error = %v, want ErrNotFound", err)
	}
	if err := st.Delete(ctx, "shots/a.jpg"); err != nil {
		t.Errorf("Delete() of missing object failed: %v", err)
	}
}

func TestLocalStorageRejectsEscapingPaths(t *testing.T) {
	st, _ := NewLocalStorage(t.TempDir())
	for _, p := range []string{"../x.jpg", "/etc/passwd", "a/../../b"} {
		if err := st.Write(context.Background(), p, []byte("x")); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Write(%q) error = %v, want ErrInvalidPath", p, err)
		}
	}
}

func TestGCSStorageRejectsEscapingPaths(t *testing.T) {
	st := &GCSStorage{bucketName: "bucket", baseDir: "screenshots"}

	for _, p := range []string{"../x.jpg", "/etc/passwd", "a/../../b", "snapshots/../../x", "a//b", "."} {
		if _, err := st.fullPath(p); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("fullPath(%q) error = %v, want ErrInvalidPath", p, err)
		}
	}

	for p, want := range map[string]string{
		"":                   "screenshots",
		"snapshots":          "screenshots/snapshots",
		"snapshots/shot.jpg": "screenshots/snapshots/shot.jpg",
	} {
		if got, err := st.fullPath(p); err != nil || got != want {
			t.Errorf("fullPath(%q) = %q, %v, want %q", p, got, err, want)
		}
	}
}

func TestLocalStoragePrune(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, _ := NewLocalStorage(dir)

	st.Write(ctx, "shots/old.jpg", []byte("old"))
	st.Write(ctx, "shots/new.jpg", []byte("new"))
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(filepath.Join(dir, "shots", "old.jpg"), past, past); err != nil {
		t.Fatalf("Chtimes() failed: %v", err)
	}

	removed, err := st.Prune(ctx, "shots", time.Hour)
	if err != nil || removed != 1 {
		t.Fatalf("Prune() = %d, %v, want 1", removed, err)
	}
	if _, err := st.Read(ctx, "shots/new.jpg"); err != nil {
		t.Errorf("recent file pruned: %v", err)
	}

	if removed, err := st.Prune(ctx, "missing", time.Hour); err != nil || removed != 0 {
		t.Errorf("Prune(missing) = %d, %v", removed, err)
	}
}

func TestSink(t *testing.T) {
	ctx := context.Background()
	st, _ := NewLocalStorage(t.TempDir())

	sink := NewSink(ctx, st, "shot.jpg")
	sink.Write([]byte("ab"))
	sink.Write([]byte("cd"))
	if _, err := st.Read(ctx, "shot.jpg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("object stored before Close")
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	data, _ := st.Read(ctx, "shot.jpg")
	if string(data) != "abcd" {
		t.Errorf("stored %q, want abcd", data)
	}
	if _, err := sink.Write([]byte("x")); err == nil {
		t.Error("Write() after Close succeeded")
	}

	empty := NewSink(ctx, st, "empty.jpg")
	empty.Close()
	if _, err := st.Read(ctx, "empty.jpg"); !errors.Is(err, ErrNotFound) {
		t.Error("empty sink stored an object")
	}
}

func TestObjectNameAndContentType(t *testing.T) {
	at := time.Date(2024, 3, 5, 7, 8, 9, 120*int(time.Millisecond), time.UTC)
	if got := ObjectName("shots/", at); got != "shots/20240305-070809.120.jpg" {
		t.Errorf("ObjectName() = %q", got)
	}
	if got := ObjectName("", at); got != "20240305-070809.120.jpg" {
		t.Errorf("ObjectName(no prefix) = %q", got)
	}
	if got := ContentType("a/b.JPG"); got != "image/jpeg" {
		t.Errorf("ContentType(jpg) = %q", got)
	}
	if got := ContentType("a.bin"); got != "application/octet-stream" {
		t.Errorf("ContentType(bin) = %q", got)
	}
}

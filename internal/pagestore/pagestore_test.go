package pagestore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesEmptyFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "t.idx"), DefaultPageSize, 4, ModeReadWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if s.EndPid() != 0 {
		t.Fatalf("EndPid = %d, want 0", s.EndPid())
	}
	if s.PageSize() != DefaultPageSize {
		t.Fatalf("PageSize = %d, want %d", s.PageSize(), DefaultPageSize)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.idx")
	s, err := Open(path, 256, 0, ModeReadWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	page0 := make([]byte, 256)
	copy(page0, []byte("hello page zero"))
	if err := s.Write(0, page0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if s.EndPid() != 1 {
		t.Fatalf("EndPid = %d, want 1", s.EndPid())
	}

	got := make([]byte, 256)
	if err := s.Read(0, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, page0) {
		t.Fatal("read content does not match written content")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, 256, 0, ModeReadWrite)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.EndPid() != 1 {
		t.Fatalf("reopened EndPid = %d, want 1", reopened.EndPid())
	}
	got2 := make([]byte, 256)
	if err := reopened.Read(0, got2); err != nil {
		t.Fatalf("Read after reopen: %v", err)
	}
	if !bytes.Equal(got2, page0) {
		t.Fatal("content did not survive close/reopen round-trip")
	}
}

func TestReadDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.idx")
	s, err := Open(path, 64, 0, ModeReadWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	buf := make([]byte, 64)
	buf[0] = 0xAB
	if err := s.Write(0, buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading raw file: %v", err)
	}
	raw[10] ^= 0xFF // corrupt a content byte without touching the checksum
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("writing corrupted file: %v", err)
	}

	reopened, err := Open(path, 64, 0, ModeReadWrite)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got := make([]byte, 64)
	if err := reopened.Read(0, got); err == nil {
		t.Fatal("Read succeeded on corrupted page, want CRC failure")
	}
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.idx")
	s, err := Open(path, 64, 0, ModeReadWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Write(0, make([]byte, 64)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	s.Close()

	ro, err := Open(path, 64, 0, ModeReadOnly)
	if err != nil {
		t.Fatalf("Open read-only: %v", err)
	}
	defer ro.Close()
	if err := ro.Write(0, make([]byte, 64)); err == nil {
		t.Fatal("Write on read-only store succeeded, want error")
	}
}

func TestOpenReadOnlyEmptyFileFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.idx")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("creating empty file: %v", err)
	}
	if _, err := Open(path, 64, 0, ModeReadOnly); err == nil {
		t.Fatal("Open read-only on empty file succeeded, want error")
	}
}

package fs_test

import (
	"testing"

	"github.com/calvinalkan/memstore/pkg/fs"
)

const testContentHello = "hello world"

func TestRewriteDurableLog_VisibleAfterWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	real := fs.NewReal()
	writer := fs.NewAtomicWriter(real)

	path := dir + "/wal.log"

	err := writer.RewriteDurableLog(path, []byte(testContentHello))
	if err != nil {
		t.Fatalf("RewriteDurableLog: %v", err)
	}

	got, err := real.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != testContentHello {
		t.Fatalf("content=%q, want %q", string(got), testContentHello)
	}
}

func TestRewriteDurableLog_ReplacesExistingFileContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	real := fs.NewReal()
	writer := fs.NewAtomicWriter(real)

	path := dir + "/wal.log"

	if err := writer.RewriteDurableLog(path, []byte("original header + frame + partial")); err != nil {
		t.Fatalf("RewriteDurableLog (initial): %v", err)
	}

	if err := writer.RewriteDurableLog(path, []byte("original header + frame")); err != nil {
		t.Fatalf("RewriteDurableLog (truncation rewrite): %v", err)
	}

	got, err := real.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != "original header + frame" {
		t.Fatalf("content=%q, want the truncated prefix", string(got))
	}
}

func TestRewriteDurableLog_EmptyPath_Errors(t *testing.T) {
	t.Parallel()

	writer := fs.NewAtomicWriter(fs.NewReal())

	if err := writer.RewriteDurableLog("", []byte(testContentHello)); err == nil {
		t.Fatal("expected an error for an empty path")
	}
}

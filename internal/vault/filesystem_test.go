package vault_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"counseld-go/internal/vault"
)

func newFSVault(t *testing.T) *vault.FileSystemVault {
	t.Helper()
	v, err := vault.NewFileSystemVault("test", filepath.Join(t.TempDir(), "vault"))
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	return v
}

func TestFileSystemVaultPutGet(t *testing.T) {
	v := newFSVault(t)

	content := []byte("artifact payload")
	if err := v.Put("consulting-20250305-090000.db", bytes.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var out bytes.Buffer
	if err := v.Get("consulting-20250305-090000.db", &out); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(out.Bytes(), content) {
		t.Errorf("Get() = %q, want %q", out.Bytes(), content)
	}
}

func TestFileSystemVaultPutSizeMismatch(t *testing.T) {
	v := newFSVault(t)

	err := v.Put("a.db", strings.NewReader("short"), 100)
	if err == nil {
		t.Fatal("Put() with wrong size should fail")
	}
	// A failed put must not leave the artifact behind.
	names, _ := v.List()
	if len(names) != 0 {
		t.Errorf("List() after failed put = %v, want empty", names)
	}
}

func TestFileSystemVaultGetAbsent(t *testing.T) {
	v := newFSVault(t)
	if err := v.Get("missing.db", &bytes.Buffer{}); err == nil {
		t.Error("Get() of absent artifact should fail")
	}
}

func TestFileSystemVaultListSorted(t *testing.T) {
	v := newFSVault(t)
	for _, name := range []string{"b.db", "a.db", "c.db"} {
		if err := v.Put(name, strings.NewReader("x"), 1); err != nil {
			t.Fatalf("Put(%s) error = %v", name, err)
		}
	}

	names, err := v.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"a.db", "b.db", "c.db"}
	if len(names) != len(want) {
		t.Fatalf("List() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestFileSystemVaultListSkipsDotFiles(t *testing.T) {
	root := filepath.Join(t.TempDir(), "vault")
	v, err := vault.NewFileSystemVault("test", root)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, ".tmp-leftover"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	names, err := v.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(names) != 0 {
		t.Errorf("List() = %v, want empty", names)
	}
}

func TestFileSystemVaultDelete(t *testing.T) {
	v := newFSVault(t)
	if err := v.Put("a.db", strings.NewReader("x"), 1); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if err := v.Delete("a.db"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if names, _ := v.List(); len(names) != 0 {
		t.Errorf("List() after delete = %v, want empty", names)
	}

	// Deleting an absent artifact is not an error.
	if err := v.Delete("a.db"); err != nil {
		t.Errorf("Delete() of absent artifact = %v, want nil", err)
	}
}

func TestFileSystemVaultValidateSetup(t *testing.T) {
	v := newFSVault(t)
	if err := v.ValidateSetup(); err != nil {
		t.Errorf("ValidateSetup() error = %v", err)
	}
}

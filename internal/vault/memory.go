package vault

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"
)

// MemoryVault is an in-memory Vault for tests.
type MemoryVault struct {
	name string

	mu        sync.Mutex
	artifacts map[string][]byte
}

func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{name: name, artifacts: make(map[string][]byte)}
}

func (v *MemoryVault) Put(name string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.artifacts[name] = data
	return nil
}

func (v *MemoryVault) Get(name string, w io.Writer) error {
	v.mu.Lock()
	data, ok := v.artifacts[name]
	v.mu.Unlock()
	if !ok {
		return fmt.Errorf("artifact not found: %s", name)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

func (v *MemoryVault) List() ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	names := make([]string, 0, len(v.artifacts))
	for name := range v.artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (v *MemoryVault) Delete(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.artifacts, name)
	return nil
}

func (v *MemoryVault) ValidateSetup() error { return nil }

// Compile-time check that MemoryVault implements Vault.
var _ Vault = (*MemoryVault)(nil)

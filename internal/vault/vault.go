// Package vault provides off-host stores for backup artifacts. The
// scheduler mirrors every snapshot it produces into the configured vault
// and prunes the oldest artifacts past the retention limit.
package vault

import "io"

// Vault stores named backup artifacts. Names are sortable timestamps
// (`<prefix>-YYYYMMDD-HHMMSS.<ext>`), so listing order reflects
// chronological order.
type Vault interface {
	// Put stores an artifact under name. size is the number of bytes that
	// will be read from r.
	Put(name string, r io.Reader, size int64) error

	// Get retrieves an artifact by name and writes it to w.
	Get(name string, w io.Writer) error

	// List returns all artifact names in lexicographic (= chronological)
	// order.
	List() ([]string, error)

	// Delete removes an artifact. Deleting an absent name is not an error.
	Delete(name string) error

	// ValidateSetup verifies that the vault is accessible and properly
	// configured.
	ValidateSetup() error
}

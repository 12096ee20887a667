// Package keystore persists pairing key material as JSON, the opaque key-value slot the host's
// configuration store expects. Keys written here authorize remote commands; files are created
// owner-readable only.
package keystore

import (
	"encoding/json"
	"io"
	"os"

	"github.com/vinfast-community/ccar-command/pkg/pairing"
)

// Import reads key material previously written with [Export].
func Import(r io.Reader) (pairing.KeyMaterial, error) {
	var material pairing.KeyMaterial
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&material); err != nil {
		return pairing.KeyMaterial{}, err
	}
	return material, nil
}

// ImportFromFile reads key material from disk.
func ImportFromFile(filename string) (pairing.KeyMaterial, error) {
	file, err := os.Open(filename)
	if err != nil {
		return pairing.KeyMaterial{}, err
	}
	defer file.Close()

	return Import(file)
}

// Export writes serialized key material to w.
func Export(w io.Writer, material pairing.KeyMaterial) error {
	return json.NewEncoder(w).Encode(material)
}

// ExportToFile writes key material to disk, mode 0600.
func ExportToFile(filename string, material pairing.KeyMaterial) error {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	return Export(file, material)
}

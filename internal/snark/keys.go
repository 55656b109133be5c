// keys.go - Groth16 key persistence for the range circuits.
package snark

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/pkg/errors"
)

// SaveProvingKey saves a Groth16 proving key to disk.
func SaveProvingKey(path string, pk groth16.ProvingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = pk.WriteTo(f)
	return err
}

// SaveVerifyingKey saves a Groth16 verifying key to disk.
func SaveVerifyingKey(path string, vk groth16.VerifyingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = vk.WriteTo(f)
	return err
}

// LoadProvingKey loads a BN254 proving key from disk.
func LoadProvingKey(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ecc.BN254)
	_, err = pk.ReadFrom(f)
	return pk, err
}

// LoadVerifyingKey loads a BN254 verifying key from disk.
func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BN254)
	_, err = vk.ReadFrom(f)
	return vk, err
}

// KeyPaths returns the proving and verifying key files for one bit-width.
func KeyPaths(dir string, bits int) (pkPath, vkPath string) {
	base := filepath.Join(dir, "range"+strconv.Itoa(bits))
	return base + "_pk.bin", base + "_vk.bin"
}

// SetupOrLoadKeys loads keys from disk when both files exist; otherwise it
// runs a fresh setup and writes them. An empty dir keeps the keys in memory.
func SetupOrLoadKeys(ccs constraint.ConstraintSystem, dir string, bits int) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	if dir == "" {
		return groth16.Setup(ccs)
	}
	pkPath, vkPath := KeyPaths(dir, bits)
	pk, pkErr := LoadProvingKey(pkPath)
	vk, vkErr := LoadVerifyingKey(vkPath)
	if pkErr == nil && vkErr == nil {
		return pk, vk, nil
	}

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, errors.Wrap(err, "groth16 setup")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, errors.Wrap(err, "create key dir")
	}
	if err := SaveProvingKey(pkPath, pk); err != nil {
		return nil, nil, errors.Wrap(err, "save proving key")
	}
	if err := SaveVerifyingKey(vkPath, vk); err != nil {
		return nil, nil, errors.Wrap(err, "save verifying key")
	}
	return pk, vk, nil
}

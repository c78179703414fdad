package matrixstore

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/reconerrors"
)

// sideCachePath derives the binary sidecar path by replacing path's
// extension with ".bin", colocating it with the source CSV.
func sideCachePath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".bin"
}

// The side-cache framing written before the float64 payload is magic,
// rows, cols, as little-endian uint32/uint32/uint32; binMagic is the
// first word. Rank is implicitly 2 (a Vector is stored as a 1×L Matrix).
const binMagic uint32 = 0x52435331 // "RCS1"

func writeBinary(path string, m *Matrix) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err := binary.Write(f, binary.LittleEndian, binMagic); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(m.Rows)); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(m.Cols)); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, m.Data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	// Atomic publish: rename into place so a concurrent reader never
	// observes a partially written sidecar.
	return os.Rename(tmp, path)
}

func readBinary(path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var magic, rows, cols uint32
	if err := binary.Read(f, binary.LittleEndian, &magic); err != nil {
		return nil, reconerrors.New(reconerrors.Malformed, "matrixstore.readBinary", err).WithPath(path)
	}
	if magic != binMagic {
		return nil, reconerrors.New(reconerrors.Malformed, "matrixstore.readBinary",
			fmt.Errorf("bad magic %#x", magic)).WithPath(path)
	}
	if err := binary.Read(f, binary.LittleEndian, &rows); err != nil {
		return nil, reconerrors.New(reconerrors.Malformed, "matrixstore.readBinary", err).WithPath(path)
	}
	if err := binary.Read(f, binary.LittleEndian, &cols); err != nil {
		return nil, reconerrors.New(reconerrors.Malformed, "matrixstore.readBinary", err).WithPath(path)
	}

	data := make([]float64, int(rows)*int(cols))
	if err := binary.Read(f, binary.LittleEndian, data); err != nil {
		return nil, reconerrors.New(reconerrors.Malformed, "matrixstore.readBinary", err).WithPath(path)
	}

	return &Matrix{Data: data, Rows: int(rows), Cols: int(cols)}, nil
}

package kcomp

import (
	"bytes"
	"io"
	"strings"
)

// Extension is the file name suffix of containers.
const Extension = ".kc"

// decompressedSuffix is appended when a container name lacks Extension.
const decompressedSuffix = ".out"

// CompressedName returns the default output name for compressing name.
func CompressedName(name string) string {
	return name + Extension
}

// DecompressedName returns the default output name for decompressing name:
// the container extension is stripped, or ".out" is appended if absent.
func DecompressedName(name string) string {
	if stripped, ok := StripExtension(name); ok {
		return stripped
	}
	return name + decompressedSuffix
}

// StripExtension removes the container extension from name
func StripExtension(name string) (string, bool) {
	if !HasContainerExtension(name) {
		return name, false
	}
	return name[:len(name)-len(Extension)], true
}

// HasContainerExtension reports whether name ends in the container
// extension and has a non-empty stem.
func HasContainerExtension(name string) bool {
	return len(name) > len(Extension) && strings.HasSuffix(name, Extension)
}

// IsContainer reports whether data starts with the container magic.
func IsContainer(data []byte) bool {
	return len(data) >= len(Magic) && bytes.Equal(data[:len(Magic)], Magic[:])
}

// DetectContainer peeks at the start of r. The returned reader yields the
// complete original stream.
func DetectContainer(r io.Reader) (bool, io.Reader, error) {
	buf := make([]byte, len(Magic))
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false, nil, err
	}
	buf = buf[:n]
	return IsContainer(buf), io.MultiReader(bytes.NewReader(buf), r), nil
}

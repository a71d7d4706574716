package irdump

import (
	"fmt"
	"io"
	"os"

	"abicheck/internal/abi"
)

// Reader rebuilds a Module from one document. Reading is all or nothing:
// on error Module returns nil.
type Reader interface {
	ReadDump(path string) error
	Read(r io.Reader) error
	Module() *abi.Module
}

type reader struct {
	codec codec
	mod   *abi.Module
}

// NewReader returns a Reader for format f.
func NewReader(f Format) (Reader, error) {
	c, err := codecFor(f)
	if err != nil {
		return nil, err
	}
	return &reader{codec: c}, nil
}

func (r *reader) Module() *abi.Module { return r.mod }

func (r *reader) ReadDump(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := r.Read(file); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (r *reader) Read(in io.Reader) error {
	r.mod = nil
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	var doc document
	if err := r.codec.decode(data, &doc); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	m, err := doc.toModule()
	if err != nil {
		return err
	}
	r.mod = m
	return nil
}

// ReadFile reads a dump, picking the backend from the extension.
func ReadFile(path string) (*abi.Module, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		return nil, err
	}
	if err := r.ReadDump(path); err != nil {
		return nil, err
	}
	return r.Module(), nil
}

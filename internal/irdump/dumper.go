package irdump

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"abicheck/internal/abi"
)

// Dumper accumulates entities and writes them as one document.
type Dumper interface {
	// AddLinkable queues a type, function or global variable. An entity
	// whose key was already queued is skipped.
	AddLinkable(l abi.Linkable) error
	// AddElfSymbol queues an exported symbol.
	AddElfSymbol(s *abi.ElfSymbol) error
	// Dump queues every entity of m and writes the document.
	Dump(m *abi.Module) error
}

type dumper struct {
	codec codec
	w     io.Writer
	doc   document
	seen  map[string]struct{}
}

// NewDumper returns a Dumper writing format f to w.
func NewDumper(f Format, w io.Writer) (Dumper, error) {
	c, err := codecFor(f)
	if err != nil {
		return nil, err
	}
	return &dumper{codec: c, w: w, seen: make(map[string]struct{}, 128)}, nil
}

func (d *dumper) once(key string) bool {
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

func (d *dumper) AddLinkable(l abi.Linkable) error {
	switch v := l.(type) {
	case *abi.Type:
		if !d.once("t:" + v.SelfType) {
			return nil
		}
		return d.doc.addType(v)
	case *abi.Function:
		if d.once("f:" + v.LinkerSetKey) {
			d.doc.addFunction(v)
		}
	case *abi.GlobalVar:
		if d.once("v:" + v.LinkerSetKey) {
			d.doc.addGlobalVar(v)
		}
	case *abi.ElfSymbol:
		return d.AddElfSymbol(v)
	default:
		return fmt.Errorf("irdump: cannot dump %T", l)
	}
	return nil
}

func (d *dumper) AddElfSymbol(s *abi.ElfSymbol) error {
	if d.once("e:" + s.Name) {
		d.doc.addElfSymbol(s)
	}
	return nil
}

func (d *dumper) Dump(m *abi.Module) error {
	if m != nil {
		d.doc.LibName, d.doc.Arch = m.LibName, m.Arch
		for _, t := range m.Types() {
			if err := d.AddLinkable(t); err != nil {
				return err
			}
		}
		for _, f := range m.Functions() {
			_ = d.AddLinkable(f)
		}
		for _, v := range m.GlobalVars() {
			_ = d.AddLinkable(v)
		}
		for _, s := range append(m.ElfFunctions(), m.ElfObjects()...) {
			_ = d.AddElfSymbol(s)
		}
	}
	d.doc.SchemaVersion = SchemaVersion
	d.doc.normalize()
	return d.codec.encode(d.w, &d.doc)
}

// WriteFile dumps m to path. The file is replaced atomically.
func WriteFile(path string, f Format, m *abi.Module) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".dump-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	d, err := NewDumper(f, tmp)
	if err != nil {
		_ = tmp.Close()
		return err
	}
	if err := d.Dump(m); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("dump %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

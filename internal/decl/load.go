package decl

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/unicode/norm"
)

// Load reads and decodes a unit file.
func Load(path string) (*Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read unit: %w", err)
	}
	u, err := DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if u.Source == "" {
		u.Source = path
	}
	return u, nil
}

// Decode reads one unit from r.
func Decode(r io.Reader) (*Unit, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return DecodeBytes(data)
}

// DecodeBytes decodes a unit strictly: unknown fields, trailing data and
// duplicate type ids are errors. Every name and path is NFC-normalized so
// keys derived from them are byte-stable across frontends.
func DecodeBytes(data []byte) (*Unit, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var u Unit
	if err := dec.Decode(&u); err != nil {
		return nil, fmt.Errorf("malformed unit: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("malformed unit: trailing data")
	}
	seen := make(map[int64]struct{}, len(u.Types))
	for i := range u.Types {
		id := u.Types[i].ID
		if id == 0 {
			return nil, fmt.Errorf("malformed unit: type #%d has no id", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("malformed unit: duplicate type id %d", id)
		}
		seen[id] = struct{}{}
		normalizeType(&u.Types[i])
	}
	for i := range u.Decls {
		normalizeDecl(&u.Decls[i])
	}
	u.Source = norm.NFC.String(u.Source)
	return &u, nil
}

func normalizeType(t *Type) {
	t.Name = norm.NFC.String(t.Name)
	t.Mangled = norm.NFC.String(t.Mangled)
	t.File = norm.NFC.String(t.File)
	for i := range t.Fields {
		t.Fields[i].Name = norm.NFC.String(t.Fields[i].Name)
	}
	for i := range t.Enumerators {
		t.Enumerators[i].Name = norm.NFC.String(t.Enumerators[i].Name)
	}
	for i := range t.VTable {
		t.VTable[i].Mangled = norm.NFC.String(t.VTable[i].Mangled)
	}
}

func normalizeDecl(d *Decl) {
	d.Name = norm.NFC.String(d.Name)
	d.Mangled = norm.NFC.String(d.Mangled)
	d.File = norm.NFC.String(d.File)
}

// Index maps frontend ids to their nodes.
func (u *Unit) Index() map[int64]*Type {
	idx := make(map[int64]*Type, len(u.Types))
	for i := range u.Types {
		idx[u.Types[i].ID] = &u.Types[i]
	}
	return idx
}

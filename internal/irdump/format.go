// Package irdump serializes abi modules and diff reports. Every format is a
// backend behind the same Dumper and Reader interfaces; the format tag picks
// the backend.
package irdump

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// SchemaVersion is written into every document and checked on read.
const SchemaVersion = 1

var (
	// ErrSchemaVersion is returned for documents written by another schema.
	ErrSchemaVersion = errors.New("unsupported schema version")
	// ErrMalformed wraps every decoding and consistency failure.
	ErrMalformed = errors.New("malformed dump")
	// ErrUnknownFormat is returned for format tags without a backend.
	ErrUnknownFormat = errors.New("unknown dump format")
)

// Format is a backend tag.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
	FormatYAML    Format = "yaml"
)

// Formats lists the backends in display order.
func Formats() []Format { return []Format{FormatJSON, FormatMsgpack, FormatYAML} }

// ParseFormat resolves a tag. "protobuf" names the binary backend.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "msgpack", "protobuf", "proto", "binary":
		return FormatMsgpack, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w %q (want json, msgpack or yaml)", ErrUnknownFormat, s)
	}
}

// FormatFromPath infers the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".msgpack", ".mp", ".pb", ".abi":
		return FormatMsgpack, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: cannot infer format of %s", ErrUnknownFormat, path)
	}
}

// Extension is the canonical file extension of f.
func (f Format) Extension() string {
	switch f {
	case FormatMsgpack:
		return ".msgpack"
	case FormatYAML:
		return ".yaml"
	default:
		return ".json"
	}
}

func (f Format) String() string { return string(f) }

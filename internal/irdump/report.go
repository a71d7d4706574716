package irdump

import (
	"fmt"
	"io"
	"slices"

	"abicheck/internal/abi"
	"abicheck/internal/diag"
	"abicheck/internal/diff"
)

func recordOut(r *diff.Record) diffRecord {
	out := diffRecord{
		Name:         r.Name,
		LinkerSetKey: r.LinkerSetKey,
		Kind:         r.Kind.String(),
		Level:        r.Level.String(),
		Unreferenced: r.Unreferenced,
		TypeStack:    slices.Clone(r.TypeStack),
	}
	for _, d := range r.Details {
		out.Details = append(out.Details, diffDetail{
			Path: d.Path, Change: string(d.Change), Old: d.Old, New: d.New, Level: d.Level.String(),
		})
	}
	return out
}

// WriteReport encodes a diff report in format f.
func WriteReport(f Format, w io.Writer, rep *diff.Report) error {
	c, err := codecFor(f)
	if err != nil {
		return err
	}
	doc := reportDocument{
		SchemaVersion:       SchemaVersion,
		LibName:             rep.LibName,
		Arch:                rep.Arch,
		CompatibilityStatus: rep.Status.String(),
		RecordCount:         len(rep.Records),
	}
	for i := range rep.Records {
		r := &rep.Records[i]
		out := recordOut(r)
		switch r.Entity {
		case abi.EntityFunction:
			doc.FunctionDiffs = append(doc.FunctionDiffs, out)
		case abi.EntityGlobalVar:
			doc.GlobalVarDiffs = append(doc.GlobalVarDiffs, out)
		case abi.EntityType:
			if r.TypeKind == abi.KindEnum {
				doc.EnumTypeDiffs = append(doc.EnumTypeDiffs, out)
			} else {
				doc.RecordTypeDiffs = append(doc.RecordTypeDiffs, out)
			}
		case abi.EntityElfFunction:
			doc.ElfFunctionDiffs = append(doc.ElfFunctionDiffs, out)
		case abi.EntityElfObject:
			doc.ElfObjectDiffs = append(doc.ElfObjectDiffs, out)
		default:
			return fmt.Errorf("record %s: unknown entity %s", r.LinkerSetKey, r.Entity)
		}
	}
	return c.encode(w, &doc)
}

func recordIn(in diffRecord, entity abi.EntityKind, typeKind abi.Kind) (diff.Record, error) {
	kind, ok := diff.ParseKind(in.Kind)
	if !ok {
		return diff.Record{}, fmt.Errorf("record %s: unknown kind %q", in.LinkerSetKey, in.Kind)
	}
	level, err := diff.ParseLevel(in.Level)
	if err != nil {
		return diff.Record{}, fmt.Errorf("record %s: %w", in.LinkerSetKey, err)
	}
	rec := diff.Record{
		Entity:       entity,
		TypeKind:     typeKind,
		Name:         in.Name,
		LinkerSetKey: in.LinkerSetKey,
		Kind:         kind,
		Level:        level,
		Unreferenced: in.Unreferenced,
		TypeStack:    nilIfEmpty(slices.Clone(in.TypeStack)),
	}
	for _, d := range in.Details {
		lvl, err := diff.ParseLevel(d.Level)
		if err != nil {
			return diff.Record{}, fmt.Errorf("record %s %s: %w", in.LinkerSetKey, d.Path, err)
		}
		rec.Details = append(rec.Details, diff.Detail{
			Path: d.Path, Change: diff.Change(d.Change), Old: d.Old, New: d.New, Level: lvl,
		})
	}
	return rec, nil
}

// ReadReport decodes a report written by WriteReport. Records come back in
// report order; the status is recomputed and must match the stored one.
func ReadReport(f Format, r io.Reader) (*diff.Report, error) {
	c, err := codecFor(f)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var doc reportDocument
	if err := c.decode(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if doc.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSchemaVersion, doc.SchemaVersion, SchemaVersion)
	}

	rep := &diff.Report{LibName: doc.LibName, Arch: doc.Arch, Diagnostics: diag.NewBag(0)}
	groups := []struct {
		list     []diffRecord
		entity   abi.EntityKind
		typeKind abi.Kind
	}{
		{doc.FunctionDiffs, abi.EntityFunction, abi.KindInvalid},
		{doc.GlobalVarDiffs, abi.EntityGlobalVar, abi.KindInvalid},
		{doc.RecordTypeDiffs, abi.EntityType, abi.KindRecord},
		{doc.EnumTypeDiffs, abi.EntityType, abi.KindEnum},
		{doc.ElfFunctionDiffs, abi.EntityElfFunction, abi.KindInvalid},
		{doc.ElfObjectDiffs, abi.EntityElfObject, abi.KindInvalid},
	}
	var types []diff.Record
	for _, g := range groups {
		for _, in := range g.list {
			rec, err := recordIn(in, g.entity, g.typeKind)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
			}
			if g.entity == abi.EntityType {
				types = append(types, rec)
				continue
			}
			rep.Records = append(rep.Records, rec)
		}
		if g.typeKind == abi.KindEnum {
			diff.SortRecords(types)
			rep.Records = append(rep.Records, types...)
		}
	}
	if len(rep.Records) != doc.RecordCount {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, errTruncated)
	}

	rep.Status = diff.ComputeStatus(rep.Records)
	want, ok := diff.ParseStatus(doc.CompatibilityStatus)
	if !ok {
		return nil, fmt.Errorf("%w: unknown compatibility_status %q", ErrMalformed, doc.CompatibilityStatus)
	}
	if want != rep.Status {
		return nil, fmt.Errorf("%w: compatibility_status %s does not match the records (%s)", ErrMalformed, want, rep.Status)
	}
	return rep, nil
}

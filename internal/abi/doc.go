// Package abi defines the ABI intermediate representation: the type graph,
// the linkable declarations (functions and global variables) and the ELF
// symbol entries of one library.
//
// # Identity
//
// Every type has a self_type id that is unique inside its Module and a
// linker_set_key that identifies "the same" declaration across two
// independently built Modules. References between nodes always go
// through ids. A record holding a pointer to itself stores the pointer's
// id, and the pointer stores the record's id, so cyclic graphs never
// expand structurally.
//
// Builtin types come from a fixed registry keyed by the Itanium codes of
// the fundamental types (`_ZTIi` for int). Their self_type equals their
// linker_set_key, which keeps primitive references stable across every
// Module of a run.
//
// # Lifecycle
//
// A Module is built (internal/build), optionally merged (internal/linker),
// serialized (internal/irdump) and later read back into a fresh Module
// with the same key space. Modules are not safe for concurrent mutation;
// a fully built Module may be read from many goroutines.
package abi

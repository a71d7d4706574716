// Package unitcache keeps built unit modules on disk, keyed by the digest
// of the unit file, so that repeated dumps skip the build of unchanged units.
package unitcache

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"abicheck/internal/abi"
	"abicheck/internal/irdump"
)

// Current schema version - increment when Payload format changes
const schemaVersion uint16 = 1

// Digest is a SHA-256 cache key.
type Digest [32]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Compute hashes a unit file together with everything that changes the
// built module: the data model, the architecture and both schemas.
func Compute(unit []byte, model abi.DataModel, arch string) Digest {
	h := sha256.New()
	var hdr [4]byte
	binary.LittleEndian.PutUint16(hdr[:2], schemaVersion)
	binary.LittleEndian.PutUint16(hdr[2:], uint16(irdump.SchemaVersion))
	_, _ = h.Write(hdr[:])
	_, _ = h.Write([]byte{byte(model)})
	_, _ = h.Write([]byte(arch))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(unit)
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// Payload is what one cache entry holds.
type Payload struct {
	// Schema version for safe invalidation when format changes
	Schema uint16
	Source string
	// Module is the msgpack dump of the built unit.
	Module  []byte
	Created int64
}

// Cache stores payloads under dir. Safe for concurrent use.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Open creates dir if needed. An empty dir selects the user cache
// directory.
func Open(dir string) (*Cache, error) {
	if dir == "" {
		base := os.Getenv("XDG_CACHE_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			base = filepath.Join(home, ".cache")
		}
		dir = filepath.Join(base, "abicheck")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// Dir is the cache root.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) pathFor(key Digest) string {
	// подкаталог "units" проще чистить руками
	return filepath.Join(c.dir, "units", key.String()+".mp")
}

// Put stores the built module of one unit.
func (c *Cache) Put(key Digest, source string, m *abi.Module) error {
	if c == nil {
		return nil
	}
	var dump bytes.Buffer
	d, err := irdump.NewDumper(irdump.FormatMsgpack, &dump)
	if err != nil {
		return err
	}
	if err := d.Dump(m); err != nil {
		return err
	}
	payload := Payload{Schema: schemaVersion, Source: source, Module: dump.Bytes(), Created: time.Now().Unix()}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	tmpName := f.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := msgpack.NewEncoder(f).Encode(&payload); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// атомарная замена
	return os.Rename(tmpName, p)
}

// Get returns the cached module for key. Entries of another schema and
// entries that no longer decode count as misses and are removed.
func (c *Cache) Get(key Digest) (*abi.Module, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	data, err := os.ReadFile(c.pathFor(key))
	c.mu.RUnlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var payload Payload
	if err := msgpack.Unmarshal(data, &payload); err != nil || payload.Schema != schemaVersion {
		return nil, false, c.evict(key)
	}
	r, err := irdump.NewReader(irdump.FormatMsgpack)
	if err != nil {
		return nil, false, err
	}
	if err := r.Read(bytes.NewReader(payload.Module)); err != nil {
		return nil, false, c.evict(key)
	}
	return r.Module(), true, nil
}

func (c *Cache) evict(key Digest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.Remove(c.pathFor(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("unitcache: evict %s: %w", key, err)
	}
	return nil
}

// DropAll removes every entry.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// тривиально: переименуем каталог и удалим
	units := filepath.Join(c.dir, "units")
	old := units + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(units, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.RemoveAll(old)
}

// Package zonecache persists zone-name → zone-id lookups between hook
// invocations.
//
// The cache file is shared by every invocation without locking; concurrent
// writers race and the last one wins.
package zonecache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"time"

	"github.com/go-logr/logr"
)

const (
	DefaultTTL  = 30 * 24 * time.Hour
	DefaultMode = fs.FileMode(0o600)
)

// Status is the outcome of a cache lookup.
type Status int

const (
	// Unknown means the name was never looked up or its entry expired.
	Unknown Status = iota
	// Absent means a previous lookup confirmed the provider has no such zone.
	Absent
	// Found means the zone id is known.
	Found
)

func (s Status) String() string {
	switch s {
	case Absent:
		return "absent"
	case Found:
		return "found"
	default:
		return "unknown"
	}
}

// Entry is one cached lookup. An empty ZoneID records a confirmed absence.
type Entry struct {
	ZoneID  string
	Created time.Time
}

// Cache maps zone-candidate names to provider zone ids.
type Cache struct {
	Account string
	TTL     time.Duration
	Mode    fs.FileMode

	entries map[string]Entry
	dirty   bool
	now     func() time.Time
	log     logr.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets how long entries stay valid.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.TTL = ttl }
}

// WithMode sets the permissions applied to the cache file on save.
func WithMode(mode fs.FileMode) Option {
	return func(c *Cache) { c.Mode = mode }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New returns an empty cache scoped to account.
func New(account string, log logr.Logger, opts ...Option) *Cache {
	c := &Cache{
		Account: account,
		TTL:     DefaultTTL,
		Mode:    DefaultMode,
		entries: make(map[string]Entry),
		now:     time.Now,
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the cached zone id for name. Expired entries are evicted.
func (c *Cache) Lookup(name string) (string, Status) {
	e, ok := c.entries[name]
	if !ok {
		return "", Unknown
	}
	if c.now().Sub(e.Created) >= c.TTL {
		delete(c.entries, name)
		c.dirty = true
		c.log.V(1).Info("invalidating cache entry", "name", name)
		return "", Unknown
	}
	if e.ZoneID == "" {
		return "", Absent
	}
	return e.ZoneID, Found
}

// Store records zoneID for name. An empty zoneID records a confirmed absence.
func (c *Cache) Store(name, zoneID string) {
	c.entries[name] = Entry{ZoneID: zoneID, Created: c.now()}
	c.dirty = true
}

// Dirty reports whether the cache changed since it was loaded or saved.
func (c *Cache) Dirty() bool {
	return c.dirty
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *Cache) Len() int {
	return len(c.entries)
}

// fileEntry is the on-disk form of Entry. Created is unix seconds; older
// writers stored fractional seconds.
type fileEntry struct {
	ID      *string `json:"id"`
	Created float64 `json:"created"`
}

type file struct {
	Account string               `json:"account"`
	Zone    map[string]fileEntry `json:"zone"`
}

// Load replaces the cache contents with the file at path. A missing file
// leaves the cache empty. A file written for a different account is ignored.
func (c *Cache) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.log.Info("cache file not found", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading cache file: %w", err)
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing cache file: %w", err)
	}

	c.entries = make(map[string]Entry)
	c.dirty = false

	if f.Account != c.Account {
		c.log.Info("ignoring cache built for a different account", "account", f.Account, "path", path)
		return nil
	}

	for name, fe := range f.Zone {
		e := Entry{Created: fromEpoch(fe.Created)}
		if fe.ID != nil {
			e.ZoneID = *fe.ID
		}
		c.entries[name] = e
	}
	c.log.V(1).Info("cache loaded", "path", path, "entries", len(c.entries))
	return nil
}

// Save writes the cache to path if it changed, and restricts the file to Mode.
func (c *Cache) Save(path string) error {
	if !c.dirty {
		c.log.V(1).Info("cache has not changed")
		return nil
	}

	f := file{Account: c.Account, Zone: make(map[string]fileEntry, len(c.entries))}
	for name, e := range c.entries {
		fe := fileEntry{Created: float64(e.Created.Unix())}
		if e.ZoneID != "" {
			id := e.ZoneID
			fe.ID = &id
		}
		f.Zone[name] = fe
	}

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}
	if err := os.WriteFile(path, data, c.Mode); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, c.Mode); err != nil {
		return fmt.Errorf("setting cache file mode: %w", err)
	}

	c.dirty = false
	c.log.V(1).Info("cache saved", "path", path, "entries", len(c.entries))
	return nil
}

func fromEpoch(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}

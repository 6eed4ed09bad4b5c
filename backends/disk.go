package backends

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/richardartoul/contentcache/cachekey"
)

const (
	// DefaultMaxSize is the default byte budget of a Disk cache.
	DefaultMaxSize int64 = 100 * 1024 * 1024

	// DefaultTTL is the default time after creation at which a disk entry
	// expires.
	DefaultTTL = 7 * 24 * time.Hour

	// tmpPrefix marks in-progress writes. Files with this prefix are never
	// served or counted against the budget.
	tmpPrefix = ".tmp-"

	// staleTempAge is how long an in-progress write may exist before
	// eviction treats it as abandoned and removes it.
	staleTempAge = time.Minute
)

// DiskConfig is the policy of a Disk cache.
type DiskConfig struct {
	// Dir is the storage root. The Disk owns this directory exclusively.
	Dir string
	// MaxSize is the total byte budget enforced after every store.
	MaxSize int64
	// TTL is the age, measured from an entry's creation, at which it expires.
	TTL time.Duration
}

// DefaultDiskDir returns the default storage root: a fixed subfolder of
// the user cache directory, falling back to the temp directory.
func DefaultDiskDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "contentcache", "images")
}

// DefaultDiskConfig returns a DiskConfig with the default directory, size
// and TTL.
func DefaultDiskConfig() DiskConfig {
	return DiskConfig{
		Dir:     DefaultDiskDir(),
		MaxSize: DefaultMaxSize,
		TTL:     DefaultTTL,
	}
}

// Disk implements Backend using the local file system.
//
// Each entry is a single file named by its key. No metadata is stored
// alongside the content; it is recovered from the file itself:
//
//   - size is the file size,
//   - created is the modification time, set on write and never touched
//     by reads,
//   - modified is the access time, set explicitly on every successful read
//     and write and used as the LRU signal during eviction.
type Disk struct {
	cfg    DiskConfig
	now    func() time.Time
	logger *slog.Logger

	// statFile reads entry attributes. Replaced in tests to simulate an
	// entry disappearing between the content read and the attribute read.
	statFile func(name string) (os.FileInfo, error)

	// evicting guards against two stores enumerating and pruning the
	// directory at the same time. It is advisory and per instance only.
	evicting atomic.Bool
}

// DiskOption configures a Disk.
type DiskOption func(*Disk)

// WithClock sets the time source used for TTL checks and access stamps.
func WithClock(now func() time.Time) DiskOption {
	return func(d *Disk) {
		d.now = now
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) DiskOption {
	return func(d *Disk) {
		d.logger = logger
	}
}

// NewDisk creates a new disk-based cache backend. Zero fields of cfg are
// replaced by their defaults. The directory is created lazily; failing to
// create it here is not an error.
func NewDisk(cfg DiskConfig, opts ...DiskOption) *Disk {
	if cfg.Dir == "" {
		cfg.Dir = DefaultDiskDir()
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	d := &Disk{
		cfg:      cfg,
		now:      time.Now,
		logger:   slog.New(slog.DiscardHandler),
		statFile: os.Stat,
	}
	for _, opt := range opts {
		opt(d)
	}

	_ = os.MkdirAll(cfg.Dir, 0755)
	return d
}

// Config returns the policy the Disk was created with.
func (d *Disk) Config() DiskConfig {
	return d.cfg
}

// Path returns the path of the file that holds key. It does not check
// whether the file exists.
func (d *Disk) Path(key cachekey.Key) string {
	return d.keyToPath(key)
}

// Get retrieves an object from the cache.
func (d *Disk) Get(_ context.Context, key cachekey.Key) ([]byte, bool) {
	diskPath := d.keyToPath(key)

	data, err := os.ReadFile(diskPath)
	if err != nil {
		return nil, false
	}

	info, err := d.statFile(diskPath)
	if err != nil {
		// The content was read but the entry is gone or unreadable, most
		// likely pruned by a concurrent eviction. Serve the bytes anyway.
		d.logger.Debug("disk entry vanished after read",
			"key", key,
			"error", err)
		_ = os.Remove(diskPath)
		return data, true
	}

	attrs := attributesOf(info)
	now := d.now()
	if !now.Before(attrs.created.Add(d.cfg.TTL)) {
		d.logger.Debug("disk entry expired",
			"key", key,
			"created", attrs.created)
		_ = os.Remove(diskPath)
		return nil, false
	}

	// Mark most recently used, keeping the creation stamp.
	_ = os.Chtimes(diskPath, now, attrs.created)
	return data, true
}

// Put stores an object in the cache and enforces the size budget.
func (d *Disk) Put(_ context.Context, key cachekey.Key, data []byte) {
	if len(data) == 0 {
		return
	}

	_ = os.MkdirAll(d.cfg.Dir, 0755)

	if err := d.write(key, data); err != nil {
		d.logger.Debug("disk write failed", "key", key, "error", err)
		return
	}

	d.enforceMaxSize()
}

// Remove deletes the entry for key. A missing entry is not an error.
func (d *Disk) Remove(_ context.Context, key cachekey.Key) {
	_ = os.Remove(d.keyToPath(key))
}

// Clear removes all entries from the cache.
func (d *Disk) Clear(_ context.Context) {
	entries, err := os.ReadDir(d.cfg.Dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		_ = os.Remove(filepath.Join(d.cfg.Dir, entry.Name()))
	}
}

// write atomically writes data to the file for key and stamps both its
// creation and access time with the current time.
func (d *Disk) write(key cachekey.Key, data []byte) error {
	diskPath := d.keyToPath(key)

	// Create a temporary file in the same directory for atomic write
	tmpFile, err := os.CreateTemp(d.cfg.Dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath) // Clean up if something goes wrong

	_, err = tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, diskPath); err != nil {
		return fmt.Errorf("failed to rename cache file: %w", err)
	}

	now := d.now()
	_ = os.Chtimes(diskPath, now, now)
	return nil
}

// diskEntry is an entry observed during an eviction pass.
type diskEntry struct {
	path  string
	attrs entryAttributes
}

// pruneStaleTemp removes an in-progress write that has not been renamed
// within staleTempAge, which means its writer died. Temp files are stamped
// by the filesystem, so their age is measured against the wall clock.
func (d *Disk) pruneStaleTemp(path string) {
	info, err := os.Stat(path)
	if err != nil || time.Since(info.ModTime()) < staleTempAge {
		return
	}
	d.logger.Debug("removing abandoned temp file", "path", path, "size", info.Size())
	_ = os.Remove(path)
}

// enforceMaxSize removes corrupt entries and, if the directory exceeds its
// byte budget, deletes least recently used entries until it fits.
func (d *Disk) enforceMaxSize() {
	if !d.evicting.CompareAndSwap(false, true) {
		return
	}
	defer d.evicting.Store(false)

	dirEntries, err := os.ReadDir(d.cfg.Dir)
	if err != nil {
		return
	}

	var (
		entries   []diskEntry
		totalSize int64
	)
	for _, dirEntry := range dirEntries {
		name := dirEntry.Name()
		if dirEntry.IsDir() {
			continue
		}

		path := filepath.Join(d.cfg.Dir, name)
		if strings.HasPrefix(name, tmpPrefix) {
			d.pruneStaleTemp(path)
			continue
		}

		info, err := d.statFile(path)
		if err != nil {
			d.logger.Debug("removing unreadable disk entry", "path", path, "error", err)
			_ = os.Remove(path)
			continue
		}

		attrs := attributesOf(info)
		totalSize += attrs.size
		entries = append(entries, diskEntry{path: path, attrs: attrs})
	}

	if totalSize <= d.cfg.MaxSize {
		return
	}

	slices.SortStableFunc(entries, func(a, b diskEntry) int {
		return a.attrs.modified.Compare(b.attrs.modified)
	})

	var evicted int
	for _, entry := range entries {
		if totalSize <= d.cfg.MaxSize {
			break
		}
		if err := os.Remove(entry.path); err != nil && !os.IsNotExist(err) {
			continue
		}
		totalSize -= entry.attrs.size
		evicted++
	}

	d.logger.Debug("disk eviction finished",
		"evicted", evicted,
		"remainingBytes", totalSize,
		"maxBytes", d.cfg.MaxSize)
}

// keyToPath converts a key to a file path.
func (d *Disk) keyToPath(key cachekey.Key) string {
	return filepath.Join(d.cfg.Dir, key.String())
}

// entryAttributes are the metadata of a disk entry derived from its file.
type entryAttributes struct {
	size     int64
	created  time.Time
	modified time.Time
}

func attributesOf(info os.FileInfo) entryAttributes {
	return entryAttributes{
		size:     info.Size(),
		created:  info.ModTime(),
		modified: accessTime(info),
	}
}

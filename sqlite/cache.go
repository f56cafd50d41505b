package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/fwojciec/webscrape"
	"github.com/fwojciec/webscrape/bloom"
)

// Compile-time interface verification.
var _ webscrape.Cache = (*Cache)(nil)

// Cache defaults.
const (
	// DefaultBufferSize is the number of buffered keys that triggers a flush.
	DefaultBufferSize = 100
	// DefaultCompressionLevel is the brotli quality used for stored values (0-11).
	DefaultCompressionLevel = 6

	// cacheExpectedKeys sizes the key presence filter.
	cacheExpectedKeys = 100000
	// cacheFalsePositiveRate is the acceptable false positive rate of the key filter.
	cacheFalsePositiveRate = 0.01
)

// Cache implements webscrape.Cache on top of SQLite.
//
// Writes are buffered in memory and flushed as one transaction once more
// than BufferSize keys are pending, or on Flush/Close. Reads see buffered
// writes. It is safe for concurrent use by multiple goroutines.
type Cache struct {
	db         *DB
	ttl        time.Duration
	bufferSize int
	quality    int
	now        func() time.Time
	keys       *bloom.Filter

	mu      sync.Mutex
	pending map[string]*pendingWrite
	order   []string
}

// pendingWrite is a buffered change to one key.
type pendingWrite struct {
	value   *string
	meta    map[string]string
	hasMeta bool
	at      time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets how long entries stay fresh. Zero (the default) means forever.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithBufferSize sets how many keys may be buffered before a flush.
// Zero writes every change through immediately.
func WithBufferSize(n int) CacheOption {
	return func(c *Cache) {
		c.bufferSize = n
	}
}

// WithCompressionLevel sets the brotli quality (0-11) for stored values.
func WithCompressionLevel(level int) CacheOption {
	return func(c *Cache) {
		c.quality = level
	}
}

// WithClock overrides the time source used for timestamps and freshness.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a new Cache backed by db. Call Open before use.
func NewCache(db *DB, opts ...CacheOption) *Cache {
	c := &Cache{
		db:         db,
		bufferSize: DefaultBufferSize,
		quality:    DefaultCompressionLevel,
		now:        time.Now,
		keys:       bloom.NewFilter(cacheExpectedKeys, cacheFalsePositiveRate),
		pending:    make(map[string]*pendingWrite),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open loads the stored keys into the key presence filter.
func (c *Cache) Open(ctx context.Context) error {
	rows, err := c.db.QueryContext(ctx, "SELECT key FROM cache")
	if err != nil {
		return fmt.Errorf("failed to load cache keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return err
		}
		c.keys.Add(key)
	}
	return rows.Err()
}

// Close flushes buffered writes. The underlying DB stays open.
func (c *Cache) Close() error {
	return c.Flush(context.Background())
}

// Get returns the value stored for key.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, hasValue, err := c.entryLocked(ctx, key)
	if err != nil {
		return "", err
	}
	if !hasValue {
		return "", webscrape.Errorf(webscrape.ENOTFOUND, "cache key %q not found", key)
	}
	return entry.Value, nil
}

// Entry returns the full entry stored for key, including timestamps.
func (c *Cache) Entry(ctx context.Context, key string) (*webscrape.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, hasValue, err := c.entryLocked(ctx, key)
	if err != nil {
		return nil, err
	}
	if !hasValue {
		return nil, webscrape.Errorf(webscrape.ENOTFOUND, "cache key %q not found", key)
	}
	return entry, nil
}

// Set stores value under key.
func (c *Cache) Set(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pw := c.pendingLocked(key)
	pw.value = &value
	pw.at = c.now()
	return c.maybeFlushLocked(ctx)
}

// GetMeta returns the metadata stored for key.
func (c *Cache) GetMeta(ctx context.Context, key string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, _, err := c.entryLocked(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry.Meta == nil {
		return map[string]string{}, nil
	}
	return entry.Meta, nil
}

// SetMeta replaces the metadata stored for key.
func (c *Cache) SetMeta(ctx context.Context, key string, meta map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pw := c.pendingLocked(key)
	pw.meta = maps.Clone(meta)
	pw.hasMeta = true
	if pw.at.IsZero() {
		pw.at = c.now()
	}
	return c.maybeFlushLocked(ctx)
}

// Contains reports whether a fresh value exists for key.
func (c *Cache) Contains(ctx context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, hasValue, err := c.entryLocked(ctx, key)
	return err == nil && hasValue
}

// Flush writes buffered changes in a single transaction.
func (c *Cache) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked(ctx)
}

// Clear deletes every entry, including buffered ones.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.ExecContext(ctx, "DELETE FROM cache"); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	c.pending = make(map[string]*pendingWrite)
	c.order = nil
	c.keys.Reset()
	return nil
}

// Compact flushes buffered writes and shrinks the database file.
func (c *Cache) Compact(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.flushLocked(ctx); err != nil {
		return err
	}
	return c.db.Vacuum(ctx)
}

// Delete removes a single entry.
// Returns ENOTFOUND if the key does not exist.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, buffered := c.pending[key]
	if buffered {
		delete(c.pending, key)
		c.order = removeKey(c.order, key)
	}

	result, err := c.db.ExecContext(ctx, "DELETE FROM cache WHERE key = ?", key)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 && !buffered {
		return webscrape.Errorf(webscrape.ENOTFOUND, "cache key %q not found", key)
	}
	return nil
}

// Keys returns every stored key, stale ones included.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.flushLocked(ctx); err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, "SELECT key FROM cache ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Merge copies every entry of other into c. Keys already present in c are
// replaced only when override is true.
func (c *Cache) Merge(ctx context.Context, other *Cache, override bool) error {
	if other == c {
		return nil
	}
	if err := other.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush source cache: %w", err)
	}

	rows, err := other.rows(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.flushLocked(ctx); err != nil {
		return err
	}

	query := `
		INSERT INTO cache (key, value, meta, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`
	if override {
		query = `
			INSERT INTO cache (key, value, meta, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				meta = excluded.meta,
				created_at = excluded.created_at,
				updated_at = excluded.updated_at
		`
	}

	tx, err := c.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, query, r.key, r.value, r.meta, r.createdAt, r.updatedAt); err != nil {
			return fmt.Errorf("failed to merge key %q: %w", r.key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	for _, r := range rows {
		c.keys.Add(r.key)
	}
	return nil
}

// rawRow is a stored row in its on-disk encoding.
type rawRow struct {
	key       string
	value     []byte
	meta      sql.NullString
	createdAt string
	updatedAt string
}

func (c *Cache) rows(ctx context.Context) ([]rawRow, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT key, value, meta, created_at, updated_at FROM cache")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rawRow
	for rows.Next() {
		var r rawRow
		if err := rows.Scan(&r.key, &r.value, &r.meta, &r.createdAt, &r.updatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// pendingLocked returns the buffered write for key, creating it if needed.
func (c *Cache) pendingLocked(key string) *pendingWrite {
	pw, ok := c.pending[key]
	if !ok {
		pw = &pendingWrite{}
		c.pending[key] = pw
		c.order = append(c.order, key)
		c.keys.Add(key)
	}
	return pw
}

func (c *Cache) maybeFlushLocked(ctx context.Context) error {
	if len(c.order) > c.bufferSize {
		return c.flushLocked(ctx)
	}
	return nil
}

// flushLocked writes all buffered changes in one transaction. On failure the
// buffer is kept so the next flush retries it.
func (c *Cache) flushLocked(ctx context.Context) error {
	if len(c.order) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin flush: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, key := range c.order {
		if err := c.writeTx(ctx, tx, key, c.pending[key]); err != nil {
			return fmt.Errorf("failed to write key %q: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit flush: %w", err)
	}

	c.pending = make(map[string]*pendingWrite)
	c.order = nil
	return nil
}

func (c *Cache) writeTx(ctx context.Context, tx *sql.Tx, key string, pw *pendingWrite) error {
	at := formatTime(pw.at)

	var meta any
	if pw.hasMeta && pw.meta != nil {
		b, err := json.Marshal(pw.meta)
		if err != nil {
			return err
		}
		meta = string(b)
	}

	if pw.value == nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cache (key, value, meta, created_at, updated_at)
			VALUES (?, NULL, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET meta = excluded.meta
		`, key, meta, at, at)
		return err
	}

	blob, err := compress(*pw.value, c.quality)
	if err != nil {
		return err
	}

	if pw.hasMeta {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cache (key, value, meta, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				meta = excluded.meta,
				updated_at = excluded.updated_at
		`, key, blob, meta, at, at)
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cache (key, value, meta, created_at, updated_at)
		VALUES (?, ?, NULL, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, blob, at, at)
	return err
}

// entryLocked merges the stored row for key with any buffered write.
// hasValue is false for rows that only carry metadata.
func (c *Cache) entryLocked(ctx context.Context, key string) (entry *webscrape.CacheEntry, hasValue bool, err error) {
	if c.keys.MayContain(key) {
		entry, hasValue, err = c.load(ctx, key)
		if err != nil {
			return nil, false, err
		}
	}

	if pw, ok := c.pending[key]; ok {
		if entry == nil {
			entry = &webscrape.CacheEntry{Key: key, CreatedAt: pw.at, UpdatedAt: pw.at}
		}
		if pw.value != nil {
			entry.Value = *pw.value
			entry.UpdatedAt = pw.at
			hasValue = true
		}
		if pw.hasMeta {
			entry.Meta = maps.Clone(pw.meta)
		}
	}

	if entry == nil {
		return nil, false, webscrape.Errorf(webscrape.ENOTFOUND, "cache key %q not found", key)
	}
	if !entry.Fresh(c.now(), c.ttl) {
		return nil, false, webscrape.Errorf(webscrape.ENOTFOUND, "cache key %q is stale", key)
	}
	return entry, hasValue, nil
}

// load reads a row from the database. A missing row returns a nil entry.
func (c *Cache) load(ctx context.Context, key string) (*webscrape.CacheEntry, bool, error) {
	var r rawRow
	err := c.db.QueryRowContext(ctx, `
		SELECT key, value, meta, created_at, updated_at
		FROM cache
		WHERE key = ?
	`, key).Scan(&r.key, &r.value, &r.meta, &r.createdAt, &r.updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	entry := &webscrape.CacheEntry{Key: r.key}
	if entry.CreatedAt, err = parseTime(r.createdAt, "created_at"); err != nil {
		return nil, false, err
	}
	if entry.UpdatedAt, err = parseTime(r.updatedAt, "updated_at"); err != nil {
		return nil, false, err
	}
	if r.meta.Valid {
		if err := json.Unmarshal([]byte(r.meta.String), &entry.Meta); err != nil {
			return nil, false, fmt.Errorf("failed to decode meta: %w", err)
		}
	}

	if r.value == nil {
		return entry, false, nil
	}
	if entry.Value, err = decompress(r.value); err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

func removeKey(keys []string, key string) []string {
	for i, k := range keys {
		if k == key {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}

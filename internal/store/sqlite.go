package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/rcliao/context-memory/internal/cipher"
	"github.com/rcliao/context-memory/internal/model"
)

var tracer = otel.Tracer("github.com/rcliao/context-memory/internal/store")

// timeLayout is fixed width so lexical order in SQL equals time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const keyCheckPlaintext = "context-memory key check"

const (
	defaultBusyTimeout = 5 * time.Second
	maxWriteAttempts   = 5
	retryBase          = 20 * time.Millisecond
	retryCap           = 250 * time.Millisecond
)

// Options configures a SQLiteStore.
type Options struct {
	// Passphrase enables field encryption for new writes. Empty means plaintext.
	Passphrase string
	Logger     *zap.Logger
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
	// BusyTimeout is how long SQLite waits on a lock held by another
	// connection before a write attempt fails. Defaults to 5s.
	BusyTimeout time.Duration
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	storeID string
	cipher  *cipher.FieldCipher
	logger  *zap.Logger
	now     func() time.Time

	// mu serialises writers in this process; readers share it.
	mu sync.RWMutex
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string, opts Options) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(%d)",
		dbPath, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &model.StorageError{Op: "open", Err: err}
	}

	s := &SQLiteStore{
		db:     db,
		path:   dbPath,
		logger: opts.Logger,
		now:    opts.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, &model.StorageError{Op: "migrate", Err: err}
	}
	if err := s.initMeta(opts.Passphrase); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Debug("store opened",
		zap.String("path", dbPath),
		zap.String("store_id", s.storeID),
		zap.Bool("encrypted", s.cipher != nil))
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		content       TEXT NOT NULL,
		memory_type   TEXT NOT NULL,
		context       TEXT,
		tags          TEXT,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL,
		access_count  INTEGER NOT NULL DEFAULT 0,
		last_accessed TEXT,
		encrypted     INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_access ON memories(access_count DESC);

	CREATE TABLE IF NOT EXISTS tags (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS memory_tags (
		memory_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		tag_id    INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		position  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (memory_id, tag_id)
	);
	CREATE INDEX IF NOT EXISTS idx_memory_tags_tag ON memory_tags(tag_id);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// initMeta loads or creates the store id and salt, and checks the
// passphrase against the stored canary.
func (s *SQLiteStore) initMeta(passphrase string) error {
	ctx := context.Background()

	id, err := s.metaValue(ctx, "store_id", func() (string, error) {
		return ulid.Make().String(), nil
	})
	if err != nil {
		return err
	}
	s.storeID = id

	if passphrase == "" {
		var check string
		err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'key_check'`).Scan(&check)
		if err == nil {
			s.logger.Warn("no passphrase configured; encrypted memories will be unreadable")
		}
		return nil
	}

	saltHex, err := s.metaValue(ctx, "salt", func() (string, error) {
		salt, err := cipher.NewSalt()
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(salt), nil
	})
	if err != nil {
		return err
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return &model.StorageError{Op: "read salt", Err: err}
	}

	c, err := cipher.FromPassphrase(passphrase, salt)
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}
	s.cipher = c

	check, err := s.metaValue(ctx, "key_check", func() (string, error) {
		return c.Encrypt(keyCheckPlaintext)
	})
	if err != nil {
		return err
	}
	if got, err := c.Decrypt(check); err != nil || got != keyCheckPlaintext {
		s.logger.Warn("passphrase does not match the key used for existing encrypted memories")
	}
	return nil
}

// metaValue returns the value stored under key, inserting gen() first if the
// key is absent. Concurrent openers converge on whichever insert won.
func (s *SQLiteStore) metaValue(ctx context.Context, key string, gen func() (string, error)) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", &model.StorageError{Op: "read meta " + key, Err: err}
	}

	v, err = gen()
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", key, err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)`, key, v); err != nil {
		return "", &model.StorageError{Op: "write meta " + key, Err: err}
	}
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v); err != nil {
		return "", &model.StorageError{Op: "read meta " + key, Err: err}
	}
	return v, nil
}

// Encrypted reports whether new writes are encrypted.
func (s *SQLiteStore) Encrypted() bool { return s.cipher != nil }

// StoreID returns the ULID identifying this database.
func (s *SQLiteStore) StoreID() string { return s.storeID }

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Create(ctx context.Context, p CreateParams) (mem *model.Memory, err error) {
	ctx, span := tracer.Start(ctx, "store.create",
		trace.WithAttributes(attribute.String("memory.type", string(p.MemoryType))))
	defer func() { endSpan(span, err) }()

	content, ctxText, err := s.encode(p.Content, p.Context)
	if err != nil {
		return nil, err
	}
	tagsJSON := encodeTags(p.Tags)
	now := s.now().UTC()
	ts := formatTime(now)

	var id int64
	err = s.withTx(ctx, "create memory", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO memories (content, memory_type, context, tags, created_at, updated_at, access_count, encrypted)
			 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
			content, string(p.MemoryType), ctxText, tagsJSON, ts, ts, s.cipher != nil)
		if err != nil {
			return fmt.Errorf("insert memory: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		return syncTags(ctx, tx, id, p.Tags)
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("memory.id", id))
	return &model.Memory{
		ID:         id,
		Content:    p.Content,
		MemoryType: p.MemoryType,
		Context:    p.Context,
		Tags:       p.Tags,
		CreatedAt:  now,
		UpdatedAt:  now,
		Encrypted:  s.cipher != nil,
	}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (mem *model.Memory, err error) {
	ctx, span := tracer.Start(ctx, "store.get",
		trace.WithAttributes(attribute.Int64("memory.id", id)))
	defer func() { endSpan(span, err) }()

	now := formatTime(s.now().UTC())
	err = s.withTx(ctx, "get memory", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE memories SET access_count = access_count + 1, last_accessed = ? WHERE id = ?`, now, id)
		if err != nil {
			return fmt.Errorf("record access: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: id %d", model.ErrNotFound, id)
		}
		r, err := scanRow(tx.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id))
		if err != nil {
			return err
		}
		// A record that cannot be decrypted rolls back the access bump.
		m, err := s.decode(r)
		if err != nil {
			return err
		}
		mem = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mem, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id int64, p UpdateParams) (mem *model.Memory, err error) {
	ctx, span := tracer.Start(ctx, "store.update",
		trace.WithAttributes(attribute.Int64("memory.id", id)))
	defer func() { endSpan(span, err) }()

	now := s.now().UTC()
	err = s.withTx(ctx, "update memory", func(tx *sql.Tx) error {
		r, err := scanRow(tx.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: id %d", model.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		m, err := s.decode(r)
		if err != nil {
			return err
		}

		if p.Content != nil || p.Context != nil {
			if p.Content != nil {
				m.Content = *p.Content
			}
			if p.Context != nil {
				m.Context = *p.Context
			}
			// Both text fields share one encrypted flag, so both are
			// re-encoded under the current key.
			content, ctxText, err := s.encode(m.Content, m.Context)
			if err != nil {
				return err
			}
			m.Encrypted = s.cipher != nil
			if _, err := tx.ExecContext(ctx,
				`UPDATE memories SET content = ?, context = ?, encrypted = ? WHERE id = ?`,
				content, ctxText, m.Encrypted, id); err != nil {
				return fmt.Errorf("update text: %w", err)
			}
		}

		if p.Tags != nil {
			m.Tags = *p.Tags
			if _, err := tx.ExecContext(ctx,
				`UPDATE memories SET tags = ? WHERE id = ?`, encodeTags(m.Tags), id); err != nil {
				return fmt.Errorf("update tags: %w", err)
			}
			if err := syncTags(ctx, tx, id, m.Tags); err != nil {
				return err
			}
		}

		if now.Before(m.CreatedAt) {
			now = m.CreatedAt
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE memories SET updated_at = ? WHERE id = ?`, formatTime(now), id); err != nil {
			return fmt.Errorf("touch memory: %w", err)
		}
		m.UpdatedAt = now
		mem = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mem, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id int64) (deleted bool, err error) {
	ctx, span := tracer.Start(ctx, "store.delete",
		trace.WithAttributes(attribute.Int64("memory.id", id)))
	defer func() { endSpan(span, err) }()

	err = s.withTx(ctx, "delete memory", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_tags WHERE memory_id = ?`, id); err != nil {
			return fmt.Errorf("delete tag links: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete memory: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return pruneTags(ctx, tx)
	})
	return deleted, err
}

func (s *SQLiteStore) Clear(ctx context.Context, memoryType model.MemoryType) (n int, err error) {
	ctx, span := tracer.Start(ctx, "store.clear",
		trace.WithAttributes(attribute.String("memory.type", string(memoryType))))
	defer func() { endSpan(span, err) }()

	where, args := "1 = 1", []any{}
	if memoryType != "" {
		where, args = "memory_type = ?", []any{string(memoryType)}
	}
	err = s.withTx(ctx, "clear memories", func(tx *sql.Tx) error {
		var err error
		n, err = deleteWhere(ctx, tx, where, args)
		return err
	})
	return n, err
}

// deleteWhere removes matching memories and their tag associations.
func deleteWhere(ctx context.Context, tx *sql.Tx, where string, args []any) (int, error) {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM memory_tags WHERE memory_id IN (SELECT id FROM memories WHERE `+where+`)`, args...); err != nil {
		return 0, fmt.Errorf("delete tag links: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete memories: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := pruneTags(ctx, tx); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn in a write transaction under the writer lock, retrying
// while another process holds the database lock.
func (s *SQLiteStore) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isLocked(err) || attempt == maxWriteAttempts {
			break
		}
		s.logger.Debug("database busy, retrying", zap.String("op", op), zap.Int("attempt", attempt))
		if serr := sleepRetry(ctx, attempt); serr != nil {
			err = serr
			break
		}
	}
	return classify(op, err)
}

func (s *SQLiteStore) runTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// classify passes domain and context errors through and wraps everything
// else as a StorageError.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrDecryption),
		errors.Is(err, model.ErrStorage),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return &model.StorageError{Op: op, Err: err}
}

func isLocked(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}

func sleepRetry(ctx context.Context, attempt int) error {
	d := time.Duration(attempt*attempt) * retryBase
	if d > retryCap {
		d = retryCap
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// encode prepares the text columns for a new write.
func (s *SQLiteStore) encode(content, contextText string) (string, sql.NullString, error) {
	ctxText := sql.NullString{String: contextText, Valid: contextText != ""}
	if s.cipher == nil {
		return content, ctxText, nil
	}
	enc, err := s.cipher.Encrypt(content)
	if err != nil {
		return "", ctxText, fmt.Errorf("encrypt content: %w", err)
	}
	if ctxText.Valid {
		if ctxText.String, err = s.cipher.Encrypt(contextText); err != nil {
			return "", ctxText, fmt.Errorf("encrypt context: %w", err)
		}
	}
	return enc, ctxText, nil
}

const memoryColumns = `id, content, memory_type, context, tags, created_at, updated_at, access_count, last_accessed, encrypted`

// row is a memory as stored, before decryption.
type row struct {
	id           int64
	content      string
	memoryType   string
	context      sql.NullString
	tags         sql.NullString
	createdAt    string
	updatedAt    string
	accessCount  int
	lastAccessed sql.NullString
	encrypted    bool
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(sc scanner) (row, error) {
	var r row
	err := sc.Scan(&r.id, &r.content, &r.memoryType, &r.context, &r.tags,
		&r.createdAt, &r.updatedAt, &r.accessCount, &r.lastAccessed, &r.encrypted)
	return r, err
}

// decode turns a stored row into a plaintext memory.
func (s *SQLiteStore) decode(r row) (model.Memory, error) {
	m := model.Memory{
		ID:          r.id,
		Content:     r.content,
		MemoryType:  model.MemoryType(r.memoryType),
		Context:     r.context.String,
		AccessCount: r.accessCount,
		Encrypted:   r.encrypted,
		CreatedAt:   parseTime(r.createdAt),
		UpdatedAt:   parseTime(r.updatedAt),
	}
	if r.lastAccessed.Valid {
		t := parseTime(r.lastAccessed.String)
		m.LastAccessed = &t
	}
	if r.tags.Valid {
		if err := json.Unmarshal([]byte(r.tags.String), &m.Tags); err != nil {
			return m, &model.StorageError{Op: fmt.Sprintf("decode tags of memory %d", r.id), Err: err}
		}
	}

	if !r.encrypted {
		return m, nil
	}
	if s.cipher == nil {
		return m, fmt.Errorf("%w: memory %d is encrypted and no passphrase is configured", model.ErrDecryption, r.id)
	}
	var err error
	if m.Content, err = s.cipher.Decrypt(r.content); err != nil {
		return m, fmt.Errorf("%w: memory %d content: %v", model.ErrDecryption, r.id, err)
	}
	if r.context.Valid {
		if m.Context, err = s.cipher.Decrypt(r.context.String); err != nil {
			return m, fmt.Errorf("%w: memory %d context: %v", model.ErrDecryption, r.id, err)
		}
	}
	return m, nil
}

func encodeTags(tags []string) sql.NullString {
	if len(tags) == 0 {
		return sql.NullString{}
	}
	b, _ := json.Marshal(tags)
	return sql.NullString{String: string(b), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

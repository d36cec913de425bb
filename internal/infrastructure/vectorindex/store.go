package vectorindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
)

const (
	currentFile     = "CURRENT"
	lockFile        = "LOCK"
	generationDB    = "index.db"
	generationPref  = "gen-"
	staleLockAfter  = time.Hour
	keepGenerations = 2
)

// Store persists index generations under a fixed directory:
//
//	<dir>/CURRENT            name of the active generation
//	<dir>/gen-<unixnano>-<id>/   one SQLite file per full rebuild
//
// A rebuild writes a fresh generation and then replaces CURRENT by rename,
// so readers see either the old or the new index, never a partial one.
type Store struct {
	dir        string
	embedModel string
	now        func() time.Time
}

func NewStore(dir, embedModel string) (*Store, error) {
	if dir == "" {
		dir = "./data/kb"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	return &Store{dir: dir, embedModel: embedModel, now: time.Now}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Write persists entries as a new generation and makes it current.
// Only one writer may hold the directory at a time.
func (s *Store) Write(ctx context.Context, entries []domain.IndexEntry) (string, error) {
	unlock, err := s.lock()
	if err != nil {
		return "", err
	}
	defer unlock()

	now := s.now().UTC()
	generation := fmt.Sprintf("%s%d-%s", generationPref, now.UnixNano(), uuid.NewString()[:8])
	genDir := filepath.Join(s.dir, generation)
	if err := os.MkdirAll(genDir, 0o755); err != nil {
		return "", fmt.Errorf("create generation dir: %w", err)
	}

	if err := s.writeGeneration(ctx, filepath.Join(genDir, generationDB), entries, now); err != nil {
		_ = os.RemoveAll(genDir)
		return "", err
	}
	if err := s.swapCurrent(generation); err != nil {
		_ = os.RemoveAll(genDir)
		return "", err
	}
	s.prune(generation)
	return generation, nil
}

// Current returns the active generation name, or "" when nothing was built yet.
func (s *Store) Current() (string, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", currentFile, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// Load reads the active generation into memory. An unbuilt store loads as an
// empty index.
func (s *Store) Load(ctx context.Context) (*Index, error) {
	generation, err := s.Current()
	if err != nil {
		return nil, err
	}
	if generation == "" {
		return Empty(), nil
	}

	db, err := openDB(filepath.Join(s.dir, generation, generationDB))
	if err != nil {
		return nil, err
	}
	defer db.Close()

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, err
	}
	meta.Generation = generation

	entries, err := readEntries(ctx, db)
	if err != nil {
		return nil, err
	}
	return New(meta, entries)
}

func (s *Store) writeGeneration(ctx context.Context, path string, entries []domain.IndexEntry, builtAt time.Time) error {
	db, err := openDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	const schema = `
CREATE TABLE meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE chunks (
	position INTEGER PRIMARY KEY,
	source TEXT NOT NULL,
	page INTEGER NOT NULL,
	chunk_id INTEGER NOT NULL,
	text TEXT NOT NULL,
	vector BLOB NOT NULL
);
CREATE UNIQUE INDEX idx_chunks_source_chunk ON chunks(source, chunk_id);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create index schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	dimensions := 0
	if len(entries) > 0 {
		dimensions = len(entries[0].Vector)
	}
	meta := map[string]string{
		"dimensions":  strconv.Itoa(dimensions),
		"embed_model": s.embedModel,
		"built_at":    builtAt.Format(time.RFC3339Nano),
		"chunk_count": strconv.Itoa(len(entries)),
	}
	for key, value := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, key, value); err != nil {
			return fmt.Errorf("insert meta %s: %w", key, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (position, source, page, chunk_id, text, vector)
VALUES (?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i, entry := range entries {
		if len(entry.Vector) != dimensions {
			return fmt.Errorf("vector dimension mismatch at entry %d: got %d, expected %d", i, len(entry.Vector), dimensions)
		}
		c := entry.Chunk
		if _, err := stmt.ExecContext(ctx, i, c.Source, c.Page, c.ChunkID, c.Text, encodeVector(entry.Vector)); err != nil {
			return fmt.Errorf("insert chunk %s#%d: %w", c.Source, c.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index tx: %w", err)
	}
	return nil
}

func (s *Store) swapCurrent(generation string) error {
	tmp := filepath.Join(s.dir, currentFile+".tmp")
	if err := os.WriteFile(tmp, []byte(generation+"\n"), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, currentFile)); err != nil {
		return fmt.Errorf("swap %s: %w", currentFile, err)
	}
	return nil
}

// prune removes all but the newest generations. The previous generation is
// kept so that a reader which resolved CURRENT just before the swap can
// still finish loading it.
func (s *Store) prune(current string) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		slog.Warn("index_prune_failed", "dir", s.dir, "error", err)
		return
	}

	generations := make([]string, 0, len(dirEntries))
	for _, entry := range dirEntries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), generationPref) && entry.Name() != current {
			generations = append(generations, entry.Name())
		}
	}
	sort.Slice(generations, func(i, j int) bool {
		return generationTime(generations[i]) > generationTime(generations[j])
	})

	for i, name := range generations {
		if i < keepGenerations-1 {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, name)); err != nil {
			slog.Warn("index_prune_failed", "generation", name, "error", err)
		}
	}
}

func (s *Store) lock() (func(), error) {
	path := filepath.Join(s.dir, lockFile)
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = fmt.Fprintf(f, "%d %s\n", os.Getpid(), s.now().UTC().Format(time.RFC3339))
			_ = f.Close()
			return func() { _ = os.Remove(path) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}

		info, statErr := os.Stat(path)
		if statErr != nil || s.now().Sub(info.ModTime()) < staleLockAfter {
			break
		}
		slog.Warn("index_stale_lock_removed", "path", path, "modified_at", info.ModTime())
		_ = os.Remove(path)
	}
	return nil, domain.WrapError(domain.ErrRebuildInProgress, "lock index dir", fmt.Errorf("%s exists", path))
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func readMeta(ctx context.Context, db *sql.DB) (Meta, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return Meta{}, fmt.Errorf("query index meta: %w", err)
	}
	defer rows.Close()

	var meta Meta
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Meta{}, fmt.Errorf("scan index meta: %w", err)
		}
		switch key {
		case "dimensions":
			meta.Dimensions, _ = strconv.Atoi(value)
		case "embed_model":
			meta.EmbedModel = value
		case "built_at":
			meta.BuiltAt, _ = time.Parse(time.RFC3339Nano, value)
		}
	}
	if err := rows.Err(); err != nil {
		return Meta{}, fmt.Errorf("iterate index meta: %w", err)
	}
	return meta, nil
}

func readEntries(ctx context.Context, db *sql.DB) ([]domain.IndexEntry, error) {
	rows, err := db.QueryContext(ctx, `
SELECT source, page, chunk_id, text, vector
FROM chunks
ORDER BY position
`)
	if err != nil {
		return nil, fmt.Errorf("query index chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.IndexEntry, 0)
	for rows.Next() {
		var entry domain.IndexEntry
		var raw []byte
		if err := rows.Scan(&entry.Chunk.Source, &entry.Chunk.Page, &entry.Chunk.ChunkID, &entry.Chunk.Text, &raw); err != nil {
			return nil, fmt.Errorf("scan index chunk: %w", err)
		}
		vector, err := decodeVector(raw)
		if err != nil {
			return nil, fmt.Errorf("decode vector for %s#%d: %w", entry.Chunk.Source, entry.Chunk.ChunkID, err)
		}
		entry.Vector = vector
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index chunks: %w", err)
	}
	return out, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

func generationTime(name string) int64 {
	rest := strings.TrimPrefix(name, generationPref)
	if idx := strings.Index(rest, "-"); idx >= 0 {
		rest = rest[:idx]
	}
	ts, _ := strconv.ParseInt(rest, 10, 64)
	return ts
}

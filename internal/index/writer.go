// Package index projects per-chapter structured facts into SQLite for later
// retrieval. It owns the chapters, entity_appearances, and scenes relations;
// the JSON state store never reads from here.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/lorebook/pkg/types"
)

// Schema creates the three relations. Creation is idempotent: every DDL
// statement carries IF NOT EXISTS so repeated runs are harmless.
const Schema = `
CREATE TABLE IF NOT EXISTS chapters (
	chapter INTEGER PRIMARY KEY,
	title TEXT,
	location TEXT,
	word_count INTEGER,
	characters TEXT,
	scenes TEXT,
	created_at TEXT
);

CREATE TABLE IF NOT EXISTS entity_appearances (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chapter INTEGER NOT NULL,
	entity_id TEXT NOT NULL,
	entity_type TEXT,
	mentions TEXT,
	confidence REAL,
	FOREIGN KEY (chapter) REFERENCES chapters(chapter)
);

CREATE TABLE IF NOT EXISTS scenes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chapter INTEGER NOT NULL,
	scene_index INTEGER NOT NULL,
	location TEXT,
	summary TEXT,
	characters TEXT,
	start_line INTEGER,
	end_line INTEGER,
	FOREIGN KEY (chapter) REFERENCES chapters(chapter)
);

CREATE INDEX IF NOT EXISTS idx_appearances_chapter ON entity_appearances(chapter);
CREATE INDEX IF NOT EXISTS idx_appearances_entity ON entity_appearances(entity_id);
CREATE INDEX IF NOT EXISTS idx_scenes_chapter ON scenes(chapter);
`

// Writer owns the relational index database.
type Writer struct {
	db *sql.DB
}

// NewWriter opens the SQLite index and ensures the schema exists.
// Use ":memory:" for tests.
func NewWriter(dsn string) (*Writer, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("index: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors; WAL mode keeps
	// readers from blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: failed to enable foreign keys: %w", err)
	}

	w := &Writer{db: db}
	if err := w.EnsureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

// EnsureSchema idempotently creates the three relations.
func (w *Writer) EnsureSchema() error {
	if _, err := w.db.Exec(Schema); err != nil {
		return fmt.Errorf("index: failed to create schema: %w", err)
	}
	return nil
}

// ReplaceChapter writes one chapter's projection in a single transaction.
//
// Reprocessing must be idempotent, so the write is expressed as
// delete-prior-chapter-scoped-rows-then-insert-current-set: dependent
// appearance and scene rows are removed before the chapter row is replaced,
// which is also what keeps the foreign keys satisfied.
func (w *Writer) ReplaceChapter(ctx context.Context, record types.ChapterRecord,
	appearances []types.Appearance, scenes []types.Scene) error {

	charactersJSON, err := json.Marshal(record.Entities)
	if err != nil {
		return fmt.Errorf("index: failed to marshal characters: %w", err)
	}
	scenesJSON, err := json.Marshal(record.Scenes)
	if err != nil {
		return fmt.Errorf("index: failed to marshal scenes: %w", err)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Delete children first: replacing the parent row with dependents still
	// attached would trip the foreign keys.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM entity_appearances WHERE chapter = ?", record.Chapter); err != nil {
		return fmt.Errorf("index: failed to clear appearances: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM scenes WHERE chapter = ?", record.Chapter); err != nil {
		return fmt.Errorf("index: failed to clear scenes: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO chapters (chapter, title, location, word_count, characters, scenes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, record.Chapter, record.Title, record.Location, record.WordCount,
		string(charactersJSON), string(scenesJSON), createdAt.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("index: failed to upsert chapter %d: %w", record.Chapter, err)
	}

	if err := insertAppearances(ctx, tx, record.Chapter, appearances); err != nil {
		return err
	}
	if err := insertScenes(ctx, tx, record.Chapter, scenes); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: failed to commit chapter %d: %w", record.Chapter, err)
	}
	return nil
}

// insertAppearances appends appearance rows scoped to one chapter.
func insertAppearances(ctx context.Context, tx *sql.Tx, chapter int, appearances []types.Appearance) error {
	for _, a := range appearances {
		mentionsJSON, err := json.Marshal(a.Mentions)
		if err != nil {
			return fmt.Errorf("index: failed to marshal mentions for %s: %w", a.EntityID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entity_appearances (chapter, entity_id, entity_type, mentions, confidence)
			VALUES (?, ?, ?, ?, ?)
		`, chapter, a.EntityID, a.EntityType, string(mentionsJSON), a.Confidence); err != nil {
			return fmt.Errorf("index: failed to insert appearance %s: %w", a.EntityID, err)
		}
	}
	return nil
}

// insertScenes appends scene rows scoped to one chapter.
func insertScenes(ctx context.Context, tx *sql.Tx, chapter int, scenes []types.Scene) error {
	for _, s := range scenes {
		charactersJSON, err := json.Marshal(s.Entities)
		if err != nil {
			return fmt.Errorf("index: failed to marshal scene characters: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO scenes (chapter, scene_index, location, summary, characters, start_line, end_line)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, chapter, s.Index, s.Location, s.Summary, string(charactersJSON), s.StartLine, s.EndLine); err != nil {
			return fmt.Errorf("index: failed to insert scene %d: %w", s.Index, err)
		}
	}
	return nil
}

// Chapter reads one chapter row back, or sql.ErrNoRows if absent.
func (w *Writer) Chapter(ctx context.Context, chapter int) (*types.ChapterRecord, error) {
	row := w.db.QueryRowContext(ctx, `
		SELECT chapter, title, location, word_count, characters, scenes, created_at
		FROM chapters WHERE chapter = ?
	`, chapter)

	var record types.ChapterRecord
	var charactersJSON, scenesJSON, createdAt string
	if err := row.Scan(&record.Chapter, &record.Title, &record.Location,
		&record.WordCount, &charactersJSON, &scenesJSON, &createdAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(charactersJSON), &record.Entities); err != nil {
		return nil, fmt.Errorf("index: bad characters column for chapter %d: %w", chapter, err)
	}
	if err := json.Unmarshal([]byte(scenesJSON), &record.Scenes); err != nil {
		return nil, fmt.Errorf("index: bad scenes column for chapter %d: %w", chapter, err)
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		record.CreatedAt = t
	}

	return &record, nil
}

// Appearances reads the appearance rows for one chapter.
func (w *Writer) Appearances(ctx context.Context, chapter int) ([]types.Appearance, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT entity_id, entity_type, mentions, confidence
		FROM entity_appearances WHERE chapter = ? ORDER BY id
	`, chapter)
	if err != nil {
		return nil, fmt.Errorf("index: failed to query appearances: %w", err)
	}
	defer rows.Close()

	var result []types.Appearance
	for rows.Next() {
		var a types.Appearance
		var mentionsJSON string
		if err := rows.Scan(&a.EntityID, &a.EntityType, &mentionsJSON, &a.Confidence); err != nil {
			return nil, fmt.Errorf("index: failed to scan appearance: %w", err)
		}
		if err := json.Unmarshal([]byte(mentionsJSON), &a.Mentions); err != nil {
			return nil, fmt.Errorf("index: bad mentions column: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// Scenes reads the scene rows for one chapter, ordered by scene index.
func (w *Writer) Scenes(ctx context.Context, chapter int) ([]types.Scene, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT scene_index, location, summary, characters, start_line, end_line
		FROM scenes WHERE chapter = ? ORDER BY scene_index
	`, chapter)
	if err != nil {
		return nil, fmt.Errorf("index: failed to query scenes: %w", err)
	}
	defer rows.Close()

	var result []types.Scene
	for rows.Next() {
		var s types.Scene
		var charactersJSON string
		if err := rows.Scan(&s.Index, &s.Location, &s.Summary, &charactersJSON,
			&s.StartLine, &s.EndLine); err != nil {
			return nil, fmt.Errorf("index: failed to scan scene: %w", err)
		}
		if err := json.Unmarshal([]byte(charactersJSON), &s.Entities); err != nil {
			return nil, fmt.Errorf("index: bad characters column: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// Close releases the database handle.
func (w *Writer) Close() error {
	return w.db.Close()
}

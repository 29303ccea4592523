package embedding

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pgvector/pgvector-go"
)

// VectorStore persists scene vectors in PostgreSQL with pgvector. Scene
// vectors are keyed by (chapter, scene_index) so reprocessing a chapter
// overwrites its previous vectors.
type VectorStore struct {
	db         *sql.DB
	dimensions int
}

// vectorSchema is parameterised on the vector dimensionality, which depends
// on the embedding model.
const vectorSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS scene_embeddings (
	chapter INTEGER NOT NULL,
	scene_index INTEGER NOT NULL,
	location TEXT,
	summary TEXT,
	embedding vector(%d),
	PRIMARY KEY (chapter, scene_index)
);
`

// NewVectorStore connects to PostgreSQL and ensures the scene_embeddings
// table exists with the given dimensionality.
func NewVectorStore(dsn string, dimensions int) (*VectorStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("embedding: failed to reach postgres: %w", err)
	}

	s := &VectorStore{db: db, dimensions: dimensions}
	if _, err := db.Exec(fmt.Sprintf(vectorSchema, dimensions)); err != nil {
		db.Close()
		return nil, fmt.Errorf("embedding: failed to create schema: %w", err)
	}
	return s, nil
}

// UpsertScene stores one scene vector, replacing any vector previously
// written for the same chapter and scene index.
func (s *VectorStore) UpsertScene(ctx context.Context, chapter, sceneIndex int,
	location, summary string, vector []float32) error {

	if len(vector) != s.dimensions {
		return fmt.Errorf("embedding: vector has %d dimensions, store expects %d",
			len(vector), s.dimensions)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scene_embeddings (chapter, scene_index, location, summary, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chapter, scene_index)
		DO UPDATE SET location = $3, summary = $4, embedding = $5
	`, chapter, sceneIndex, location, summary, pgvector.NewVector(vector))
	if err != nil {
		return fmt.Errorf("embedding: failed to upsert scene %d/%d: %w", chapter, sceneIndex, err)
	}
	return nil
}

// SimilarScenes returns the chapters and scene indexes closest to the query
// vector by cosine distance.
func (s *VectorStore) SimilarScenes(ctx context.Context, query []float32, limit int) ([]SceneMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chapter, scene_index, location, summary, 1 - (embedding <=> $1) AS similarity
		FROM scene_embeddings
		ORDER BY embedding <=> $1
		LIMIT $2
	`, pgvector.NewVector(query), limit)
	if err != nil {
		return nil, fmt.Errorf("embedding: similarity query failed: %w", err)
	}
	defer rows.Close()

	var matches []SceneMatch
	for rows.Next() {
		var m SceneMatch
		if err := rows.Scan(&m.Chapter, &m.SceneIndex, &m.Location, &m.Summary, &m.Similarity); err != nil {
			return nil, fmt.Errorf("embedding: failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// SceneMatch is one similarity search hit.
type SceneMatch struct {
	Chapter    int
	SceneIndex int
	Location   string
	Summary    string
	Similarity float64
}

// Close releases the database handle.
func (s *VectorStore) Close() error {
	return s.db.Close()
}

// Package store persists projects and chunks in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/chunkforge/chunkforge/engine/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	name            TEXT    NOT NULL,
	embedding_model TEXT    NOT NULL,
	status          TEXT    NOT NULL DEFAULT 'PENDING',
	owner_id        TEXT    NOT NULL,
	created_at      INTEGER NOT NULL,
	UNIQUE(owner_id, name)
);

CREATE TABLE IF NOT EXISTS chunks (
	id         TEXT    PRIMARY KEY,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	position   INTEGER NOT NULL,
	content    TEXT    NOT NULL,
	metadata   TEXT    NOT NULL DEFAULT '{}',
	embedding  BLOB
);

CREATE INDEX IF NOT EXISTS idx_chunks_project ON chunks(project_id);
`

// Store is the SQLite-backed project and chunk store.
type Store struct {
	db *sql.DB
}

// New opens (and if needed bootstraps) the store at path. Use ":memory:"
// for an ephemeral store.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateProject inserts p and fills in its ID and CreatedAt. A duplicate
// name for the same owner maps to domain.ErrConflict.
func (s *Store) CreateProject(ctx context.Context, p *domain.Project) error {
	if err := domain.ValidateProject(*p); err != nil {
		return err
	}
	p.Status = domain.StatusPending
	p.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (name, embedding_model, status, owner_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.Name, string(p.EmbeddingModel), string(p.Status), p.OwnerID, p.CreatedAt.UnixMilli())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: project %q already exists", domain.ErrConflict, p.Name)
		}
		return fmt.Errorf("create project: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

// ListProjects returns the owner's projects with chunk counts, newest first.
func (s *Store) ListProjects(ctx context.Context, ownerID string) ([]domain.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.embedding_model, p.status, p.owner_id, p.created_at,
		       (SELECT COUNT(*) FROM chunks c WHERE c.project_id = p.id)
		FROM projects p
		WHERE p.owner_id = ?
		ORDER BY p.created_at DESC, p.id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// GetProject returns the project only when it exists and is owned by
// ownerID; anything else is domain.ErrNotFound.
func (s *Store) GetProject(ctx context.Context, id int64, ownerID string) (*domain.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.name, p.embedding_model, p.status, p.owner_id, p.created_at,
		       (SELECT COUNT(*) FROM chunks c WHERE c.project_id = p.id)
		FROM projects p
		WHERE p.id = ? AND p.owner_id = ?`, id, ownerID)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: project %d", domain.ErrNotFound, id)
	}
	return p, err
}

// DeleteProject removes the project and, via cascade, all of its chunks.
func (s *Store) DeleteProject(ctx context.Context, id int64, ownerID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: project %d", domain.ErrNotFound, id)
	}
	return nil
}

// SetStatus unconditionally updates the project's status.
func (s *Store) SetStatus(ctx context.Context, id int64, status domain.ProjectStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE projects SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// TransitionStatus moves the project from one status to another only if
// it currently holds the expected status. The conditional write admits a
// single in-flight vectorization per project.
func (s *Store) TransitionStatus(ctx context.Context, id int64, from, to domain.ProjectStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("transition status: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// InsertChunk persists c, assigning an ID when it has none.
func (s *Store) InsertChunk(ctx context.Context, c *domain.Chunk) error {
	if strings.TrimSpace(c.Content) == "" {
		return domain.NewValidationError("content", "required")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	meta, err := json.Marshal(metadataOrEmpty(c.Metadata))
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chunks (id, project_id, position, content, metadata, embedding) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProjectID, c.Position, c.Content, string(meta), embeddingBlob(c.Embedding))
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}

// ListChunks returns all of a project's chunks in position order.
func (s *Store) ListChunks(ctx context.Context, projectID int64) ([]domain.Chunk, error) {
	return s.queryChunks(ctx, `
		SELECT id, project_id, position, content, metadata, embedding
		FROM chunks WHERE project_id = ? ORDER BY position`, projectID)
}

// ListUnvectorized returns the project's chunks that have no embedding yet.
func (s *Store) ListUnvectorized(ctx context.Context, projectID int64) ([]domain.Chunk, error) {
	return s.queryChunks(ctx, `
		SELECT id, project_id, position, content, metadata, embedding
		FROM chunks WHERE project_id = ? AND embedding IS NULL ORDER BY position`, projectID)
}

// ListEmbedded returns the project's chunks that carry an embedding.
func (s *Store) ListEmbedded(ctx context.Context, projectID int64) ([]domain.Chunk, error) {
	return s.queryChunks(ctx, `
		SELECT id, project_id, position, content, metadata, embedding
		FROM chunks WHERE project_id = ? AND embedding IS NOT NULL ORDER BY position`, projectID)
}

// AttachEmbedding writes the vector onto an existing chunk.
func (s *Store) AttachEmbedding(ctx context.Context, chunkID string, vec []float32) error {
	res, err := s.db.ExecContext(ctx, `UPDATE chunks SET embedding = ? WHERE id = ?`, embeddingBlob(vec), chunkID)
	if err != nil {
		return fmt.Errorf("attach embedding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: chunk %s", domain.ErrNotFound, chunkID)
	}
	return nil
}

func (s *Store) queryChunks(ctx context.Context, query string, args ...any) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		var meta string
		var blob []byte
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Position, &c.Content, &meta, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		c.Embedding = blobEmbedding(blob)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var p domain.Project
	var model, status string
	var createdAt int64
	if err := row.Scan(&p.ID, &p.Name, &model, &status, &p.OwnerID, &createdAt, &p.ChunkCount); err != nil {
		return nil, err
	}
	p.EmbeddingModel = domain.EmbeddingModel(model)
	p.Status = domain.ProjectStatus(status)
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &p, nil
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// embeddingBlob encodes a vector as little-endian float32 bytes; a nil
// vector stays NULL in the database.
func embeddingBlob(vec []float32) []byte {
	if vec == nil {
		return nil
	}
	out := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func blobEmbedding(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

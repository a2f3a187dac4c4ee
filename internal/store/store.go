package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an artwork id does not exist.
var ErrNotFound = errors.New("artwork not found")

// Artwork is one gallery entry. ThumbnailPath is derived from ImagePath at
// render time and never stored; the image file itself is the source of
// truth for embedded metadata.
type Artwork struct {
	ID          int64     `json:"id"`
	Title       *string   `json:"title"`
	Description string    `json:"description"`
	ImagePath   string    `json:"image_path"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
}

// PositionUpdate is one entry of a manual reorder request.
type PositionUpdate struct {
	ID       int64 `json:"id"`
	Position int   `json:"position"`
}

type ArtworkStore struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *ArtworkStore {
	return &ArtworkStore{db: db}
}

// Migrate creates the artworks table.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS artworks (
			id          BIGSERIAL PRIMARY KEY,
			title       TEXT,
			description TEXT NOT NULL DEFAULT '',
			image_path  TEXT NOT NULL,
			position    INTEGER NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS artworks_position_idx ON artworks (position DESC);
	`)
	return err
}

// List returns artworks matching an optional substring query, ordered by
// the requested sort. Untitled artworks sort last for the title sorts.
func (s *ArtworkStore) List(ctx context.Context, q, sort string) ([]Artwork, error) {
	query := `SELECT id, title, description, image_path, position, created_at FROM artworks`
	args := []any{}
	if q != "" {
		query += ` WHERE title ILIKE $1 OR description ILIKE $1`
		args = append(args, "%"+q+"%")
	}

	switch sort {
	case "oldest":
		query += ` ORDER BY created_at ASC, id ASC`
	case "a-z":
		query += ` ORDER BY title IS NULL OR title = '', LOWER(title)`
	case "z-a":
		query += ` ORDER BY title IS NULL OR title = '', LOWER(title) DESC`
	case "position":
		query += ` ORDER BY position DESC`
	default: // newest
		query += ` ORDER BY created_at DESC, id DESC`
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanArtworks(rows)
}

// Search returns artworks whose title or description contains q, in manual
// gallery order.
func (s *ArtworkStore) Search(ctx context.Context, q string) ([]Artwork, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, title, description, image_path, position, created_at
		FROM artworks
		WHERE title ILIKE $1 OR description ILIKE $1
		ORDER BY position DESC
	`, "%"+q+"%")
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanArtworks(rows)
}

func (s *ArtworkStore) Get(ctx context.Context, id int64) (*Artwork, error) {
	var a Artwork
	err := s.db.QueryRow(ctx, `
		SELECT id, title, description, image_path, position, created_at
		FROM artworks WHERE id = $1
	`, id).Scan(&a.ID, &a.Title, &a.Description, &a.ImagePath, &a.Position, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return &a, nil
}

// Insert appends a new artwork at the top of the manual order.
func (s *ArtworkStore) Insert(ctx context.Context, title *string, description, imagePath string) (*Artwork, error) {
	var a Artwork
	err := s.db.QueryRow(ctx, `
		INSERT INTO artworks (title, description, image_path, position)
		VALUES ($1, $2, $3, COALESCE((SELECT MAX(position) FROM artworks), 0) + 1)
		RETURNING id, title, description, image_path, position, created_at
	`, title, description, imagePath).Scan(
		&a.ID, &a.Title, &a.Description, &a.ImagePath, &a.Position, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}
	return &a, nil
}

// UpdateText changes title and/or description. The set flags say which
// columns to touch; a nil value with its flag set clears the column.
func (s *ArtworkStore) UpdateText(ctx context.Context, id int64, title *string, setTitle bool, description *string, setDescription bool) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE artworks
		SET title = CASE WHEN $2::bool THEN $3 ELSE title END,
		    description = CASE WHEN $4::bool THEN COALESCE($5, '') ELSE description END
		WHERE id = $1
	`, id, setTitle, title, setDescription, description)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateImage swaps the stored image path along with the text fields.
// Old-file deletion is the caller's job and must happen after this commit.
func (s *ArtworkStore) UpdateImage(ctx context.Context, id int64, title *string, description, imagePath string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE artworks SET title = $2, description = $3, image_path = $4 WHERE id = $1
	`, id, title, description, imagePath)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePositions applies a manual reorder in one transaction.
func (s *ArtworkStore) UpdatePositions(ctx context.Context, updates []PositionUpdate) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, u := range updates {
		if _, err := tx.Exec(ctx,
			`UPDATE artworks SET position = $1 WHERE id = $2`, u.Position, u.ID); err != nil {
			return fmt.Errorf("update position of %d: %w", u.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *ArtworkStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM artworks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanArtworks(rows pgx.Rows) ([]Artwork, error) {
	var artworks []Artwork
	for rows.Next() {
		var a Artwork
		if err := rows.Scan(&a.ID, &a.Title, &a.Description, &a.ImagePath,
			&a.Position, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		artworks = append(artworks, a)
	}
	return artworks, rows.Err()
}

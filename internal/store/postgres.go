package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at
		FROM projects
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(&item.ID, &item.Name, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	var item Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at
		FROM projects
		WHERE id=$1
	`, projectID).Scan(&item.ID, &item.Name, &item.CreatedAt)
	if err != nil {
		return Project{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertProject(ctx context.Context, project Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, project.ID, project.Name)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// DeleteProject removes a project and, via ON DELETE CASCADE, all of its
// inbox items and snapshots. Deleting an unknown id is a no-op.
func (s *PostgresStore) DeleteProject(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id=$1`, projectID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountProjects(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count projects: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) InsertInboxItem(ctx context.Context, projectID, text string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO inbox_items (project_id, text)
		VALUES ($1, $2)
		RETURNING id
	`, projectID, text).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert inbox item: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ListInboxItems(ctx context.Context, projectID string) ([]InboxItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, text, created_at
		FROM inbox_items
		WHERE project_id=$1
		ORDER BY id DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list inbox items: %w", err)
	}
	defer rows.Close()

	items := make([]InboxItem, 0)
	for rows.Next() {
		var item InboxItem
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Text, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan inbox item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inbox items: %w", err)
	}
	return items, nil
}

// DeleteInboxItem is idempotent: removing an id that no longer exists is a
// no-op success. It returns the owning project id, or "" when nothing was
// deleted.
func (s *PostgresStore) DeleteInboxItem(ctx context.Context, itemID int64) (string, error) {
	var projectID string
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM inbox_items WHERE id=$1
		RETURNING project_id
	`, itemID).Scan(&projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("delete inbox item: %w", err)
	}
	return projectID, nil
}

// LatestSnapshot returns the most recent snapshot for a project, or nil when
// the project has no history yet.
func (s *PostgresStore) LatestSnapshot(ctx context.Context, projectID string) (*Snapshot, error) {
	var item Snapshot
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, content, created_at
		FROM mindmap_snapshots
		WHERE project_id=$1
		ORDER BY id DESC
		LIMIT 1
	`, projectID).Scan(&item.ID, &item.ProjectID, &item.Content, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) InsertSnapshot(ctx context.Context, projectID, content string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO mindmap_snapshots (project_id, content)
		VALUES ($1, $2)
		RETURNING id
	`, projectID, content).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return id, nil
}

// CommitOrganize appends a snapshot and removes exactly the consumed inbox
// items in a single transaction. Either both effects apply or neither does;
// items added to the project after the organize read are untouched.
func (s *PostgresStore) CommitOrganize(ctx context.Context, projectID, content string, itemIDs []int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin organize tx: %w", err)
	}

	var snapshotID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO mindmap_snapshots (project_id, content)
		VALUES ($1, $2)
		RETURNING id
	`, projectID, content).Scan(&snapshotID)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("insert organized snapshot: %w", err)
	}

	for _, itemID := range itemIDs {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM inbox_items WHERE id=$1 AND project_id=$2
		`, itemID, projectID); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("clear inbox item %d: %w", itemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit organize tx: %w", err)
	}
	return snapshotID, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

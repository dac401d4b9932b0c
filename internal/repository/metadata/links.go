package metadata

import (
	"context"
	"fmt"

	"github.com/Aviyadav22/ParalegalAI/internal/domain"
)

// AddLinks records that the given vector ids belong to documentID in namespace.
// Re-adding an existing link is a no-op.
func (s *Store) AddLinks(ctx context.Context, namespace, documentID string, vectorIDs []string) error {
	if len(vectorIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Namespace: namespace, Err: err}
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO vector_links (namespace, document_id, vector_id) VALUES (?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return &domain.PersistenceError{Namespace: namespace, Err: err}
	}
	defer func() { _ = stmt.Close() }()

	for _, id := range vectorIDs {
		if _, err := stmt.ExecContext(ctx, namespace, documentID, id); err != nil {
			_ = tx.Rollback()
			return &domain.PersistenceError{
				Namespace: namespace,
				Err:       fmt.Errorf("link %s -> %s: %w", documentID, id, err),
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Namespace: namespace, Err: err}
	}
	return nil
}

// Links returns the vector ids linked to documentID, ordered.
func (s *Store) Links(ctx context.Context, namespace, documentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT vector_id FROM vector_links WHERE namespace = ? AND document_id = ? ORDER BY vector_id`,
		namespace, documentID)
	if err != nil {
		return nil, fmt.Errorf("read links for %s: %w", documentID, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteLinks drops every link of documentID in namespace.
func (s *Store) DeleteLinks(ctx context.Context, namespace, documentID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM vector_links WHERE namespace = ? AND document_id = ?`, namespace, documentID); err != nil {
		return &domain.PersistenceError{Namespace: namespace, Err: fmt.Errorf("delete links for %s: %w", documentID, err)}
	}
	return nil
}

package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/Aviyadav22/ParalegalAI/internal/domain"
	"github.com/Aviyadav22/ParalegalAI/internal/domain/search/filter"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

const documentColumns = `partition_key, id, title, source, court, category, doc_type, year,
    date, author, citation, extra, body`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the structured document store and the Document→Vector linkage index.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at dsn and applies pending migrations.
// ":memory:" gives a private in-process database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	// Single writer; also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping metadata store: %w", err)
	}
	return nil
}

// Upsert inserts or replaces one document row.
func (s *Store) Upsert(ctx context.Context, doc domain.Document) error {
	if err := upsertDocument(ctx, s.db, doc); err != nil {
		return &domain.PersistenceError{Namespace: doc.PartitionKey, Err: err}
	}
	return nil
}

// BulkUpsert writes all documents in one transaction. Either every row is written or none is.
func (s *Store) BulkUpsert(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Namespace: docs[0].PartitionKey, Err: err}
	}
	for _, doc := range docs {
		if err := upsertDocument(ctx, tx, doc); err != nil {
			_ = tx.Rollback()
			return &domain.PersistenceError{Namespace: doc.PartitionKey, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Namespace: docs[0].PartitionKey, Err: err}
	}
	return nil
}

func upsertDocument(ctx context.Context, q querier, doc domain.Document) error {
	extra := "{}"
	if len(doc.Metadata.Extra) > 0 {
		raw, err := json.Marshal(doc.Metadata.Extra)
		if err != nil {
			return fmt.Errorf("marshal extra for %s: %w", doc.ID, err)
		}
		extra = string(raw)
	}

	m := doc.Metadata
	_, err := q.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (partition_key, id) DO UPDATE SET
		    title = excluded.title, source = excluded.source, court = excluded.court,
		    category = excluded.category, doc_type = excluded.doc_type, year = excluded.year,
		    date = excluded.date, author = excluded.author, citation = excluded.citation,
		    extra = excluded.extra, body = excluded.body, updated_at = CURRENT_TIMESTAMP`,
		doc.PartitionKey, doc.ID, m.Title, m.Source, m.Court, m.Category, m.DocType, m.Year,
		m.Date, m.Author, m.Citation, extra, doc.Text)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}
	return nil
}

// Get returns one document.
func (s *Store) Get(ctx context.Context, partition, id string) (domain.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE partition_key = ? AND id = ?`, partition, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// ListByPartition returns every document of a partition ordered by id.
func (s *Store) ListByPartition(ctx context.Context, partition string) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE partition_key = ? ORDER BY id`, partition)
	if err != nil {
		return nil, fmt.Errorf("list partition %s: %w", partition, err)
	}
	return collectDocuments(rows)
}

// Partitions returns the distinct partition keys that hold documents.
func (s *Store) Partitions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT partition_key FROM documents ORDER BY partition_key`)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete removes a document row. A missing row is not an error.
func (s *Store) Delete(ctx context.Context, partition, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE partition_key = ? AND id = ?`, partition, id); err != nil {
		return &domain.PersistenceError{Namespace: partition, Err: fmt.Errorf("delete document %s: %w", id, err)}
	}
	return nil
}

// Query returns documents of a partition matching the structured predicates (ANDed).
// Residual terms restrict the result only when no structured predicate is set; otherwise
// they are left for the caller to score. Empty predicates yield no rows.
func (s *Store) Query(ctx context.Context, partition string, p filter.Predicates, limit int) (
	[]domain.Document, error,
) {
	p = p.Normalize()
	if p.IsEmpty() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	where, args := buildWhere(partition, p)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE `+where+` ORDER BY year DESC, id LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query partition %s: %w", partition, err)
	}
	return collectDocuments(rows)
}

func buildWhere(partition string, p filter.Predicates) (string, []any) {
	clauses := []string{"partition_key = ?"}
	args := []any{partition}

	if p.YearFrom > 0 {
		clauses = append(clauses, "year >= ?")
		args = append(args, p.YearFrom)
	}
	if p.YearTo > 0 {
		clauses = append(clauses, "year <= ?")
		args = append(args, p.YearTo)
	}
	for _, kv := range [][2]string{
		{"court", p.Court}, {"category", p.Category}, {"doc_type", p.DocType},
	} {
		if kv[1] == "" {
			continue
		}
		clauses = append(clauses, "LOWER("+kv[0]+`) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(kv[1]))
	}

	if p.Structured() == 0 && len(p.Terms) > 0 {
		var ors []string
		for _, t := range p.Terms {
			ors = append(ors, `(LOWER(body) LIKE ? ESCAPE '\' OR LOWER(title) LIKE ? ESCAPE '\')`)
			pat := likePattern(t)
			args = append(args, pat, pat)
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}
	return strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(v string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(v)) + "%"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (domain.Document, error) {
	var (
		doc   domain.Document
		extra string
	)
	m := &doc.Metadata
	err := r.Scan(&doc.PartitionKey, &doc.ID, &m.Title, &m.Source, &m.Court, &m.Category, &m.DocType,
		&m.Year, &m.Date, &m.Author, &m.Citation, &extra, &doc.Text)
	if err != nil {
		return domain.Document{}, err
	}
	if extra != "" && extra != "{}" {
		if err := json.Unmarshal([]byte(extra), &m.Extra); err != nil {
			return domain.Document{}, fmt.Errorf("decode extra for %s: %w", doc.ID, err)
		}
	}
	return doc, nil
}

func collectDocuments(rows *sql.Rows) ([]domain.Document, error) {
	defer func() { _ = rows.Close() }()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

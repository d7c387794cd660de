package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Querier is the part of *sql.DB a PostgresSource needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// PostgresSource reads documents from a table. Every category is a column
// of the same name; IDColumn must hold an integer.
type PostgresSource struct {
	db         Querier
	table      string
	idColumn   string
	categories []string
}

func NewPostgresSource(db Querier, table, idColumn string, categories []string) *PostgresSource {
	if idColumn == "" {
		idColumn = "id"
	}
	return &PostgresSource{db: db, table: table, idColumn: idColumn, categories: categories}
}

// Query returns the statement Each runs.
func (s *PostgresSource) Query() string {
	cols := make([]string, 0, len(s.categories)+1)
	cols = append(cols, pq.QuoteIdentifier(s.idColumn))
	for _, category := range s.categories {
		cols = append(cols, fmt.Sprintf("COALESCE(%s::text, '')", pq.QuoteIdentifier(category)))
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(cols, ", "),
		quoteTable(s.table),
		pq.QuoteIdentifier(s.idColumn),
	)
}

func (s *PostgresSource) Each(ctx context.Context, fn func(Document) error) error {
	rows, err := s.db.QueryContext(ctx, s.Query())
	if err != nil {
		return fmt.Errorf("querying documents from %s: %w", s.table, err)
	}
	defer rows.Close()

	values := make([]string, len(s.categories))
	dest := make([]any, 0, len(s.categories)+1)
	var id int64
	dest = append(dest, &id)
	for i := range values {
		dest = append(dest, &values[i])
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scanning document row: %w", err)
		}
		doc := Document{ID: id, Fields: make(map[string]string, len(s.categories))}
		for i, category := range s.categories {
			doc.Fields[category] = values[i]
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating document rows: %w", err)
	}
	return nil
}

// quoteTable quotes an optionally schema-qualified table name.
func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = pq.QuoteIdentifier(part)
	}
	return strings.Join(parts, ".")
}

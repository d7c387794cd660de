package index

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/goodfilms/picky/pkg/config"
	apperrors "github.com/goodfilms/picky/pkg/errors"
	"github.com/goodfilms/picky/pkg/postgres"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenSource builds the document source cfg names. The returned Closer
// releases its connections.
func OpenSource(ctx context.Context, cfg config.IndexConfig, pg config.PostgresConfig) (Source, io.Closer, error) {
	switch cfg.Source.Kind {
	case "jsonl", "":
		src := NewJSONLinesSource(cfg.Source.Path)
		if cfg.Source.IDColumn != "" {
			src.IDField = cfg.Source.IDColumn
		}
		return src, nopCloser{}, nil
	case "postgres":
		client, err := postgres.New(ctx, pg)
		if err != nil {
			return nil, nil, err
		}
		table := cfg.Source.Table
		if table == "" {
			table = cfg.Name
		}
		return NewPostgresSource(client.DB, table, cfg.Source.IDColumn, cfg.Categories), client, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownSource, cfg.Source.Kind)
}

// OpenBackend builds the backend cfg names. Disk and bolt bundles live in
// a directory named after the index.
func OpenBackend(cfg config.IndexConfig) (Backend, error) {
	kind, err := ParseKind(cfg.Backend)
	if err != nil {
		return nil, err
	}
	return NewBackend(kind, filepath.Join(cfg.DataDir, cfg.Name))
}

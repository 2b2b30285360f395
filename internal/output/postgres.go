package output

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wegman-software/osmrel-go/internal/config"
	"go.uber.org/zap"
)

// PostgresWriter loads rows into a PostGIS table. Rows are buffered and
// sent with COPY into a temp table, then inserted with the geometry
// decoded from EWKB.
type PostgresWriter struct {
	ctx       context.Context
	pool      *pgxpool.Pool
	table     string // schema-qualified
	ident     pgx.Identifier
	srid      int
	batchSize int
	batch     [][]any
	total     int64
	log       *zap.Logger
}

// NewPostgresWriter connects to the database in cfg and creates the
// relation table. ctx bounds every statement the writer runs.
func NewPostgresWriter(ctx context.Context, cfg *config.Config, srid int, log *zap.Logger) (*PostgresWriter, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	w := &PostgresWriter{
		ctx:       ctx,
		pool:      pool,
		ident:     pgx.Identifier{cfg.DBSchema, cfg.DBTable},
		srid:      srid,
		batchSize: cfg.BatchSize,
		log:       log,
	}
	w.table = w.ident.Sanitize()

	if err := w.ensureTable(cfg.DBSchema, cfg.DropExisting); err != nil {
		pool.Close()
		return nil, err
	}
	return w, nil
}

func (w *PostgresWriter) ensureTable(schema string, drop bool) error {
	if _, err := w.pool.Exec(w.ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return fmt.Errorf("failed to create PostGIS extension: %w", err)
	}
	if schema != "public" {
		if _, err := w.pool.Exec(w.ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	if drop {
		w.log.Info("Dropping relation table", zap.String("table", w.table))
		if _, err := w.pool.Exec(w.ctx, "DROP TABLE IF EXISTS "+w.table+" CASCADE"); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", w.table, err)
		}
	}
	if _, err := w.pool.Exec(w.ctx, createTableSQL(w.table, w.srid)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", w.table, err)
	}
	return nil
}

func createTableSQL(table string, srid int) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			relation_id BIGINT PRIMARY KEY,
			version INTEGER NOT NULL,
			kind TEXT NOT NULL,
			tags JSONB NOT NULL,
			members JSONB NOT NULL,
			geom geometry(Geometry, %d)
		)`, table, srid)
}

func insertSQL(table, temp string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (relation_id, version, kind, tags, members, geom)
		SELECT relation_id, version, kind, tags::jsonb, members::jsonb, ST_GeomFromEWKB(geom_wkb)
		FROM %s
		ON CONFLICT (relation_id) DO UPDATE SET
			version = EXCLUDED.version,
			kind = EXCLUDED.kind,
			tags = EXCLUDED.tags,
			members = EXCLUDED.members,
			geom = EXCLUDED.geom`, table, temp)
}

// Write buffers a row, flushing when the batch is full.
func (w *PostgresWriter) Write(r Row) error {
	w.batch = append(w.batch, []any{r.ID, r.Version, r.Kind, r.Tags, r.Members, r.Geometry})
	if len(w.batch) >= w.batchSize {
		return w.flush()
	}
	return nil
}

func (w *PostgresWriter) flush() error {
	if len(w.batch) == 0 {
		return nil
	}

	tx, err := w.pool.Begin(w.ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(w.ctx)

	const temp = "osmrel_load_tmp"
	if _, err := tx.Exec(w.ctx, `
		CREATE TEMP TABLE IF NOT EXISTS `+temp+` (
			relation_id BIGINT,
			version INTEGER,
			kind TEXT,
			tags TEXT,
			members TEXT,
			geom_wkb BYTEA
		) ON COMMIT DELETE ROWS`); err != nil {
		return fmt.Errorf("failed to create temp table: %w", err)
	}

	n, err := tx.CopyFrom(w.ctx,
		pgx.Identifier{temp},
		[]string{"relation_id", "version", "kind", "tags", "members", "geom_wkb"},
		pgx.CopyFromRows(w.batch),
	)
	if err != nil {
		return fmt.Errorf("COPY failed: %w", err)
	}

	if _, err := tx.Exec(w.ctx, insertSQL(w.table, temp)); err != nil {
		return fmt.Errorf("failed to insert from temp table: %w", err)
	}
	if err := tx.Commit(w.ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	w.total += n
	w.batch = w.batch[:0]
	return nil
}

// Close flushes the last batch, indexes the geometry column and closes
// the pool.
func (w *PostgresWriter) Close() error {
	defer w.pool.Close()
	if err := w.flush(); err != nil {
		return err
	}

	idx := pgx.Identifier{w.ident[len(w.ident)-1] + "_geom_idx"}.Sanitize()
	if _, err := w.pool.Exec(w.ctx, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (geom)", idx, w.table)); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	w.log.Info("Relations loaded", zap.String("table", w.table), zap.Int64("rows", w.total))
	return nil
}

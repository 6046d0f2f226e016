package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/lib/pq"

	txcontext "profileclaim/pkg/platform/tx"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Postgres is the production Store. Repositories join the transaction
// carried in the context when called inside RunInTx and fall back to the
// pool otherwise.
type Postgres struct {
	db        *sql.DB
	txTimeout time.Duration
}

type PostgresOption func(*Postgres)

// WithTxTimeout bounds each RunInTx call. Defaults to 5s.
func WithTxTimeout(d time.Duration) PostgresOption {
	return func(p *Postgres) {
		if d > 0 {
			p.txTimeout = d
		}
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *Postgres {
	p := &Postgres{db: db, txTimeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Open connects with driver ("postgres" for lib/pq, "pgx" for pgx stdlib)
// and pings the server.
func Open(ctx context.Context, driver, dsn string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// Migrate applies embedded migrations in file-name order, each once.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		var applied bool
		if err := db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name,
		).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}
		body, err := migrationFiles.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

// RunInTx opens a READ COMMITTED transaction and exposes it to repositories
// through the context. Conditional UPDATEs take row locks, so a second
// writer re-evaluates its WHERE clause after the first commits.
func (p *Postgres) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(p)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.txTimeout)
	defer cancel()

	sqlTx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(p.withTx(ctx, sqlTx)); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// withTx pins every repository to sqlTx regardless of the ctx the caller
// passes to individual methods.
func (p *Postgres) withTx(ctx context.Context, sqlTx *sql.Tx) Tx {
	return &pgTx{p: p, txCtx: txcontext.WithTx(ctx, sqlTx)}
}

type pgTx struct {
	p     *Postgres
	txCtx context.Context
}

func (t *pgTx) Claims() Claims                   { return &pgClaims{q: t.querier} }
func (t *pgTx) Users() Users                     { return &pgUsers{q: t.querier} }
func (t *pgTx) Players() Players                 { return &pgPlayers{q: t.querier} }
func (t *pgTx) IdentityRecords() IdentityRecords { return &pgIdentity{q: t.querier} }
func (t *pgTx) AuditLog() AuditLog               { return &pgAudit{q: t.querier} }

func (t *pgTx) querier(context.Context) querier {
	tx, _ := txcontext.From(t.txCtx)
	return tx
}

func (p *Postgres) Claims() Claims                   { return &pgClaims{q: p.querier} }
func (p *Postgres) Users() Users                     { return &pgUsers{q: p.querier} }
func (p *Postgres) Players() Players                 { return &pgPlayers{q: p.querier} }
func (p *Postgres) IdentityRecords() IdentityRecords { return &pgIdentity{q: p.querier} }
func (p *Postgres) AuditLog() AuditLog               { return &pgAudit{q: p.querier} }

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (p *Postgres) querier(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return p.db
}

type querierFunc func(ctx context.Context) querier

// DrainOutbox locks up to limit unpublished messages with SKIP LOCKED, hands
// them to publish and marks the accepted ones in the same transaction, so
// concurrent relays never deliver the same row twice.
func (p *Postgres) DrainOutbox(ctx context.Context, limit int, publish PublishFunc) (int, error) {
	var delivered int
	sqlTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox drain: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	rows, err := sqlTx.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return 0, fmt.Errorf("select outbox: %w", err)
	}
	var batch []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		if err := rows.Scan(&m.ID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Payload, &m.CreatedAt); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan outbox: %w", err)
		}
		batch = append(batch, m)
	}
	if err := rows.Close(); err != nil {
		return 0, fmt.Errorf("close outbox rows: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	accepted, pubErr := publish(ctx, batch)
	if len(accepted) > 0 {
		ids := make([]string, len(accepted))
		for i, a := range accepted {
			ids[i] = a.String()
		}
		if _, err := sqlTx.ExecContext(ctx,
			`UPDATE outbox SET published_at = now() WHERE id = ANY($1::uuid[])`, pq.Array(ids),
		); err != nil {
			return 0, fmt.Errorf("mark outbox published: %w", err)
		}
		delivered = len(accepted)
	}
	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox drain: %w", err)
	}
	return delivered, pubErr
}

// isUniqueViolation recognises SQLSTATE 23505 from either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func requireOneRow(res sql.Result, notMatched error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notMatched
	}
	return nil
}

var _ Store = (*Postgres)(nil)

// Package pgjournal provides a PostgreSQL implementation of journal.Journal.
package pgjournal

import (
	"context"
	_ "embed"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/klaxon/internal/alert"
	"github.com/linnemanlabs/klaxon/internal/journal"
)

var tracer = otel.Tracer("github.com/linnemanlabs/klaxon/internal/journal/pgjournal")

//go:embed schema.sql
var schema string

// DefaultLimit caps Recent when no limit is given.
const DefaultLimit = 1000

// Journal persists entries in PostgreSQL. The pool is owned by the caller.
type Journal struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Journal.
func New(ctx context.Context, pool *pgxpool.Pool) (*Journal, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Journal{pool: pool}, nil
}

// Record inserts one entry.
func (j *Journal) Record(ctx context.Context, e journal.Entry) error {
	ctx, span := tracer.Start(ctx, "pgjournal.Record", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
		attribute.String("klaxon.journal.event", string(e.Event)),
	))
	defer span.End()

	const q = `INSERT INTO alert_journal
		(alert_id, event, source, kind, lat, lng, created_at, origin, effects, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := j.pool.Exec(ctx, q,
		e.AlertID, string(e.Event), string(e.Source), e.Kind,
		nullable(e.Location.Lat), nullable(e.Location.Lng),
		e.CreatedAt, e.Origin, e.Effects, e.At.UTC(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. limit <= 0 means
// DefaultLimit.
func (j *Journal) Recent(ctx context.Context, limit int) ([]journal.Entry, error) {
	ctx, span := tracer.Start(ctx, "pgjournal.Recent", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}

	const q = `SELECT alert_id, event, source, kind, lat, lng, created_at, origin, effects, at
		FROM alert_journal ORDER BY at DESC, id DESC LIMIT $1`

	rows, err := j.pool.Query(ctx, q, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query journal: %w", err)
	}

	out, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	span.SetAttributes(attribute.Int("db.rows", len(out)))
	return out, nil
}

func scanEntry(row pgx.CollectableRow) (journal.Entry, error) {
	var (
		e             journal.Entry
		event, source string
		lat, lng      *float64
	)
	if err := row.Scan(&e.AlertID, &event, &source, &e.Kind, &lat, &lng, &e.CreatedAt, &e.Origin, &e.Effects, &e.At); err != nil {
		return journal.Entry{}, err
	}
	e.Event = journal.Event(event)
	e.Source = alert.Source(source)
	e.Location = alert.Unknown()
	if lat != nil {
		e.Location.Lat = *lat
	}
	if lng != nil {
		e.Location.Lng = *lng
	}
	return e, nil
}

// nullable maps NaN to SQL NULL.
func nullable(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

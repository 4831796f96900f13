package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sleeplog-backend/internal/models"
)

type PostgresLedger struct {
	pool *pgxpool.Pool
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

const entryColumns = "local_time, utc_time, timezone, latitude, longitude, duration"

func scanEntries(rows pgx.Rows) ([]models.LogEntry, error) {
	defer rows.Close()

	entries := []models.LogEntry{}
	for rows.Next() {
		var e models.LogEntry
		if err := rows.Scan(&e.LocalTime, &e.UTCTime, &e.TimezoneName, &e.Latitude, &e.Longitude, &e.Duration); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *PostgresLedger) Append(ctx context.Context, e models.LogEntry) error {
	query := `INSERT INTO sleep_entries (` + entryColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, e.LocalTime, e.UTCTime, e.TimezoneName, e.Latitude, e.Longitude, e.Duration)
	return err
}

func (r *PostgresLedger) ReplaceLast(ctx context.Context, e models.LogEntry) error {
	query := `UPDATE sleep_entries SET local_time = $1, utc_time = $2, timezone = $3,
			latitude = $4, longitude = $5, duration = $6
		WHERE seq = (SELECT MAX(seq) FROM sleep_entries)`
	tag, err := r.pool.Exec(ctx, query, e.LocalTime, e.UTCTime, e.TimezoneName, e.Latitude, e.Longitude, e.Duration)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoEntries
	}
	return nil
}

func (r *PostgresLedger) ReadRecent(ctx context.Context, n int) ([]models.LogEntry, error) {
	if n <= 0 {
		return []models.LogEntry{}, nil
	}
	query := `SELECT ` + entryColumns + ` FROM (
			SELECT seq, ` + entryColumns + ` FROM sleep_entries ORDER BY seq DESC LIMIT $1
		) recent ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent entries: %w", err)
	}
	return scanEntries(rows)
}

func (r *PostgresLedger) ReadAll(ctx context.Context) ([]models.LogEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM sleep_entries ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	return scanEntries(rows)
}

func (r *PostgresLedger) Last(ctx context.Context) (models.LastEntry, error) {
	var last models.LastEntry
	e := &last.Entry
	query := `SELECT ` + entryColumns + `, (SELECT COUNT(*) FROM sleep_entries)
		FROM sleep_entries ORDER BY seq DESC LIMIT 1`
	err := r.pool.QueryRow(ctx, query).Scan(&e.LocalTime, &e.UTCTime, &e.TimezoneName, &e.Latitude, &e.Longitude, &e.Duration, &last.Count)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.LastEntry{}, ErrNoEntries
	}
	if err != nil {
		return models.LastEntry{}, err
	}
	return last, nil
}

func (r *PostgresLedger) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM sleep_entries").Scan(&n)
	return n, err
}

var _ EntryLedger = (*PostgresLedger)(nil)

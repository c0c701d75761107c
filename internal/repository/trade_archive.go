package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
	drepo "github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/repository"
)

// ClickHouseArchive stores closed trade records in ClickHouse.
type ClickHouseArchive struct {
	db    *sql.DB
	table string
}

func NewClickHouseArchive(db *sql.DB, table string) drepo.TradeArchive {
	return &ClickHouseArchive{db: db, table: table}
}

// Schema returns the idempotent DDL for the archive table.
func Schema(database, table string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			id         String,
			bot_id     String,
			symbol     String,
			side       String,
			strategy   String,
			entry      Float64,
			exit       Float64,
			quantity   Float64,
			pnl        Float64,
			pnl_pct    Float64,
			opened_at  DateTime64(3),
			closed_at  DateTime64(3),
			reason     String
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(closed_at)
		ORDER BY (bot_id, closed_at)`, database, table),
	}
}

const archiveColumns = "id, bot_id, symbol, side, strategy, entry, exit, quantity, pnl, pnl_pct, opened_at, closed_at, reason"

// Archive batch-inserts closed trades. Chunked to keep single statements
// bounded.
func (a *ClickHouseArchive) Archive(ctx context.Context, records []*models.TradeRecord) error {
	if len(records) == 0 {
		return nil
	}
	const chunkSize = 1000
	for start := 0; start < len(records); start += chunkSize {
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*13)
		for _, r := range records[start:end] {
			if r == nil || r.BotID == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				r.ID, r.BotID, r.Symbol, string(r.Side), r.Strategy,
				r.EntryPrice, r.ExitPrice, r.Quantity, r.Pnl, r.PnlPct,
				r.OpenedAt, r.ClosedAt, string(r.Reason),
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", a.table, archiveColumns, strings.Join(values, ","))
		if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("archive insert: %w", err)
		}
	}
	return nil
}

// Query returns a bot's closed trades in the window, newest first.
func (a *ClickHouseArchive) Query(ctx context.Context, botID string, from, to time.Time, limit int) ([]*models.TradeRecord, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s
		WHERE bot_id = ? AND closed_at >= ? AND closed_at <= ?
		ORDER BY closed_at DESC LIMIT ?`, archiveColumns, a.table)
	rows, err := a.db.QueryContext(ctx, q, botID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("archive query: %w", err)
	}
	defer rows.Close()

	var out []*models.TradeRecord
	for rows.Next() {
		var r models.TradeRecord
		var side, reason string
		if err := rows.Scan(&r.ID, &r.BotID, &r.Symbol, &side, &r.Strategy,
			&r.EntryPrice, &r.ExitPrice, &r.Quantity, &r.Pnl, &r.PnlPct,
			&r.OpenedAt, &r.ClosedAt, &reason); err != nil {
			return nil, fmt.Errorf("archive scan: %w", err)
		}
		r.Side = models.SignalAction(side)
		r.Reason = models.CloseReason(reason)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (a *ClickHouseArchive) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close is a no-op; the pool is owned by the clickhouse client.
func (a *ClickHouseArchive) Close() error { return nil }

// NoopArchive is used when ClickHouse is disabled. Queries return empty.
type NoopArchive struct{}

func (NoopArchive) Archive(context.Context, []*models.TradeRecord) error { return nil }
func (NoopArchive) Query(context.Context, string, time.Time, time.Time, int) ([]*models.TradeRecord, error) {
	return nil, nil
}
func (NoopArchive) Health(context.Context) error { return nil }
func (NoopArchive) Close() error                 { return nil }

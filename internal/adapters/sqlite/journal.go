package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Journal implements the ports.IntentJournal interface using SQLite.
type Journal struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite journal.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewJournal opens (and if needed creates) the journal database.
func NewJournal(cfg Config) (*Journal, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite journal")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/signals.db" // Default path
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	// The execution worker is the only writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	j := &Journal{db: db, logger: cfg.Logger}
	if err := j.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite journal ready", map[string]interface{}{"path": dbPath})

	return j, nil
}

func (j *Journal) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trade_intents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		price REAL NOT NULL,
		amount REAL NOT NULL,
		strength REAL NOT NULL,
		candle_time INTEGER NOT NULL,
		rsi REAL NOT NULL,
		ma5 REAL NOT NULL,
		ma20 REAL NOT NULL,
		volume_ratio REAL NOT NULL,
		status TEXT NOT NULL,
		order_id INTEGER DEFAULT NULL,
		error TEXT DEFAULT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trade_intents_symbol_created ON trade_intents (symbol, created_at);
	`
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		j.logger.Info(context.Background(), "Closing SQLite database connection")
		return j.db.Close()
	}
	return nil
}

// Record saves a dispatched intent and returns its assigned ID.
func (j *Journal) Record(ctx context.Context, rec *ports.IntentRecord) (int64, error) {
	const query = `
	INSERT INTO trade_intents (symbol, side, price, amount, strength, candle_time,
	                           rsi, ma5, ma20, volume_ratio, status, order_id, error, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	var orderID sql.NullInt64
	if rec.OrderID != 0 {
		orderID = sql.NullInt64{Int64: rec.OrderID, Valid: true}
	}
	var errText sql.NullString
	if rec.Error != "" {
		errText = sql.NullString{String: rec.Error, Valid: true}
	}

	in := rec.Intent
	result, err := j.db.ExecContext(ctx, query,
		in.Symbol, string(in.Side), in.Price, in.Amount, in.Strength, in.Timestamp,
		in.Indicators.RSI, in.Indicators.MA5, in.Indicators.MA20, in.Indicators.VolumeRatio,
		string(rec.Status), orderID, errText, rec.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade intent for symbol %s: %w: %w", in.Symbol, ports.ErrQueryFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade intent %s: %w", in.Symbol, err)
	}
	rec.ID = id
	j.logger.Debug(ctx, "Trade intent recorded", map[string]interface{}{"intentID": id, "symbol": in.Symbol, "status": rec.Status})
	return id, nil
}

// Recent retrieves the most recent records for a symbol, newest first.
func (j *Journal) Recent(ctx context.Context, symbol string, limit int) ([]*ports.IntentRecord, error) {
	const query = `
	SELECT id, symbol, side, price, amount, strength, candle_time,
	       rsi, ma5, ma20, volume_ratio, status, order_id, error, created_at
	FROM trade_intents
	WHERE symbol = ? ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := j.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade intents for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	records := make([]*ports.IntentRecord, 0)
	for rows.Next() {
		rec, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade intent during Recent: %w", err)
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade intent rows: %w", err)
	}
	return records, nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanIntent(s scanner) (*ports.IntentRecord, error) {
	rec := &ports.IntentRecord{}
	var (
		side, status string
		orderID      sql.NullInt64
		errText      sql.NullString
	)
	in := &rec.Intent
	err := s.Scan(
		&rec.ID, &in.Symbol, &side, &in.Price, &in.Amount, &in.Strength, &in.Timestamp,
		&in.Indicators.RSI, &in.Indicators.MA5, &in.Indicators.MA20, &in.Indicators.VolumeRatio,
		&status, &orderID, &errText, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	in.Side = domain.OrderSide(side)
	rec.Status = domain.IntentStatus(status)
	if orderID.Valid {
		rec.OrderID = orderID.Int64
	}
	if errText.Valid {
		rec.Error = errText.String
	}
	return rec, nil
}

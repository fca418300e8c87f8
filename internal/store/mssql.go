package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
)

// Config holds the connection settings for the SQL Server-backed store.
type Config struct {
	Server   string
	Database string
	User     string
	Password string
	// MaxOpenConns and MaxIdleConns bound the pool each loop (producer,
	// consumer) opens; each loop owns its own *MSSQLStore, so these are
	// deliberately small — one live connection plus a little headroom.
	MaxOpenConns int
	MaxIdleConns int
}

// MSSQLStore implements Store against SQL Server via the three stored
// procedures the system depends on.
type MSSQLStore struct {
	db *sql.DB
}

// NewMSSQLStore opens a connection pool and verifies it with a ping.
func NewMSSQLStore(ctx context.Context, cfg Config) (*MSSQLStore, error) {
	dsn := fmt.Sprintf("server=%s;database=%s;user id=%s;password=%s",
		cfg.Server, cfg.Database, cfg.User, cfg.Password)

	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 2
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &MSSQLStore{db: db}, nil
}

func (s *MSSQLStore) Close() error {
	return s.db.Close()
}

// GetRequestQueue calls etran.GetRequestQueue and reads back every claimed
// row eagerly, closing the cursor before returning, so the caller is free
// to block on a bounded queue without holding the connection open.
func (s *MSSQLStore) GetRequestQueue(ctx context.Context, maxCount int) ([]ClaimedRow, error) {
	rows, err := s.db.QueryContext(ctx, "EXEC etran.GetRequestQueue @MaxCount = @p1", sql.Named("p1", maxCount))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var claimed []ClaimedRow
	for rows.Next() {
		var r ClaimedRow
		if err := rows.Scan(&r.ID, &r.TypeID, &r.Priority, &r.Query); err != nil {
			return nil, fmt.Errorf("store: scan claimed row: %w", err)
		}
		claimed = append(claimed, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return claimed, nil
}

// SetRequestResponse persists the decoded answer and releases the claim.
func (s *MSSQLStore) SetRequestResponse(ctx context.Context, requestID int64, isError bool, response string) error {
	_, err := s.db.ExecContext(ctx, "EXEC etran.SetRequestResponse @RequestID = @p1, @IsError = @p2, @Response = @p3",
		sql.Named("p1", requestID), sql.Named("p2", isError), sql.Named("p3", response))
	if err != nil {
		return classify(err)
	}
	return nil
}

// ResetProcessingQueue returns previously-claimed-but-unfinished rows to the
// pool; called once at boot.
func (s *MSSQLStore) ResetProcessingQueue(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "EXEC etran.ResetProcessingQueue")
	if err != nil {
		return classify(err)
	}
	return nil
}

// disconnectSentinel is the exact driver error text that means the
// connection itself has died and the session must be rebuilt, as opposed to
// a transient statement-level failure that should just be logged.
const disconnectSentinel = "The cursor's connection has been closed."

func classify(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), disconnectSentinel) {
		return &ErrDisconnected{Err: err}
	}
	return err
}

package ledger

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/permesh/permesh/internal/chain"
)

//go:embed migrations/*
var migrationsFS embed.FS

// PostgresStore is the pgx-backed ledger store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Pool exposes the underlying connection pool so the registry store and
// the metrics collectors can share it.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

func NewPostgresStore(connString string, maxConns uint) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL connection string: %w", err)
	}

	if maxConns > math.MaxInt32 {
		return nil, fmt.Errorf("max connections exceeds maximum int32 value")
	}
	if maxConns > 0 {
		config.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	store := &PostgresStore{pool: pool}

	// Run migrations. This is idempotent.
	if err = store.runMigrations(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) WriteBlockWithTransactions(ctx context.Context, block *chain.Block) error {
	payload, err := json.Marshal(block.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal block payload: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // Ensure rollback if commit is not reached

	_, err = tx.Exec(ctx, `
		INSERT INTO blocks (hash, previous_hash, height, nonce, miner_id, signer_id, signature, difficulty, timestamp, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (hash) DO NOTHING;
	`, block.HashHex(), block.PrevHash, block.Index, block.Nonce, block.MinerID,
		block.SignerID, block.Signature, block.Difficulty, block.Timestamp, payload)
	if err != nil {
		return fmt.Errorf("failed to write block %s: %w", block.HashHex(), err)
	}

	for _, txData := range block.Payload {
		_, err = tx.Exec(ctx, `
			INSERT INTO transactions (tx_hash, sender, receiver, amount, block_hash, status, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (tx_hash) DO UPDATE
			SET block_hash = EXCLUDED.block_hash, status = EXCLUDED.status;
		`, txData.ID, txData.Sender, txData.Receiver, txData.Amount,
			block.HashHex(), string(chain.TxCommitted), txData.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to write transaction %s: %w", txData.ID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetLatestBlock(ctx context.Context) (*chain.Block, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT hash, previous_hash, height, nonce, miner_id, signer_id, signature, difficulty, timestamp, payload
		FROM blocks
		ORDER BY height DESC
		LIMIT 1;
	`)
	return scanBlock(row)
}

func (s *PostgresStore) GetBlock(ctx context.Context, hash string) (*chain.Block, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT hash, previous_hash, height, nonce, miner_id, signer_id, signature, difficulty, timestamp, payload
		FROM blocks
		WHERE hash = $1;
	`, hash)
	return scanBlock(row)
}

func (s *PostgresStore) GetTransaction(ctx context.Context, txID string) (*chain.Transaction, error) {
	var (
		tx        chain.Transaction
		status    string
		blockHash *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT tx_hash, sender, receiver, amount, block_hash, status, timestamp
		FROM transactions
		WHERE tx_hash = $1;
	`, txID).Scan(&tx.ID, &tx.Sender, &tx.Receiver, &tx.Amount, &blockHash, &status, &tx.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // No rows found
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", txID, err)
	}
	tx.Status = chain.TxStatus(status)
	if blockHash != nil {
		tx.BlockRef = *blockHash
	}
	return &tx, nil
}

func scanBlock(row pgx.Row) (*chain.Block, error) {
	var (
		b       chain.Block
		payload []byte
	)
	err := row.Scan(&b.Hash, &b.PrevHash, &b.Index, &b.Nonce, &b.MinerID,
		&b.SignerID, &b.Signature, &b.Difficulty, &b.Timestamp, &payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // No rows found
		}
		return nil, fmt.Errorf("failed to scan block row: %w", err)
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &b.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal block payload: %w", err)
		}
	}
	return &b, nil
}

func (s *PostgresStore) runMigrations() error {
	slog.Info("Running PostgreSQL migrations...")

	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := migratepgx.WithInstance(stdlib.OpenDBFromPool(s.pool), &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer m.Close()

	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (s *PostgresStore) Close() error {
	slog.Info("Closing PostgreSQL connection pool")
	s.pool.Close()
	return nil
}

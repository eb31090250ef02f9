package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore backs the node registry with the shared ledger database.
// The nodes table is created by the ledger store's migrations; pass the
// pool obtained from ledger.NewPostgresStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Upsert(ctx context.Context, entry PeerEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO nodes (node_id, host, port, role, status, last_seen)
		VALUES ($1, $2, $3, $4, 'active', NOW())
		ON CONFLICT (node_id) DO UPDATE
		SET host = EXCLUDED.host, port = EXCLUDED.port, role = EXCLUDED.role,
		    status = 'active', last_seen = NOW();
	`, entry.NodeID, entry.Host, entry.Port, entry.Role)
	if err != nil {
		return fmt.Errorf("failed to upsert node %s: %w", entry.NodeID, err)
	}
	return nil
}

func (s *PostgresStore) Active(ctx context.Context, excludeID string) ([]PeerEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT node_id, host, port, role, status, last_seen
		FROM nodes
		WHERE status = 'active' AND node_id <> $1
		ORDER BY node_id;
	`, excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active nodes: %w", err)
	}
	defer rows.Close()

	var out []PeerEntry
	for rows.Next() {
		var e PeerEntry
		if err := rows.Scan(&e.NodeID, &e.Host, &e.Port, &e.Role, &e.Status, &e.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan node row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkStale(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE nodes SET status = 'stale'
		WHERE status = 'active' AND last_seen < NOW() - make_interval(secs => $1);
	`, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale nodes: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Close() error {
	slog.Info("Closing node registry")
	return nil
}

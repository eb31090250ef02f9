package sql

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

const CommittedTransactionCountQuery = `SELECT COUNT(*) FROM transactions WHERE status = 'Committed'`

// CommittedTransactionCountCollector collects the number of transactions
// that were included in an accepted block.
type CommittedTransactionCountCollector struct {
	db             *sql.DB
	committedCount *prometheus.Desc
}

func NewCommittedTransactionCountCollector(db *sql.DB) *CommittedTransactionCountCollector {
	return &CommittedTransactionCountCollector{
		db: db,
		committedCount: prometheus.NewDesc(
			prometheus.BuildFQName("permesh", "transactions", "committed_count"),
			"Committed transaction count",
			nil,
			prometheus.Labels{"source": "postgres"},
		),
	}
}

func (c *CommittedTransactionCountCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.committedCount
}

func (c *CommittedTransactionCountCollector) Collect(ch chan<- prometheus.Metric) {
	var count int64
	err := c.db.QueryRow(CommittedTransactionCountQuery).Scan(&count)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.committedCount, err)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.committedCount, prometheus.CounterValue, float64(count))
}

func init() {
	RegisterCollectorFactory(func(db *sql.DB, extraParams ...interface{}) (prometheus.Collector, error) {
		return NewCommittedTransactionCountCollector(db), nil
	})
}

package sql

import (
	"database/sql"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// SqlCollectorFactory builds one collector over the ledger database.
type SqlCollectorFactory func(db *sql.DB, extraParams ...interface{}) (prometheus.Collector, error)

// SqlRegistry collects factories registered by the collector files at init
// time, so adding a collector is just adding a file.
type SqlRegistry struct {
	factories []SqlCollectorFactory
}

func NewSqlRegistry() *SqlRegistry {
	return &SqlRegistry{}
}

func (r *SqlRegistry) Register(factory SqlCollectorFactory) {
	r.factories = append(r.factories, factory)
}

// CreateSqlCollectors instantiates every registered collector against db.
func (r *SqlRegistry) CreateSqlCollectors(db *sql.DB, extraParams ...interface{}) ([]prometheus.Collector, error) {
	if db == nil {
		return nil, errors.New("database connection is nil")
	}

	collectors := make([]prometheus.Collector, 0, len(r.factories))
	for _, factory := range r.factories {
		collector, err := factory(db, extraParams...)
		if err != nil {
			return nil, err
		}
		collectors = append(collectors, collector)
	}
	return collectors, nil
}

var DefaultSqlRegistry = NewSqlRegistry()

func RegisterCollectorFactory(factory SqlCollectorFactory) {
	DefaultSqlRegistry.Register(factory)
}

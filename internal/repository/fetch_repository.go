package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	"FinRelay/internal/domain/models"
	"FinRelay/internal/domain/repository"
	pkgkafka "FinRelay/pkg/kafka"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ClickHouseStorage implements Storage for ClickHouse.
type ClickHouseStorage struct {
	db       *sql.DB
	database string
	table    string
	closer   func() error
}

// NewClickHouseStorage creates ClickHouse storage writing to database.table.
// closer, when set, releases the pool on Close.
func NewClickHouseStorage(db *sql.DB, database, table string, closer func() error) (repository.Storage, error) {
	if !identPattern.MatchString(database) || !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid clickhouse identifier %q.%q", database, table)
	}
	return &ClickHouseStorage{db: db, database: database, table: table, closer: closer}, nil
}

func (s *ClickHouseStorage) qualified() string {
	return s.database + "." + s.table
}

// Init creates the database and table when missing.
func (s *ClickHouseStorage) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	event_id String,
	fetched_at DateTime64(3, 'UTC'),
	provider LowCardinality(String),
	source LowCardinality(String),
	endpoint LowCardinality(String),
	identifiers String,
	upstream_status UInt16,
	outcome LowCardinality(String),
	duration_ms UInt32,
	bytes UInt32
) ENGINE = MergeTree
PARTITION BY toYYYYMM(fetched_at)
ORDER BY (provider, endpoint, fetched_at)`, s.qualified()),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init %s: %w", s.qualified(), err)
		}
	}
	return nil
}

func (s *ClickHouseStorage) Store(ctx context.Context, ev *models.FetchEvent) error {
	ids, err := json.Marshal(ev.Identifiers)
	if err != nil {
		return fmt.Errorf("marshal identifiers: %w", err)
	}
	q := fmt.Sprintf("INSERT INTO %s (event_id, fetched_at, provider, source, endpoint, identifiers, upstream_status, outcome, duration_ms, bytes) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.qualified())
	_, err = s.db.ExecContext(ctx, q,
		ev.ID,
		ev.FetchedAt,
		ev.Provider,
		ev.Source,
		ev.Endpoint,
		string(ids),
		uint16(ev.UpstreamStatus),
		ev.Outcome,
		uint32(ev.DurationMs),
		uint32(ev.Bytes),
	)
	return err
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseStorage) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

// KafkaPublisher implements Publisher for Kafka.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer) repository.Publisher {
	return &KafkaPublisher{producer: producer}
}

// Publish keys messages by provider:endpoint so one operation stays on one partition.
func (p *KafkaPublisher) Publish(ctx context.Context, ev *models.FetchEvent) error {
	return p.producer.Publish(ctx, []byte(ev.Key()), ev)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql"

	faaserrors "github.com/R3E-Network/r3e-faas-go/pkg/errors"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

// ScyllaConfig configures the Cassandra/ScyllaDB-backed store.
type ScyllaConfig struct {
	Hosts       []string
	Keyspace    string
	Timeout     time.Duration
	Retries     int
	ConnectWait time.Duration
}

func NewScyllaConfig(host, port string) *ScyllaConfig {
	return &ScyllaConfig{
		Hosts:       []string{host + ":" + port},
		Keyspace:    "r3e_faas",
		Timeout:     30 * time.Second,
		Retries:     5,
		ConnectWait: 10 * time.Second,
	}
}

// ScyllaStore persists the registry keyspaces in ScyllaDB. Function
// metadata, code versions, the event log and execution records live in
// separate tables mirroring the prefix discipline of the Store contract.
type ScyllaStore struct {
	session *gocql.Session
}

var _ Store = (*ScyllaStore)(nil)

const scyllaSchema = `
CREATE TABLE IF NOT EXISTS functions (
	id bigint PRIMARY KEY,
	metadata text
);
CREATE TABLE IF NOT EXISTS function_versions (
	id bigint,
	version bigint,
	code text,
	PRIMARY KEY (id, version)
);
CREATE TABLE IF NOT EXISTS events (
	trigger_kind text,
	triggered_time bigint,
	event_id text,
	body text,
	PRIMARY KEY (trigger_kind, triggered_time, event_id)
);
CREATE TABLE IF NOT EXISTS executions (
	fid bigint,
	finished_at timestamp,
	task_id text,
	record text,
	PRIMARY KEY (fid, finished_at, task_id)
) WITH CLUSTERING ORDER BY (finished_at DESC);
CREATE TABLE IF NOT EXISTS counters (
	name text PRIMARY KEY,
	value counter
);
`

// NewScyllaStore connects to the cluster and ensures the schema exists.
func NewScyllaStore(cfg *ScyllaConfig) (*ScyllaStore, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Timeout = cfg.Timeout
	cluster.ConnectTimeout = cfg.ConnectWait
	cluster.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: cfg.Retries}
	cluster.Consistency = gocql.Quorum

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to scylla: %w", err)
	}

	store := &ScyllaStore{session: session}
	if err := store.ensureSchema(); err != nil {
		session.Close()
		return nil, err
	}
	return store, nil
}

func (s *ScyllaStore) ensureSchema() error {
	for _, stmt := range splitStatements(scyllaSchema) {
		if err := s.session.Query(stmt).Exec(); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func splitStatements(schema string) []string {
	var out []string
	for _, stmt := range strings.Split(schema, ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (s *ScyllaStore) PutFunction(ctx context.Context, fn types.FunctionMetadata) error {
	raw, err := json.Marshal(fn)
	if err != nil {
		return fmt.Errorf("failed to marshal function %d: %w", fn.ID, err)
	}
	return s.session.Query(
		`INSERT INTO functions (id, metadata) VALUES (?, ?)`,
		int64(fn.ID), string(raw),
	).WithContext(ctx).Exec()
}

func (s *ScyllaStore) GetFunction(ctx context.Context, id uint64) (types.FunctionMetadata, error) {
	var raw string
	err := s.session.Query(
		`SELECT metadata FROM functions WHERE id = ?`, int64(id),
	).WithContext(ctx).Scan(&raw)
	if errors.Is(err, gocql.ErrNotFound) {
		return types.FunctionMetadata{}, fmt.Errorf("function %d: %w", id, faaserrors.ErrNotFound)
	}
	if err != nil {
		return types.FunctionMetadata{}, err
	}
	var fn types.FunctionMetadata
	if err := json.Unmarshal([]byte(raw), &fn); err != nil {
		return types.FunctionMetadata{}, fmt.Errorf("corrupt function row %d: %w", id, err)
	}
	return fn, nil
}

func (s *ScyllaStore) DeleteFunction(ctx context.Context, id uint64) error {
	return s.session.Query(
		`DELETE FROM functions WHERE id = ?`, int64(id),
	).WithContext(ctx).Exec()
}

func (s *ScyllaStore) ListFunctions(ctx context.Context) ([]types.FunctionMetadata, error) {
	iter := s.session.Query(`SELECT metadata FROM functions`).WithContext(ctx).Iter()
	var out []types.FunctionMetadata
	var raw string
	for iter.Scan(&raw) {
		var fn types.FunctionMetadata
		if err := json.Unmarshal([]byte(raw), &fn); err != nil {
			continue
		}
		out = append(out, fn)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *ScyllaStore) NextFunctionID(ctx context.Context) (uint64, error) {
	if err := s.session.Query(
		`UPDATE counters SET value = value + 1 WHERE name = 'function_id'`,
	).WithContext(ctx).Exec(); err != nil {
		return 0, err
	}
	var value int64
	if err := s.session.Query(
		`SELECT value FROM counters WHERE name = 'function_id'`,
	).WithContext(ctx).Scan(&value); err != nil {
		return 0, err
	}
	return uint64(value), nil
}

func (s *ScyllaStore) PutFunctionVersion(ctx context.Context, code types.FunctionCode) error {
	return s.session.Query(
		`INSERT INTO function_versions (id, version, code) VALUES (?, ?, ?)`,
		int64(code.FID), int64(code.Version), code.Code,
	).WithContext(ctx).Exec()
}

func (s *ScyllaStore) GetFunctionVersion(ctx context.Context, id, version uint64) (types.FunctionCode, error) {
	var code string
	err := s.session.Query(
		`SELECT code FROM function_versions WHERE id = ? AND version = ?`,
		int64(id), int64(version),
	).WithContext(ctx).Scan(&code)
	if errors.Is(err, gocql.ErrNotFound) {
		return types.FunctionCode{}, fmt.Errorf("function %d version %d: %w", id, version, faaserrors.ErrNotFound)
	}
	if err != nil {
		return types.FunctionCode{}, err
	}
	return types.FunctionCode{FID: id, Version: version, Code: code}, nil
}

func (s *ScyllaStore) AppendEvent(ctx context.Context, event types.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.Data.ID, err)
	}
	return s.session.Query(
		`INSERT INTO events (trigger_kind, triggered_time, event_id, body) VALUES (?, ?, ?, ?)`,
		string(event.Context.Trigger), int64(event.Context.TriggeredTime), event.Data.ID, string(raw),
	).WithContext(ctx).Exec()
}

func (s *ScyllaStore) DeleteEvent(ctx context.Context, event types.Event) error {
	return s.session.Query(
		`DELETE FROM events WHERE trigger_kind = ? AND triggered_time = ? AND event_id = ?`,
		string(event.Context.Trigger), int64(event.Context.TriggeredTime), event.Data.ID,
	).WithContext(ctx).Exec()
}

func (s *ScyllaStore) ListEventsByTrigger(ctx context.Context, kind types.TriggerKind, from, to uint64) ([]types.Event, error) {
	query := `SELECT body FROM events WHERE trigger_kind = ? AND triggered_time >= ?`
	args := []interface{}{string(kind), int64(from)}
	if to > 0 {
		query += ` AND triggered_time <= ?`
		args = append(args, int64(to))
	}

	iter := s.session.Query(query, args...).WithContext(ctx).Iter()
	var out []types.Event
	var raw string
	for iter.Scan(&raw) {
		var event types.Event
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			continue
		}
		out = append(out, event)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ScyllaStore) AppendExecution(ctx context.Context, rec types.ExecutionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal execution record %s: %w", rec.TaskID, err)
	}
	return s.session.Query(
		`INSERT INTO executions (fid, finished_at, task_id, record) VALUES (?, ?, ?, ?)`,
		int64(rec.FID), rec.FinishedAt, rec.TaskID, string(raw),
	).WithContext(ctx).Exec()
}

func (s *ScyllaStore) ListExecutions(ctx context.Context, fid uint64, limit int) ([]types.ExecutionRecord, error) {
	query := `SELECT record FROM executions WHERE fid = ?`
	args := []interface{}{int64(fid)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	iter := s.session.Query(query, args...).WithContext(ctx).Iter()
	var out []types.ExecutionRecord
	var raw string
	for iter.Scan(&raw) {
		var rec types.ExecutionRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ScyllaStore) Close() {
	if s.session != nil {
		s.session.Close()
	}
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/snowflakedb/gosnowflake"

	"medallion/internal/payload"
	"medallion/pkg/errors"
	"medallion/pkg/models"
)

// Config holds Snowflake connection configuration
type Config struct {
	Account   string
	Username  string
	Password  string
	Database  string
	Schema    string
	Warehouse string
	Role      string
	Timeout   time.Duration
	BatchSize int // conformed rows per warehouse round-trip
}

// defaultBatchSize applies when the config carries no batch size.
const defaultBatchSize = 100

// Service provides Snowflake-backed storage for the pipeline's target tables.
type Service struct {
	db             *sql.DB
	config         Config
	connected      bool
	circuitBreaker *errors.CircuitBreaker
}

// NewService creates a new Snowflake service
func NewService(config Config) *Service {
	return &Service{
		config:         config,
		circuitBreaker: errors.NewCircuitBreaker("snowflake", 5, 30*time.Second),
	}
}

// Connect establishes a connection to Snowflake
func (s *Service) Connect() error {
	if s.connected {
		return nil
	}

	return s.circuitBreaker.Execute(context.Background(), func() error {
		return errors.RetryWithBackoff(context.Background(), func(ctx context.Context) error {
			dsn := fmt.Sprintf("%s:%s@%s/%s/%s?warehouse=%s&role=%s",
				s.config.Username,
				s.config.Password,
				s.config.Account,
				s.config.Database,
				s.config.Schema,
				s.config.Warehouse,
				s.config.Role,
			)

			db, err := sql.Open("snowflake", dsn)
			if err != nil {
				return errors.ConnectionError("Failed to open Snowflake connection", err).
					WithContext("account", s.config.Account).
					WithContext("warehouse", s.config.Warehouse)
			}

			db.SetMaxOpenConns(10)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(10 * time.Minute)

			connCtx, cancel := s.getContext()
			defer cancel()

			if err := db.PingContext(connCtx); err != nil {
				db.Close()

				if strings.Contains(err.Error(), "authentication") {
					return errors.New(errors.ErrCodeAuthenticationFailed, "Authentication failed").
						WithContext("user", s.config.Username).
						WithSuggestions(
							"Verify your username and password",
							"Check if your account is locked",
						)
				}

				return errors.ConnectionError("Failed to connect to Snowflake", err).
					WithContext("account", s.config.Account).
					AsRecoverable()
			}

			s.db = db
			s.connected = true
			return nil
		})
	})
}

// Close closes the database connection
func (s *Service) Close() error {
	if !s.connected {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	s.connected = false
	return nil
}

func (s *Service) getContext() (context.Context, context.CancelFunc) {
	timeout := s.config.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return context.WithTimeout(context.Background(), timeout)
}

// Entity binds the service to one entity's target tables. The returned store
// satisfies SnapshotSource, ConformedStore and LedgerStore; statements are
// built once here, at configuration time.
func (s *Service) Entity(entity models.Entity) *EntityStore {
	schema := entity.Schema()
	batch := s.config.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &EntityStore{
		svc:           s,
		entity:        entity,
		schema:        schema,
		batchSize:     batch,
		scanSQL:       BuildSnapshotScan(entity.SnapshotTable),
		cursorSQL:     BuildCursorQuery(entity.ConformedTable),
		rowsSQL:       BuildRowsQuery(entity.ConformedTable, schema),
		mergeSQL:      BuildConformedMergeBatch(entity.ConformedTable, schema, batch),
		openSQL:       BuildOpenIntervals(entity.LedgerTable),
		closeSQL:      BuildLedgerClose(entity.LedgerTable),
		insertSQL:     BuildLedgerInsert(entity.LedgerTable),
		intervalsSQL:  BuildIntervals(entity.LedgerTable),
		intervalAtSQL: BuildIntervalAt(entity.LedgerTable),
	}
}

// EnsureTables creates the entity's target tables when absent. Safe to call
// on every run.
func (s *Service) EnsureTables(ctx context.Context, entity models.Entity) error {
	if !s.connected {
		return errors.New(errors.ErrCodeConnectionFailed, "Not connected to Snowflake")
	}

	ddls := []string{
		BuildSnapshotDDL(entity.SnapshotTable),
		BuildConformedDDL(entity.ConformedTable, entity.Schema()),
		BuildLedgerDDL(entity.LedgerTable),
	}
	for _, ddl := range ddls {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return errors.SQLError("Failed to create target table", ddl, err)
		}
	}
	return nil
}

// RowCount returns the current row count of a table. Used by post-run checks.
func (s *Service) RowCount(ctx context.Context, table string) (int64, error) {
	if !s.connected {
		return 0, errors.New(errors.ErrCodeConnectionFailed, "Not connected to Snowflake")
	}

	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, errors.SQLError("Failed to count rows", query, err)
	}
	return count, nil
}

// EntityStore is the per-entity view of the Snowflake service.
type EntityStore struct {
	svc       *Service
	entity    models.Entity
	schema    models.Schema
	batchSize int

	scanSQL       string
	cursorSQL     string
	rowsSQL       string
	mergeSQL      string // merge statement for one full batch of batchSize rows
	openSQL       string
	closeSQL      string
	insertSQL     string
	intervalsSQL  string
	intervalAtSQL string
}

// Scan implements SnapshotSource.
func (e *EntityStore) Scan(ctx context.Context, since time.Time) ([]models.Snapshot, error) {
	rows, err := e.svc.db.QueryContext(ctx, e.scanSQL, since)
	if err != nil {
		return nil, errors.SQLError("Failed to scan snapshot stream", e.scanSQL, err)
	}
	defer rows.Close()

	var snaps []models.Snapshot
	for rows.Next() {
		var (
			snap  models.Snapshot
			batch sql.NullString
			raw   string
		)
		if err := rows.Scan(&snap.BusinessKey, &snap.ObservedAt, &snap.Seq, &batch, &raw); err != nil {
			return nil, errors.SQLError("Failed to read snapshot row", e.scanSQL, err)
		}
		snap.BatchID = batch.String
		if err := json.Unmarshal([]byte(raw), &snap.Payload); err != nil {
			// A corrupt VARIANT payload is a per-row condition. The nil
			// payload marks the row for the merge engine, which drops
			// it and counts it on the run result.
			snap.Payload = nil
		}
		snap.ObservedAt = snap.ObservedAt.UTC()
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Cursor implements ConformedStore.
func (e *EntityStore) Cursor(ctx context.Context) (time.Time, bool, error) {
	var max sql.NullTime
	if err := e.svc.db.QueryRowContext(ctx, e.cursorSQL).Scan(&max); err != nil {
		return time.Time{}, false, errors.SQLError("Failed to read merge cursor", e.cursorSQL, err)
	}
	if !max.Valid {
		return time.Time{}, false, nil
	}
	return max.Time.UTC(), true, nil
}

// Rows implements ConformedStore.
func (e *EntityStore) Rows(ctx context.Context) ([]models.ConformedRow, error) {
	rows, err := e.svc.db.QueryContext(ctx, e.rowsSQL)
	if err != nil {
		return nil, errors.SQLError("Failed to read conformed rows", e.rowsSQL, err)
	}
	defer rows.Close()

	var out []models.ConformedRow
	for rows.Next() {
		row, err := e.scanConformed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (e *EntityStore) scanConformed(rows *sql.Rows) (models.ConformedRow, error) {
	fieldCount := len(e.schema.Fields)
	dest := make([]interface{}, fieldCount+5)
	var (
		key      int64
		observed time.Time
		seq      int64
		batch    sql.NullString
		loaded   time.Time
	)
	dest[0] = &key
	raw := make([]interface{}, fieldCount)
	for i := range raw {
		dest[i+1] = &raw[i]
	}
	dest[fieldCount+1] = &observed
	dest[fieldCount+2] = &seq
	dest[fieldCount+3] = &batch
	dest[fieldCount+4] = &loaded

	if err := rows.Scan(dest...); err != nil {
		return models.ConformedRow{}, errors.SQLError("Failed to read conformed row", e.rowsSQL, err)
	}

	fields := make(map[string]interface{}, fieldCount)
	for i, spec := range e.schema.Fields {
		fields[spec.Name] = normalizeScanned(raw[i], spec.Type)
	}

	return models.ConformedRow{
		BusinessKey:      key,
		Fields:           fields,
		SourceObservedAt: observed.UTC(),
		SourceSeq:        seq,
		BatchID:          batch.String,
		LoadedAt:         loaded.UTC(),
	}, nil
}

// Upsert implements ConformedStore. The whole batch runs in one transaction:
// either every row commits or none do.
func (e *EntityStore) Upsert(ctx context.Context, rows []models.ConformedRow) (UpsertStats, error) {
	if len(rows) == 0 {
		return UpsertStats{}, nil
	}

	existing, err := e.existingKeys(ctx)
	if err != nil {
		return UpsertStats{}, err
	}

	tx, err := e.svc.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertStats{}, errors.TransactionError("Failed to begin merge transaction", err)
	}

	argsPerRow := len(e.schema.Fields) + 5

	var stats UpsertStats
	for start := 0; start < len(rows); start += e.batchSize {
		end := start + e.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		stmt := e.mergeSQL
		if len(chunk) < e.batchSize {
			stmt = BuildConformedMergeBatch(e.entity.ConformedTable, e.schema, len(chunk))
		}

		args := make([]interface{}, 0, len(chunk)*argsPerRow)
		for _, row := range chunk {
			args = append(args, e.mergeArgs(row)...)
		}

		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			tx.Rollback()
			return UpsertStats{}, errors.TransactionError("Merge batch aborted", err).
				WithContext("business_key", chunk[0].BusinessKey)
		}

		for _, row := range chunk {
			if existing[row.BusinessKey] {
				stats.Updated++
			} else {
				stats.Inserted++
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertStats{}, errors.TransactionError("Failed to commit merge transaction", err)
	}
	return stats, nil
}

func (e *EntityStore) existingKeys(ctx context.Context) (map[int64]bool, error) {
	query := fmt.Sprintf("SELECT BUSINESS_KEY FROM %s", e.entity.ConformedTable)
	rows, err := e.svc.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.SQLError("Failed to read existing keys", query, err)
	}
	defer rows.Close()

	keys := make(map[int64]bool)
	for rows.Next() {
		var key int64
		if err := rows.Scan(&key); err != nil {
			return nil, errors.SQLError("Failed to read existing keys", query, err)
		}
		keys[key] = true
	}
	return keys, rows.Err()
}

func (e *EntityStore) mergeArgs(row models.ConformedRow) []interface{} {
	args := make([]interface{}, 0, len(e.schema.Fields)+5)
	args = append(args, row.BusinessKey)
	for _, spec := range e.schema.Fields {
		args = append(args, bindValue(row.Fields[spec.Name], spec.Type))
	}
	args = append(args, row.SourceObservedAt, row.SourceSeq, row.BatchID, row.LoadedAt)
	return args
}

// OpenIntervals implements LedgerStore.
func (e *EntityStore) OpenIntervals(ctx context.Context) (map[int64]models.LedgerInterval, error) {
	rows, err := e.svc.db.QueryContext(ctx, e.openSQL)
	if err != nil {
		return nil, errors.SQLError("Failed to read open intervals", e.openSQL, err)
	}
	defer rows.Close()

	open := make(map[int64]models.LedgerInterval)
	for rows.Next() {
		iv, err := e.scanInterval(rows)
		if err != nil {
			return nil, err
		}
		open[iv.BusinessKey] = iv
	}
	return open, rows.Err()
}

// Apply implements LedgerStore. Closes and opens commit as one transaction.
func (e *EntityStore) Apply(ctx context.Context, closes []IntervalClose, opens []models.LedgerInterval) error {
	if len(closes) == 0 && len(opens) == 0 {
		return nil
	}

	tx, err := e.svc.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.TransactionError("Failed to begin ledger transaction", err)
	}

	for _, c := range closes {
		if _, err := tx.ExecContext(ctx, e.closeSQL, c.ValidTo, c.BusinessKey); err != nil {
			tx.Rollback()
			return errors.TransactionError("Ledger close aborted", err).
				WithContext("business_key", c.BusinessKey)
		}
	}

	for _, iv := range opens {
		attrs, err := json.Marshal(canonicalAttributes(iv.Attributes))
		if err != nil {
			tx.Rollback()
			return errors.Wrap(err, errors.ErrCodeLedgerFailed, "Failed to encode interval attributes").
				WithContext("business_key", iv.BusinessKey)
		}
		if _, err := tx.ExecContext(ctx, e.insertSQL, iv.BusinessKey, string(attrs), iv.ValidFrom); err != nil {
			tx.Rollback()
			return errors.TransactionError("Ledger insert aborted", err).
				WithContext("business_key", iv.BusinessKey)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.TransactionError("Failed to commit ledger transaction", err)
	}
	return nil
}

// Intervals implements LedgerStore.
func (e *EntityStore) Intervals(ctx context.Context, key int64) ([]models.LedgerInterval, error) {
	rows, err := e.svc.db.QueryContext(ctx, e.intervalsSQL, key)
	if err != nil {
		return nil, errors.SQLError("Failed to read ledger intervals", e.intervalsSQL, err)
	}
	defer rows.Close()

	var out []models.LedgerInterval
	for rows.Next() {
		iv, err := e.scanInterval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

// IntervalAt implements LedgerStore.
func (e *EntityStore) IntervalAt(ctx context.Context, key int64, t time.Time) (models.LedgerInterval, bool, error) {
	rows, err := e.svc.db.QueryContext(ctx, e.intervalAtSQL, key, t, t)
	if err != nil {
		return models.LedgerInterval{}, false, errors.SQLError("Point-in-time query failed", e.intervalAtSQL, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return models.LedgerInterval{}, false, rows.Err()
	}
	iv, err := e.scanInterval(rows)
	if err != nil {
		return models.LedgerInterval{}, false, err
	}
	return iv, true, nil
}

func (e *EntityStore) scanInterval(rows *sql.Rows) (models.LedgerInterval, error) {
	var (
		iv      models.LedgerInterval
		attrs   string
		validTo sql.NullTime
	)
	if err := rows.Scan(&iv.BusinessKey, &attrs, &iv.ValidFrom, &validTo); err != nil {
		return models.LedgerInterval{}, errors.SQLError("Failed to read ledger interval", e.intervalsSQL, err)
	}
	iv.ValidFrom = iv.ValidFrom.UTC()
	if validTo.Valid {
		t := validTo.Time.UTC()
		iv.ValidTo = &t
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(attrs), &decoded); err != nil {
		return models.LedgerInterval{}, errors.Wrap(err, errors.ErrCodeLedgerFailed, "Failed to decode interval attributes").
			WithContext("business_key", iv.BusinessKey)
	}
	iv.Attributes = e.normalizeAttributes(decoded)
	return iv, nil
}

// normalizeAttributes re-types a JSON-decoded tuple through the entity schema
// so tuples read back from the warehouse compare equal to tuples built from
// conformed rows.
func (e *EntityStore) normalizeAttributes(decoded map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(decoded))
	for name, raw := range decoded {
		if spec, ok := e.schema.Field(name); ok {
			out[name] = normalizeScanned(raw, spec.Type)
		} else {
			// Attributes outside the schema (drift) pass through untouched.
			out[name] = raw
		}
	}
	return out
}

// normalizeScanned coerces a driver- or JSON-sourced value into the
// conformed representation for its field type. Unexpected shapes degrade to
// nil per the safe-parse policy.
func normalizeScanned(raw interface{}, ft models.FieldType) interface{} {
	if raw == nil {
		return nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	if s, ok := raw.(string); ok && ft == models.FieldStringList {
		var decoded interface{}
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			raw = decoded
		}
	}
	v, ok := payload.Cast(raw, ft)
	if !ok {
		return nil
	}
	return v
}

// bindValue converts a conformed field value into its driver representation.
func bindValue(v interface{}, ft models.FieldType) interface{} {
	if v == nil {
		return nil
	}
	if ft == models.FieldStringList {
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(encoded)
	}
	return v
}

// canonicalAttributes renders tuple values in JSON-stable form (timestamps as
// RFC 3339 text) so a round trip through the VARIANT column is loss-free.
func canonicalAttributes(attrs map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	for name, v := range attrs {
		if t, ok := v.(time.Time); ok {
			out[name] = t.UTC().Format(time.RFC3339Nano)
			continue
		}
		out[name] = v
	}
	return out
}

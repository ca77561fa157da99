package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/provider-hub/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS service_providers (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	type         TEXT NOT NULL,
	is_active    INTEGER NOT NULL DEFAULT 1,
	priority     INTEGER NOT NULL DEFAULT 1,
	capabilities TEXT NOT NULL DEFAULT '[]',
	config       TEXT NOT NULL DEFAULT '{}',
	limits       TEXT NOT NULL DEFAULT '{}',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (name, type)
);

CREATE TABLE IF NOT EXISTS operation_mappings (
	id          TEXT PRIMARY KEY,
	operation   TEXT NOT NULL,
	provider_id TEXT NOT NULL REFERENCES service_providers(id) ON DELETE CASCADE,
	is_enabled  INTEGER NOT NULL DEFAULT 1,
	priority    INTEGER NOT NULL DEFAULT 1,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (operation, provider_id)
);

CREATE TABLE IF NOT EXISTS system_config (
	key          TEXT PRIMARY KEY,
	value        TEXT NOT NULL,
	is_encrypted INTEGER NOT NULL DEFAULT 0,
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_providers_type ON service_providers(type);
CREATE INDEX IF NOT EXISTS idx_providers_priority ON service_providers(priority);
CREATE INDEX IF NOT EXISTS idx_mappings_operation ON operation_mappings(operation);
CREATE INDEX IF NOT EXISTS idx_mappings_provider ON operation_mappings(provider_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateProvider(ctx context.Context, p *model.ServiceProvider) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	caps, cfg, limits, err := marshalProviderBlobs(p)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO service_providers (id, name, type, is_active, priority, capabilities, config, limits, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, string(p.Type), p.IsActive, p.Priority, caps, cfg, limits, now, now,
	)
	if isSQLiteConflict(err) {
		return eris.Wrapf(ErrConflict, "sqlite: provider (%s, %s) exists", p.Name, p.Type)
	}
	return eris.Wrap(err, "sqlite: insert provider")
}

func (s *SQLiteStore) GetProvider(ctx context.Context, id string) (*model.ServiceProvider, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, is_active, priority, capabilities, config, limits, created_at, updated_at
		 FROM service_providers WHERE id = ?`, id)
	return scanProvider(row)
}

func (s *SQLiteStore) FindProvider(ctx context.Context, name string, typ model.ServiceType) (*model.ServiceProvider, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, is_active, priority, capabilities, config, limits, created_at, updated_at
		 FROM service_providers WHERE name = ? AND type = ?`, name, string(typ))
	return scanProvider(row)
}

func (s *SQLiteStore) UpdateProvider(ctx context.Context, p *model.ServiceProvider) error {
	p.UpdatedAt = time.Now().UTC()

	caps, cfg, limits, err := marshalProviderBlobs(p)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE service_providers
		 SET name = ?, type = ?, is_active = ?, priority = ?, capabilities = ?, config = ?, limits = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, string(p.Type), p.IsActive, p.Priority, caps, cfg, limits, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update provider %s", p.ID)
	}
	return checkRowsAffected(res, "provider", p.ID)
}

func (s *SQLiteStore) UpdateProviderPriority(ctx context.Context, id string, priority int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE service_providers SET priority = ?, updated_at = ? WHERE id = ?`,
		priority, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update provider priority %s", id)
	}
	return checkRowsAffected(res, "provider", id)
}

func (s *SQLiteStore) SetProviderActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE service_providers SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set provider active %s", id)
	}
	return checkRowsAffected(res, "provider", id)
}

func (s *SQLiteStore) DeleteProvider(ctx context.Context, id string) error {
	// Mapping rows go with the provider; ON DELETE CASCADE handles them.
	res, err := s.db.ExecContext(ctx, `DELETE FROM service_providers WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete provider %s", id)
	}
	return checkRowsAffected(res, "provider", id)
}

func (s *SQLiteStore) ListProviders(ctx context.Context, filter ProviderFilter) ([]model.ServiceProvider, error) {
	query := `SELECT id, name, type, is_active, priority, capabilities, config, limits, created_at, updated_at
		FROM service_providers`
	var conds []string
	var args []any
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.ActiveOnly {
		conds = append(conds, "is_active = 1")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY priority ASC, created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list providers")
	}
	defer rows.Close()

	var out []model.ServiceProvider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list providers")
}

func (s *SQLiteStore) CreateMapping(ctx context.Context, m *model.OperationMapping) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO operation_mappings (id, operation, provider_id, is_enabled, priority, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, string(m.Operation), m.ProviderID, m.IsEnabled, m.Priority, now, now,
	)
	if isSQLiteConflict(err) {
		return eris.Wrapf(ErrConflict, "sqlite: mapping (%s, %s) exists", m.Operation, m.ProviderID)
	}
	return eris.Wrap(err, "sqlite: insert mapping")
}

func (s *SQLiteStore) GetMapping(ctx context.Context, id string) (*model.OperationMapping, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, operation, provider_id, is_enabled, priority, created_at, updated_at
		 FROM operation_mappings WHERE id = ?`, id)
	return scanMapping(row)
}

// ListMappingsForOperation returns mappings joined with their provider,
// ordered by provider priority first and mapping priority second. The
// provider-global priority dominating means a single provider edit reorders
// that provider across every operation.
func (s *SQLiteStore) ListMappingsForOperation(ctx context.Context, op model.Operation) ([]model.MappingCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.operation, m.provider_id, m.is_enabled, m.priority, m.created_at, m.updated_at,
		        p.id, p.name, p.type, p.is_active, p.priority, p.capabilities, p.config, p.limits, p.created_at, p.updated_at
		 FROM operation_mappings m
		 JOIN service_providers p ON p.id = m.provider_id
		 WHERE m.operation = ?
		 ORDER BY p.priority ASC, m.priority ASC, m.created_at ASC, m.id ASC`,
		string(op),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list mappings for %s", op)
	}
	defer rows.Close()

	var out []model.MappingCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: list mappings for %s", op)
}

func (s *SQLiteStore) ListMappingsForProvider(ctx context.Context, providerID string) ([]model.OperationMapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, operation, provider_id, is_enabled, priority, created_at, updated_at
		 FROM operation_mappings WHERE provider_id = ? ORDER BY operation ASC`, providerID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list mappings for provider %s", providerID)
	}
	defer rows.Close()

	var out []model.OperationMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list mappings for provider")
}

func (s *SQLiteStore) SetMappingEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE operation_mappings SET is_enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set mapping enabled %s", id)
	}
	return checkRowsAffected(res, "mapping", id)
}

func (s *SQLiteStore) SetMappingPriority(ctx context.Context, id string, priority int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE operation_mappings SET priority = ?, updated_at = ? WHERE id = ?`,
		priority, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set mapping priority %s", id)
	}
	return checkRowsAffected(res, "mapping", id)
}

// AlignMappingPriorities sets the priority of every mapping referencing the
// provider to the provider row's current priority, in one statement. Reading
// the priority inside the UPDATE keeps a concurrent priority edit from being
// overwritten with a stale value. The returned count excludes rows already at
// the target priority, which is what makes repeat syncs report zero updates.
func (s *SQLiteStore) AlignMappingPriorities(ctx context.Context, providerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE operation_mappings
		 SET priority = (SELECT priority FROM service_providers WHERE id = operation_mappings.provider_id),
		     updated_at = ?
		 WHERE provider_id = ?
		   AND priority != (SELECT priority FROM service_providers WHERE id = operation_mappings.provider_id)`,
		time.Now().UTC(), providerID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: sync mapping priorities for %s", providerID)
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) DeleteMapping(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM operation_mappings WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete mapping %s", id)
	}
	return checkRowsAffected(res, "mapping", id)
}

func (s *SQLiteStore) GetSystemConfig(ctx context.Context, key string) (*SystemConfigEntry, error) {
	var e SystemConfigEntry
	err := s.db.QueryRowContext(ctx,
		`SELECT key, value, is_encrypted FROM system_config WHERE key = ?`, key,
	).Scan(&e.Key, &e.Value, &e.IsEncrypted)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: system config %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get system config %s", key)
	}
	return &e, nil
}

func (s *SQLiteStore) SetSystemConfig(ctx context.Context, entry SystemConfigEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO system_config (key, value, is_encrypted, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, is_encrypted = excluded.is_encrypted, updated_at = excluded.updated_at`,
		entry.Key, entry.Value, entry.IsEncrypted, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: set system config %s", entry.Key)
}

// scannable lets the row-scan helpers work with both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanProvider(row scannable) (*model.ServiceProvider, error) {
	var p model.ServiceProvider
	var typ, caps, cfg, limits string

	err := row.Scan(&p.ID, &p.Name, &typ, &p.IsActive, &p.Priority, &caps, &cfg, &limits, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "sqlite: provider")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan provider")
	}

	p.Type = model.ServiceType(typ)
	if err := unmarshalProviderBlobs(&p, caps, cfg, limits); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanMapping(row scannable) (*model.OperationMapping, error) {
	var m model.OperationMapping
	var op string

	err := row.Scan(&m.ID, &op, &m.ProviderID, &m.IsEnabled, &m.Priority, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "sqlite: mapping")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan mapping")
	}

	m.Operation = model.Operation(op)
	return &m, nil
}

func scanCandidate(row scannable) (*model.MappingCandidate, error) {
	var c model.MappingCandidate
	var op, typ, caps, cfg, limits string

	err := row.Scan(
		&c.Mapping.ID, &op, &c.Mapping.ProviderID, &c.Mapping.IsEnabled, &c.Mapping.Priority,
		&c.Mapping.CreatedAt, &c.Mapping.UpdatedAt,
		&c.Provider.ID, &c.Provider.Name, &typ, &c.Provider.IsActive, &c.Provider.Priority,
		&caps, &cfg, &limits, &c.Provider.CreatedAt, &c.Provider.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan candidate")
	}

	c.Mapping.Operation = model.Operation(op)
	c.Provider.Type = model.ServiceType(typ)
	if err := unmarshalProviderBlobs(&c.Provider, caps, cfg, limits); err != nil {
		return nil, err
	}
	return &c, nil
}

func marshalProviderBlobs(p *model.ServiceProvider) (caps, cfg, limits string, err error) {
	capsB, err := json.Marshal(p.Capabilities)
	if err != nil {
		return "", "", "", eris.Wrap(err, "store: marshal capabilities")
	}
	cfgB, err := json.Marshal(p.Config)
	if err != nil {
		return "", "", "", eris.Wrap(err, "store: marshal config")
	}
	limitsB, err := json.Marshal(p.Limits)
	if err != nil {
		return "", "", "", eris.Wrap(err, "store: marshal limits")
	}
	return string(capsB), string(cfgB), string(limitsB), nil
}

func unmarshalProviderBlobs(p *model.ServiceProvider, caps, cfg, limits string) error {
	if err := json.Unmarshal([]byte(caps), &p.Capabilities); err != nil {
		return eris.Wrap(err, "store: unmarshal capabilities")
	}
	if err := json.Unmarshal([]byte(cfg), &p.Config); err != nil {
		return eris.Wrap(err, "store: unmarshal config")
	}
	if err := json.Unmarshal([]byte(limits), &p.Limits); err != nil {
		return eris.Wrap(err, "store: unmarshal limits")
	}
	return nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", kind, id)
	}
	return nil
}

func isSQLiteConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

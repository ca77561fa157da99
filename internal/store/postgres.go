package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-hub/internal/db"
	"github.com/sells-group/provider-hub/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for the
// hot paths: candidate listing during dispatch and the synchronizer's bulk
// priority update.
var preparedStatements = map[string]string{
	"get_provider":      `SELECT id, name, type, is_active, priority, capabilities, config, limits, created_at, updated_at FROM service_providers WHERE id = $1`,
	"find_provider":     `SELECT id, name, type, is_active, priority, capabilities, config, limits, created_at, updated_at FROM service_providers WHERE name = $1 AND type = $2`,
	"update_priority":   `UPDATE service_providers SET priority = $1, updated_at = $2 WHERE id = $3`,
	"sync_mapping_prio": `UPDATE operation_mappings m SET priority = p.priority, updated_at = $1
		FROM service_providers p
		WHERE p.id = m.provider_id AND m.provider_id = $2 AND m.priority != p.priority`,
	"list_candidates": `SELECT m.id, m.operation, m.provider_id, m.is_enabled, m.priority, m.created_at, m.updated_at,
		p.id, p.name, p.type, p.is_active, p.priority, p.capabilities, p.config, p.limits, p.created_at, p.updated_at
		FROM operation_mappings m JOIN service_providers p ON p.id = m.provider_id
		WHERE m.operation = $1
		ORDER BY p.priority ASC, m.priority ASC, m.created_at ASC, m.id ASC`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS service_providers (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	type         TEXT NOT NULL,
	is_active    BOOLEAN NOT NULL DEFAULT true,
	priority     INTEGER NOT NULL DEFAULT 1,
	capabilities JSONB NOT NULL DEFAULT '[]',
	config       JSONB NOT NULL DEFAULT '{}',
	limits       JSONB NOT NULL DEFAULT '{}',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (name, type)
);

CREATE TABLE IF NOT EXISTS operation_mappings (
	id          TEXT PRIMARY KEY,
	operation   TEXT NOT NULL,
	provider_id TEXT NOT NULL REFERENCES service_providers(id) ON DELETE CASCADE,
	is_enabled  BOOLEAN NOT NULL DEFAULT true,
	priority    INTEGER NOT NULL DEFAULT 1,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (operation, provider_id)
);

CREATE TABLE IF NOT EXISTS system_config (
	key          TEXT PRIMARY KEY,
	value        TEXT NOT NULL,
	is_encrypted BOOLEAN NOT NULL DEFAULT false,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_providers_type ON service_providers(type);
CREATE INDEX IF NOT EXISTS idx_providers_priority ON service_providers(priority);
CREATE INDEX IF NOT EXISTS idx_mappings_operation ON operation_mappings(operation);
CREATE INDEX IF NOT EXISTS idx_mappings_provider ON operation_mappings(provider_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateProvider(ctx context.Context, p *model.ServiceProvider) error {
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO service_providers (id, name, type, is_active, priority, capabilities, config, limits, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.Name, string(p.Type), p.IsActive, p.Priority, caps, cfg, limits, now, now,
	)
	if isPostgresConflict(err) {
		return eris.Wrapf(ErrConflict, "postgres: provider (%s, %s) exists", p.Name, p.Type)
	}
	return eris.Wrap(err, "postgres: insert provider")
}

func (s *PostgresStore) GetProvider(ctx context.Context, id string) (*model.ServiceProvider, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, type, is_active, priority, capabilities, config, limits, created_at, updated_at
		 FROM service_providers WHERE id = $1`, id)
	return scanPgProvider(row)
}

func (s *PostgresStore) FindProvider(ctx context.Context, name string, typ model.ServiceType) (*model.ServiceProvider, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, type, is_active, priority, capabilities, config, limits, created_at, updated_at
		 FROM service_providers WHERE name = $1 AND type = $2`, name, string(typ))
	return scanPgProvider(row)
}

func (s *PostgresStore) UpdateProvider(ctx context.Context, p *model.ServiceProvider) error {
	p.UpdatedAt = time.Now().UTC()

	caps, cfg, limits, err := marshalProviderBlobs(p)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE service_providers
		 SET name = $1, type = $2, is_active = $3, priority = $4, capabilities = $5, config = $6, limits = $7, updated_at = $8
		 WHERE id = $9`,
		p.Name, string(p.Type), p.IsActive, p.Priority, caps, cfg, limits, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update provider %s", p.ID)
	}
	return checkTag(tag, "provider", p.ID)
}

func (s *PostgresStore) UpdateProviderPriority(ctx context.Context, id string, priority int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE service_providers SET priority = $1, updated_at = $2 WHERE id = $3`,
		priority, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update provider priority %s", id)
	}
	return checkTag(tag, "provider", id)
}

func (s *PostgresStore) SetProviderActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE service_providers SET is_active = $1, updated_at = $2 WHERE id = $3`,
		active, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set provider active %s", id)
	}
	return checkTag(tag, "provider", id)
}

func (s *PostgresStore) DeleteProvider(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM service_providers WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete provider %s", id)
	}
	return checkTag(tag, "provider", id)
}

func (s *PostgresStore) ListProviders(ctx context.Context, filter ProviderFilter) ([]model.ServiceProvider, error) {
	query := `SELECT id, name, type, is_active, priority, capabilities, config, limits, created_at, updated_at
		FROM service_providers WHERE ($1 = '' OR type = $1) AND (NOT $2 OR is_active)
		ORDER BY priority ASC, created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, string(filter.Type), filter.ActiveOnly)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list providers")
	}
	defer rows.Close()

	var out []model.ServiceProvider
	for rows.Next() {
		p, err := scanPgProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list providers")
}

func (s *PostgresStore) CreateMapping(ctx context.Context, m *model.OperationMapping) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO operation_mappings (id, operation, provider_id, is_enabled, priority, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, string(m.Operation), m.ProviderID, m.IsEnabled, m.Priority, now, now,
	)
	if isPostgresConflict(err) {
		return eris.Wrapf(ErrConflict, "postgres: mapping (%s, %s) exists", m.Operation, m.ProviderID)
	}
	return eris.Wrap(err, "postgres: insert mapping")
}

func (s *PostgresStore) GetMapping(ctx context.Context, id string) (*model.OperationMapping, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, operation, provider_id, is_enabled, priority, created_at, updated_at
		 FROM operation_mappings WHERE id = $1`, id)
	return scanPgMapping(row)
}

func (s *PostgresStore) ListMappingsForOperation(ctx context.Context, op model.Operation) ([]model.MappingCandidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.operation, m.provider_id, m.is_enabled, m.priority, m.created_at, m.updated_at,
		        p.id, p.name, p.type, p.is_active, p.priority, p.capabilities, p.config, p.limits, p.created_at, p.updated_at
		 FROM operation_mappings m JOIN service_providers p ON p.id = m.provider_id
		 WHERE m.operation = $1
		 ORDER BY p.priority ASC, m.priority ASC, m.created_at ASC, m.id ASC`,
		string(op),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list mappings for %s", op)
	}
	defer rows.Close()

	var out []model.MappingCandidate
	for rows.Next() {
		c, err := scanPgCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: list mappings for %s", op)
}

func (s *PostgresStore) ListMappingsForProvider(ctx context.Context, providerID string) ([]model.OperationMapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, operation, provider_id, is_enabled, priority, created_at, updated_at
		 FROM operation_mappings WHERE provider_id = $1 ORDER BY operation ASC`, providerID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list mappings for provider %s", providerID)
	}
	defer rows.Close()

	var out []model.OperationMapping
	for rows.Next() {
		m, err := scanPgMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list mappings for provider")
}

func (s *PostgresStore) SetMappingEnabled(ctx context.Context, id string, enabled bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE operation_mappings SET is_enabled = $1, updated_at = $2 WHERE id = $3`,
		enabled, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set mapping enabled %s", id)
	}
	return checkTag(tag, "mapping", id)
}

func (s *PostgresStore) SetMappingPriority(ctx context.Context, id string, priority int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE operation_mappings SET priority = $1, updated_at = $2 WHERE id = $3`,
		priority, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set mapping priority %s", id)
	}
	return checkTag(tag, "mapping", id)
}

func (s *PostgresStore) AlignMappingPriorities(ctx context.Context, providerID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE operation_mappings m SET priority = p.priority, updated_at = $1
		 FROM service_providers p
		 WHERE p.id = m.provider_id AND m.provider_id = $2 AND m.priority != p.priority`,
		time.Now().UTC(), providerID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: sync mapping priorities for %s", providerID)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteMapping(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM operation_mappings WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete mapping %s", id)
	}
	return checkTag(tag, "mapping", id)
}

func (s *PostgresStore) GetSystemConfig(ctx context.Context, key string) (*SystemConfigEntry, error) {
	var e SystemConfigEntry
	err := s.pool.QueryRow(ctx,
		`SELECT key, value, is_encrypted FROM system_config WHERE key = $1`, key,
	).Scan(&e.Key, &e.Value, &e.IsEncrypted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: system config %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get system config %s", key)
	}
	return &e, nil
}

func (s *PostgresStore) SetSystemConfig(ctx context.Context, entry SystemConfigEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO system_config (key, value, is_encrypted, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, is_encrypted = EXCLUDED.is_encrypted, updated_at = EXCLUDED.updated_at`,
		entry.Key, entry.Value, entry.IsEncrypted, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: set system config %s", entry.Key)
}

func scanPgProvider(row pgx.Row) (*model.ServiceProvider, error) {
	var p model.ServiceProvider
	var typ, caps, cfg, limits string

	err := row.Scan(&p.ID, &p.Name, &typ, &p.IsActive, &p.Priority, &caps, &cfg, &limits, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "postgres: provider")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan provider")
	}

	p.Type = model.ServiceType(typ)
	if err := unmarshalProviderBlobs(&p, caps, cfg, limits); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPgMapping(row pgx.Row) (*model.OperationMapping, error) {
	var m model.OperationMapping
	var op string

	err := row.Scan(&m.ID, &op, &m.ProviderID, &m.IsEnabled, &m.Priority, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "postgres: mapping")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan mapping")
	}

	m.Operation = model.Operation(op)
	return &m, nil
}

func scanPgCandidate(row pgx.Row) (*model.MappingCandidate, error) {
	var c model.MappingCandidate
	var op, typ, caps, cfg, limits string

	err := row.Scan(
		&c.Mapping.ID, &op, &c.Mapping.ProviderID, &c.Mapping.IsEnabled, &c.Mapping.Priority,
		&c.Mapping.CreatedAt, &c.Mapping.UpdatedAt,
		&c.Provider.ID, &c.Provider.Name, &typ, &c.Provider.IsActive, &c.Provider.Priority,
		&caps, &cfg, &limits, &c.Provider.CreatedAt, &c.Provider.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan candidate")
	}

	c.Mapping.Operation = model.Operation(op)
	c.Provider.Type = model.ServiceType(typ)
	if err := unmarshalProviderBlobs(&c.Provider, caps, cfg, limits); err != nil {
		return nil, err
	}
	return &c, nil
}

func checkTag(tag pgconn.CommandTag, kind, id string) error {
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: %s %s", kind, id)
	}
	return nil
}

func isPostgresConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

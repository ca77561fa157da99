package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-hub/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit
// testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func providerRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "name", "type", "is_active", "priority", "capabilities", "config", "limits", "created_at", "updated_at",
	})
}

func TestPostgresStore_GetProvider(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, name, type, is_active, priority, capabilities, config, limits, created_at, updated_at\s+FROM service_providers WHERE id = \$1`).
		WithArgs("prov-1").
		WillReturnRows(providerRows().AddRow(
			"prov-1", "claude", "AI_ENGINE", true, 2,
			`["LEAD_SCORING"]`, `{"api_key":"encrypted:aa:bb"}`, `{"monthly_quota":1000,"concurrent_requests":5,"cost_per_request":0.03}`,
			now, now,
		))

	p, err := s.GetProvider(context.Background(), "prov-1")
	require.NoError(t, err)
	assert.Equal(t, "claude", p.Name)
	assert.Equal(t, model.TypeAIEngine, p.Type)
	assert.Equal(t, 2, p.Priority)
	assert.Equal(t, []model.Operation{model.OpLeadScoring}, p.Capabilities)
	assert.Equal(t, "encrypted:aa:bb", p.Config.APIKey)
	assert.Equal(t, 1000, p.Limits.MonthlyQuota)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProvider_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM service_providers WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetProvider(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateProvider_Conflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO service_providers`).
		WithArgs(pgxmock.AnyArg(), "claude", "AI_ENGINE", true, 1,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := s.CreateProvider(context.Background(), &model.ServiceProvider{
		Name: "claude", Type: model.TypeAIEngine, IsActive: true, Priority: 1,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateProviderPriority_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE service_providers SET priority = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs(3, pgxmock.AnyArg(), "nonexistent").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateProviderPriority(context.Background(), "nonexistent", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AlignMappingPriorities(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE operation_mappings m SET priority = p\.priority, updated_at = \$1\s+FROM service_providers p\s+WHERE p\.id = m\.provider_id AND m\.provider_id = \$2 AND m\.priority != p\.priority`).
		WithArgs(pgxmock.AnyArg(), "prov-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := s.AlignMappingPriorities(context.Background(), "prov-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListMappingsForOperation_Order(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"m_id", "operation", "provider_id", "is_enabled", "m_priority", "m_created", "m_updated",
		"p_id", "name", "type", "is_active", "p_priority", "capabilities", "config", "limits", "p_created", "p_updated",
	}).AddRow(
		"map-1", "LEAD_SCORING", "prov-1", true, 1, now, now,
		"prov-1", "primary", "AI_ENGINE", true, 1, `[]`, `{}`, `{}`, now, now,
	).AddRow(
		"map-2", "LEAD_SCORING", "prov-2", true, 1, now, now,
		"prov-2", "backup", "AI_ENGINE", true, 5, `[]`, `{}`, `{}`, now, now,
	)

	mock.ExpectQuery(`ORDER BY p\.priority ASC, m\.priority ASC, m\.created_at ASC, m\.id ASC`).
		WithArgs("LEAD_SCORING").
		WillReturnRows(rows)

	candidates, err := s.ListMappingsForOperation(context.Background(), model.OpLeadScoring)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "primary", candidates[0].Provider.Name)
	assert.Equal(t, "backup", candidates[1].Provider.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSystemConfig_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT key, value, is_encrypted FROM system_config WHERE key = \$1`).
		WithArgs("claude_api_key").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSystemConfig(context.Background(), "claude_api_key")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetSystemConfig_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(key\) DO UPDATE`).
		WithArgs("claude_api_key", "encrypted:aa:bb", true, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetSystemConfig(context.Background(), SystemConfigEntry{
		Key: "claude_api_key", Value: "encrypted:aa:bb", IsEncrypted: true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package destinations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/eventgatehq/eventgate-backend/pkg/db/models"
	"github.com/eventgatehq/eventgate-backend/pkg/pagination"
)

func setupDestinationsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	ddl := `
CREATE TABLE IF NOT EXISTS destinations (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  type TEXT NOT NULL DEFAULT 'webhook',
  url TEXT NOT NULL,
  method TEXT NOT NULL DEFAULT 'POST',
  event_types TEXT NOT NULL DEFAULT '{*}',
  config TEXT NOT NULL DEFAULT '{}',
  secret_key_encrypted TEXT,
  enabled INTEGER NOT NULL DEFAULT 1,
  timeout_ms INTEGER NOT NULL DEFAULT 5000,
  retry_strategy TEXT,
  success_count INTEGER NOT NULL DEFAULT 0,
  failure_count INTEGER NOT NULL DEFAULT 0,
  last_sent DATETIME,
  last_error TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(ddl).Error)
	require.NoError(t, db.Exec(`DELETE FROM destinations`).Error)
	return db
}

func newDestination(t *testing.T, db *gorm.DB, name string, enabled bool) *models.Destination {
	t.Helper()

	destination := &models.Destination{
		ID:         uuid.New(),
		Name:       name,
		Type:       "webhook",
		URL:        "https://example.com/" + name,
		Method:     "POST",
		EventTypes: []string{"*"},
		Config:     map[string]any{},
		Enabled:    enabled,
		TimeoutMS:  5000,
	}
	require.NoError(t, db.Create(destination).Error)
	return destination
}

func TestRepoCreateAndFind(t *testing.T) {
	db := setupDestinationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	created := newDestination(t, db, "alpha", true)

	byID, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", byID.Name)

	byName, err := repo.FindByName(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepoUniqueName(t *testing.T) {
	db := setupDestinationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	newDestination(t, db, "alpha", true)
	err := repo.Create(ctx, &models.Destination{
		ID:         uuid.New(),
		Name:       "alpha",
		URL:        "https://example.com/dup",
		Method:     "POST",
		EventTypes: []string{"*"},
		Config:     map[string]any{},
		Enabled:    true,
		TimeoutMS:  5000,
	})
	require.Error(t, err)
}

func TestRepoListPaginates(t *testing.T) {
	db := setupDestinationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	for _, name := range []string{"alpha", "bravo", "charlie"} {
		newDestination(t, db, name, true)
	}

	rows, total, err := repo.List(ctx, pagination.Params{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, rows, 2)
	assert.Equal(t, "alpha", rows[0].Name)
	assert.Equal(t, "bravo", rows[1].Name)

	rows, _, err = repo.List(ctx, pagination.Params{Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "charlie", rows[0].Name)
}

func TestRepoSetEnabled(t *testing.T) {
	db := setupDestinationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	created := newDestination(t, db, "alpha", true)

	updated, err := repo.SetEnabled(ctx, created.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.Enabled)

	_, err = repo.SetEnabled(ctx, uuid.New(), true)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepoDelete(t *testing.T) {
	db := setupDestinationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	created := newDestination(t, db, "alpha", true)

	deleted, err := repo.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestRepoTotals(t *testing.T) {
	db := setupDestinationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	enabled := newDestination(t, db, "alpha", true)
	newDestination(t, db, "bravo", false)

	now := time.Now().UTC()
	require.NoError(t, db.Model(&models.Destination{}).
		Where("id = ?", enabled.ID).
		Updates(map[string]any{"success_count": 7, "failure_count": 2, "last_sent": now}).Error)

	totals, err := repo.Totals(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, totals.Destinations)
	assert.EqualValues(t, 1, totals.Enabled)
	assert.EqualValues(t, 7, totals.Deliveries)
	assert.EqualValues(t, 2, totals.Failures)
}

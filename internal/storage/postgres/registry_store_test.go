package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/law-notes-crawler/internal/registry"
)

var now = time.Unix(1700000000, 0).UTC()

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *RegistryStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewRegistryStoreWithPool(mock, "")
	require.NoError(t, err)
	return mock, store
}

func TestRegistryStoreLoad(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	rows := pgxmock.NewRows([]string{"law_id", "title", "safe_title", "file_name", "updated_at"}).
		AddRow("A", "民法", "民法", "民法_A.md", now).
		AddRow("B", "law_B", "law_B", "law_B.md", now)
	mock.ExpectQuery("SELECT law_id, title, safe_title, file_name, updated_at FROM law_registry").
		WillReturnRows(rows)

	reg, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 2, reg.Len())
	a, ok := reg.Get("A")
	require.True(t, ok)
	assert.Equal(t, "民法_A.md", a.FileName)
	assert.True(t, reg.IsFallback("B"))
	assert.False(t, reg.Dirty())
}

func TestRegistryStoreSaveUpsertsInOrder(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	reg := registry.New()
	b := registry.FallbackEntry("B", now)
	a := registry.NewEntry("A", "民法", now)
	reg.Set("B", b)
	reg.Set("A", a)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO law_registry").
		WithArgs("A", a.Title, a.SafeTitle, a.FileName, a.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO law_registry").
		WithArgs("B", b.Title, b.SafeTitle, b.FileName, b.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.Save(context.Background(), reg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistryStoreSaveRollsBackOnError(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	reg := registry.New()
	a := registry.NewEntry("A", "民法", now)
	reg.Set("A", a)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO law_registry").
		WithArgs("A", a.Title, a.SafeTitle, a.FileName, a.UpdatedAt).
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := store.Save(context.Background(), reg)
	require.ErrorContains(t, err, "upsert registry entry A")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistryStoreEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS law_registry").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistryStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRegistryStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewRegistryStoreWithPool(mock, "bad-name;")
	require.Error(t, err)

	_, err = NewRegistryStore(context.Background(), Config{})
	require.Error(t, err)
}

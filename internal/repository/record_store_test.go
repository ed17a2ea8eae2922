package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-banking-client/internal/model"
)

func storesUnderTest(t *testing.T) map[string]RecordStore {
	t.Helper()

	fileStore, err := NewFileRecordStore(filepath.Join(t.TempDir(), "nested", "client-storage.json"))
	require.NoError(t, err)

	sqliteStore, err := NewSQLiteRecordStore(filepath.Join(t.TempDir(), "client-storage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]RecordStore{
		"memory": NewMemoryRecordStore(),
		"file":   fileStore,
		"sqlite": sqliteStore,
	}
}

// Requirement: every backend honours the same Get/Put/Delete contract.
func TestRecordStore_Contract(t *testing.T) {
	ctx := context.Background()

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, "banking_auth_token")
			assert.ErrorIs(t, err, model.ErrRecordNotFound)

			require.NoError(t, store.Put(ctx, "banking_auth_token", []byte(`{"id":"1"}`)))
			got, err := store.Get(ctx, "banking_auth_token")
			require.NoError(t, err)
			assert.JSONEq(t, `{"id":"1"}`, string(got))

			require.NoError(t, store.Put(ctx, "banking_auth_token", []byte(`{"id":"2"}`)))
			got, err = store.Get(ctx, "banking_auth_token")
			require.NoError(t, err)
			assert.JSONEq(t, `{"id":"2"}`, string(got))

			require.NoError(t, store.Put(ctx, "other", []byte("not json {")))
			got, err = store.Get(ctx, "other")
			require.NoError(t, err)
			assert.Equal(t, "not json {", string(got))

			require.NoError(t, store.Delete(ctx, "banking_auth_token"))
			require.NoError(t, store.Delete(ctx, "banking_auth_token"))
			_, err = store.Get(ctx, "banking_auth_token")
			assert.ErrorIs(t, err, model.ErrRecordNotFound)

			got, err = store.Get(ctx, "other")
			require.NoError(t, err)
			assert.Equal(t, "not json {", string(got))
		})
	}
}

func TestFileRecordStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "client-storage.json")

	first, err := NewFileRecordStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, "banking_auth_token", []byte(`{"id":"1"}`)))

	second, err := NewFileRecordStore(path)
	require.NoError(t, err)
	got, err := second.Get(ctx, "banking_auth_token")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1"}`, string(got))
}

func TestFileRecordStore_CorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "client-storage.json")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o600))

	store, err := NewFileRecordStore(path)
	require.NoError(t, err)

	_, err = store.Get(ctx, "banking_auth_token")
	require.Error(t, err)
	assert.False(t, errors.Is(err, model.ErrRecordNotFound))

	require.NoError(t, store.Delete(ctx, "banking_auth_token"))
	_, err = store.Get(ctx, "banking_auth_token")
	assert.ErrorIs(t, err, model.ErrRecordNotFound)
}

func TestSQLiteRecordStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "client-storage.db")

	first, err := NewSQLiteRecordStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, "banking_auth_token", []byte(`{"id":"1"}`)))
	require.NoError(t, first.Close())

	second, err := NewSQLiteRecordStore(path)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Get(ctx, "banking_auth_token")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1"}`, string(got))
}

func TestMemoryRecordStore_InjectedErrors(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()
	boom := errors.New("disk on fire")

	store.FailPut(boom)
	assert.ErrorIs(t, store.Put(ctx, "k", []byte("v")), boom)
	assert.False(t, store.Has("k"))

	store.FailPut(nil)
	require.NoError(t, store.Put(ctx, "k", []byte("v")))

	store.FailGet(boom)
	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, boom)

	store.FailDelete(boom)
	assert.ErrorIs(t, store.Delete(ctx, "k"), boom)
	assert.True(t, store.Has("k"))

	gets, puts, deletes := store.Counts()
	assert.Equal(t, 1, gets)
	assert.Equal(t, 2, puts)
	assert.Equal(t, 1, deletes)
}

// Package storetest holds the behaviour every store.Backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/AbduElrahman2001/BALHA/internal/models"
	"github.com/AbduElrahman2001/BALHA/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBackendTests exercises newBackend through the raw key API and through
// store.Store. newBackend must return an empty backend on every call.
func RunBackendTests(t *testing.T, newBackend func(t *testing.T) store.Backend) {
	t.Run("GetMissing", func(t *testing.T) {
		b := newBackend(t)
		value, found, err := b.Get(context.Background(), "absent")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, value)
	})

	t.Run("SetGetDelete", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		require.NoError(t, b.Set(ctx, "k", []byte(`{"a":1}`)))
		value, found, err := b.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, found)
		assert.JSONEq(t, `{"a":1}`, string(value))

		require.NoError(t, b.Set(ctx, "k", []byte(`{"a":2}`)))
		value, _, err = b.Get(ctx, "k")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":2}`, string(value))

		require.NoError(t, b.Delete(ctx, "k"))
		_, found, err = b.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, b.Delete(ctx, "k"), "deleting a missing key is not an error")
	})

	t.Run("ScopedKeysAreIsolated", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)
		first := store.Scoped(b, "device:a")
		second := store.Scoped(b, "device:b")

		require.NoError(t, first.Set(ctx, store.KeyCurrentCustomerTurn, []byte(`{"id":1}`)))
		_, found, err := second.Get(ctx, store.KeyCurrentCustomerTurn)
		require.NoError(t, err)
		assert.False(t, found)

		_, found, err = b.Get(ctx, "device:a:"+store.KeyCurrentCustomerTurn)
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("StoreRoundTrip", func(t *testing.T) {
		ctx := context.Background()
		st := store.New(newBackend(t))

		turns, err := st.LoadTurns(ctx)
		require.NoError(t, err)
		assert.Empty(t, turns)

		created := time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)
		turn := models.Turn{
			ID:           created.UnixMilli(),
			CustomerName: "علي",
			MobileNumber: "0500000001",
			ServiceType:  "haircut",
			Status:       models.StatusWaiting,
			TurnNumber:   1,
			CreatedAt:    created,
		}
		require.NoError(t, st.SaveTurns(ctx, []models.Turn{turn}))
		turns, err = st.LoadTurns(ctx)
		require.NoError(t, err)
		require.Len(t, turns, 1)
		assert.Equal(t, turn.ID, turns[0].ID)
		assert.Equal(t, turn.CustomerName, turns[0].CustomerName)
		assert.True(t, turn.CreatedAt.Equal(turns[0].CreatedAt))

		_, found, err := st.LoadCustomerTurn(ctx)
		require.NoError(t, err)
		assert.False(t, found)
		require.NoError(t, st.SaveCustomerTurn(ctx, turn))
		pointer, found, err := st.LoadCustomerTurn(ctx)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, turn.ID, pointer.ID)
		require.NoError(t, st.ClearCustomerTurn(ctx))
		_, found, err = st.LoadCustomerTurn(ctx)
		require.NoError(t, err)
		assert.False(t, found)

		users, err := st.LoadUsers(ctx)
		require.NoError(t, err)
		assert.Empty(t, users)
		require.NoError(t, st.SaveUsers(ctx, map[string]models.User{
			"admin": {Username: "admin", PasswordHash: "hash", Role: models.RoleAdmin},
		}))
		users, err = st.LoadUsers(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, users["admin"].Role)

		session := models.Session{SessionID: "s-1", Username: "admin", Role: models.RoleAdmin, CreatedAt: created, ExpiresAt: created.Add(time.Hour)}
		require.NoError(t, st.SaveCurrentUser(ctx, session))
		loaded, found, err := st.LoadCurrentUser(ctx)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "s-1", loaded.SessionID)
		require.NoError(t, st.ClearCurrentUser(ctx))
		_, found, err = st.LoadCurrentUser(ctx)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

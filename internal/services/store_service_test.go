package services

import (
	"context"
	"testing"
	"time"

	"github.com/ajvera/storeguard-be/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreService_CreateStore(t *testing.T) {
	db := setupTestDB(t)
	svc := NewStoreService(db)
	ctx := context.Background()

	store, err := svc.CreateStore(ctx, models.Store{
		Name:        "Corner Market",
		Timezone:    "America/Bogota",
		OwnerUserID: "u1",
	}, "ingest-key-1")
	require.NoError(t, err)
	assert.NotEmpty(t, store.ID)
	assert.Equal(t, "America/Bogota", store.Timezone)

	// The key is stored only as a hash.
	assert.NotEmpty(t, store.APIKeyHash)
	assert.NotEqual(t, "ingest-key-1", store.APIKeyHash)

	// Missing timezone defaults to UTC; an invalid one is rejected.
	store, err = svc.CreateStore(ctx, models.Store{Name: "Second", OwnerUserID: "u1"}, "k")
	require.NoError(t, err)
	assert.Equal(t, "UTC", store.Timezone)
	assert.Equal(t, time.UTC, store.Location())

	_, err = svc.CreateStore(ctx, models.Store{Name: "Bad", Timezone: "Mars/Olympus", OwnerUserID: "u1"}, "k")
	assert.Error(t, err)
}

func TestStoreService_VerifyIngestKey(t *testing.T) {
	db := setupTestDB(t)
	svc := NewStoreService(db)
	ctx := context.Background()

	store, err := svc.CreateStore(ctx, models.Store{Name: "s", OwnerUserID: "u1"}, "terminal-key")
	require.NoError(t, err)

	require.NoError(t, svc.VerifyIngestKey(ctx, store.ID, "terminal-key"))
	// Second verification is served from the cache.
	require.NoError(t, svc.VerifyIngestKey(ctx, store.ID, "terminal-key"))

	assert.Error(t, svc.VerifyIngestKey(ctx, store.ID, "wrong-key"))
	assert.Error(t, svc.VerifyIngestKey(ctx, store.ID, ""))
	assert.Error(t, svc.VerifyIngestKey(ctx, "no-such-store", "terminal-key"))

	// A store created without a key accepts nothing.
	keyless, err := svc.CreateStore(ctx, models.Store{Name: "keyless", OwnerUserID: "u1"}, "")
	require.NoError(t, err)
	assert.Error(t, svc.VerifyIngestKey(ctx, keyless.ID, "anything"))
}

func TestStoreService_ListStoresByOwner(t *testing.T) {
	db := setupTestDB(t)
	svc := NewStoreService(db)
	ctx := context.Background()

	_, err := svc.CreateStore(ctx, models.Store{Name: "mine-1", OwnerUserID: "u1"}, "k")
	require.NoError(t, err)
	_, err = svc.CreateStore(ctx, models.Store{Name: "mine-2", OwnerUserID: "u1"}, "k")
	require.NoError(t, err)
	_, err = svc.CreateStore(ctx, models.Store{Name: "theirs", OwnerUserID: "u2"}, "k")
	require.NoError(t, err)

	mine, err := svc.ListStoresByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := svc.ListStores(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUserService_CreateAndAuthenticate(t *testing.T) {
	db := setupTestDB(t)
	svc := NewUserService(db)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "ana", "ana@example.com", "hunter22")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Zero(t, user.UnreadCount)
	// The stored hash is never the raw password.
	assert.NotEqual(t, "hunter22", user.PasswordHash)

	_, err = svc.CreateUser(ctx, "", "x@example.com", "pw")
	assert.Error(t, err)

	authed, err := svc.AuthenticateUser(ctx, "ana@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)

	_, err = svc.AuthenticateUser(ctx, "ana@example.com", "wrong")
	assert.Error(t, err)
	_, err = svc.AuthenticateUser(ctx, "nobody@example.com", "hunter22")
	assert.Error(t, err)
}

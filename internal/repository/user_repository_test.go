package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz_backend/internal/model"
	"quiz_backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserUIDIsUnique(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.User{UID: "ext-1", Email: "a@example.com", DisplayName: "A", Role: model.Student}))
	err := repo.Create(ctx, &model.User{UID: "ext-1", Email: "b@example.com", DisplayName: "B", Role: model.Student})
	assert.True(t, errors.Is(err, ErrDuplicateKey), "got %v", err)
}

func TestUserLookupsAndRole(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, "ext-2", model.Student)

	byUID, err := repo.FindByUID(ctx, "ext-2")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byUID.ID)

	byEmail, err := repo.FindByEmail(ctx, "ext-2@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	require.NoError(t, repo.UpdateRole(ctx, u.ID, model.Instructor))
	require.NoError(t, repo.TouchLastActive(ctx, u.ID, time.Now()))

	byID, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Instructor, byID.Role)
	assert.False(t, byID.LastActiveAt.IsZero())

	users, err := repo.FindByIDs(ctx, []string{u.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, users, 1)

	_, err = repo.FindByUID(ctx, "nobody")
	assert.True(t, errors.Is(err, ErrNotFound))
}

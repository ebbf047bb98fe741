package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz_backend/internal/config"
	"quiz_backend/internal/model"
	"quiz_backend/internal/testutil"
	"quiz_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureUserIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.users.EnsureUser(ctx, Identity{UID: "ext-1", Email: "grace@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "grace", first.DisplayName)
	assert.Equal(t, model.Student, first.Role)

	again, err := f.users.EnsureUser(ctx, Identity{UID: "ext-1", Email: "other@example.com", Role: model.Admin})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, model.Student, again.Role)

	_, err = f.users.EnsureUser(ctx, Identity{})
	assert.True(t, errors.Is(err, util.ErrUnauthorized))
}

func TestEnsureUserConcurrentFirstVisit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]struct{}{}
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := f.users.EnsureUser(ctx, Identity{UID: "ext-race", Email: "race@example.com"})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[u.ID] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, ids, 1)
}

func TestPromoteByEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.CreateUser(t, f.db, "promote-me", model.Student)

	user, err := f.users.PromoteByEmail(ctx, "promote-me@example.com", model.Admin)
	require.NoError(t, err)
	assert.Equal(t, model.Admin, user.Role)

	stored, err := f.userRepo.FindByUID(ctx, "promote-me")
	require.NoError(t, err)
	assert.Equal(t, model.Admin, stored.Role)

	_, err = f.users.PromoteByEmail(ctx, "nobody@example.com", model.Admin)
	assert.True(t, errors.Is(err, util.ErrNotFound))

	_, err = f.users.PromoteByEmail(ctx, "promote-me@example.com", "owner")
	assert.True(t, errors.Is(err, util.ErrValidation))
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "0123456789abcdef0123456789abcdef", ExpireTime: time.Hour}}
	auth := NewAuthService(f.userRepo, cfg)

	user, err := auth.Register(ctx, RegisterRequest{Email: "Linus@Example.com", Password: "secret1", DisplayName: "Linus"})
	require.NoError(t, err)
	assert.Equal(t, "linus@example.com", user.Email)
	assert.NotEqual(t, "secret1", user.Password)

	_, err = auth.Register(ctx, RegisterRequest{Email: "linus@example.com", Password: "secret2", DisplayName: "Dup"})
	assert.True(t, errors.Is(err, util.ErrValidation))

	token, err := auth.Login(ctx, LoginRequest{Email: "linus@example.com", Password: "secret1"})
	require.NoError(t, err)
	claims, err := util.ParseJWT(token.Token, cfg.JWT.Secret)
	require.NoError(t, err)
	assert.Equal(t, user.UID, claims.UID)

	_, err = auth.Login(ctx, LoginRequest{Email: "linus@example.com", Password: "wrong"})
	assert.True(t, errors.Is(err, util.ErrUnauthorized))
}

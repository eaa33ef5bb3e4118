package dbhelper

import (
	"context"
	"math"
	"testing"

	"github.com/securebidz/apiv1/models"
	"github.com/securebidz/apiv1/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.signup(t, "zoe@example.com")

	balance, err := env.store.Deposit(ctx, user.ID, 75.5)
	require.NoError(t, err)
	assert.Equal(t, 75.5, balance)
	balance, err = env.store.Deposit(ctx, user.ID, 24.5)
	require.NoError(t, err)
	assert.Equal(t, 100.0, balance)

	for _, amount := range []float64{0, 0.004, -10, 2 * utils.MAX_AMOUNT, math.NaN(), math.Inf(1)} {
		_, err := env.store.Deposit(ctx, user.ID, amount)
		assert.ErrorIs(t, err, utils.ErrValidation)
	}
	other := env.signup(t, "zed@example.com")
	balance, err = env.store.Deposit(ctx, other.ID, 0.125)
	require.NoError(t, err)
	assert.Equal(t, 0.13, balance)

	_, err = env.store.Deposit(ctx, "missing", 10)
	assert.ErrorIs(t, err, utils.ErrNotFound)

	wallet, err := env.store.GetWallet(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, wallet.Balance)
	assert.NotNil(t, wallet.Inventory)
	assert.Empty(t, wallet.Inventory)
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.signup(t, "abe@example.com")

	updated, err := env.store.UpdateProfile(ctx, user.ID, "  Abe Lincoln ")
	require.NoError(t, err)
	assert.Equal(t, "Abe Lincoln", updated.Name)

	profile, err := env.store.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Abe Lincoln", profile.Name)

	_, err = env.store.UpdateProfile(ctx, user.ID, "   ")
	assert.ErrorIs(t, err, utils.ErrValidation)
	_, err = env.store.GetProfile(ctx, "missing")
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestLogoutIsAudited(t *testing.T) {
	env := newTestEnv(t)
	user := env.signup(t, "bea@example.com")
	env.store.Logout(context.Background(), user.ID, testMeta)
	assert.EqualValues(t, 1, env.auditCount(t, user.ID, models.AUDIT_LOGOUT))
}

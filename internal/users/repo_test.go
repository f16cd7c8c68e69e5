package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pastrypickup-backend/pkg/db/dbtest"
)

func TestBackfillPhoneOnlyFillsEmpty(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	user := dbtest.SeedUser(t, conn, "ana@example.com")

	changed, err := repo.BackfillPhone(ctx, user.ID, " +56911112222 ")
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = repo.BackfillPhone(ctx, user.ID, "+56933334444")
	require.NoError(t, err)
	require.False(t, changed)

	loaded, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.Phone)
	require.Equal(t, "+56911112222", *loaded.Phone)
}

func TestBackfillPhoneIgnoresBlank(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	user := dbtest.SeedUser(t, conn, "blank@example.com")

	changed, err := repo.BackfillPhone(context.Background(), user.ID, "   ")
	require.NoError(t, err)
	require.False(t, changed)
}

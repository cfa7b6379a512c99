package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/gravvy/internal/config"
	"github.com/matheus3301/gravvy/internal/session"
	"github.com/matheus3301/gravvy/internal/store"
)

const account = "+15550000001"

func TestLoadGraphReadsStoreOffline(t *testing.T) {
	t.Setenv("GRAVVY_HOME", t.TempDir())
	flagAccount = ""
	t.Cleanup(func() { _ = rootCmd.PersistentFlags().Set("account", "") })

	cfg := config.Default()
	cfg.DefaultAccount = account
	require.NoError(t, config.Save(session.ConfigPath(), cfg))

	layout := session.DefaultLayout()
	require.NoError(t, layout.EnsureDir(account))
	db, err := store.Open(layout.DBPath(account))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	ctx := context.Background()
	_, err = db.Update(ctx, "test", func(tx *store.Tx) error {
		if err := tx.UpsertUser(ctx, &store.User{Phone: account}); err != nil {
			return err
		}
		return tx.UpsertVideo(ctx, &store.Video{HashKey: "v1", Title: "first", OwnerPhone: account})
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	g, err := loadGraph(ctx)
	require.NoError(t, err)
	videos := g.Videos()
	require.Len(t, videos, 1)
	assert.Equal(t, "first", videos[0].Title)
}

func TestAccountFlagOverridesDefault(t *testing.T) {
	t.Setenv("GRAVVY_HOME", t.TempDir())
	require.NoError(t, rootCmd.PersistentFlags().Set("account", "+15550000002"))
	t.Cleanup(func() { _ = rootCmd.PersistentFlags().Set("account", "") })

	got, err := resolveAccount()
	require.NoError(t, err)
	assert.Equal(t, "+15550000002", got)

	_, err = loadGraph(context.Background())
	assert.Error(t, err, "no store yet")
}

func TestResolveAccountNeedsOne(t *testing.T) {
	t.Setenv("GRAVVY_HOME", t.TempDir())
	_, err := resolveAccount()
	assert.ErrorIs(t, err, session.ErrNoAccount)
}

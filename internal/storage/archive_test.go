// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/minigpt/internal/model"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func exchangeAt(user, assistant string, ts time.Time) model.Exchange {
	return model.Exchange{User: user, Assistant: assistant, Timestamp: ts}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("  ")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestOpen_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	a := openTestArchive(t)
	info, err := os.Stat(a.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestArchive_AppendAndExchanges(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, a.Append(ctx, "s1", "qwen2.5:0.5b", exchangeAt("hi", "Hello!", base)))
	require.NoError(t, a.Append(ctx, "s1", "qwen2.5:0.5b", exchangeAt("how are you", "Fine.", base.Add(time.Minute))))

	got, err := a.Exchanges(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "hi", got[0].User)
	assert.Equal(t, "Hello!", got[0].Assistant)
	assert.True(t, got[0].Timestamp.Equal(base))
	assert.Equal(t, "how are you", got[1].User)
}

func TestArchive_AppendRequiresSession(t *testing.T) {
	a := openTestArchive(t)
	assert.Error(t, a.Append(context.Background(), "", "m", model.NewExchange("a", "b")))
}

func TestArchive_AppendZeroTimestamp(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	before := time.Now()

	require.NoError(t, a.Append(ctx, "s1", "m", model.Exchange{User: "a", Assistant: "b"}))

	got, err := a.Exchanges(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Timestamp.Before(before.Add(-time.Second)))
}

func TestArchive_Sessions(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, a.Append(ctx, "older", "m1", exchangeAt("first question", "a", base)))
	require.NoError(t, a.Append(ctx, "newer", "m2", exchangeAt("second question", "a", base.Add(time.Hour))))
	require.NoError(t, a.Append(ctx, "older", "m1", exchangeAt("follow up", "a", base.Add(2*time.Hour))))

	metas, err := a.Sessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, metas, 2)

	assert.Equal(t, "older", metas[0].ID, "most recently updated first")
	assert.Equal(t, 2, metas[0].ExchangeCount)
	assert.Equal(t, "first question", metas[0].Preview)
	assert.True(t, metas[0].CreatedAt.Equal(base))
	assert.True(t, metas[0].UpdatedAt.Equal(base.Add(2*time.Hour)))
	assert.Equal(t, "newer", metas[1].ID)
	assert.Equal(t, "m2", metas[1].Model)

	limited, err := a.Sessions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestArchive_PrefixLookup(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	require.NoError(t, a.Append(ctx, "abc123", "m", model.NewExchange("one", "1")))
	require.NoError(t, a.Append(ctx, "abd456", "m", model.NewExchange("two", "2")))

	got, err := a.Exchanges(ctx, "abc")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "one", got[0].User)

	meta, err := a.Session(ctx, "abd")
	require.NoError(t, err)
	assert.Equal(t, "abd456", meta.ID)

	_, err = a.Exchanges(ctx, "ab")
	assert.True(t, errors.Is(err, ErrAmbiguousID))

	_, err = a.Exchanges(ctx, "zzz")
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	_, err = a.Exchanges(ctx, "")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestArchive_DeleteSession(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	require.NoError(t, a.Append(ctx, "keep-me", "m", model.NewExchange("a", "b")))
	require.NoError(t, a.Append(ctx, "drop-me", "m", model.NewExchange("c", "d")))

	id, err := a.DeleteSession(ctx, "drop")
	require.NoError(t, err)
	assert.Equal(t, "drop-me", id)

	metas, err := a.Sessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "keep-me", metas[0].ID)

	_, err = a.DeleteSession(ctx, "drop-me")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestArchive_DeleteAll(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	require.NoError(t, a.Append(ctx, "s1", "m", model.NewExchange("a", "b")))
	require.NoError(t, a.Append(ctx, "s2", "m", model.NewExchange("c", "d")))

	n, err := a.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	metas, err := a.Sessions(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestArchive_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	a, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, a.Append(ctx, "s1", "m", model.NewExchange("persisted", "yes")))
	require.NoError(t, a.Close())

	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()

	got, err := b.Exchanges(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "persisted", got[0].User)
}

func TestArchive_Closed(t *testing.T) {
	a, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "second close is a no-op")

	ctx := context.Background()
	assert.ErrorIs(t, a.Append(ctx, "s", "m", model.NewExchange("a", "b")), ErrClosed)
	_, err = a.Sessions(ctx, 0)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = a.Exchanges(ctx, "s")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = a.DeleteAll(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

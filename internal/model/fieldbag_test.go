package model

import (
	"slices"
	"testing"

	apperrors "github.com/shhac/wirebench/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldBag_AlwaysOffersBlankRow(t *testing.T) {
	b := NewFieldBag(true)
	require.Equal(t, 1, b.Len())

	require.NoError(t, b.SetKey(0, "Accept"))
	entries := b.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Accept", entries[0].Key)
	assert.Equal(t, "", entries[1].Key)

	require.NoError(t, b.Remove(1))
	assert.Equal(t, 2, b.Len(), "removing the blank row brings it back")
}

func TestFieldBag_OnlyTrailingRowMayBeBlank(t *testing.T) {
	b := NewFieldBag(true)
	require.NoError(t, b.Append("a", "1", true))
	require.NoError(t, b.Append("b", "2", true))

	err := b.SetKey(0, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, "a", b.Entries()[0].Key)
}

func TestFieldBag_AddReusesBlankRow(t *testing.T) {
	b := NewFieldBag(false)
	assert.Equal(t, 0, b.Len())

	i := b.Add()
	assert.Equal(t, 0, i)
	assert.Equal(t, 0, b.Add(), "second add keeps the single blank row")
	assert.Equal(t, 1, b.Len())
}

func TestFieldBag_IndexOutOfRange(t *testing.T) {
	b := NewFieldBag(true)
	assert.ErrorIs(t, b.SetValue(3, "x"), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, b.SetEnabled(-1, true), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, b.Remove(9), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, b.Append("", "v", true), apperrors.ErrInvalidInput)
}

func TestFieldBag_EnabledEntries(t *testing.T) {
	b := NewFieldBag(true)
	require.NoError(t, b.Append("a", "1", true))
	require.NoError(t, b.Append("b", "", false))
	require.NoError(t, b.Append("a", "2", true))

	got := slices.Collect(b.EnabledEntries())
	assert.Equal(t, []Entry{
		{Key: "a", Value: "1", Enabled: true},
		{Key: "a", Value: "2", Enabled: true},
	}, got, "duplicates pass through in order")

	again := slices.Collect(b.EnabledEntries())
	assert.Equal(t, got, again, "sequence restarts")

	for range b.EnabledEntries() {
		break
	}
}

func TestFieldBag_NotifiesOnEveryMutation(t *testing.T) {
	b := NewFieldBag(true)
	var count int
	unsub := b.Subscribe(func(c Change) {
		assert.Equal(t, FieldEntries, c.Field)
		count++
	})

	require.NoError(t, b.SetKey(0, "k"))
	require.NoError(t, b.SetValue(0, "v"))
	require.NoError(t, b.SetEnabled(0, false))
	require.NoError(t, b.Remove(0))
	assert.Equal(t, 4, count)

	_ = b.SetKey(10, "x")
	assert.Equal(t, 4, count, "rejected mutations do not notify")

	unsub()
	b.Add()
	assert.Equal(t, 4, count)
}

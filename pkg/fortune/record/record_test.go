package record

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreRejectsEmpty(t *testing.T) {
	_, err := NewStore(nil)
	require.True(t, errors.Is(err, ErrEmptyStore))

	_, err = NewStore([]Record{})
	require.ErrorIs(t, err, ErrEmptyStore)
}

func TestStoreIsolatedFromInput(t *testing.T) {
	input := []Record{{Text: "A", Attribution: "x"}, {Text: "B", Attribution: "y"}}
	store, err := NewStore(input)
	require.NoError(t, err)

	input[0].Text = "mutated"
	assert.Equal(t, "A", store.At(0).Text)

	all := store.All()
	all[1].Text = "mutated"
	assert.Equal(t, "B", store.At(1).Text)

	rec := store.At(0)
	rec.Attribution = "mutated"
	assert.Equal(t, "x", store.At(0).Attribution)
	assert.Equal(t, 2, store.Len())
}

func TestOptionalFields(t *testing.T) {
	rec := Record{Text: "C", Attribution: "z", Character: "ch"}
	assert.True(t, rec.HasCharacter())
	assert.False(t, rec.HasWork())
}

func TestFingerprint(t *testing.T) {
	a := Record{Text: "A", Attribution: "x"}
	b := Record{Text: "A", Attribution: "x"}
	c := Record{Text: "Ax", Attribution: ""}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint(), "field boundaries must be part of the digest")
	assert.Len(t, a.Fingerprint(), 32)
}

func TestString(t *testing.T) {
	assert.Equal(t, "\"A\"\n\t-x", Record{Text: "A", Attribution: "x"}.String())
	assert.Equal(t, "\"B\"\n\t-y, W", Record{Text: "B", Attribution: "y", Work: "W"}.String())
	assert.Equal(t, "\"C\"\n\t-z (ch)", Record{Text: "C", Attribution: "z", Character: "ch"}.String())
	assert.Equal(t, "\"D\"\n\t-Shakespeare, Hamlet (Polonius)",
		Record{Text: "D", Attribution: "Shakespeare", Work: "Hamlet", Character: "Polonius"}.String())
}

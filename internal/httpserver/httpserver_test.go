package httpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveBindsDistinctSlotsUpToCap(t *testing.T) {
	s := New(0, "", testLog())

	a, err := s.Reserve(1)
	require.NoError(t, err)

	b, err := s.Reserve(2)
	require.NoError(t, err)

	assert.NotEqual(t, a.Port, b.Port)
}

func TestReserveReusesLingeringSlotAtCap(t *testing.T) {
	s := New(0, "", testLog())

	a, err := s.Reserve(1)
	require.NoError(t, err)

	_, err = s.Reserve(2)
	require.NoError(t, err)

	a.MarkLingering()

	third, err := s.Reserve(3)
	require.NoError(t, err)
	assert.Equal(t, a.Port, third.Port, "third track should reuse the lingering slot's port")
	assert.Equal(t, 3, third.Index)
}

func TestReserveFailsWhenNeitherSlotIsFree(t *testing.T) {
	s := New(0, "", testLog())

	_, err := s.Reserve(1)
	require.NoError(t, err)

	_, err = s.Reserve(2)
	require.NoError(t, err)

	_, err = s.Reserve(3)
	assert.Error(t, err, "neither slot is idle or lingering, so a third track must be refused")
}

func TestReserveReusesIdleSlotBeforeLingering(t *testing.T) {
	s := New(0, "", testLog())

	a, err := s.Reserve(1)
	require.NoError(t, err)

	b, err := s.Reserve(2)
	require.NoError(t, err)

	a.MarkLingering()
	b.Done() // b's accept loop exited without ever lingering

	third, err := s.Reserve(3)
	require.NoError(t, err)
	assert.Equal(t, b.Port, third.Port, "an idle slot is reused ahead of a lingering one")
}

func TestReleaseFreesCapacityForAnotherSlot(t *testing.T) {
	s := New(0, "", testLog())

	a, err := s.Reserve(1)
	require.NoError(t, err)

	_, err = s.Reserve(2)
	require.NoError(t, err)

	s.Release(a.Index)

	third, err := s.Reserve(3)
	require.NoError(t, err)
	assert.NotNil(t, third)
}

func TestReleaseAllClosesEverySlot(t *testing.T) {
	s := New(0, "", testLog())

	_, err := s.Reserve(1)
	require.NoError(t, err)
	_, err = s.Reserve(2)
	require.NoError(t, err)

	s.ReleaseAll()

	assert.Empty(t, s.slots)

	// Capacity is free again for a brand new player-lifetime sequence.
	_, err = s.Reserve(1)
	require.NoError(t, err)
}

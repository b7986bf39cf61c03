package httpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIcyInjectorInsertsPacketAtInterval(t *testing.T) {
	ic := newIcyInjector(func() (string, bool) { return "StreamTitle='x';", true })

	data := make([]byte, icyInterval)
	out := ic.Wrap(data)

	require.Len(t, out, icyInterval+1+16) // 1 length byte + one 16-byte block for a short title
	assert.Equal(t, byte(1), out[icyInterval])
}

func TestIcyInjectorEmitsZeroByteWhenDisabled(t *testing.T) {
	ic := newIcyInjector(func() (string, bool) { return "", false })

	out := ic.Wrap(make([]byte, icyInterval))
	assert.Equal(t, byte(0), out[icyInterval])
}

func TestIcyInjectorSpansMultipleIntervalsAcrossCalls(t *testing.T) {
	ic := newIcyInjector(func() (string, bool) { return "", false })

	half := icyInterval / 2
	out1 := ic.Wrap(make([]byte, half))
	assert.Len(t, out1, half)

	out2 := ic.Wrap(make([]byte, half))
	assert.Len(t, out2, half+1) // crosses the boundary, appends the zero-byte packet
}

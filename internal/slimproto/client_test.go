package slimproto

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct{}

func (fakeStatus) Snapshot() StatusSnapshot { return StatusSnapshot{} }

type recordingHandler struct {
	setdResponse string
	setdOK       bool
}

func (recordingHandler) OnStrm(Strm)        {}
func (recordingHandler) OnCont(Cont)        {}
func (recordingHandler) OnCodc(Codc)        {}
func (recordingHandler) OnAude(Aude)        {}
func (recordingHandler) OnAudg(Audg)        {}
func (h recordingHandler) OnSetd(Setd) (string, bool) {
	return h.setdResponse, h.setdOK
}
func (recordingHandler) OnServ(Serv)    {}
func (recordingHandler) OnLedc(byte)    {}
func (recordingHandler) OnVersion(string) {}

func newTestClient() (*Client, net.Conn) {
	a, b := net.Pipe()
	mac := [6]byte{1, 2, 3, 4, 5, 6}
	c := New(mac, recordingHandler{}, fakeStatus{})
	c.conn = a

	return c, b
}

func readOneFrame(t *testing.T, conn net.Conn) (string, []byte) {
	t.Helper()

	opcode, body, err := readFrame(conn)
	require.NoError(t, err)

	return opcode, body
}

// TestSTMuFirstFiresOnceImpliesSTMn covers the spec.md §4.1 rule that
// STMu implies a trailing STMn the first time it fires in a track, but
// not on subsequent STMu sends within the same track.
func TestSTMuFirstFiresOnceImpliesSTMn(t *testing.T) {
	c, peer := newTestClient()
	defer peer.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)

		op, _ := readOneFrame(t, peer)
		assert.Equal(t, OpStat, op)

		op, _ = readOneFrame(t, peer)
		assert.Equal(t, OpStat, op)
	}()

	require.NoError(t, c.SendSTAT("STMu"))
	<-done

	// Second STMu in the same track must NOT re-fire STMn.
	done2 := make(chan struct{})
	go func() {
		defer close(done2)
		readOneFrame(t, peer)
	}()

	require.NoError(t, c.SendSTAT("STMu"))
	<-done2
}

// TestSTMdQueuedBeforeSTMsFlushesRightAfter covers the spec.md §4.1
// exclusion rule: STMs and STMd never coincide on the same round, so an
// STMd that arrives before this track's STMs is deferred one round —
// queued, not dropped — and flushed immediately once STMs goes out,
// matching scenario 1's STMc, STMl, STMs, STMd, STMu sequence.
func TestSTMdQueuedBeforeSTMsFlushesRightAfter(t *testing.T) {
	c, peer := newTestClient()
	defer peer.Close()

	recv := make(chan string, 2)
	go func() {
		for i := 0; i < 2; i++ {
			op, _, err := readFrame(peer)
			if err != nil {
				return
			}
			recv <- op
		}
	}()

	// STMd arrives first: queued, nothing written yet.
	require.NoError(t, c.SendSTAT("STMd"))

	// STMs fires next: it goes out, then the queued STMd is flushed
	// right behind it, in that order.
	require.NoError(t, c.SendSTAT("STMs"))

	first := <-recv
	second := <-recv
	assert.Equal(t, OpStat, first)
	assert.Equal(t, OpStat, second)
}

// TestSTMdAfterSTMsIsNotSuppressed covers the inverse order: once STMs
// has already fired for a track, a later STMd still reaches LMS — the
// old permanent-suppression behavior (dropping STMd forever once STMs
// fired) is not the spec'd contract.
func TestSTMdAfterSTMsIsNotSuppressed(t *testing.T) {
	c, peer := newTestClient()
	defer peer.Close()

	recv := make(chan string, 2)
	go func() {
		for i := 0; i < 2; i++ {
			op, _, err := readFrame(peer)
			if err != nil {
				return
			}
			recv <- op
		}
	}()

	require.NoError(t, c.SendSTAT("STMs"))
	require.NoError(t, c.SendSTAT("STMd"))

	assert.Equal(t, OpStat, <-recv)
	assert.Equal(t, OpStat, <-recv)
}

func TestResetTrackStateClearsSuppression(t *testing.T) {
	c, peer := newTestClient()
	defer peer.Close()

	go func() {
		for {
			_, _, err := readFrame(peer)
			if err != nil {
				return
			}
		}
	}()

	require.NoError(t, c.SendSTAT("STMs"))
	c.resetTrackState()

	c.mu.Lock()
	stmsSent := c.stmsSent
	stmdSent := c.stmdSent
	pending := c.pendingSTMd
	sawSTMu := c.sawSTMu
	c.mu.Unlock()

	assert.False(t, stmsSent)
	assert.False(t, stmdSent)
	assert.False(t, pending)
	assert.False(t, sawSTMu)
}

package channel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/models"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 7, 20, 15, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	states []models.ConnectionState
	msgs   []models.PushMessage
}

func (r *recorder) BidReceived(msg models.PushMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) ConnectionStateChanged(state models.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recorder) phases() []models.ConnectionPhase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ConnectionPhase, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, s.Phase)
	}
	return out
}

func (r *recorder) lastState() models.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[len(r.states)-1]
}

func (r *recorder) messages() []models.PushMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.PushMessage(nil), r.msgs...)
}

func (r *recorder) waitPhases(t *testing.T, n int) []models.ConnectionPhase {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.phases()) >= n }, 2*time.Second, 5*time.Millisecond)
	return r.phases()
}

type fakeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn(frames ...[]byte) *fakeConn {
	c := &fakeConn{frames: make(chan []byte, len(frames)+1), closed: make(chan struct{})}
	for _, f := range frames {
		c.frames <- f
	}
	return c
}

// hangup makes Read fail with EOF once the queued frames are drained
func (c *fakeConn) hangup() *fakeConn {
	close(c.frames)
	return c
}

func (c *fakeConn) Read() ([]byte, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-c.closed:
		return nil, net.ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []Conn
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context, cfg Config) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	if c == nil {
		return nil, errors.New("connection refused")
	}
	return c, nil
}

func frame(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func bidFrame(t *testing.T, id string, amount int64) []byte {
	bid := models.Bid{ID: id, UserName: "Ada", Amount: decimal.NewFromInt(amount), CreatedAt: base}
	return frame(t, models.NewBidMessage(bid, models.Auction{TotalBids: 1}))
}

func runChannel(ch *Channel) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- ch.Run(context.Background()) }()
	return errc
}

func waitErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	return nil
}

func TestChannel_DeliversBidsAndCloses(t *testing.T) {
	t.Parallel()

	conn := newFakeConn(
		bidFrame(t, "b1", 120),
		[]byte(`{"type":"viewer_joined","viewers":3}`),
		bidFrame(t, "b2", 130),
	)
	rec := &recorder{}
	ch := New(Config{AuctionID: "auction1"}, &fakeDialer{conns: []Conn{conn}}, rec, clockwork.NewFakeClockAt(base))

	errc := runChannel(ch)
	require.Eventually(t, func() bool { return len(rec.messages()) == 2 }, 2*time.Second, 5*time.Millisecond)

	msgs := rec.messages()
	require.Equal(t, "b1", msgs[0].Bid.ID)
	require.Equal(t, "b2", msgs[1].Bid.ID)
	require.Equal(t, 1, msgs[0].Auction.TotalBids)

	ch.Close()
	require.NoError(t, waitErr(t, errc))
	require.Equal(t, []models.ConnectionPhase{models.PhaseConnecting, models.PhaseOpen, models.PhaseClosed}, rec.phases())
	require.True(t, ch.State().Terminal())
}

func TestChannel_ReconnectsAfterLoss(t *testing.T) {
	t.Parallel()

	fc := clockwork.NewFakeClockAt(base)
	first := newFakeConn(bidFrame(t, "b1", 120)).hangup()
	second := newFakeConn(bidFrame(t, "b2", 150))
	rec := &recorder{}
	ch := New(Config{AuctionID: "auction1"}, &fakeDialer{conns: []Conn{first, second}}, rec, fc)

	errc := runChannel(ch)

	rec.waitPhases(t, 3)
	state := rec.lastState()
	require.Equal(t, models.PhaseReconnecting, state.Phase)
	require.Equal(t, 1, state.Attempt)
	require.Equal(t, base.Add(DefaultReconnectInterval), state.NextRetryAt)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(DefaultReconnectInterval)

	require.Eventually(t, func() bool { return len(rec.messages()) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, models.PhaseOpen, ch.State().Phase)

	ch.Close()
	require.NoError(t, waitErr(t, errc))
	require.Equal(t, []models.ConnectionPhase{
		models.PhaseConnecting, models.PhaseOpen, models.PhaseReconnecting, models.PhaseOpen, models.PhaseClosed,
	}, rec.phases())
}

func TestChannel_FailsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	fc := clockwork.NewFakeClockAt(base)
	rec := &recorder{}
	dialer := &fakeDialer{}
	ch := New(Config{AuctionID: "auction1", MaxAttempts: 2, ReconnectInterval: time.Second}, dialer, rec, fc)

	errc := runChannel(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for attempt := 1; attempt <= 2; attempt++ {
		require.NoError(t, fc.BlockUntilContext(ctx, 1))
		require.Equal(t, attempt, rec.lastState().Attempt)
		fc.Advance(time.Second)
	}

	err := waitErr(t, errc)
	require.ErrorIs(t, err, biddingerrors.ErrTransport)
	require.Equal(t, []models.ConnectionPhase{
		models.PhaseConnecting, models.PhaseReconnecting, models.PhaseReconnecting, models.PhaseFailed,
	}, rec.phases())
	require.Equal(t, 3, dialer.dials)
}

func TestChannel_StableConnectionResetsAttempts(t *testing.T) {
	t.Parallel()

	fc := clockwork.NewFakeClockAt(base)
	rec := &recorder{}
	conn := newFakeConn()
	// fail, connect and stay up, then fail again: the second failure is attempt 1 again
	dialer := &fakeDialer{conns: []Conn{nil, conn, nil}}
	ch := New(Config{AuctionID: "auction1", StableAfter: time.Minute}, dialer, rec, fc)

	errc := runChannel(ch)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	require.Equal(t, 1, rec.lastState().Attempt)
	fc.Advance(DefaultReconnectInterval)

	require.Eventually(t, func() bool { return rec.lastState().Phase == models.PhaseOpen }, 2*time.Second, 5*time.Millisecond)
	fc.Advance(time.Minute)
	conn.hangup()

	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	require.Equal(t, models.PhaseReconnecting, rec.lastState().Phase)
	require.Equal(t, 1, rec.lastState().Attempt)
	fc.Advance(DefaultReconnectInterval)

	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	require.Equal(t, 2, rec.lastState().Attempt)

	ch.Close()
	require.NoError(t, waitErr(t, errc))
	require.Equal(t, models.PhaseClosed, rec.lastState().Phase)
}

func TestChannel_FlappingConnectionExhaustsAttempts(t *testing.T) {
	t.Parallel()

	fc := clockwork.NewFakeClockAt(base)
	rec := &recorder{}
	// every dial succeeds and the source hangs up at once
	dialer := &fakeDialer{conns: []Conn{newFakeConn().hangup(), newFakeConn().hangup(), newFakeConn().hangup()}}
	ch := New(Config{AuctionID: "auction1", MaxAttempts: 2}, dialer, rec, fc)

	errc := runChannel(ch)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for attempt := 1; attempt <= 2; attempt++ {
		require.NoError(t, fc.BlockUntilContext(ctx, 1))
		require.Equal(t, attempt, rec.lastState().Attempt)
		fc.Advance(DefaultReconnectInterval)
	}

	err := waitErr(t, errc)
	require.ErrorIs(t, err, biddingerrors.ErrTransport)
	require.Equal(t, models.PhaseFailed, rec.lastState().Phase)
	require.Equal(t, 3, dialer.dials)
}

func TestChannel_MalformedFrameIsTransportLoss(t *testing.T) {
	t.Parallel()

	fc := clockwork.NewFakeClockAt(base)
	rec := &recorder{}
	conn := newFakeConn([]byte(`{"type":"new_bid","bid":`))
	ch := New(Config{AuctionID: "auction1"}, &fakeDialer{conns: []Conn{conn}}, rec, fc)

	errc := runChannel(ch)
	rec.waitPhases(t, 3)
	require.Equal(t, models.PhaseReconnecting, rec.lastState().Phase)
	require.Empty(t, rec.messages())

	ch.Close()
	require.NoError(t, waitErr(t, errc))
	require.Equal(t, models.PhaseClosed, rec.lastState().Phase)
}

func TestChannel_CancelWhileOpen(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	conn := newFakeConn()
	ch := New(Config{AuctionID: "auction1"}, &fakeDialer{conns: []Conn{conn}}, rec, clockwork.NewFakeClockAt(base))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- ch.Run(ctx) }()

	rec.waitPhases(t, 2)
	cancel()

	require.NoError(t, waitErr(t, errc))
	require.Equal(t, models.PhaseClosed, rec.lastState().Phase)
	select {
	case <-conn.closed:
	default:
		t.Fatal("connection was not closed")
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	ch := New(Config{AuctionID: "auction1"}, &fakeDialer{}, &recorder{}, nil)
	require.Equal(t, DefaultReconnectInterval, ch.cfg.ReconnectInterval)
	require.Equal(t, DefaultMaxAttempts, ch.cfg.MaxAttempts)
	require.Equal(t, DefaultStableAfter, ch.cfg.StableAfter)
	require.Equal(t, models.AnonymousUserID, ch.cfg.Identity.UserID)
	require.Equal(t, models.PhaseConnecting, ch.State().Phase)
}

package session

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
	"auction-sync/internal/channel"
	"auction-sync/internal/models"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 6, 12, 20, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu       sync.Mutex
	auction  models.Auction
	bids     []models.Bid
	err      error
	placed   []decimal.Decimal
	snapshot int
}

func (f *fakeSource) Snapshot(ctx context.Context, auctionID string) (models.Auction, []models.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot++
	if f.err != nil {
		return models.Auction{}, nil, f.err
	}
	return f.auction, append([]models.Bid(nil), f.bids...), nil
}

func (f *fakeSource) PlaceBid(ctx context.Context, auctionID string, amount decimal.Decimal) (models.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, amount)
	return models.Bid{ID: "placed-1", AuctionID: auctionID, Amount: amount, CreatedAt: base}, nil
}

type pipeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func (c *pipeConn) Read() ([]byte, error) {
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

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// pipeDialer hands out one connection per dial; tests push frames into it
type pipeDialer struct {
	conns chan *pipeConn
}

func newPipeDialer() *pipeDialer {
	return &pipeDialer{conns: make(chan *pipeConn, 4)}
}

func (d *pipeDialer) Dial(ctx context.Context, cfg channel.Config) (channel.Conn, error) {
	c := &pipeConn{frames: make(chan []byte, 16), closed: make(chan struct{})}
	d.conns <- c
	return c, nil
}

func (d *pipeDialer) next(t *testing.T) *pipeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no dial")
	}
	return nil
}

func auction() models.Auction {
	return models.Auction{
		ID:            "auction1",
		Title:         "Signed Guitar",
		StartingPrice: decimal.NewFromInt(100),
		StartTime:     base.Add(-time.Hour),
		EndTime:       base.Add(10 * time.Minute),
		Status:        models.StatusOngoing,
	}
}

func bidFrame(t *testing.T, id string, amount int64, total int) []byte {
	t.Helper()
	bid := models.Bid{ID: id, UserName: "Ada", Amount: decimal.NewFromInt(amount), CreatedAt: base}
	data, err := json.Marshal(models.NewBidMessage(bid, models.Auction{TotalBids: total}))
	require.NoError(t, err)
	return data
}

func TestSession_Lifecycle(t *testing.T) {
	t.Parallel()

	src := &fakeSource{auction: auction()}
	dialer := newPipeDialer()
	fc := clockwork.NewFakeClockAt(base)

	s, err := Open(context.Background(), Deps{Source: src, Dialer: dialer, Clock: fc}, "auction1")
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, "auction1", s.AuctionID())
	require.Equal(t, "Signed Guitar", s.View().Auction.Title)

	tick := <-s.Countdown()
	require.Equal(t, 10*time.Minute, tick.Remaining)

	conn := dialer.next(t)
	conn.frames <- bidFrame(t, "b1", 150, 1)

	require.Eventually(t, func() bool {
		v := s.View()
		return len(v.Bids) == 1 && v.Connection.Phase == models.PhaseOpen
	}, 2*time.Second, 5*time.Millisecond)

	v := s.View()
	require.Equal(t, "150", v.Auction.CurrentHighestBid.Decimal.String())
	require.Equal(t, 1, v.Auction.TotalBids)

	_, err = s.Submit(context.Background(), decimal.NewFromInt(140))
	require.ErrorIs(t, err, biddingerrors.ErrBidTooLow)

	pending, err := s.Submit(context.Background(), decimal.NewFromInt(160))
	require.NoError(t, err)
	require.Equal(t, "placed-1", pending.BidID)
	require.False(t, pending.Confirmed(s.View()), "the view only changes through the push channel")

	s.Close()
	require.Equal(t, models.PhaseClosed, s.Connection().Phase)

	_, ok := <-s.Countdown()
	for ok {
		_, ok = <-s.Countdown()
	}

	src.mu.Lock()
	defer src.mu.Unlock()
	require.Len(t, src.placed, 1)
}

func TestSession_InitialSnapshotFailure(t *testing.T) {
	t.Parallel()

	src := &fakeSource{err: &biddingerrors.SourceRejection{StatusCode: 404, Reason: "auction not found"}}
	dialer := newPipeDialer()

	s, err := Open(context.Background(), Deps{Source: src, Dialer: dialer, Clock: clockwork.NewFakeClockAt(base)}, "missing")
	require.Nil(t, s)
	require.ErrorIs(t, err, biddingerrors.ErrSourceRejected)

	conn := dialer.next(t)
	select {
	case <-conn.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("push connection left open")
	}
}

func TestSession_RecoveryRefetches(t *testing.T) {
	t.Parallel()

	src := &fakeSource{auction: auction()}
	dialer := newPipeDialer()
	fc := clockwork.NewFakeClockAt(base)

	s, err := Open(context.Background(), Deps{
		Source:  src,
		Dialer:  dialer,
		Clock:   fc,
		Channel: channel.Config{ReconnectInterval: time.Second, MaxAttempts: 3},
	}, "auction1")
	require.NoError(t, err)
	defer s.Close()

	first := dialer.next(t)

	// two bids land while the channel is down
	src.mu.Lock()
	a := auction()
	a.TotalBids = 2
	a.CurrentHighestBid = decimal.NewNullDecimal(decimal.NewFromInt(130))
	src.auction = a
	src.bids = []models.Bid{
		{ID: "b2", Amount: decimal.NewFromInt(130), CreatedAt: base.Add(2 * time.Second), UserName: "Bo"},
		{ID: "b1", Amount: decimal.NewFromInt(120), CreatedAt: base.Add(time.Second), UserName: "Ada"},
	}
	src.mu.Unlock()
	close(first.frames)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// countdown ticker plus the reconnect wait
	require.NoError(t, fc.BlockUntilContext(ctx, 2))
	fc.Advance(time.Second)
	dialer.next(t)

	require.Eventually(t, func() bool {
		v := s.View()
		return len(v.Bids) == 2 && !v.Reconciling
	}, 2*time.Second, 5*time.Millisecond)

	v := s.View()
	require.Equal(t, 2, v.Auction.TotalBids)
	require.Equal(t, "Bo", v.Auction.CurrentHighestBidderName)
}

func TestSession_IndependentAuctions(t *testing.T) {
	t.Parallel()

	srcA := &fakeSource{auction: auction()}
	b := auction()
	b.ID = "auction2"
	srcB := &fakeSource{auction: b}

	dialerA, dialerB := newPipeDialer(), newPipeDialer()
	fc := clockwork.NewFakeClockAt(base)

	sa, err := Open(context.Background(), Deps{Source: srcA, Dialer: dialerA, Clock: fc}, "auction1")
	require.NoError(t, err)
	defer sa.Close()
	sb, err := Open(context.Background(), Deps{Source: srcB, Dialer: dialerB, Clock: fc}, "auction2")
	require.NoError(t, err)

	dialerA.next(t).frames <- bidFrame(t, "a-1", 200, 1)
	dialerB.next(t)

	require.Eventually(t, func() bool { return len(sa.View().Bids) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Empty(t, sb.View().Bids)

	sb.Close()
	require.Equal(t, models.PhaseClosed, sb.Connection().Phase)
	require.NotEqual(t, models.PhaseClosed, sa.Connection().Phase)
}

func TestSession_OpenCancelled(t *testing.T) {
	t.Parallel()

	src := &fakeSource{err: context.Canceled}
	_, err := Open(context.Background(), Deps{Source: src, Dialer: newPipeDialer()}, "auction1")
	require.True(t, errors.Is(err, context.Canceled))
}

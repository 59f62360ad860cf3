package ledger

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

// Helper to create a new Bid
func newBid(id string, amount int64, createdAt time.Time) models.Bid {
	return models.Bid{
		ID:        id,
		AuctionID: "auction1",
		UserName:  "bidder-" + id,
		Amount:    decimal.NewFromInt(amount),
		CreatedAt: createdAt,
	}
}

func ids(bids []models.Bid) []string {
	out := make([]string, 0, len(bids))
	for _, b := range bids {
		out = append(out, b.ID)
	}
	return out
}

func TestLedger_Accept(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		prior       []models.Bid
		candidate   models.Bid
		wantOutcome Outcome
		wantErr     error
	}{
		{name: "first_bid", candidate: newBid("b1", 100, t0), wantOutcome: OutcomeLeading},
		{
			name:        "higher_bid",
			prior:       []models.Bid{newBid("b1", 100, t0)},
			candidate:   newBid("b2", 150, t0.Add(time.Second)),
			wantOutcome: OutcomeLeading,
		},
		{
			name:        "duplicate_id",
			prior:       []models.Bid{newBid("b1", 100, t0)},
			candidate:   newBid("b1", 100, t0),
			wantOutcome: OutcomeRejected,
			wantErr:     biddingerrors.ErrDuplicateBid,
		},
		{
			name:        "lower_and_newer",
			prior:       []models.Bid{newBid("b1", 150, t0)},
			candidate:   newBid("b2", 120, t0.Add(time.Second)),
			wantOutcome: OutcomeStale,
		},
		{
			name:        "equal_and_newer",
			prior:       []models.Bid{newBid("b1", 150, t0)},
			candidate:   newBid("b2", 150, t0.Add(time.Second)),
			wantOutcome: OutcomeStale,
		},
		{
			name:        "lower_and_older",
			prior:       []models.Bid{newBid("b2", 150, t0.Add(time.Second))},
			candidate:   newBid("b1", 100, t0),
			wantOutcome: OutcomeStale,
		},
		{
			name:        "equal_and_older_takes_the_lead",
			prior:       []models.Bid{newBid("b2", 150, t0.Add(time.Second))},
			candidate:   newBid("b1", 150, t0),
			wantOutcome: OutcomeLeading,
		},
		{name: "missing_id", candidate: newBid("", 100, t0), wantOutcome: OutcomeRejected, wantErr: biddingerrors.ErrMalformedBid},
		{name: "zero_amount", candidate: newBid("b1", 0, t0), wantOutcome: OutcomeRejected, wantErr: biddingerrors.ErrMalformedBid},
		{name: "negative_amount", candidate: newBid("b1", -5, t0), wantOutcome: OutcomeRejected, wantErr: biddingerrors.ErrMalformedBid},
		{name: "missing_created_at", candidate: newBid("b1", 100, time.Time{}), wantOutcome: OutcomeRejected, wantErr: biddingerrors.ErrMalformedBid},
		{
			name: "other_auction",
			candidate: models.Bid{
				ID: "b1", AuctionID: "auction2", Amount: decimal.NewFromInt(100), CreatedAt: t0,
			},
			wantOutcome: OutcomeRejected,
			wantErr:     biddingerrors.ErrMalformedBid,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			l := New("auction1")
			for _, b := range tc.prior {
				_, err := l.Accept(b)
				require.NoError(t, err)
			}

			outcome, err := l.Accept(tc.candidate)
			require.Equal(t, tc.wantOutcome, outcome, "outcome %s", outcome)
			if tc.wantErr != nil {
				require.True(t, errors.Is(err, tc.wantErr), "expected error: %v, got: %v", tc.wantErr, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLedger_OutOfOrderDelivery(t *testing.T) {
	t.Parallel()

	b1 := newBid("b1", 100, t0)
	b2 := newBid("b2", 150, t0.Add(time.Second))
	b3 := newBid("b3", 120, t0.Add(2*time.Second))

	l := New("auction1")

	outcome, err := l.Accept(b2)
	require.NoError(t, err)
	require.Equal(t, OutcomeLeading, outcome)

	outcome, err = l.Accept(b3)
	require.NoError(t, err)
	require.Equal(t, OutcomeStale, outcome)

	outcome, err = l.Accept(b1)
	require.NoError(t, err)
	require.Equal(t, OutcomeStale, outcome)

	highest, ok := l.Highest()
	require.True(t, ok)
	require.Equal(t, "b2", highest.ID)
	require.True(t, highest.Amount.Equal(decimal.NewFromInt(150)))

	// every real bid is counted even though only b2 ever leads
	require.Equal(t, 3, l.Count())
	require.Equal(t, []string{"b3", "b2", "b1"}, ids(l.All()))

	// redelivery of a stale bid is a duplicate, not a second entry
	outcome, err = l.Accept(b3)
	require.ErrorIs(t, err, biddingerrors.ErrDuplicateBid)
	require.Equal(t, OutcomeRejected, outcome)
	require.Equal(t, 3, l.Count())
}

func TestLedger_StaleBidsCountTowardTotal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		order       []models.Bid
		wantHighest string
		wantIDs     []string
	}{
		{
			name:        "lower_and_newer_after_leader",
			order:       []models.Bid{newBid("a", 200, t0.Add(2*time.Second)), newBid("b", 250, t0.Add(time.Second))},
			wantHighest: "b",
			wantIDs:     []string{"a", "b"},
		},
		{
			name:        "leader_last",
			order:       []models.Bid{newBid("b", 250, t0.Add(time.Second)), newBid("a", 200, t0.Add(2*time.Second))},
			wantHighest: "b",
			wantIDs:     []string{"a", "b"},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			l := New("auction1")
			for _, b := range tc.order {
				outcome, err := l.Accept(b)
				require.NoError(t, err)
				require.True(t, outcome.Recorded())
			}

			highest, ok := l.Highest()
			require.True(t, ok)
			require.Equal(t, tc.wantHighest, highest.ID)
			require.Equal(t, len(tc.order), l.Count())
			require.Equal(t, tc.wantIDs, ids(l.All()))
		})
	}
}

func TestLedger_Idempotent(t *testing.T) {
	t.Parallel()

	l := New("auction1")
	bid := newBid("b1", 100, t0)

	_, err := l.Accept(bid)
	require.NoError(t, err)
	before := l.All()

	for i := 0; i < 3; i++ {
		outcome, err := l.Accept(bid)
		require.ErrorIs(t, err, biddingerrors.ErrDuplicateBid)
		require.Equal(t, OutcomeRejected, outcome)
	}

	require.Equal(t, 1, l.Count())
	require.Equal(t, before, l.All())
}

func TestLedger_OrderIsTotal(t *testing.T) {
	t.Parallel()

	l := New("auction1")
	// same created_at, ids break the tie descending
	for i, amount := range []int64{100, 110, 120, 130} {
		_, err := l.Accept(newBid(fmt.Sprintf("b%d", i), amount, t0))
		require.NoError(t, err)
	}
	_, err := l.Accept(newBid("b9", 200, t0.Add(time.Minute)))
	require.NoError(t, err)

	require.Equal(t, []string{"b9", "b3", "b2", "b1", "b0"}, ids(l.All()))
}

func TestLedger_AllReturnsCopy(t *testing.T) {
	t.Parallel()

	l := New("auction1")
	_, err := l.Accept(newBid("b1", 100, t0))
	require.NoError(t, err)

	all := l.All()
	all[0].ID = "tampered"

	require.True(t, l.Contains("b1"))
	require.Equal(t, "b1", l.All()[0].ID)
	require.Equal(t, "auction1", l.All()[0].AuctionID)
}

func TestLedger_HighestNeverDecreases(t *testing.T) {
	t.Parallel()

	l := New("auction1")
	amounts := []int64{120, 100, 180, 150, 180, 90, 300, 250}
	var last decimal.Decimal

	for i, a := range amounts {
		_, _ = l.Accept(newBid(fmt.Sprintf("b%d", i), a, t0.Add(time.Duration(i)*time.Second)))
		h, ok := l.Highest()
		require.True(t, ok)
		require.True(t, h.Amount.GreaterThanOrEqual(last), "highest regressed from %s to %s", last, h.Amount)
		last = h.Amount
	}
	require.True(t, last.Equal(decimal.NewFromInt(300)))
}

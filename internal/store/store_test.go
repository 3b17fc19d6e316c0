package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwell/internal/domain"
	logx "inkwell/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "engine.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s *Store, id int64) domain.User {
	t.Helper()
	u := domain.User{
		ID: id, TZ: "UTC", Channel: domain.ChannelEmail,
		Email:     "writer@example.com",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.UpsertUser(context.Background(), u))
	return u
}

func TestUserRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := seedUser(t, s, 7)
	got, err := s.GetUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Upsert replaces contact details, not identity.
	want.Email = "new@example.com"
	require.NoError(t, s.UpsertUser(ctx, want))
	got, err = s.GetUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", got.Email)

	_, err = s.GetUser(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEntriesInRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedUser(t, s, 1)

	day := func(d int) time.Time { return time.Date(2026, 3, d, 12, 0, 0, 0, time.UTC) }
	for _, e := range []domain.Entry{
		{UserID: 1, Type: domain.TypeText, Body: "one", EntryDate: day(1), CreatedAt: day(1)},
		{UserID: 1, Type: domain.TypeDigest, Body: "digest", EntryDate: day(2), CreatedAt: day(2)},
		{UserID: 1, Type: domain.TypePhoto, MediaRef: "m/1", EntryDate: day(3), CreatedAt: day(3)},
		{UserID: 1, Type: domain.TypeText, Body: "outside", EntryDate: day(9), CreatedAt: day(9)},
	} {
		_, err := s.AddEntry(ctx, e)
		require.NoError(t, err)
	}

	// Half-open range: day 9 entry excluded even with end = day 9.
	got, err := s.EntriesInRange(ctx, 1, day(1), day(9), domain.FilterBoth)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "one", got[0].Body)
	assert.True(t, got[1].IsDigest())

	digests, err := s.EntriesInRange(ctx, 1, day(1), day(9), domain.FilterDaily)
	require.NoError(t, err)
	require.Len(t, digests, 1)

	individual, err := s.EntriesInRange(ctx, 1, day(1), day(9), domain.FilterIndividual)
	require.NoError(t, err)
	require.Len(t, individual, 2)

	// Last activity skips the digest.
	last, err := s.LastEntryTimestamp(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Equal(day(9)))

	none, err := s.LastEntryTimestamp(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestCreateReminderRejectsMalformed(t *testing.T) {
	s := openTestStore(t)
	seedUser(t, s, 1)

	_, err := s.CreateReminder(context.Background(), domain.Reminder{UserID: 1, Kind: domain.KindWeekly, TimeOfDay: "09:00"})
	assert.ErrorIs(t, err, domain.ErrMissingField)
}

func TestClaimIsExclusiveAndReclaimsStale(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedUser(t, s, 1)

	id, err := s.CreateReminder(ctx, domain.Reminder{
		UserID: 1, Kind: domain.KindDaily, TimeOfDay: "09:00", Active: true,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 9, 5, 0, 0, time.UTC)
	stale := 30 * time.Minute

	ok, err := s.ClaimReminder(ctx, id, nil, now, stale)
	require.NoError(t, err)
	assert.True(t, ok, "first claim must win")

	// A second worker inside the lease window loses.
	ok, err = s.ClaimReminder(ctx, id, nil, now.Add(time.Minute), stale)
	require.NoError(t, err)
	assert.False(t, ok, "second claim inside the window must lose")

	// After the lease goes stale (crashed worker), the claim is reclaimable.
	ok, err = s.ClaimReminder(ctx, id, nil, now.Add(31*time.Minute), stale)
	require.NoError(t, err)
	assert.True(t, ok, "stale claim must be reclaimable")

	// Advancing releases the claim and records the occurrence anchor.
	occ := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.AdvanceReminder(ctx, id, occ))

	r, err := s.GetReminder(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, r.LastSentAt)
	assert.True(t, r.LastSentAt.Equal(occ))
	assert.Zero(t, r.ConsecutiveFailures)

	ok, err = s.ClaimReminder(ctx, id, &occ, now.Add(32*time.Minute), stale)
	require.NoError(t, err)
	assert.True(t, ok, "released claim must be claimable again")
}

func TestClaimConditionsOnScannedAnchor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedUser(t, s, 1)

	id, err := s.CreateReminder(ctx, domain.Reminder{
		UserID: 1, Kind: domain.KindDaily, TimeOfDay: "09:00", Active: true,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 9, 5, 0, 0, time.UTC)
	stale := 30 * time.Minute
	occ := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	// Worker A claims on the scanned anchor (never sent), fires and advances.
	ok, err := s.ClaimReminder(ctx, id, nil, now, stale)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.AdvanceReminder(ctx, id, occ))

	// Worker B scanned before A advanced: its anchor is stale, so even though
	// the claim was released, the compare-and-swap must reject it.
	ok, err = s.ClaimReminder(ctx, id, nil, now.Add(time.Second), stale)
	require.NoError(t, err)
	assert.False(t, ok, "pre-advance candidate must not reclaim the fired occurrence")

	// A fresh scan carries the new anchor and claims normally.
	ok, err = s.ClaimReminder(ctx, id, &occ, now.Add(2*time.Second), stale)
	require.NoError(t, err)
	assert.True(t, ok)

	// Same contract on the date-anchored tables.
	due := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	subID, err := s.CreateEmailSubscription(ctx, domain.EmailSubscription{
		UserID: 1, Frequency: domain.FreqWeekly, Active: true, Filter: domain.FilterBoth,
		NextEmailDate: &due, CreatedAt: due.AddDate(0, 0, -7),
	})
	require.NoError(t, err)

	ok, err = s.ClaimEmailSubscription(ctx, subID, &due, now, stale)
	require.NoError(t, err)
	require.True(t, ok)
	next := due.AddDate(0, 0, 7)
	require.NoError(t, s.AdvanceEmailSubscription(ctx, subID, now, next))

	ok, err = s.ClaimEmailSubscription(ctx, subID, &due, now.Add(time.Second), stale)
	require.NoError(t, err)
	assert.False(t, ok, "consumed due date must not claim again")

	ok, err = s.ClaimEmailSubscription(ctx, subID, &next, now.Add(2*time.Second), stale)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFailureStreakFlagsForReview(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedUser(t, s, 1)

	id, err := s.CreateReminder(ctx, domain.Reminder{
		UserID: 1, Kind: domain.KindDaily, TimeOfDay: "09:00", Active: true,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	const max = 3
	for i := 1; i < max; i++ {
		count, flagged, err := s.ReminderFailure(ctx, id, max)
		require.NoError(t, err)
		assert.Equal(t, i, count)
		assert.False(t, flagged)
	}
	count, flagged, err := s.ReminderFailure(ctx, id, max)
	require.NoError(t, err)
	assert.Equal(t, max, count)
	assert.True(t, flagged, "threshold failure must flag for review")

	// Already flagged: streak keeps counting but no re-flag.
	_, flagged, err = s.ReminderFailure(ctx, id, max)
	require.NoError(t, err)
	assert.False(t, flagged)

	// Flagged reminders drop out of the dispatch scan.
	cands, err := s.ActiveReminders(ctx)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestDueEmailSubscriptions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedUser(t, s, 1)

	due := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	farFuture := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	idDue, err := s.CreateEmailSubscription(ctx, domain.EmailSubscription{
		UserID: 1, Frequency: domain.FreqWeekly, Active: true, Filter: domain.FilterBoth,
		NextEmailDate: &due, CreatedAt: due.AddDate(0, 0, -7),
	})
	require.NoError(t, err)
	_, err = s.CreateEmailSubscription(ctx, domain.EmailSubscription{
		UserID: 1, Frequency: domain.FreqWeekly, Active: true, Filter: domain.FilterBoth,
		NextEmailDate: &farFuture, CreatedAt: due,
	})
	require.NoError(t, err)
	_, err = s.CreateEmailSubscription(ctx, domain.EmailSubscription{
		UserID: 1, Frequency: domain.FreqWeekly, Active: false, Filter: domain.FilterBoth,
		NextEmailDate: &due, CreatedAt: due,
	})
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cands, err := s.DueEmailSubscriptions(ctx, now)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, idDue, cands[0].Sub.ID)
	assert.Equal(t, "UTC", cands[0].User.TZ)

	// Advancing moves the date forward and resets bookkeeping.
	next := due.AddDate(0, 0, 7)
	require.NoError(t, s.AdvanceEmailSubscription(ctx, idDue, now, next))
	sub, err := s.GetEmailSubscription(ctx, idDue)
	require.NoError(t, err)
	require.NotNil(t, sub.NextEmailDate)
	assert.True(t, sub.NextEmailDate.Equal(next))
	require.NotNil(t, sub.LastEmailedAt)
	assert.True(t, sub.LastEmailedAt.Equal(now))

	cands, err = s.DueEmailSubscriptions(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestFlagPrintSubscription(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedUser(t, s, 1)

	due := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	id, err := s.CreatePrintSubscription(ctx, domain.PrintSubscription{
		UserID: 1, Frequency: domain.FreqMonthly, Active: true, Color: domain.ColorBW,
		Shipping: domain.Address{
			Name: "A. Writer", Line1: "1 Main St", City: "Springfield",
			PostalCode: "12345", Country: "US",
		},
		NextPrintDate: &due, CreatedAt: due.AddDate(0, -1, 0),
	})
	require.NoError(t, err)

	require.NoError(t, s.FlagPrintSubscription(ctx, id))

	sub, err := s.GetPrintSubscription(ctx, id)
	require.NoError(t, err)
	assert.True(t, sub.NeedsReview)
	// The anchor is untouched: clearing the flag makes it due immediately.
	require.NotNil(t, sub.NextPrintDate)
	assert.True(t, sub.NextPrintDate.Equal(due))

	cands, err := s.DuePrintSubscriptions(ctx, due.Add(12*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, cands, "flagged subscription must not be scanned as due")
}

func TestTransitionOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedUser(t, s, 1)

	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	o := domain.PrintOrder{
		ID: "ord-1", UserID: 1, Status: domain.OrderPending,
		PeriodStart: at.AddDate(0, -1, 0), PeriodEnd: at,
		CreatedAt: at, UpdatedAt: at,
	}
	require.NoError(t, s.CreateOrder(ctx, o))

	// pending → generating → uploaded with counts.
	changed, err := s.TransitionOrder(ctx, o.ID, domain.OrderGenerating, at, OrderUpdate{})
	require.NoError(t, err)
	assert.True(t, changed)

	entries, pages := 12, 3
	changed, err = s.TransitionOrder(ctx, o.ID, domain.OrderUploaded, at, OrderUpdate{
		EntryCount: &entries, PageCount: &pages,
	})
	require.NoError(t, err)
	assert.True(t, changed)

	// Skip-ahead is rejected and commits nothing.
	_, err = s.TransitionOrder(ctx, o.ID, domain.OrderShipped, at, OrderUpdate{})
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	job := "job-9"
	var cost int64 = 1250
	changed, err = s.TransitionOrder(ctx, o.ID, domain.OrderInProduction, at, OrderUpdate{
		VendorJobID: &job, CostCents: &cost,
	})
	require.NoError(t, err)
	assert.True(t, changed)

	// Duplicate report: silent no-op.
	changed, err = s.TransitionOrder(ctx, o.ID, domain.OrderInProduction, at.Add(time.Hour), OrderUpdate{})
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderInProduction, got.Status)
	assert.Equal(t, 12, got.EntryCount)
	assert.Equal(t, 3, got.PageCount)
	assert.Equal(t, "job-9", got.VendorJobID)
	assert.Equal(t, cost, got.CostCents)
	assert.True(t, got.UpdatedAt.Equal(at), "no-op must not bump updated_at")

	open, err := s.OpenOrders(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)

	// Drive to delivered; it leaves the open set.
	_, err = s.TransitionOrder(ctx, o.ID, domain.OrderShipped, at, OrderUpdate{})
	require.NoError(t, err)
	_, err = s.TransitionOrder(ctx, o.ID, domain.OrderDelivered, at, OrderUpdate{})
	require.NoError(t, err)

	open, err = s.OpenOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	// Late tracking update still lands after the terminal state.
	require.NoError(t, s.SetOrderTracking(ctx, o.ID, "https://track.example/9"))
	got, err = s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://track.example/9", got.TrackingURL)

	_, err = s.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFailStaleOrders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedUser(t, s, 1)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	old := now.Add(-2 * time.Hour)

	// Orphaned before submit: no vendor job id, untouched for hours.
	require.NoError(t, s.CreateOrder(ctx, domain.PrintOrder{
		ID: "ord-lost", UserID: 1, Status: domain.OrderUploaded,
		PeriodStart: old.AddDate(0, -1, 0), PeriodEnd: old,
		CreatedAt: old, UpdatedAt: old,
	}))
	// Properly submitted: must stay in the open set.
	require.NoError(t, s.CreateOrder(ctx, domain.PrintOrder{
		ID: "ord-live", UserID: 1, Status: domain.OrderInProduction, VendorJobID: "job-1",
		PeriodStart: old.AddDate(0, -1, 0), PeriodEnd: old,
		CreatedAt: old, UpdatedAt: old,
	}))
	// Fresh and not yet submitted: inside the window, untouched.
	require.NoError(t, s.CreateOrder(ctx, domain.PrintOrder{
		ID: "ord-new", UserID: 1, Status: domain.OrderGenerating,
		PeriodStart: now.AddDate(0, -1, 0), PeriodEnd: now,
		CreatedAt: now, UpdatedAt: now.Add(-time.Minute),
	}))

	n, err := s.FailStaleOrders(ctx, now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	lost, err := s.GetOrder(ctx, "ord-lost")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFailed, lost.Status)
	assert.NotEmpty(t, lost.ErrorMessage)

	live, err := s.GetOrder(ctx, "ord-live")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderInProduction, live.Status)

	fresh, err := s.GetOrder(ctx, "ord-new")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderGenerating, fresh.Status)

	// Repeat sweeps are idempotent.
	n, err = s.FailStaleOrders(ctx, now, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTransitionOrderNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.TransitionOrder(context.Background(), "nope", domain.OrderGenerating, time.Now(), OrderUpdate{})
	assert.True(t, errors.Is(err, ErrNotFound))
}

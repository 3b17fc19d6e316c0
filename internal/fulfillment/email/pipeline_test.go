package email

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"inkwell/internal/domain"
	"inkwell/internal/notify"
	logx "inkwell/pkg/logx"
)

type stubSource struct {
	entries []domain.Entry
	err     error
	filter  domain.EntryFilter
}

func (s *stubSource) EntriesInRange(_ context.Context, _ int64, _, _ time.Time, filter domain.EntryFilter) ([]domain.Entry, error) {
	s.filter = filter
	return s.entries, s.err
}

type stubSender struct {
	msgs []notify.Message
	err  error
}

func (s *stubSender) Send(_ context.Context, _ domain.User, msg notify.Message) error {
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

var (
	testUser = domain.User{ID: 1, Email: "w@example.com", Channel: domain.ChannelEmail}
	testSub  = domain.EmailSubscription{ID: 20, UserID: 1, Frequency: domain.FreqWeekly, Filter: domain.FilterIndividual}
)

func day(d int) time.Time { return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC) }

func TestRunSendsFormattedReport(t *testing.T) {
	t.Parallel()
	src := &stubSource{entries: []domain.Entry{
		{Type: domain.TypeText, Body: "went hiking", EntryDate: day(3)},
		{Type: domain.TypeText, Body: "rainy day", EntryDate: day(5)},
	}}
	snd := &stubSender{}
	p := New(src, PlainFormatter{}, snd, logx.Nop())

	if err := p.Run(context.Background(), testUser, testSub, day(1), day(8)); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(snd.msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(snd.msgs))
	}
	if src.filter != domain.FilterIndividual {
		t.Fatalf("selection used filter %q, want subscription's", src.filter)
	}
	body := snd.msgs[0].Body
	if !strings.Contains(body, "went hiking") || !strings.Contains(body, "rainy day") {
		t.Fatalf("report body missing entries:\n%s", body)
	}
}

func TestRunEmptyPeriodIsSuccessWithoutSend(t *testing.T) {
	t.Parallel()
	snd := &stubSender{}
	p := New(&stubSource{}, PlainFormatter{}, snd, logx.Nop())

	if err := p.Run(context.Background(), testUser, testSub, day(1), day(8)); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(snd.msgs) != 0 {
		t.Fatal("empty period must not send")
	}
}

func TestRunPropagatesFailures(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")

	p := New(&stubSource{err: boom}, PlainFormatter{}, &stubSender{}, logx.Nop())
	if err := p.Run(context.Background(), testUser, testSub, day(1), day(8)); !errors.Is(err, boom) {
		t.Fatalf("selection error not propagated: %v", err)
	}

	src := &stubSource{entries: []domain.Entry{{Type: domain.TypeText, Body: "x", EntryDate: day(2)}}}
	p = New(src, PlainFormatter{}, &stubSender{err: boom}, logx.Nop())
	if err := p.Run(context.Background(), testUser, testSub, day(1), day(8)); !errors.Is(err, boom) {
		t.Fatalf("send error not propagated: %v", err)
	}
}

func TestPlainFormatterSkipsImagesUnlessOpted(t *testing.T) {
	t.Parallel()
	entries := []domain.Entry{
		{Type: domain.TypeText, Body: "words", EntryDate: day(2)},
		{Type: domain.TypePhoto, MediaRef: "m/1", EntryDate: day(2)},
	}

	sub := testSub
	msg := PlainFormatter{}.Format(testUser, sub, entries, day(1), day(8))
	if strings.Contains(msg.Body, "attachment") {
		t.Fatal("images must be omitted unless the subscription opts in")
	}

	sub.IncludeImages = true
	msg = PlainFormatter{}.Format(testUser, sub, entries, day(1), day(8))
	if !strings.Contains(msg.Body, "photo attachment") {
		t.Fatalf("opted-in report missing attachment marker:\n%s", msg.Body)
	}
}

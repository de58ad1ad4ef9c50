package mailer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluevlad/HealthPulse/internal/config"
	"github.com/bluevlad/HealthPulse/internal/digest"
	"github.com/bluevlad/HealthPulse/internal/model"
)

type fakeSubscriberStore struct {
	subscribers []model.Subscriber
}

func (f *fakeSubscriberStore) Active(ctx context.Context) ([]model.Subscriber, error) {
	return f.subscribers, nil
}

type fakeDeliveryStore struct {
	mu       sync.Mutex
	terminal map[uint]model.DeliveryOutcome
	records  []model.DeliveryRecord
}

func newFakeDeliveryStore() *fakeDeliveryStore {
	return &fakeDeliveryStore{terminal: map[uint]model.DeliveryOutcome{}}
}

func (f *fakeDeliveryStore) TerminalByDate(ctx context.Context, date string) (map[uint]model.DeliveryOutcome, error) {
	out := make(map[uint]model.DeliveryOutcome, len(f.terminal))
	for k, v := range f.terminal {
		out[k] = v
	}
	return out, nil
}

func (f *fakeDeliveryStore) Record(ctx context.Context, record *model.DeliveryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, *record)
	return nil
}

func (f *fakeDeliveryStore) outcomeFor(subscriberID uint) (model.DeliveryOutcome, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.records) - 1; i >= 0; i-- {
		if f.records[i].SubscriberID == subscriberID {
			return f.records[i].Outcome, true
		}
	}
	return "", false
}

type fakeTransport struct {
	mu      sync.Mutex
	failFor map[string]int
	sent    []string
}

func (f *fakeTransport) Send(ctx context.Context, to, toName, subject, htmlBody string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.failFor[to]; ok && n != 0 {
		if n > 0 {
			f.failFor[to] = n - 1
		}
		return errors.New("smtp temporarily rejected")
	}
	f.sent = append(f.sent, to)
	return nil
}

func subscribers(n int) []model.Subscriber {
	var out []model.Subscriber
	for i := 1; i <= n; i++ {
		out = append(out, model.Subscriber{
			ID:     uint(i),
			Email:  string(rune('a'+i-1)) + "@example.com",
			Active: true,
		})
	}
	return out
}

func testDigest() digest.Digest {
	return digest.Digest{
		Date:    "2025-06-15",
		Subject: "[HealthPulse] 2025-06-15 Daily Healthcare News Briefing",
		Entries: []digest.Entry{{Title: "story", Summary: "summary", Link: "https://x/1"}},
	}
}

func newMailer(subs []model.Subscriber, deliveries DeliveryStore, transport Transport) *Mailer {
	return New(&fakeSubscriberStore{subscribers: subs}, deliveries, transport, config.PipelineConfig{
		MaxSendRetries:  2,
		SendBackoff:     time.Millisecond,
		SendConcurrency: 3,
	})
}

func TestSendDeliversToAllActive(t *testing.T) {
	deliveries := newFakeDeliveryStore()
	transport := &fakeTransport{}
	m := newMailer(subscribers(3), deliveries, transport)

	counts, err := m.Send(context.Background(), testDigest())
	require.NoError(t, err)
	assert.Equal(t, model.SendCounts{Sent: 3}, counts)
	assert.Len(t, transport.sent, 3)

	for i := uint(1); i <= 3; i++ {
		outcome, ok := deliveries.outcomeFor(i)
		require.True(t, ok)
		assert.Equal(t, model.DeliverySent, outcome)
	}
}

func TestSendSkipsTerminalRecords(t *testing.T) {
	deliveries := newFakeDeliveryStore()
	deliveries.terminal[1] = model.DeliverySent
	deliveries.terminal[3] = model.DeliverySkipped
	transport := &fakeTransport{}
	m := newMailer(subscribers(3), deliveries, transport)

	counts, err := m.Send(context.Background(), testDigest())
	require.NoError(t, err)
	assert.Equal(t, model.SendCounts{Sent: 1, Skipped: 2}, counts)
	assert.Equal(t, []string{"b@example.com"}, transport.sent)

	// Terminal records are not rewritten
	_, ok := deliveries.outcomeFor(1)
	assert.False(t, ok)
}

func TestSendOneRecipientFailureIsolated(t *testing.T) {
	deliveries := newFakeDeliveryStore()
	transport := &fakeTransport{failFor: map[string]int{"b@example.com": -1}}
	m := newMailer(subscribers(3), deliveries, transport)

	counts, err := m.Send(context.Background(), testDigest())
	require.NoError(t, err)
	assert.Equal(t, model.SendCounts{Sent: 2, Failed: 1}, counts)

	outcome, ok := deliveries.outcomeFor(2)
	require.True(t, ok)
	assert.Equal(t, model.DeliveryFailed, outcome)
}

func TestSendRetriesTransientFailure(t *testing.T) {
	deliveries := newFakeDeliveryStore()
	// First attempt fails, second succeeds
	transport := &fakeTransport{failFor: map[string]int{"a@example.com": 1}}
	m := newMailer(subscribers(1), deliveries, transport)

	counts, err := m.Send(context.Background(), testDigest())
	require.NoError(t, err)
	assert.Equal(t, model.SendCounts{Sent: 1}, counts)

	outcome, _ := deliveries.outcomeFor(1)
	assert.Equal(t, model.DeliverySent, outcome)
}

func TestSendEmptyDigestRecordsSkips(t *testing.T) {
	deliveries := newFakeDeliveryStore()
	transport := &fakeTransport{}
	m := newMailer(subscribers(2), deliveries, transport)

	empty := digest.Digest{Date: "2025-06-15", Subject: "s"}
	counts, err := m.Send(context.Background(), empty)
	require.NoError(t, err)
	assert.Equal(t, model.SendCounts{Skipped: 2}, counts)
	assert.Empty(t, transport.sent)

	for i := uint(1); i <= 2; i++ {
		outcome, ok := deliveries.outcomeFor(i)
		require.True(t, ok)
		assert.Equal(t, model.DeliverySkipped, outcome)
	}
}

func TestSendNoSubscribers(t *testing.T) {
	deliveries := newFakeDeliveryStore()
	m := newMailer(nil, deliveries, &fakeTransport{})

	counts, err := m.Send(context.Background(), testDigest())
	require.NoError(t, err)
	assert.Equal(t, model.SendCounts{}, counts)
	assert.Empty(t, deliveries.records)
}

func TestSendRerunAfterPartialFailure(t *testing.T) {
	deliveries := newFakeDeliveryStore()
	transport := &fakeTransport{failFor: map[string]int{"b@example.com": -1}}
	m := newMailer(subscribers(3), deliveries, transport)

	_, err := m.Send(context.Background(), testDigest())
	require.NoError(t, err)

	// Heal the transport and re-run: only the failed recipient is retried
	transport.mu.Lock()
	delete(transport.failFor, "b@example.com")
	sentBefore := len(transport.sent)
	transport.mu.Unlock()

	deliveries.terminal[1] = model.DeliverySent
	deliveries.terminal[3] = model.DeliverySent

	counts, err := m.Send(context.Background(), testDigest())
	require.NoError(t, err)
	assert.Equal(t, model.SendCounts{Sent: 1, Skipped: 2}, counts)
	assert.Equal(t, sentBefore+1, len(transport.sent))
}

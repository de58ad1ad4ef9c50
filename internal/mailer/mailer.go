// Package mailer implements the send stage: delivering the daily digest
// to every active subscriber exactly once per date.
package mailer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bluevlad/HealthPulse/internal/config"
	"github.com/bluevlad/HealthPulse/internal/digest"
	"github.com/bluevlad/HealthPulse/internal/model"
)

// SubscriberStore is the slice of subscriber persistence the mailer needs.
type SubscriberStore interface {
	Active(ctx context.Context) ([]model.Subscriber, error)
}

// DeliveryStore persists per-recipient outcomes.
type DeliveryStore interface {
	TerminalByDate(ctx context.Context, date string) (map[uint]model.DeliveryOutcome, error)
	Record(ctx context.Context, record *model.DeliveryRecord) error
}

// Transport delivers one composed email.
type Transport interface {
	Send(ctx context.Context, to, toName, subject, htmlBody string) error
}

// Mailer fans the digest out to subscribers under a bounded worker
// pool. Subscribers with a terminal delivery record for the date are
// never mailed again; one recipient's failure never blocks the rest.
type Mailer struct {
	subscribers SubscriberStore
	deliveries  DeliveryStore
	transport   Transport
	maxRetries  int
	backoff     time.Duration
	concurrency int
}

// New creates a mailer.
func New(subscribers SubscriberStore, deliveries DeliveryStore, transport Transport, cfg config.PipelineConfig) *Mailer {
	maxRetries := cfg.MaxSendRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	concurrency := cfg.SendConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Mailer{
		subscribers: subscribers,
		deliveries:  deliveries,
		transport:   transport,
		maxRetries:  maxRetries,
		backoff:     cfg.SendBackoff,
		concurrency: concurrency,
	}
}

// Send delivers the digest for the date to every active subscriber
// without a terminal record. An empty digest records skipped for
// everyone and sends nothing.
func (m *Mailer) Send(ctx context.Context, d digest.Digest) (model.SendCounts, error) {
	var counts model.SendCounts

	subscribers, err := m.subscribers.Active(ctx)
	if err != nil {
		return counts, err
	}
	if len(subscribers) == 0 {
		logrus.Warn("No active subscribers, nothing to send")
		return counts, nil
	}

	terminal, err := m.deliveries.TerminalByDate(ctx, d.Date)
	if err != nil {
		return counts, err
	}

	if d.Empty() {
		logrus.Infof("Digest for %s is empty, recording skips for %d subscribers", d.Date, len(subscribers))
		for _, sub := range subscribers {
			if _, done := terminal[sub.ID]; done {
				counts.Skipped++
				continue
			}
			if err := m.record(ctx, d.Date, sub, model.DeliverySkipped, "empty digest", 0); err != nil {
				return counts, err
			}
			counts.Skipped++
		}
		return counts, nil
	}

	body, err := d.HTML()
	if err != nil {
		return counts, err
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	sem := make(chan struct{}, m.concurrency)

	for _, sub := range subscribers {
		if _, done := terminal[sub.ID]; done {
			counts.Skipped++
			continue
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(sub model.Subscriber) {
			defer wg.Done()
			defer func() { <-sem }()

			sent := m.deliverOne(ctx, d, sub, body)

			mu.Lock()
			defer mu.Unlock()
			if sent {
				counts.Sent++
			} else {
				counts.Failed++
			}
		}(sub)
	}

	wg.Wait()

	logrus.Infof("Send for %s done: sent=%d failed=%d skipped=%d",
		d.Date, counts.Sent, counts.Failed, counts.Skipped)
	return counts, nil
}

// deliverOne mails a single subscriber with retries and records the
// outcome. Returns true on successful delivery.
func (m *Mailer) deliverOne(ctx context.Context, d digest.Digest, sub model.Subscriber, body string) bool {
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= m.maxRetries; attempt++ {
		if attempt > 1 {
			wait := m.backoff * time.Duration(1<<(attempt-2))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				lastErr = ctx.Err()
			}
			if ctx.Err() != nil {
				break
			}
		}

		attempts = attempt
		lastErr = m.transport.Send(ctx, sub.Email, sub.Name, d.Subject, body)
		if lastErr == nil {
			if err := m.record(ctx, d.Date, sub, model.DeliverySent, "", attempts); err != nil {
				logrus.Errorf("Delivered to %s but failed to record it: %v", sub.Email, err)
			}
			return true
		}
		logrus.Warnf("Send to %s attempt %d/%d failed: %v", sub.Email, attempt, m.maxRetries, lastErr)
	}

	errMsg := ""
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	if err := m.record(ctx, d.Date, sub, model.DeliveryFailed, errMsg, attempts); err != nil {
		logrus.Errorf("Failed to record delivery failure for %s: %v", sub.Email, err)
	}
	return false
}

func (m *Mailer) record(ctx context.Context, date string, sub model.Subscriber, outcome model.DeliveryOutcome, errMsg string, attempts int) error {
	return m.deliveries.Record(ctx, &model.DeliveryRecord{
		RunDate:      date,
		SubscriberID: sub.ID,
		Email:        sub.Email,
		Outcome:      outcome,
		ErrorMsg:     errMsg,
		Attempts:     attempts,
		AttemptedAt:  time.Now(),
	})
}

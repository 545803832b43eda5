// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/dbwarden/internal/metrics"
)

type failingPublisher struct {
	mu     sync.Mutex
	calls  int
	closed int
}

func (f *failingPublisher) Publish(_ string, _ ...*message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("broker unavailable")
}

func (f *failingPublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs map[string][]*message.Message
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{msgs: make(map[string][]*message.Message)}
}

func (r *recordingPublisher) Publish(topic string, msgs ...*message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs[topic] = append(r.msgs[topic], msgs...)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) get(topic string) []*message.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msgs[topic]
}

func TestPublisherSetsMsgID(t *testing.T) {
	rec := newRecordingPublisher()
	p := NewPublisher(rec, DefaultBreakerConfig())

	msg := message.NewMessage("msg-1", []byte(`{}`))
	if err := p.Publish(context.Background(), TopicMaintenance, msg); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got := rec.get(TopicMaintenance)
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	if id := got[0].Metadata.Get(natsgo.MsgIdHdr); id != "msg-1" {
		t.Errorf("expected Nats-Msg-Id msg-1, got %q", id)
	}
}

func TestPublisherKeepsExistingMsgID(t *testing.T) {
	rec := newRecordingPublisher()
	p := NewPublisher(rec, BreakerConfig{})

	msg := message.NewMessage("msg-1", nil)
	msg.Metadata.Set(natsgo.MsgIdHdr, "custom")
	if err := p.Publish(context.Background(), TopicMaintenance, msg); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if id := rec.get(TopicMaintenance)[0].Metadata.Get(natsgo.MsgIdHdr); id != "custom" {
		t.Errorf("expected custom Nats-Msg-Id kept, got %q", id)
	}
}

func TestPublisherBreakerOpens(t *testing.T) {
	failing := &failingPublisher{}
	p := NewPublisher(failing, BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 2,
	})

	before := testutil.ToFloat64(metrics.EventsPublished.WithLabelValues(TopicBackupFinished, "failure"))
	for i := 0; i < 4; i++ {
		err := p.Publish(context.Background(), TopicBackupFinished, message.NewMessage("id", nil))
		if err == nil {
			t.Fatal("expected publish error")
		}
	}

	if failing.calls != 2 {
		t.Errorf("expected breaker to stop calls after 2 failures, got %d calls", failing.calls)
	}
	if state := p.BreakerState(); state != "open" {
		t.Errorf("expected breaker open, got %s", state)
	}
	after := testutil.ToFloat64(metrics.EventsPublished.WithLabelValues(TopicBackupFinished, "failure"))
	if after-before != 4 {
		t.Errorf("expected 4 failures counted, got %v", after-before)
	}
}

func TestPublisherBreakerDisabled(t *testing.T) {
	p := NewPublisher(newRecordingPublisher(), BreakerConfig{})
	if state := p.BreakerState(); state != "disabled" {
		t.Errorf("expected disabled, got %s", state)
	}
}

func TestPublisherClose(t *testing.T) {
	failing := &failingPublisher{}
	p := NewPublisher(failing, DefaultBreakerConfig())

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if failing.closed != 1 {
		t.Errorf("expected underlying Close once, got %d", failing.closed)
	}

	err := p.Publish(context.Background(), TopicMaintenance, message.NewMessage("id", nil))
	if !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("expected ErrPublisherClosed, got %v", err)
	}
}

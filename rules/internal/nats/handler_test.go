package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuaworth/hoistwaywatch/common/messaging"
)

type fakeSub struct {
	subject string
	valid   bool
	err     error
}

func (s *fakeSub) Unsubscribe() error {
	s.valid = false
	return s.err
}
func (s *fakeSub) Subject() string { return s.subject }
func (s *fakeSub) IsValid() bool { return s.valid }

type fakeSubscriber struct {
	handlers map[string]messaging.MessageHandler
	queues   map[string]string
	subs     []*fakeSub
	fail     error
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{
		handlers: make(map[string]messaging.MessageHandler),
		queues:   make(map[string]string),
	}
}

func (f *fakeSubscriber) Subscribe(subject string, h messaging.MessageHandler) (messaging.Subscription, error) {
	return f.QueueSubscribe(subject, "", h)
}

func (f *fakeSubscriber) QueueSubscribe(subject, queue string, h messaging.MessageHandler) (messaging.Subscription, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.handlers[subject] = h
	f.queues[subject] = queue
	sub := &fakeSub{subject: subject, valid: true}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func TestHandler_StartDeliversMessages(t *testing.T) {
	bus := newFakeSubscriber()
	var got []string
	h := NewHandler(bus, "", messaging.QueueRules, func(_ context.Context, msg *messaging.Message) error {
		got = append(got, string(msg.Data))
		return nil
	})

	require.NoError(t, h.Start(context.Background()))
	assert.Equal(t, messaging.SubjectEventsAll, h.Subject())
	assert.Equal(t, messaging.QueueRules, bus.queues[messaging.SubjectEventsAll])

	deliver := bus.handlers[messaging.SubjectEventsAll]
	require.NotNil(t, deliver)
	require.NoError(t, deliver(context.Background(), &messaging.Message{Data: []byte("a")}))
	assert.Equal(t, []string{"a"}, got)
}

func TestHandler_FanOutWithoutQueue(t *testing.T) {
	bus := newFakeSubscriber()
	h := NewHandler(bus, messaging.SubjectEventsVision, "", nil)

	require.NoError(t, h.Start(context.Background()))
	assert.Equal(t, "", bus.queues[messaging.SubjectEventsVision])
}

func TestHandler_StartError(t *testing.T) {
	bus := newFakeSubscriber()
	bus.fail = errors.New("not connected")
	h := NewHandler(bus, "", "", nil)

	err := h.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), messaging.SubjectEventsAll)
	assert.ErrorIs(t, err, bus.fail)
}

func TestHandler_StopIsIdempotent(t *testing.T) {
	bus := newFakeSubscriber()
	h := NewHandler(bus, "", messaging.QueueRules, nil)
	require.NoError(t, h.Start(context.Background()))

	bus.subs[0].err = errors.New("already closed")
	assert.NoError(t, h.Stop())
	assert.False(t, bus.subs[0].IsValid())
	assert.NoError(t, h.Stop())
}

package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeDelivery records how the consumer settled the message.
type fakeDelivery struct {
	body     []byte
	acked    bool
	nacked   bool
	requeued bool
}

func (f *fakeDelivery) Body() []byte { return f.body }

func (f *fakeDelivery) Ack() error {
	f.acked = true
	return nil
}

func (f *fakeDelivery) Nack(requeue bool) error {
	f.nacked = true
	f.requeued = requeue
	return nil
}

func newTestQueue() *Queue {
	return &Queue{logger: zap.NewNop().Named("queue")}
}

func TestSettleAcksHandledCampaign(t *testing.T) {
	q := newTestQueue()
	campaignID := uuid.New()
	d := &fakeDelivery{body: []byte(campaignID.String())}

	var handled uuid.UUID
	err := q.settle(context.Background(), d, func(_ context.Context, id uuid.UUID) error {
		handled = id
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, campaignID, handled)
	assert.True(t, d.acked)
	assert.False(t, d.nacked)
}

func TestSettleDropsMalformedPayloadWithoutRequeue(t *testing.T) {
	q := newTestQueue()
	d := &fakeDelivery{body: []byte("not-a-uuid")}

	err := q.settle(context.Background(), d, func(context.Context, uuid.UUID) error {
		t.Fatal("handler must not run for a malformed payload")
		return nil
	})

	require.NoError(t, err)
	assert.True(t, d.nacked)
	assert.False(t, d.requeued)
	assert.False(t, d.acked)
}

func TestSettleAcksHandlerFailureWithLiveContext(t *testing.T) {
	// A failed run records its own state in the database; redelivering it
	// would loop the campaign forever.
	q := newTestQueue()
	d := &fakeDelivery{body: []byte(uuid.New().String())}

	err := q.settle(context.Background(), d, func(context.Context, uuid.UUID) error {
		return errors.New("campaign run failed")
	})

	require.NoError(t, err)
	assert.True(t, d.acked)
	assert.False(t, d.nacked)
}

func TestSettleRequeuesWhenShutdownInterruptsRun(t *testing.T) {
	q := newTestQueue()
	d := &fakeDelivery{body: []byte(uuid.New().String())}

	ctx, cancel := context.WithCancel(context.Background())
	err := q.settle(ctx, d, func(ctx context.Context, _ uuid.UUID) error {
		cancel()
		return ctx.Err()
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, d.nacked)
	assert.True(t, d.requeued)
	assert.False(t, d.acked)
}

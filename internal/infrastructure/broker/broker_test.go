package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconciler/internal/domain/entity/report"
)

type fakeChannel struct {
	exchange  string
	published []amqp.Publishing
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, _ string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.exchange = exchange
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublishRunSendsPersistentJSON(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	ch := &fakeChannel{}
	p := newPublisher("reports", ch, logger)

	summary := report.RunSummary{
		Trigger:   "schedule",
		WindowEnd: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		Checkers: []report.CheckerOutcome{
			{Checker: "trades", Attempts: 1, Report: report.CheckerReport{Checker: "trades", Added: 4}},
			{Checker: "candlesticks", Attempts: 6, Error: "ledger unavailable"},
		},
	}
	require.NoError(t, p.PublishRun(context.Background(), summary))

	require.Len(t, ch.published, 1)
	assert.Equal(t, "reports", ch.exchange)
	msg := ch.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, runMessageType, msg.Type)

	var decoded RunMessage
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, []string{"candlesticks"}, decoded.Failed)
	assert.Equal(t, 4, decoded.Added)
	assert.Equal(t, "schedule", decoded.Run.Trigger)
	assert.True(t, summary.WindowEnd.Equal(decoded.Run.WindowEnd))
}

func TestPublishRunAfterClose(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	ch := &fakeChannel{}
	p := newPublisher("reports", ch, logger)
	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
	assert.Error(t, p.PublishRun(context.Background(), report.RunSummary{}))
}

func TestPublishRunWrapsChannelErrors(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	p := newPublisher("reports", &fakeChannel{err: errors.New("channel closed")}, logger)
	err := p.PublishRun(context.Background(), report.RunSummary{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
}

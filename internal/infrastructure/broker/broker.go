package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"reconciler/internal/config"
	"reconciler/internal/domain/entity/report"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher announces finished reconciliation runs on a RabbitMQ fanout exchange.
type Publisher struct {
	exchange string
	logger   *logrus.Entry

	mu   sync.Mutex
	conn *amqp.Connection
	ch   channel
}

// NewPublisher connects to RabbitMQ and declares the reports exchange.
func NewPublisher(cfg config.RabbitMQConfig, logger *logrus.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.ReportsExchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.ReportsExchange, err)
	}

	p := newPublisher(cfg.ReportsExchange, ch, logger)
	p.conn = conn
	p.logger.Infof("rabbitmq publisher ready: exchange=%s", cfg.ReportsExchange)
	return p, nil
}

func newPublisher(exchange string, ch channel, logger *logrus.Logger) *Publisher {
	return &Publisher{
		exchange: exchange,
		ch:       ch,
		logger:   logger.WithField("component", "broker"),
	}
}

// PublishRun sends the summary of one run as a persistent JSON message.
func (p *Publisher) PublishRun(ctx context.Context, summary report.RunSummary) error {
	body, err := encodeRun(summary)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return errors.New("publisher is closed")
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         runMessageType,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish run summary: %w", err)
	}
	p.logger.WithFields(logrus.Fields{
		"trigger": summary.Trigger,
		"failed":  len(summary.FailedCheckers()),
	}).Debug("run summary published")
	return nil
}

// Close releases the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
		p.ch = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
		p.conn = nil
	}
	return errors.Join(errs...)
}

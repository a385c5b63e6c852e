// Package events announces job outcomes to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"vidluxe/internal/domain"
)

const (
	TypeJobCompleted = "job.completed"
	TypeJobFailed    = "job.failed"
)

// JobEvent is the payload written for every terminal job.
type JobEvent struct {
	Type        string             `json:"type"`
	JobID       string             `json:"job_id"`
	UserID      string             `json:"user_id"`
	ContentType domain.ContentType `json:"content_type"`
	Cost        int                `json:"cost"`
	ResultURL   string             `json:"result_url,omitempty"`
	Error       string             `json:"error,omitempty"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// NewJobEvent derives the event for a terminal job.
func NewJobEvent(job domain.Job) JobEvent {
	evt := JobEvent{
		Type:        TypeJobCompleted,
		JobID:       job.ID,
		UserID:      job.Input.UserID,
		ContentType: job.Input.ContentType,
		Cost:        job.Input.Cost,
		OccurredAt:  job.UpdatedAt,
	}
	if job.Status == domain.JobStatusFailed {
		evt.Type = TypeJobFailed
		evt.Error = job.Error
	}
	if job.Result != nil {
		evt.ResultURL = job.Result.URL
	}
	return evt
}

type Publisher interface {
	PublishJob(ctx context.Context, evt JobEvent) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishJob(context.Context, JobEvent) error { return nil }
func (NopPublisher) Close() error                               { return nil }

// KafkaPublisher writes events keyed by job id so all events of one job land
// on the same partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaConfig returns the producer settings used for job events.
func NewKafkaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	return cfg
}

// DialKafka connects a synchronous producer to brokers.
func DialKafka(brokers []string, topic string) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewKafkaConfig())
	if err != nil {
		return nil, fmt.Errorf("events: kafka producer: %w", err)
	}
	return NewKafkaPublisher(producer, topic), nil
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	if topic == "" {
		topic = "vidluxe.jobs"
	}
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishJob(ctx context.Context, evt JobEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(evt.JobID),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(evt.Type)},
		},
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("events: send %s: %w", evt.JobID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

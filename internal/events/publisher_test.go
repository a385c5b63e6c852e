package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"vidluxe/internal/domain"
)

func TestKafkaPublisherSendsKeyedEvent(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewKafkaConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var evt JobEvent
		if err := json.Unmarshal(val, &evt); err != nil {
			return err
		}
		if evt.Type != TypeJobFailed || evt.Error != "generate: provider failure" {
			return errors.New("unexpected payload: " + string(val))
		}
		return nil
	})
	pub := NewKafkaPublisher(producer, "jobs")
	defer pub.Close()

	job := domain.Job{
		ID:        "job-1",
		Status:    domain.JobStatusFailed,
		Error:     "generate: provider failure",
		Input:     domain.JobInput{UserID: "u1", ContentType: domain.ContentTypeImage, Cost: 1},
		UpdatedAt: time.Now(),
	}
	if err := pub.PublishJob(context.Background(), NewJobEvent(job)); err != nil {
		t.Fatalf("PublishJob: %v", err)
	}
}

func TestKafkaPublisherWrapsSendErrors(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewKafkaConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	pub := NewKafkaPublisher(producer, "")
	defer pub.Close()

	err := pub.PublishJob(context.Background(), JobEvent{JobID: "job-1", Type: TypeJobCompleted})
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
}

func TestNewJobEventCompleted(t *testing.T) {
	evt := NewJobEvent(domain.Job{
		ID:     "j",
		Status: domain.JobStatusCompleted,
		Result: &domain.JobResult{URL: "https://out/1.png"},
	})
	if evt.Type != TypeJobCompleted || evt.ResultURL != "https://out/1.png" || evt.Error != "" {
		t.Fatalf("unexpected event: %+v", evt)
	}
}

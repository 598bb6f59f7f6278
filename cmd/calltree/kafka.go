package main

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"

	"github.com/getsentry/calltree/internal/aggregate"
	"github.com/getsentry/calltree/internal/calltree"
)

type (
	// CallTreeKafkaMessage is the message published for every recorded tree.
	CallTreeKafkaMessage struct {
		CallCounts     map[string]int   `json:"call_counts"`
		CumulativeTime map[string]int64 `json:"cumulative_time_ns"`
		Environment    string           `json:"environment,omitempty"`
		Release        string           `json:"release,omitempty"`
		RunID          string           `json:"run_id"`
		Timestamp      int64            `json:"timestamp"`
		Tree           string           `json:"tree"`
		TreeName       string           `json:"tree_name"`
	}

	messageWriter interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	}
)

func buildCallTreeKafkaMessage(runID string, t *calltree.Tree, now time.Time) CallTreeKafkaMessage {
	return CallTreeKafkaMessage{
		CallCounts:     aggregate.CallCount(t),
		CumulativeTime: aggregate.CumulativeTime(t),
		Environment:    config.Environment,
		Release:        release,
		RunID:          runID,
		Timestamp:      now.Unix(),
		Tree:           calltree.Encode(t),
		TreeName:       t.Name(),
	}
}

func newKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     kafka.CRC32Balancer{},
		BatchSize:    10,
		Compression:  kafka.Lz4,
		ReadTimeout:  3 * time.Second,
		Topic:        topic,
		WriteTimeout: 3 * time.Second,
	}
}

// publishTrees sends one message per tree, keyed by the run ID.
func publishTrees(ctx context.Context, w messageWriter, runID string, trees []*calltree.Tree) error {
	messages := make([]kafka.Message, 0, len(trees))
	now := time.Now()
	for _, t := range trees {
		b, err := jsoniter.Marshal(buildCallTreeKafkaMessage(runID, t, now))
		if err != nil {
			return err
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(runID),
			Value: b,
		})
	}
	return w.WriteMessages(ctx, messages...)
}

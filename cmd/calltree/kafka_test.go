package main

import (
	"context"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"

	"github.com/getsentry/calltree/internal/calltree"
	"github.com/getsentry/calltree/internal/testutil"
)

type fakeWriter struct {
	messages []kafka.Message
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func TestPublishTrees(t *testing.T) {
	tree := calltree.NewTree("worker 1")
	f, _ := tree.BeginCall("f", 1)
	g, _ := tree.BeginCall("g")
	_ = g.End()
	_ = f.End()

	w := &fakeWriter{}
	if err := publishTrees(context.Background(), w, "run-1", []*calltree.Tree{tree}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(w.messages))
	}
	if string(w.messages[0].Key) != "run-1" {
		t.Fatalf("got key %q", w.messages[0].Key)
	}

	var m CallTreeKafkaMessage
	if err := jsoniter.Unmarshal(w.messages[0].Value, &m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := buildCallTreeKafkaMessage("run-1", tree, time.Unix(m.Timestamp, 0))
	if diff := testutil.Diff(m, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if _, err := calltree.Decode(m.Tree); err != nil {
		t.Fatalf("published tree should decode: %v", err)
	}
	if m.CallCounts["f"] != 1 || m.CallCounts["g"] != 1 {
		t.Fatalf("unexpected counts %v", m.CallCounts)
	}
}

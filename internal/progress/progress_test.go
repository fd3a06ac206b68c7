package progress

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/semaj-rag/ingest-pipeline/internal/model"
)

func TestPublish_DeliversToSessionSubscriber(t *testing.T) {
	bus := New(zap.NewNop())
	sub := bus.Subscribe("s1")
	defer sub.Unsubscribe()

	bus.Publish(model.ProgressEvent{SessionID: "s1", Kind: model.EventStarted})

	select {
	case e := <-sub.Events:
		if e.Kind != model.EventStarted {
			t.Fatalf("unexpected event kind: %s", e.Kind)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected event to be delivered")
	}
}

func TestPublish_WildcardReceivesEveryTopic(t *testing.T) {
	bus := New(zap.NewNop())
	wild := bus.Subscribe(Wildcard)
	defer wild.Unsubscribe()

	bus.Publish(model.ProgressEvent{SessionID: "s1", Kind: model.EventStarted})
	bus.Publish(model.ProgressEvent{SessionID: "s2", Kind: model.EventCompleted})

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-wild.Events:
			seen[e.SessionID] = true
		case <-time.After(time.Second):
			t.Fatalf("expected wildcard to see both sessions")
		}
	}
	if !seen["s1"] || !seen["s2"] {
		t.Fatalf("expected wildcard to observe both sessions, got %+v", seen)
	}
}

func TestPublish_DropsOnFullBufferWithoutBlocking(t *testing.T) {
	bus := New(zap.NewNop())
	sub := bus.Subscribe("s1")
	defer sub.Unsubscribe()

	for i := 0; i < DefaultBufferSize+10; i++ {
		bus.Publish(model.ProgressEvent{SessionID: "s1", Kind: model.EventProgress})
	}

	if sub.Dropped() == 0 {
		t.Fatalf("expected some events to be dropped once the buffer filled")
	}
}

func TestUnsubscribe_RemovesFromTopic(t *testing.T) {
	bus := New(zap.NewNop())
	sub := bus.Subscribe("s1")
	if bus.SubscriberCount() != 1 {
		t.Fatalf("expected one subscriber")
	}
	sub.Unsubscribe()
	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected subscriber count to drop to zero after unsubscribe")
	}
}

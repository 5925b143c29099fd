package bus

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zeusync/bigspace/internal/core/models"
	"github.com/zeusync/bigspace/internal/core/observability/log"
)

type testObserver struct {
	mu             sync.Mutex
	publishCount   int
	deliveredCount int
	lastErr        error
}

func (o *testObserver) OnPublish(string, Event) {
	o.mu.Lock()
	o.publishCount++
	o.mu.Unlock()
}

func (o *testObserver) OnDelivered(_ string, _ Event, handlers int, err error, _ time.Duration) {
	o.mu.Lock()
	o.deliveredCount += handlers
	o.lastErr = err
	o.mu.Unlock()
}

func TestBasicPublishSubscribe(t *testing.T) {
	b := New()
	var got Event
	_, err := b.Subscribe(TypeFrameCompleted, func(e Event) error {
		got = e
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	ev := NewEvent(TypeFrameCompleted, "tester", 123).WithFrame(7)
	if err = b.Publish(ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got.ID == "" || got.ID != ev.ID {
		t.Fatalf("unexpected event id %q", got.ID)
	}
	if got.Frame != 7 || got.Data != 123 {
		t.Fatalf("payload lost: %+v", got)
	}
}

func TestNilHandlerRejected(t *testing.T) {
	if _, err := New().Subscribe("x", nil); !errors.Is(err, ErrNilHandler) {
		t.Fatalf("expected ErrNilHandler, got %v", err)
	}
}

func TestPartitionTopicsIsolation(t *testing.T) {
	b := New()
	t1, t2 := PartitionTopic(0), PartitionTopic(1)
	if t1 == t2 {
		t.Fatalf("partition topics collide: %s", t1)
	}
	count1, count2 := 0, 0
	_, _ = b.SubscribeTopic(t1, TypeSpatialSpawned, func(e Event) error { count1++; return nil })
	_, _ = b.SubscribeTopic(t2, TypeSpatialSpawned, func(e Event) error { count2++; return nil })
	_ = b.PublishToTopic(t1, NewPartitionEvent(TypeSpatialSpawned, "world", 0, 5, nil))
	if count1 != 1 || count2 != 0 {
		t.Fatalf("topic isolation failed: %d %d", count1, count2)
	}
}

func TestAnyTypeAndOrder(t *testing.T) {
	b := New()
	topic := PartitionTopic(models.PartitionID(3))
	var order []string
	_, _ = b.SubscribeTopic(topic, AnyType, func(e Event) error { order = append(order, "any:"+e.Type); return nil })
	_, _ = b.SubscribeTopic(topic, TypeDiagnostic, func(e Event) error { order = append(order, "diag"); return nil })

	_ = b.PublishToTopic(topic, NewEvent(TypeDiagnostic, "world", nil))
	_ = b.PublishToTopic(topic, NewEvent(TypeOriginDesignated, "world", nil))

	want := []string{"any:" + TypeDiagnostic, "diag", "any:" + TypeOriginDesignated}
	if len(order) != len(want) {
		t.Fatalf("unexpected deliveries: %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("delivery %d: want %s, got %s", i, want[i], order[i])
		}
	}
}

func TestFiltersAndCancel(t *testing.T) {
	b := New()
	obs := &testObserver{}
	b.AddObserver(obs)

	count := 0
	even := func(e Event) bool { return e.Frame%2 == 0 }
	sub, _ := b.Subscribe(TypeFrameCompleted, func(e Event) error { count++; return nil }, even)
	for frame := uint64(1); frame <= 4; frame++ {
		_ = b.Publish(NewEvent(TypeFrameCompleted, "world", nil).WithFrame(frame))
	}
	if count != 2 {
		t.Fatalf("filter not applied: %d deliveries", count)
	}
	if m := b.GetMetrics(); m.Filtered != 2 || m.Published != 4 {
		t.Fatalf("unexpected metrics: %+v", m)
	}

	if err := b.Unsubscribe(sub); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	_ = sub.Cancel()
	if sub.IsActive() {
		t.Fatal("subscription still active")
	}
	_ = b.Publish(NewEvent(TypeFrameCompleted, "world", nil))
	if count != 2 {
		t.Fatalf("cancelled handler still called")
	}
	if err := b.Unsubscribe(nil); err != nil {
		t.Fatalf("nil unsubscribe: %v", err)
	}
}

func TestObserverMetricsOptional(t *testing.T) {
	b := New()
	_, _ = b.Subscribe("e", func(e Event) error { return nil })
	_ = b.Publish(NewEvent("e", "s", nil))
	if m := b.GetMetrics(); m.Published != 0 || m.DeliveredHandlers != 0 {
		t.Fatalf("metrics should be zero without observers: %+v", m)
	}

	obs := &testObserver{}
	b.AddObserver(obs)
	b.AddObserver(NewLogObserver(log.NewNop()))
	failing := errors.New("boom")
	_, _ = b.Subscribe("e", func(e Event) error { return failing })
	err := b.Publish(NewEvent("e", "s", nil))
	if !errors.Is(err, failing) {
		t.Fatalf("expected joined handler error, got %v", err)
	}
	m := b.GetMetrics()
	if m.Published != 1 || m.DeliveredHandlers != 2 || m.Errors != 1 || m.SubscribersActive != 2 {
		t.Fatalf("metrics should update with observer: %+v", m)
	}
	if obs.publishCount != 1 || obs.deliveredCount != 2 || !errors.Is(obs.lastErr, failing) {
		t.Fatalf("observer not called: %+v", obs)
	}

	b.RemoveObserver(obs)
	_ = b.Publish(NewEvent("e", "s", nil))
	if obs.publishCount != 1 {
		t.Fatal("removed observer still notified")
	}
}

func TestGetTopics(t *testing.T) {
	b := New()
	_ = b.CreateTopic(PartitionTopic(1))
	_ = b.CreateTopic(PartitionTopic(1))
	_, _ = b.SubscribeTopic(PartitionTopic(0), TypeDiagnostic, func(Event) error { return nil })

	topics := b.GetTopics()
	if len(topics) != 3 {
		t.Fatalf("expected default plus two partition topics, got %+v", topics)
	}
	if topics[0].Name != "" || topics[1].Name != PartitionTopic(0) || topics[1].Subs != 1 {
		t.Fatalf("unexpected topic snapshot: %+v", topics)
	}
}

func TestProvideLogsFailedDeliveries(t *testing.T) {
	var out bytes.Buffer
	b := Provide(log.New(log.LevelWarn, log.WithOutput(&out), log.WithSampling(false)))
	_, _ = b.Subscribe("ok", func(e Event) error { return nil })
	_, _ = b.Subscribe("bad", func(e Event) error { return errors.New("boom") })

	if err := b.Publish(NewEvent("ok", "s", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("successful delivery was logged: %s", out.String())
	}
	if err := b.Publish(NewEvent("bad", "s", nil)); err == nil {
		t.Fatal("expected handler error")
	}
	if !strings.Contains(out.String(), "event handler failed") || !strings.Contains(out.String(), `"type":"bad"`) {
		t.Fatalf("failed delivery not logged: %s", out.String())
	}
	if m := b.GetMetrics(); m.Published != 2 || m.Errors != 1 {
		t.Fatalf("provided bus should collect metrics: %+v", m)
	}
}

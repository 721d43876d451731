package distress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/caresignal/triage-platform/internal/triage"
)

type recordingHandler struct {
	mu      sync.Mutex
	signals []Signal
	err     error
}

func (h *recordingHandler) HandleDistress(_ context.Context, sig Signal) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signals = append(h.signals, sig)
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.signals)
}

func (h *recordingHandler) last() Signal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.signals[len(h.signals)-1]
}

func TestPublisherRoundTrip(t *testing.T) {
	queue := NewMemoryQueue(8)
	pub := NewPublisher(queue)

	sig := Signal{
		SessionID: "session-1",
		PatientID: "patient-1",
		Score:     0.91,
		Decision:  triage.DistressConfirmed,
		At:        time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := pub.Publish(context.Background(), sig); err != nil {
		t.Fatalf("publish: %v", err)
	}

	handler := &recordingHandler{}
	worker := NewSignalWorker(queue, handler, nil, WithWorkerCount(1), WithReceiveWaitSeconds(1))

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for handler.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	worker.Wait()

	if handler.count() != 1 {
		t.Fatalf("expected 1 signal, got %d", handler.count())
	}
	got := handler.last()
	if got.SessionID != sig.SessionID || got.Decision != sig.Decision || got.Score != sig.Score {
		t.Fatalf("signal mangled in transit: %+v", got)
	}
}

func TestWorkerDropsMalformedMessages(t *testing.T) {
	queue := NewMemoryQueue(8)
	if err := queue.Send(context.Background(), "{not json"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := NewPublisher(queue).Publish(context.Background(), Signal{
		SessionID: "session-2",
		Decision:  triage.DistressConfirmed,
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	handler := &recordingHandler{}
	worker := NewSignalWorker(queue, handler, nil, WithWorkerCount(1), WithReceiveWaitSeconds(1), WithReceiveBatchSize(1))

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for handler.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	worker.Wait()

	// The malformed message is skipped; only the valid signal reaches the handler.
	if handler.count() != 1 {
		t.Fatalf("expected 1 handled signal, got %d", handler.count())
	}
	if handler.last().SessionID != "session-2" {
		t.Fatalf("wrong signal handled: %+v", handler.last())
	}
}

func TestWorkerLeavesFailedSignalsForRedelivery(t *testing.T) {
	queue := NewMemoryQueue(8)
	if err := NewPublisher(queue).Publish(context.Background(), Signal{SessionID: "s"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	handler := &recordingHandler{err: errors.New("store down")}
	worker := NewSignalWorker(queue, handler, nil, WithWorkerCount(1), WithReceiveWaitSeconds(1))

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for handler.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	worker.Wait()

	if handler.count() == 0 {
		t.Fatal("handler never invoked")
	}
	// MemoryQueue deletes are no-ops, so redelivery semantics are exercised
	// against SQS; here we only assert the handler saw the signal and the
	// worker did not panic on the error path.
}

func TestMemoryQueueReceiveTimesOut(t *testing.T) {
	queue := NewMemoryQueue(1)
	start := time.Now()
	msgs, err := queue.Receive(context.Background(), 5, 1)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty receive, got %d", len(msgs))
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Fatalf("receive returned before wait elapsed: %v", elapsed)
	}
}

func TestMemoryQueueBatchCollect(t *testing.T) {
	queue := NewMemoryQueue(16)
	for i := 0; i < 7; i++ {
		if err := queue.Send(context.Background(), "m"); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	msgs, err := queue.Receive(context.Background(), 5, 0)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("expected batch of 5, got %d", len(msgs))
	}
}

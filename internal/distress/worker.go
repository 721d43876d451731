package distress

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/caresignal/triage-platform/pkg/logging"
)

// SignalHandler reacts to a consumed distress signal. The assessment
// orchestrator implements this to attach the signal to triage state and
// trigger escalation.
type SignalHandler interface {
	HandleDistress(ctx context.Context, sig Signal) error
}

// SignalWorker consumes distress signals from the queue and invokes the handler.
type SignalWorker struct {
	queue   queueClient
	handler SignalHandler
	logger  *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// WorkerOption customizes signal worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// NewSignalWorker constructs a queue consumer around the provided handler.
func NewSignalWorker(queue *MemoryQueue, handler SignalHandler, logger *logging.Logger, opts ...WorkerOption) *SignalWorker {
	return newSignalWorker(queue, handler, logger, opts...)
}

// NewSQSSignalWorker constructs a queue consumer backed by SQS.
func NewSQSSignalWorker(queue *SQSQueue, handler SignalHandler, logger *logging.Logger, opts ...WorkerOption) *SignalWorker {
	return newSignalWorker(queue, handler, logger, opts...)
}

func newSignalWorker(queue queueClient, handler SignalHandler, logger *logging.Logger, opts ...WorkerOption) *SignalWorker {
	if queue == nil {
		panic("distress: queue cannot be nil")
	}
	if handler == nil {
		panic("distress: signal handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &SignalWorker{
		queue:   queue,
		handler: handler,
		logger:  logger,
		cfg:     cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *SignalWorker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *SignalWorker) Wait() {
	w.wg.Wait()
}

func (w *SignalWorker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("distress signal worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("distress signal worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive distress signals", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg, workerID)
		}
	}
}

func (w *SignalWorker) handleMessage(ctx context.Context, msg queueMessage, workerID int) {
	var env signalEnvelope
	if err := json.Unmarshal([]byte(msg.Body), &env); err != nil {
		// Poison message: log and delete so it does not loop forever.
		w.logger.Error("dropping malformed distress signal", "error", err,
			"message_id", msg.ID, "worker_id", workerID)
		w.deleteMessage(msg)
		return
	}

	if err := w.handler.HandleDistress(ctx, env.Signal); err != nil {
		// Leave the message on the queue for redelivery.
		w.logger.Error("distress signal handling failed", "error", err,
			"session_id", env.Signal.SessionID, "worker_id", workerID)
		return
	}

	w.logger.Info("distress signal processed",
		"session_id", env.Signal.SessionID,
		"decision", env.Signal.Decision,
		"worker_id", workerID,
	)
	w.deleteMessage(msg)
}

func (w *SignalWorker) deleteMessage(msg queueMessage) {
	deleteCtx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, msg.ReceiptHandle); err != nil {
		w.logger.Warn("failed to delete distress signal from queue", "error", err, "message_id", msg.ID)
	}
}

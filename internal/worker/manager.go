package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"pictogram/internal/queue"
)

const (
	// DefaultWorkerCount is the default number of worker goroutines.
	DefaultWorkerCount = 2

	// DefaultBatchSize is the number of messages read per XREADGROUP call.
	DefaultBatchSize = 10

	// DefaultBlockTimeout bounds how long a read blocks waiting for new
	// messages, so workers notice shutdown promptly.
	DefaultBlockTimeout = 5 * time.Second
)

// Manager runs the worker goroutines that consume the feed stream.
type Manager struct {
	consumer    queue.Consumer
	handler     *Handler
	workerCount int
	batchSize   int64
	blockTime   time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// ManagerConfig holds worker manager settings. Zero values fall back to the
// defaults above.
type ManagerConfig struct {
	WorkerCount  int
	BatchSize    int64
	BlockTimeout time.Duration
}

// NewManager creates a new worker manager.
func NewManager(consumer queue.Consumer, handler *Handler, cfg ManagerConfig) *Manager {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = DefaultBlockTimeout
	}

	return &Manager{
		consumer:    consumer,
		handler:     handler,
		workerCount: cfg.WorkerCount,
		batchSize:   cfg.BatchSize,
		blockTime:   cfg.BlockTimeout,
	}
}

// Start creates the consumer group and launches the workers. Call Stop to
// shut down.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	if err := m.consumer.EnsureGroup(m.ctx, queue.StreamFeed, queue.ConsumerGroupFeed); err != nil {
		return err
	}

	for i := 0; i < m.workerCount; i++ {
		workerID := i + 1
		m.wg.Add(1)
		go m.runWorker(workerID, fmt.Sprintf("worker-%d", workerID))
	}

	log.Printf("[Manager] started %d workers: stream=%s group=%s", m.workerCount, queue.StreamFeed, queue.ConsumerGroupFeed)
	return nil
}

// Stop shuts down all workers and blocks until they have drained.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
	log.Printf("[Manager] all workers stopped")
}

func (m *Manager) runWorker(workerID int, consumerName string) {
	defer m.wg.Done()

	// Replay deliveries a previous run left unacknowledged before taking
	// new ones.
	m.drainPending(workerID, consumerName)

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
			m.readBatch(workerID, consumerName)
		}
	}
}

func (m *Manager) drainPending(workerID int, consumerName string) {
	for {
		messages, err := m.consumer.ReadPending(m.ctx, queue.StreamFeed, queue.ConsumerGroupFeed, consumerName, m.batchSize)
		if err != nil {
			log.Printf("[Worker-%d] read pending: %v", workerID, err)
			return
		}
		if len(messages) == 0 {
			return
		}
		m.handleBatch(workerID, messages)
	}
}

func (m *Manager) readBatch(workerID int, consumerName string) {
	messages, err := m.consumer.Read(m.ctx, queue.StreamFeed, queue.ConsumerGroupFeed, consumerName, m.batchSize, m.blockTime)
	if err != nil {
		log.Printf("[Worker-%d] read: %v", workerID, err)
		time.Sleep(time.Second)
		return
	}
	if len(messages) == 0 {
		return
	}
	m.handleBatch(workerID, messages)
}

func (m *Manager) handleBatch(workerID int, messages []queue.Message) {
	for _, msg := range messages {
		if err := m.handler.HandleEvent(m.ctx, msg.Event); err != nil {
			// Ack anyway so an unprocessable message cannot wedge the group,
			// but drop the affected caches first: acking a half-applied event
			// would otherwise leave them serving stale content until expiry.
			log.Printf("[Worker-%d] handle msgID=%s: %v", workerID, msg.ID, err)
			m.handler.invalidateFor(m.ctx, msg.Event)
		}

		if err := m.consumer.Ack(m.ctx, queue.StreamFeed, queue.ConsumerGroupFeed, msg.ID); err != nil {
			log.Printf("[Worker-%d] ack msgID=%s: %v", workerID, msg.ID, err)
		}
	}
}

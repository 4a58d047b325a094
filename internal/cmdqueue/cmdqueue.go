// Package cmdqueue implements the prioritized command queue drained by the
// host: priority-ordered, FIFO within equal priority, bounded length with
// lowest-priority tail drop.
package cmdqueue

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/batcom/engine/internal/model"
)

const instrumentationName = "github.com/batcom/engine/internal/cmdqueue"

// item pairs a command with its insertion sequence so equal priorities drain
// oldest first.
type item struct {
	cmd model.Command
	seq uint64
}

type cmdHeap []item

func (h cmdHeap) Len() int { return len(h) }

func (h cmdHeap) Less(i, j int) bool {
	if h[i].cmd.ExecPriority != h[j].cmd.ExecPriority {
		return h[i].cmd.ExecPriority > h[j].cmd.ExecPriority
	}
	return h[i].seq < h[j].seq
}

func (h cmdHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cmdHeap) Push(x any) { *h = append(*h, x.(item)) }

func (h *cmdHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Queue is the shared command queue between decision cycles and host drains.
type Queue struct {
	mu     sync.Mutex
	items  cmdHeap
	seq    uint64
	maxLen int
	logger *slog.Logger

	enqueued metric.Int64Counter
	dropped  metric.Int64Counter
}

// New creates a queue bounded at maxCommandsPerTick x 4 entries. Uses the
// global OTel meter for metrics (no-op if not configured).
func New(maxCommandsPerTick int, logger *slog.Logger) (*Queue, error) {
	if maxCommandsPerTick <= 0 {
		maxCommandsPerTick = 30
	}
	q := &Queue{
		maxLen: maxCommandsPerTick * 4,
		logger: logger,
	}

	m := otel.Meter(instrumentationName)

	var err error
	q.enqueued, err = m.Int64Counter(
		"engine.cmdqueue.commands.enqueued",
		metric.WithDescription("Total commands accepted into the queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating enqueued counter: %w", err)
	}
	q.dropped, err = m.Int64Counter(
		"engine.cmdqueue.commands.dropped",
		metric.WithDescription("Total commands dropped by the length bound"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	gauge, err := m.Int64ObservableGauge(
		"engine.cmdqueue.size",
		metric.WithDescription("Current number of queued commands"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating size gauge: %w", err)
	}
	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(gauge, int64(q.Len()))
			return nil
		},
		gauge,
	)
	if err != nil {
		return nil, fmt.Errorf("registering size callback: %w", err)
	}

	return q, nil
}

// Enqueue inserts a command. When the queue is at its bound, the entry with
// the lowest priority (newest among equals) is dropped and logged; that entry
// may be the incoming command itself.
func (q *Queue) Enqueue(cmd model.Command) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	heap.Push(&q.items, item{cmd: cmd, seq: q.seq})
	q.enqueued.Add(context.Background(), 1)

	if len(q.items) <= q.maxLen {
		return
	}

	worst := 0
	for i := 1; i < len(q.items); i++ {
		if q.items.Less(worst, i) {
			worst = i
		}
	}
	victim := heap.Remove(&q.items, worst).(item)
	q.dropped.Add(context.Background(), 1)
	if q.logger != nil {
		q.logger.Warn("command queue full, dropping lowest priority command",
			"type", victim.cmd.Type,
			"group_id", victim.cmd.GroupID,
			"priority", victim.cmd.ExecPriority,
			"bound", q.maxLen)
	}
}

// Drain removes and returns up to maxN commands in priority order. The
// removal is atomic: a command is returned at most once, ever.
func (q *Queue) Drain(maxN int) []model.Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	if maxN <= 0 || len(q.items) == 0 {
		return nil
	}
	n := maxN
	if n > len(q.items) {
		n = len(q.items)
	}
	out := make([]model.Command, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, heap.Pop(&q.items).(item).cmd)
	}
	return out
}

// Len returns the current queue length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear empties the queue. Used by emergency stop.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

package kernel

import (
	"container/heap"
	"fmt"

	"github.com/cuemby/awesim/pkg/log"
	"github.com/cuemby/awesim/pkg/metrics"
	"github.com/cuemby/awesim/pkg/types"
	"github.com/rs/zerolog"
)

// LP is the capability set every logical process implements. Handlers
// run to completion and must not block; all waiting is expressed by
// scheduling a future event. There is no reverse handler: the kernel is
// sequential and conservative, so no speculative execution ever needs
// rolling back.
type LP interface {
	// Init runs before the first event is dispatched. LPs typically
	// schedule their own kick-off event here.
	Init(k *Kernel, self types.LPID)

	// Handle processes one delivered message.
	Handle(k *Kernel, msg types.Message)

	// Finalize runs exactly once after the event queue drains.
	Finalize(k *Kernel)
}

// State tracks the kernel lifecycle: Init -> Running -> Draining -> Finalized.
type State int

const (
	StateInit State = iota
	StateRunning
	StateDraining
	StateFinalized
)

type event struct {
	ts   float64
	dest types.LPID
	seq  uint64
	msg  types.Message
}

// eventHeap orders events by (timestamp, dest LP, sequence). The
// sequence component makes tie-breaking deterministic: two events with
// equal timestamps at the same LP deliver in schedule order.
type eventHeap []event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].ts != h[j].ts {
		return h[i].ts < h[j].ts
	}
	if h[i].dest != h[j].dest {
		return h[i].dest < h[j].dest
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x interface{}) { *h = append(*h, x.(event)) }
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

type registration struct {
	id     types.LPID
	lpType string
	lp     LP
}

// Kernel is a sequential discrete-event kernel: a global priority queue
// of timestamped messages dispatched to registered LPs in non-decreasing
// timestamp order.
type Kernel struct {
	lookahead float64
	queue     eventHeap
	lps       map[types.LPID]registration
	order     []types.LPID // registration order, for deterministic init/finalize
	now       float64
	seq       uint64
	state     State
	processed uint64
	logger    zerolog.Logger
}

// New creates a kernel with the given lookahead, the minimum offset (in
// simulated seconds) for events scheduled outside the init phase.
func New(lookahead float64) *Kernel {
	return &Kernel{
		lookahead: lookahead,
		lps:       make(map[types.LPID]registration),
		logger:    log.WithComponent("kernel"),
	}
}

// Register adds an LP under the given id. lpType names the LP kind for
// logs and metrics. Registering after Run has started is an error.
func (k *Kernel) Register(id types.LPID, lpType string, lp LP) {
	if k.state != StateInit {
		panic("kernel: Register called after Run")
	}
	if _, dup := k.lps[id]; dup {
		panic(fmt.Sprintf("kernel: duplicate LP id %d", id))
	}
	k.lps[id] = registration{id: id, lpType: lpType, lp: lp}
	k.order = append(k.order, id)
}

// Now returns the current virtual time: the timestamp of the event being
// dispatched, or 0 before any event.
func (k *Kernel) Now() float64 {
	return k.now
}

// Lookahead returns the kernel's causal-safety floor.
func (k *Kernel) Lookahead() float64 {
	return k.lookahead
}

// Schedule enqueues msg for delivery to dest at Now() + offset. Outside
// the init phase, offsets below the lookahead violate causal safety and
// panic; during init, LPs may seed kick-off events at offset zero.
func (k *Kernel) Schedule(dest types.LPID, offset float64, msg types.Message) {
	if k.state != StateInit && offset < k.lookahead {
		panic(fmt.Sprintf("kernel: schedule offset %g below lookahead %g (dest=%d kind=%s)",
			offset, k.lookahead, dest, msg.Kind))
	}
	if offset < 0 {
		panic(fmt.Sprintf("kernel: negative schedule offset %g (dest=%d)", offset, dest))
	}
	k.seq++
	heap.Push(&k.queue, event{ts: k.now + offset, dest: dest, seq: k.seq, msg: msg})
}

// Run initializes every LP, dispatches events in timestamp order until
// the queue drains or virtual time passes endTime, then finalizes every
// LP exactly once. Returns the number of events processed.
func (k *Kernel) Run(endTime float64) (uint64, error) {
	if k.state != StateInit {
		return 0, fmt.Errorf("kernel: Run called in state %d", k.state)
	}
	timer := metrics.NewTimer()

	heap.Init(&k.queue)
	for _, id := range k.order {
		reg := k.lps[id]
		reg.lp.Init(k, id)
	}
	k.state = StateRunning

	for k.queue.Len() > 0 {
		ev := heap.Pop(&k.queue).(event)
		if endTime > 0 && ev.ts > endTime {
			break
		}
		k.now = ev.ts

		reg, ok := k.lps[ev.dest]
		if !ok {
			k.logger.Warn().
				Int("dest", int(ev.dest)).
				Str("kind", ev.msg.Kind.String()).
				Msg("event for unregistered LP dropped")
			continue
		}
		reg.lp.Handle(k, ev.msg)
		k.processed++
		metrics.EventsDispatched.WithLabelValues(reg.lpType).Inc()
	}

	k.state = StateDraining
	for _, id := range k.order {
		k.lps[id].lp.Finalize(k)
	}
	k.state = StateFinalized
	timer.ObserveDuration(metrics.RunDuration)

	k.logger.Info().
		Uint64("events", k.processed).
		Float64("virtual_time", k.now).
		Dur("elapsed", timer.Duration()).
		Msg("simulation drained")
	return k.processed, nil
}

// Processed returns how many events have been dispatched so far.
func (k *Kernel) Processed() uint64 {
	return k.processed
}

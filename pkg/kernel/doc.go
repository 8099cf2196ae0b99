/*
Package kernel implements the discrete-event core of the simulator: a
global priority queue of timestamped messages dispatched to logical
processes (LPs) in non-decreasing timestamp order.

Each LP owns private state, mutated only inside its own Handle call.
LPs never share memory; all interaction is a timestamped message
scheduled through the kernel. "Waiting" is expressed by scheduling a
future event - handlers run to completion and must not block.

# Execution model

The kernel is sequential and conservative. One event is dispatched at a
time, so handlers need no synchronization, and there is no speculative
execution: the ROSS-style reverse handler has no equivalent here, which
also means no optimistic parallelism. The price is wall-clock speed on
multi-core hosts; the payoff is determinism and a much smaller contract
for LP authors.

Delivery order is total and reproducible: events are ordered by

	(timestamp, destination LP, schedule sequence)

so two events carrying the same timestamp at the same LP deliver in the
order they were scheduled. Given identical inputs, two runs produce
byte-identical event logs.

# Lookahead

Schedule enforces a global positive lookahead: once the simulation is
running, every offset must be at least the lookahead. This preserves
the invariant that an in-flight event can never be scheduled into
another LP's past. Violations are programming errors and panic rather
than being silently clamped. During the init phase LPs may seed their
own kick-off events at offset zero, before any event has been
dispatched.

# Lifecycle

	Init -> Running -> Draining -> Finalized

Register all LPs, then call Run. Run invokes every LP's Init in
registration order, dispatches until the queue drains or the end time
passes, then invokes every LP's Finalize exactly once, again in
registration order.
*/
package kernel

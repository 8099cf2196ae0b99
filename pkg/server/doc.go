/*
Package server implements the workload server LP: the scheduling state
machine at the center of the simulated service.

The server consumes five events:

	KICK_OFF       once, at virtual time zero: schedule a JOB_SUBMIT for
	               every job at its trace arrival time (optionally
	               compressed by the fraction option)
	JOB_SUBMIT     resolve the job's ready tasks and fan them out
	WORK_ENQUEUE   offer a ready workunit to a waiting worker, or park it
	WORK_CHECKOUT  answer a worker's request, or park the worker
	WORK_DONE      account a completion; unlock dependent tasks

Task readiness is driven by a per-job dependency matrix: task i is
ready when row i is all zeros. Completing a task zeroes its column in
every row, which may unlock dependents; parse_ready_tasks then queues
them. The extra WORK_ENQUEUE hop through the kernel puts workunit
dispatch at a distinct virtual time after the submit/done event that
produced it, avoiding event ties.

# Matching

Workers belong to named groups assigned by the topology config. Local
workers take any workunit; remote workers are only eligible for the
configured affinity stage, modeling a satellite site that is only
provisioned for one pipeline step. Both queues are scanned in FIFO
order, so matching stays fair within a group.

The scheduling policy applies when a local worker checks out against a
non-empty queue: FIFO hands out the oldest workunit, best-fit the one
with the smallest input payload, greedy the largest.

A checkout that finds nothing eligible is not answered; the worker
waits in the client queue until a matching workunit enqueues and the
server pushes the assignment.
*/
package server

package server

import (
	"github.com/cuemby/awesim/pkg/eventlog"
	"github.com/cuemby/awesim/pkg/kernel"
	"github.com/cuemby/awesim/pkg/log"
	"github.com/cuemby/awesim/pkg/metrics"
	"github.com/cuemby/awesim/pkg/trace"
	"github.com/cuemby/awesim/pkg/types"
	"github.com/rs/zerolog"
)

const lpType = "awe_server"

// Options configures the scheduling behavior of the server LP.
type Options struct {
	// Policy selects how workunits are picked for local workers.
	Policy types.SchedPolicy

	// AffinityStage is the only task index remote-group workers are
	// eligible to process.
	AffinityStage int

	// Fraction in (0,1] compresses job inter-arrival gaps; 1 preserves
	// the trace timing.
	Fraction float64

	// Groups assigns each worker LP to its network domain. Workers not
	// present default to the local group.
	Groups map[types.LPID]types.WorkerGroup
}

// Server is the workload server LP: it submits jobs at trace time,
// resolves task dependencies, and matches queued workunits to waiting
// workers. It is the sole mutator of job task state during a run.
type Server struct {
	id      types.LPID
	catalog *trace.Catalog
	opts    Options
	evlog   *eventlog.Writer
	logger  zerolog.Logger

	// workQueue holds workunit ids awaiting any eligible worker, in
	// enqueue order. clientQueue holds workers awaiting an eligible
	// workunit, in request order. Both allow an O(n) affinity scan.
	workQueue   []string
	clientQueue []types.LPID

	totalJobs  int
	totalTasks int
	totalWorks int
	startTS    float64
	endTS      float64
}

// New creates the server LP.
func New(catalog *trace.Catalog, evlog *eventlog.Writer, opts Options) *Server {
	if opts.Fraction <= 0 || opts.Fraction > 1 {
		opts.Fraction = 1
	}
	return &Server{
		catalog: catalog,
		opts:    opts,
		evlog:   evlog,
	}
}

// Init schedules the server's own kick-off at virtual time zero.
func (s *Server) Init(k *kernel.Kernel, self types.LPID) {
	s.id = self
	s.logger = log.WithLP(lpType, int(self))
	k.Schedule(self, 0, types.Message{Kind: types.KickOff, Src: self})
}

// Handle dispatches one event to its handler.
func (s *Server) Handle(k *kernel.Kernel, m types.Message) {
	switch m.Kind {
	case types.KickOff:
		s.handleKickOff(k)
	case types.JobSubmit:
		s.handleJobSubmit(k, m)
	case types.WorkEnqueue:
		s.handleWorkEnqueue(k, m)
	case types.WorkCheckout:
		s.handleWorkCheckout(k, m)
	case types.WorkDone:
		s.handleWorkDone(k, m)
	default:
		s.logger.Warn().Str("kind", m.Kind.String()).Int("src", int(m.Src)).Msg("invalid message type, dropped")
	}
}

// Finalize records the end timestamp and reports run totals.
func (s *Server) Finalize(k *kernel.Kernel) {
	s.endTS = k.Now()
	s.logger.Info().
		Float64("start_time", s.startTS).
		Float64("end_time", s.endTS).
		Float64("makespan", s.endTS-s.startTS).
		Int("total_jobs", s.totalJobs).
		Int("total_tasks", s.totalTasks).
		Int("total_workunits", s.totalWorks).
		Msg("server finalized")
}

// Totals reports the completed job/task/workunit counts.
func (s *Server) Totals() (jobs, tasks, works int) {
	return s.totalJobs, s.totalTasks, s.totalWorks
}

// Makespan is the virtual time between kick-off and the last event the
// server saw.
func (s *Server) Makespan() float64 {
	return s.endTS - s.startTS
}

// handleKickOff seeds one JOB_SUBMIT per job at its trace arrival time,
// optionally compressed by the fraction option. Jobs are iterated in id
// order so replays produce identical event logs.
func (s *Server) handleKickOff(k *kernel.Kernel) {
	s.startTS = k.Now()
	s.logger.Info().Float64("vt", k.Now()).Msg("start serving")

	for _, id := range s.catalog.JobIDs() {
		job := s.catalog.Jobs[id]
		offset := s.catalog.EtimeToSim(job.Created) + k.Lookahead()
		if s.opts.Fraction < 1 {
			offset *= s.opts.Fraction
		}
		if offset < k.Lookahead() {
			offset = k.Lookahead()
		}
		k.Schedule(s.id, offset, types.Message{
			Kind:     types.JobSubmit,
			Src:      s.id,
			ObjectID: id,
		})
	}
}

func (s *Server) handleJobSubmit(k *kernel.Kernel, m types.Message) {
	job, ok := s.catalog.Jobs[m.ObjectID]
	if !ok {
		s.logger.Warn().Str("job_id", m.ObjectID).Msg("submit for unknown job, dropped")
		return
	}
	s.evlog.Emit(k.Now(), lpType, int(s.id), eventlog.TagJobQueued, "jobid=%s inputsize=%d", job.ID, job.InputSize)
	s.parseReadyTasks(k, job)
}

// parseReadyTasks queues every pending task whose dependency row has
// been fully cleared, fanning each out into its workunits. The
// WORK_ENQUEUE hop through the kernel puts workunit dispatch at a
// distinct virtual time after the submit/done event that triggered it.
func (s *Server) parseReadyTasks(k *kernel.Kernel, job *types.Job) {
	for i := 0; i < job.NumTasks; i++ {
		if job.TaskStates[i] != types.TaskPending || !job.TaskReady(i) {
			continue
		}
		s.evlog.Emit(k.Now(), lpType, int(s.id), eventlog.TagTaskQueued, "taskid=%s_%d splits=%d", job.ID, i, job.TaskSplits[i])
		job.TaskStates[i] = types.TaskQueued

		// A single-split task keeps the historical _0 suffix; multi-split
		// tasks number their workunits from 1.
		if job.TaskSplits[i] == 1 {
			s.planWorkEnqueue(k, types.WorkID(job.ID, i, 0))
		} else {
			for split := 1; split <= job.TaskSplits[i]; split++ {
				s.planWorkEnqueue(k, types.WorkID(job.ID, i, split))
			}
		}
	}
}

func (s *Server) planWorkEnqueue(k *kernel.Kernel, workID string) {
	k.Schedule(s.id, k.Lookahead(), types.Message{
		Kind:     types.WorkEnqueue,
		Src:      s.id,
		ObjectID: workID,
	})
}

// handleWorkEnqueue offers a newly ready workunit to the first waiting
// worker whose affinity matches, or parks it on the work queue.
func (s *Server) handleWorkEnqueue(k *kernel.Kernel, m types.Message) {
	workID := m.ObjectID
	s.evlog.Emit(k.Now(), lpType, int(s.id), eventlog.TagWorkQueued, "work=%s", workID)

	match := -1
	for i, client := range s.clientQueue {
		if s.clientMatchesWork(client, workID) {
			match = i
			break
		}
	}

	if match >= 0 {
		client := s.clientQueue[match]
		s.clientQueue = append(s.clientQueue[:match], s.clientQueue[match+1:]...)
		s.sendCheckout(k, client, workID)
	} else {
		s.workQueue = append(s.workQueue, workID)
	}
	s.updateQueueGauges()
}

// handleWorkCheckout answers a worker's request with an eligible
// workunit, or parks the worker until one enqueues. No reply is sent
// while nothing matches; the worker stays idle until the server pushes.
func (s *Server) handleWorkCheckout(k *kernel.Kernel, m types.Message) {
	client := m.Src
	workID, ok := s.pickWork(client)
	if ok {
		s.sendCheckout(k, client, workID)
	} else {
		s.clientQueue = append(s.clientQueue, client)
	}
	s.updateQueueGauges()
}

func (s *Server) handleWorkDone(k *kernel.Kernel, m types.Message) {
	workID := m.ObjectID
	jobID, taskIndex, _, err := types.ParseWorkID(workID)
	if err != nil {
		log.Logger.Fatal().Err(err).Msg("work done with malformed workunit id")
	}
	job, ok := s.catalog.Jobs[jobID]
	if !ok || taskIndex >= job.NumTasks {
		s.logger.Warn().Str("work_id", workID).Msg("work done for unknown job or task, dropped")
		return
	}

	job.TaskRemain[taskIndex]--
	s.evlog.Emit(k.Now(), lpType, int(s.id), eventlog.TagWorkDone, "workid=%s", workID)
	s.totalWorks++
	metrics.WorkunitsCompleted.Inc()

	if job.TaskRemain[taskIndex] != 0 {
		return
	}

	s.evlog.Emit(k.Now(), lpType, int(s.id), eventlog.TagTaskDone, "taskid=%s_%d", jobID, taskIndex)
	s.totalTasks++
	metrics.TasksCompleted.Inc()
	job.TaskStates[taskIndex] = types.TaskCompleted
	job.ClearDependency(taskIndex)
	s.parseReadyTasks(k, job)

	job.RemainTasks--
	if job.RemainTasks == 0 {
		s.evlog.Emit(k.Now(), lpType, int(s.id), eventlog.TagJobDone, "jobid=%s", jobID)
		s.totalJobs++
		metrics.JobsCompleted.Inc()
	}
}

func (s *Server) sendCheckout(k *kernel.Kernel, client types.LPID, workID string) {
	k.Schedule(client, k.Lookahead(), types.Message{
		Kind:     types.WorkCheckout,
		Src:      s.id,
		ObjectID: workID,
	})
	s.evlog.Emit(k.Now(), lpType, int(s.id), eventlog.TagWorkCheckout, "work=%s client=%d", workID, client)
	metrics.WorkunitsScheduled.Inc()
}

// pickWork removes and returns the workunit the given worker should
// receive next, honoring remote affinity and the scheduling policy.
func (s *Server) pickWork(client types.LPID) (string, bool) {
	if len(s.workQueue) == 0 {
		return "", false
	}

	if s.groupOf(client) == types.GroupRemote {
		return s.takeFirstByStage(s.opts.AffinityStage)
	}

	switch s.opts.Policy {
	case types.PolicyBestFit:
		return s.takeByInputSize(false)
	case types.PolicyGreedy:
		return s.takeByInputSize(true)
	default:
		return s.takeAt(0)
	}
}

// takeFirstByStage scans the queue in order for the first workunit of
// the given task index.
func (s *Server) takeFirstByStage(stage int) (string, bool) {
	for i, workID := range s.workQueue {
		if _, taskIndex, _, err := types.ParseWorkID(workID); err == nil && taskIndex == stage {
			return s.takeAt(i)
		}
	}
	return "", false
}

// takeByInputSize picks the queued workunit with the smallest (or, for
// the greedy policy, largest) input payload; ties keep queue order.
func (s *Server) takeByInputSize(largest bool) (string, bool) {
	best := 0
	bestSize := s.inputSize(s.workQueue[0])
	for i := 1; i < len(s.workQueue); i++ {
		size := s.inputSize(s.workQueue[i])
		if (largest && size > bestSize) || (!largest && size < bestSize) {
			best, bestSize = i, size
		}
	}
	return s.takeAt(best)
}

func (s *Server) inputSize(workID string) uint64 {
	if work, ok := s.catalog.Works[workID]; ok {
		return work.SizeInfile
	}
	return 0
}

func (s *Server) takeAt(i int) (string, bool) {
	workID := s.workQueue[i]
	s.workQueue = append(s.workQueue[:i], s.workQueue[i+1:]...)
	return workID, true
}

func (s *Server) clientMatchesWork(client types.LPID, workID string) bool {
	if s.groupOf(client) != types.GroupRemote {
		return true
	}
	_, taskIndex, _, err := types.ParseWorkID(workID)
	return err == nil && taskIndex == s.opts.AffinityStage
}

func (s *Server) groupOf(client types.LPID) types.WorkerGroup {
	if g, ok := s.opts.Groups[client]; ok {
		return g
	}
	return types.GroupLocal
}

func (s *Server) updateQueueGauges() {
	metrics.WorkQueueDepth.Set(float64(len(s.workQueue)))
	metrics.ClientQueueDepth.Set(float64(len(s.clientQueue)))
}

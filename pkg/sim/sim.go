// Package sim assembles the LP topology from config and traces, runs
// the kernel, and collects the final report.
package sim

import (
	"fmt"

	"github.com/cuemby/awesim/pkg/config"
	"github.com/cuemby/awesim/pkg/eventlog"
	"github.com/cuemby/awesim/pkg/kernel"
	"github.com/cuemby/awesim/pkg/log"
	"github.com/cuemby/awesim/pkg/netsim"
	"github.com/cuemby/awesim/pkg/server"
	"github.com/cuemby/awesim/pkg/store"
	"github.com/cuemby/awesim/pkg/trace"
	"github.com/cuemby/awesim/pkg/types"
	"github.com/cuemby/awesim/pkg/worker"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Fixed LP ids for the singleton processes; workers are placed after
// them in config order. Ids are the only cross-LP references in the
// system.
const (
	ServerLP types.LPID = 1
	StoreLP  types.LPID = 2
	RouterLP types.LPID = 3

	firstWorkerLP types.LPID = 4
)

// Params configures one simulation run.
type Params struct {
	Config     *config.Config
	Catalog    *trace.Catalog
	Policy     types.SchedPolicy
	Fraction   float64 // (0,1]; 1 keeps trace inter-arrival gaps
	OutputPath string
}

// Result is the run summary: the quantities the simulator exists to
// predict.
type Result struct {
	RunID              string
	Events             uint64
	Makespan           float64
	JobsCompleted      int
	TasksCompleted     int
	WorkunitsCompleted int
	Workers            []worker.Stats
	StoreDownloaded    uint64
	StoreUploaded      uint64
	Network            []netsim.Stats
}

// Run builds the topology, drives the kernel until the event queue
// drains or the configured end time passes, and returns the report.
func Run(p Params) (*Result, error) {
	runID := uuid.New().String()
	logger := log.WithRunID(runID)
	logger.Info().
		Int("workers", p.Config.TotalWorkers()).
		Int("jobs", len(p.Catalog.Jobs)).
		Int("workunits", len(p.Catalog.Works)).
		Msg("starting simulation")

	evlog, err := eventlog.New(p.OutputPath)
	if err != nil {
		return nil, err
	}
	defer evlog.Close()

	k := kernel.New(p.Config.Lookahead)
	net := netsim.New(p.Config.Network(), p.Config.Lookahead)

	groups := workerGroups(p.Config)
	srv := server.New(p.Catalog, evlog, server.Options{
		Policy:        p.Policy,
		AffinityStage: p.Config.AffinityStage,
		Fraction:      p.Fraction,
		Groups:        groups,
	})
	shock := store.New(net)
	router := store.NewRouter(net)

	k.Register(ServerLP, "awe_server", srv)
	k.Register(StoreLP, "shock", shock)
	k.Register(RouterLP, "shock_router", router)

	workers := make([]*worker.Worker, 0, p.Config.TotalWorkers())
	id := firstWorkerLP
	for _, pool := range p.Config.Workers {
		for i := 0; i < pool.Count; i++ {
			w := worker.New(p.Catalog, net, evlog, worker.Config{
				Server: ServerLP,
				Store:  StoreLP,
				Router: RouterLP,
				Group:  pool.Group,
			})
			k.Register(id, "awe_client", w)
			workers = append(workers, w)
			id++
		}
	}

	events, err := k.Run(p.Config.EndTime)
	if err != nil {
		return nil, fmt.Errorf("simulation failed: %w", err)
	}
	if err := evlog.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush event log: %w", err)
	}

	jobs, tasks, works := srv.Totals()
	res := &Result{
		RunID:              runID,
		Events:             events,
		Makespan:           srv.Makespan(),
		JobsCompleted:      jobs,
		TasksCompleted:     tasks,
		WorkunitsCompleted: works,
		StoreDownloaded:    shock.DownloadedBytes(),
		StoreUploaded:      shock.UploadedBytes(),
		Network:            net.Report(),
	}
	for _, w := range workers {
		res.Workers = append(res.Workers, w.Stats())
	}

	reportNetwork(logger, res)
	return res, nil
}

// workerGroups maps each worker LP id to its configured group, in the
// same placement order Run uses.
func workerGroups(cfg *config.Config) map[types.LPID]types.WorkerGroup {
	groups := make(map[types.LPID]types.WorkerGroup, cfg.TotalWorkers())
	id := firstWorkerLP
	for _, pool := range cfg.Workers {
		for i := 0; i < pool.Count; i++ {
			groups[id] = pool.Group
			id++
		}
	}
	return groups
}

// reportNetwork logs the per-label transfer summary, the analogue of
// the network stats dump the real service's operators read after a run.
func reportNetwork(logger zerolog.Logger, res *Result) {
	for _, st := range res.Network {
		logger.Info().
			Str("label", st.Label).
			Uint64("transfers", st.Transfers).
			Uint64("bytes", st.Bytes).
			Float64("busy_time", st.BusyTime).
			Msg("network transfer stats")
	}
	logger.Info().
		Float64("makespan", res.Makespan).
		Uint64("events", res.Events).
		Int("jobs_completed", res.JobsCompleted).
		Int("tasks_completed", res.TasksCompleted).
		Int("workunits_completed", res.WorkunitsCompleted).
		Msg("simulation complete")
}

package worker

import (
	"github.com/cuemby/awesim/pkg/eventlog"
	"github.com/cuemby/awesim/pkg/kernel"
	"github.com/cuemby/awesim/pkg/log"
	"github.com/cuemby/awesim/pkg/netsim"
	"github.com/cuemby/awesim/pkg/trace"
	"github.com/cuemby/awesim/pkg/types"
	"github.com/rs/zerolog"
)

const lpType = "awe_client"

// Config wires a worker into the topology.
type Config struct {
	Server types.LPID
	Store  types.LPID

	// Router is the hop used when the worker is in the remote group;
	// remote workers reach the store through it.
	Router types.LPID
	Group  types.WorkerGroup
}

// Worker drives the pilot lifecycle: checkout, input transfer, compute,
// output transfer, completion notify, next checkout. All waiting is
// expressed as future events; handlers never block.
type Worker struct {
	id      types.LPID
	cfg     Config
	catalog *trace.Catalog
	net     *netsim.Network
	evlog   *eventlog.Writer
	logger  zerolog.Logger

	currentWork string

	totalProcessed int
	computeTime    float64
	downloadTime   float64
	uploadTime     float64
	startTS        float64
	endTS          float64
}

// Stats is a worker's accumulated accounting, read at finalize.
type Stats struct {
	ID             types.LPID
	TotalProcessed int
	ComputeTime    float64
	DownloadTime   float64
	UploadTime     float64
	Makespan       float64
}

// New creates a worker LP.
func New(catalog *trace.Catalog, net *netsim.Network, evlog *eventlog.Writer, cfg Config) *Worker {
	return &Worker{
		cfg:     cfg,
		catalog: catalog,
		net:     net,
		evlog:   evlog,
	}
}

// Init schedules the worker's kick-off, staggered by the LP id so the
// initial checkout burst does not land on one timestamp.
func (w *Worker) Init(k *kernel.Kernel, self types.LPID) {
	w.id = self
	w.logger = log.WithLP(lpType, int(self))
	offset := k.Lookahead() + float64(self)/1000.0
	k.Schedule(self, offset, types.Message{Kind: types.KickOff, Src: self})
}

// Handle dispatches one event to its handler.
func (w *Worker) Handle(k *kernel.Kernel, m types.Message) {
	switch m.Kind {
	case types.KickOff:
		w.requestCheckout(k, k.Lookahead())
	case types.WorkCheckout:
		w.handleWorkCheckout(k, m)
	case types.InputDataDownload:
		w.handleInputDownloaded(k, m)
	case types.ComputeDone:
		w.handleComputeDone(k, m)
	case types.OutputUploaded:
		w.handleOutputUploaded(k, m)
	default:
		w.logger.Warn().Str("kind", m.Kind.String()).Int("src", int(m.Src)).Msg("invalid message type, dropped")
	}
}

// Finalize reports the worker's busy-time split over its makespan.
func (w *Worker) Finalize(k *kernel.Kernel) {
	w.endTS = k.Now()
	makespan := w.endTS - w.startTS
	ev := w.logger.Info().
		Float64("start_time", w.startTS).
		Float64("end_time", w.endTS).
		Float64("makespan", makespan).
		Int("processed", w.totalProcessed)
	if makespan > 0 {
		ev = ev.
			Float64("compute_rate", w.computeTime/makespan).
			Float64("download_rate", w.downloadTime/makespan).
			Float64("upload_rate", w.uploadTime/makespan).
			Float64("total_busy_rate", (w.computeTime+w.downloadTime+w.uploadTime)/makespan)
	}
	ev.Msg("worker finalized")
}

// Stats snapshots the worker's accumulators.
func (w *Worker) Stats() Stats {
	return Stats{
		ID:             w.id,
		TotalProcessed: w.totalProcessed,
		ComputeTime:    w.computeTime,
		DownloadTime:   w.downloadTime,
		UploadTime:     w.uploadTime,
		Makespan:       w.endTS - w.startTS,
	}
}

// requestCheckout asks the server for the next workunit.
func (w *Worker) requestCheckout(k *kernel.Kernel, offset float64) {
	k.Schedule(w.cfg.Server, offset, types.Message{
		Kind: types.WorkCheckout,
		Src:  w.id,
	})
}

// handleWorkCheckout receives an assignment and starts the input
// transfer. An empty object id means nothing was eligible; the worker
// stays idle and waits for the server to push an assignment later.
func (w *Worker) handleWorkCheckout(k *kernel.Kernel, m types.Message) {
	if m.ObjectID == "" {
		return
	}
	workID := m.ObjectID
	work, ok := w.catalog.Works[workID]
	if !ok {
		w.logger.Warn().Str("work_id", workID).Msg("checkout for unknown workunit, dropped")
		return
	}
	w.currentWork = workID
	w.evlog.Emit(k.Now(), lpType, int(w.id), eventlog.TagWorkCheckout, "workid=%s", workID)

	w.sendDownloadRequest(k, work)
	w.evlog.Emit(k.Now(), lpType, int(w.id), eventlog.TagFetchInput, "workid=%s;filesize=%d", workID, work.SizeInfile)
	work.DownloadStart = k.Now()
}

// sendDownloadRequest routes the input request to the store, through
// the router when the worker sits in the remote domain. The request is
// control traffic; the payload flows back over the network model.
func (w *Worker) sendDownloadRequest(k *kernel.Kernel, work *types.Workunit) {
	msg := types.Message{
		Kind:     types.DownloadReq,
		Src:      w.id,
		LastHop:  w.id,
		ObjectID: work.ID,
		Size:     work.SizeInfile,
	}
	dest := w.cfg.Store
	if w.cfg.Group == types.GroupRemote {
		dest = w.cfg.Router
		msg.NextHop = w.cfg.Store
	}
	k.Schedule(dest, k.Lookahead(), msg)
}

// handleInputDownloaded marks the end of the input transfer and
// schedules the compute completion.
func (w *Worker) handleInputDownloaded(k *kernel.Kernel, m types.Message) {
	if m.ObjectID == "" {
		return
	}
	workID := m.ObjectID
	work, ok := w.catalog.Works[workID]
	if !ok {
		w.logger.Warn().Str("work_id", workID).Msg("download completion for unknown workunit, dropped")
		return
	}
	work.DownloadEnd = k.Now()
	moved := work.DownloadEnd - work.DownloadStart
	w.evlog.Emit(k.Now(), lpType, int(w.id), eventlog.TagFetchInputDone,
		"workid=%s;size_data_in=%d;time_data_in=%f;time_data_in_sim=%f",
		workID, work.SizeInfile, work.TimeDataIn, moved)
	w.downloadTime += moved

	runtime := work.Runtime
	if runtime < k.Lookahead() {
		runtime = k.Lookahead()
	}
	k.Schedule(w.id, runtime, types.Message{
		Kind:     types.ComputeDone,
		Src:      w.id,
		ObjectID: workID,
	})
	w.evlog.Emit(k.Now(), lpType, int(w.id), eventlog.TagWorkStart, "workid=%s", workID)
}

// handleComputeDone accounts the compute interval and starts the output
// transfer.
func (w *Worker) handleComputeDone(k *kernel.Kernel, m types.Message) {
	workID := m.ObjectID
	work, ok := w.catalog.Works[workID]
	if !ok {
		w.logger.Warn().Str("work_id", workID).Msg("compute completion for unknown workunit, dropped")
		return
	}
	w.evlog.Emit(k.Now(), lpType, int(w.id), eventlog.TagWorkDone, "workid=%s;cmd=%s;runtime=%f", workID, work.Cmd, work.Runtime)
	w.uploadOutput(k, work)
	w.evlog.Emit(k.Now(), lpType, int(w.id), eventlog.TagFetchOutput, "workid=%s;filesize=%d", workID, work.SizeOutfile)
	w.computeTime += work.Runtime
}

// uploadOutput pushes the output payload over the network toward the
// store, via the router for remote workers.
func (w *Worker) uploadOutput(k *kernel.Kernel, work *types.Workunit) {
	work.UploadStart = k.Now()
	if w.cfg.Group == types.GroupRemote {
		w.net.Send(k, "upload", w.cfg.Router, work.SizeOutfile, types.Message{
			Kind:     types.UploadReq,
			Src:      w.id,
			NextHop:  w.cfg.Store,
			LastHop:  w.id,
			ObjectID: work.ID,
			Size:     work.SizeOutfile,
		})
		return
	}
	w.net.Send(k, "upload", w.cfg.Store, work.SizeOutfile, types.Message{
		Kind:     types.OutputDataUpload,
		Src:      w.id,
		LastHop:  w.id,
		ObjectID: work.ID,
		Size:     work.SizeOutfile,
	})
}

// handleOutputUploaded closes out the workunit: notify the server and
// immediately ask for the next one.
func (w *Worker) handleOutputUploaded(k *kernel.Kernel, m types.Message) {
	workID := m.ObjectID
	work, ok := w.catalog.Works[workID]
	if !ok {
		w.logger.Warn().Str("work_id", workID).Msg("upload completion for unknown workunit, dropped")
		return
	}
	w.totalProcessed++
	work.UploadEnd = k.Now()
	moved := work.UploadEnd - work.UploadStart
	w.evlog.Emit(k.Now(), lpType, int(w.id), eventlog.TagFetchOutputDone,
		"workid=%s;size_data_out=%d;time_data_out=%f;time_data_out_sim=%f",
		workID, work.SizeOutfile, work.TimeDataOut, moved)
	w.uploadTime += moved
	w.currentWork = ""

	k.Schedule(w.cfg.Server, k.Lookahead(), types.Message{
		Kind:     types.WorkDone,
		Src:      w.id,
		ObjectID: workID,
	})
	w.requestCheckout(k, k.Lookahead())
}

package store

import (
	"github.com/cuemby/awesim/pkg/kernel"
	"github.com/cuemby/awesim/pkg/log"
	"github.com/cuemby/awesim/pkg/netsim"
	"github.com/cuemby/awesim/pkg/types"
	"github.com/rs/zerolog"
)

const routerLPType = "shock_router"

// Router mediates transfers between remote-domain workers and the
// store. It rewrites the hop chain on each forward — the inbound
// message's source becomes the last hop — and carries no state between
// events beyond its traffic counters.
type Router struct {
	id     types.LPID
	net    *netsim.Network
	logger zerolog.Logger

	sizeDownload uint64
	sizeUpload   uint64
	startTS      float64
	endTS        float64
}

// NewRouter creates the router LP.
func NewRouter(net *netsim.Network) *Router {
	return &Router{net: net}
}

// Init schedules the router's kick-off at virtual time zero.
func (r *Router) Init(k *kernel.Kernel, self types.LPID) {
	r.id = self
	r.logger = log.WithLP(routerLPType, int(self))
	k.Schedule(self, 0, types.Message{Kind: types.KickOff, Src: self})
}

// Handle dispatches one event to its handler.
func (r *Router) Handle(k *kernel.Kernel, m types.Message) {
	switch m.Kind {
	case types.KickOff:
		r.logger.Info().Float64("vt", k.Now()).Msg("start serving")
	case types.DownloadReq:
		r.forwardDownloadReq(k, m)
	case types.DownloadAck:
		r.forwardDownloadAck(k, m)
	case types.UploadReq:
		r.forwardUploadReq(k, m)
	case types.UploadAck:
		r.forwardUploadAck(k, m)
	default:
		r.logger.Warn().Str("kind", m.Kind.String()).Int("src", int(m.Src)).Msg("invalid message type, dropped")
	}
}

// Finalize reports the byte counters.
func (r *Router) Finalize(k *kernel.Kernel) {
	r.endTS = k.Now()
	r.logger.Info().
		Float64("start_time", r.startTS).
		Float64("end_time", r.endTS).
		Float64("makespan", r.endTS-r.startTS).
		Uint64("data_download_size", r.sizeDownload).
		Uint64("data_upload_size", r.sizeUpload).
		Msg("router finalized")
}

// forwardDownloadReq passes a worker's input request on to the store.
// Control traffic: the payload will flow back over the network.
func (r *Router) forwardDownloadReq(k *kernel.Kernel, m types.Message) {
	k.Schedule(m.NextHop, k.Lookahead(), types.Message{
		Kind:     types.DownloadReq,
		Src:      r.id,
		LastHop:  m.Src,
		ObjectID: m.ObjectID,
		Size:     m.Size,
	})
}

// forwardDownloadAck completes the store->worker payload transfer over
// the WAN hop.
func (r *Router) forwardDownloadAck(k *kernel.Kernel, m types.Message) {
	r.net.Send(k, "download", m.NextHop, m.Size, types.Message{
		Kind:     types.InputDataDownload,
		Src:      r.id,
		ObjectID: m.ObjectID,
		Size:     m.Size,
	})
	r.sizeDownload += m.Size
}

// forwardUploadReq carries a worker's output payload on toward the store.
func (r *Router) forwardUploadReq(k *kernel.Kernel, m types.Message) {
	r.net.Send(k, "upload", m.NextHop, m.Size, types.Message{
		Kind:     types.UploadReq,
		Src:      r.id,
		LastHop:  m.Src,
		ObjectID: m.ObjectID,
		Size:     m.Size,
	})
	r.sizeUpload += m.Size
}

// forwardUploadAck relays the store's ack back to the originating worker.
func (r *Router) forwardUploadAck(k *kernel.Kernel, m types.Message) {
	k.Schedule(m.NextHop, k.Lookahead(), types.Message{
		Kind:     types.OutputUploaded,
		Src:      r.id,
		ObjectID: m.ObjectID,
		Size:     m.Size,
	})
}

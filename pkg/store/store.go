// Package store implements the simulated object store ("shock") LP and
// the router LP that bridges it to workers in the remote network domain.
package store

import (
	"github.com/cuemby/awesim/pkg/kernel"
	"github.com/cuemby/awesim/pkg/log"
	"github.com/cuemby/awesim/pkg/netsim"
	"github.com/cuemby/awesim/pkg/types"
	"github.com/rs/zerolog"
)

const storeLPType = "shock"

// Store is the object store LP. A download request makes it push the
// payload back over the network; an upload arrival is acknowledged with
// a control event. It keeps byte counters per direction and nothing
// else: the store models transfer timing, not contents.
type Store struct {
	id     types.LPID
	net    *netsim.Network
	logger zerolog.Logger

	sizeDownload uint64
	sizeUpload   uint64
	startTS      float64
	endTS        float64
}

// New creates the store LP.
func New(net *netsim.Network) *Store {
	return &Store{net: net}
}

// Init schedules the store's kick-off at virtual time zero.
func (s *Store) Init(k *kernel.Kernel, self types.LPID) {
	s.id = self
	s.logger = log.WithLP(storeLPType, int(self))
	k.Schedule(self, 0, types.Message{Kind: types.KickOff, Src: self})
}

// Handle dispatches one event to its handler.
func (s *Store) Handle(k *kernel.Kernel, m types.Message) {
	switch m.Kind {
	case types.KickOff:
		s.logger.Info().Float64("vt", k.Now()).Msg("start serving")
	case types.DownloadReq:
		s.handleDownloadReq(k, m)
	case types.UploadReq, types.OutputDataUpload:
		s.handleUpload(k, m)
	default:
		s.logger.Warn().Str("kind", m.Kind.String()).Int("src", int(m.Src)).Msg("invalid message type, dropped")
	}
}

// Finalize reports the byte counters.
func (s *Store) Finalize(k *kernel.Kernel) {
	s.endTS = k.Now()
	s.logger.Info().
		Float64("start_time", s.startTS).
		Float64("end_time", s.endTS).
		Float64("makespan", s.endTS-s.startTS).
		Uint64("data_download_size", s.sizeDownload).
		Uint64("data_upload_size", s.sizeUpload).
		Msg("store finalized")
}

// DownloadedBytes and UploadedBytes expose the counters for the final report.
func (s *Store) DownloadedBytes() uint64 { return s.sizeDownload }
func (s *Store) UploadedBytes() uint64   { return s.sizeUpload }

// handleDownloadReq pushes the requested payload back toward the
// requester. A request that arrived directly from a worker gets the
// payload as an INPUT_DATA_DOWNLOAD; one forwarded by a router gets a
// DNLOAD_ACK addressed so the router can complete the last hop.
func (s *Store) handleDownloadReq(k *kernel.Kernel, m types.Message) {
	reply := types.Message{
		Kind:     types.InputDataDownload,
		Src:      s.id,
		NextHop:  m.LastHop,
		ObjectID: m.ObjectID,
		Size:     m.Size,
	}
	if m.Src != m.LastHop {
		reply.Kind = types.DownloadAck
	}
	s.net.Send(k, "download", m.Src, m.Size, reply)
	s.sizeDownload += m.Size
}

// handleUpload accounts the received payload and acknowledges it. The
// ack is control traffic: the payload cost was already paid on the way
// in.
func (s *Store) handleUpload(k *kernel.Kernel, m types.Message) {
	s.sizeUpload += m.Size

	reply := types.Message{
		Kind:     types.OutputUploaded,
		Src:      s.id,
		NextHop:  m.LastHop,
		ObjectID: m.ObjectID,
		Size:     m.Size,
	}
	if m.Src != m.LastHop {
		reply.Kind = types.UploadAck
	}
	k.Schedule(m.Src, k.Lookahead(), reply)
}

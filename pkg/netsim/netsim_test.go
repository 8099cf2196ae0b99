package netsim

import (
	"testing"

	"github.com/cuemby/awesim/pkg/config"
	"github.com/cuemby/awesim/pkg/kernel"
	"github.com/cuemby/awesim/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNet(lookahead float64) *Network {
	return New(config.NetworkConfig{
		Model:         "simple-wan",
		Latency:       0.01,
		BandwidthMbps: 8, // 1e6 bytes/s: sizes convert to seconds directly
	}, lookahead)
}

func TestTransferTime(t *testing.T) {
	n := testNet(0.001)

	// startup + size/rate
	assert.InDelta(t, 0.01+1.0, n.TransferTime(1_000_000), 1e-9)
	assert.InDelta(t, 0.01, n.TransferTime(0), 1e-9)
}

func TestTransferTimeFlooredAtLookahead(t *testing.T) {
	n := New(config.NetworkConfig{Model: "simple-wan", Latency: 0, BandwidthMbps: 8000}, 0.001)
	assert.Equal(t, 0.001, n.TransferTime(0))
	assert.Equal(t, 0.001, n.TransferTime(1))
}

type sinkLP struct {
	got []types.Message
	at  []float64
}

func (s *sinkLP) Init(k *kernel.Kernel, self types.LPID) {}
func (s *sinkLP) Handle(k *kernel.Kernel, m types.Message) {
	s.got = append(s.got, m)
	s.at = append(s.at, k.Now())
}
func (s *sinkLP) Finalize(k *kernel.Kernel) {}

type senderLP struct {
	net *Network
}

func (s *senderLP) Init(k *kernel.Kernel, self types.LPID) {
	k.Schedule(self, 0, types.Message{Kind: types.KickOff})
}
func (s *senderLP) Handle(k *kernel.Kernel, m types.Message) {
	s.net.Send(k, "download", 2, 1_000_000, types.Message{
		Kind:     types.InputDataDownload,
		ObjectID: "w1",
		Size:     1_000_000,
	})
}
func (s *senderLP) Finalize(k *kernel.Kernel) {}

func TestSendDeliversAfterTransferTime(t *testing.T) {
	k := kernel.New(0.001)
	n := testNet(0.001)
	sink := &sinkLP{}
	k.Register(1, "sender", &senderLP{net: n})
	k.Register(2, "sink", sink)

	_, err := k.Run(0)
	require.NoError(t, err)

	require.Len(t, sink.got, 1)
	assert.Equal(t, types.InputDataDownload, sink.got[0].Kind)
	assert.Equal(t, "w1", sink.got[0].ObjectID)
	assert.InDelta(t, 1.01, sink.at[0], 1e-9)

	report := n.Report()
	require.Len(t, report, 1)
	assert.Equal(t, "download", report[0].Label)
	assert.Equal(t, uint64(1), report[0].Transfers)
	assert.Equal(t, uint64(1_000_000), report[0].Bytes)
}

func TestReportSortedByLabel(t *testing.T) {
	k := kernel.New(0.001)
	n := testNet(0.001)
	sink := &sinkLP{}
	k.Register(2, "sink", sink)

	// counters accumulate per label regardless of payload kind
	seeder := &seedBoth{net: n}
	k.Register(1, "seeder", seeder)
	_, err := k.Run(0)
	require.NoError(t, err)

	report := n.Report()
	require.Len(t, report, 2)
	assert.Equal(t, "download", report[0].Label)
	assert.Equal(t, "upload", report[1].Label)
}

type seedBoth struct {
	net *Network
}

func (s *seedBoth) Init(k *kernel.Kernel, self types.LPID) {
	k.Schedule(self, 0, types.Message{Kind: types.KickOff})
}
func (s *seedBoth) Handle(k *kernel.Kernel, m types.Message) {
	s.net.Send(k, "upload", 2, 10, types.Message{Kind: types.UploadReq})
	s.net.Send(k, "download", 2, 20, types.Message{Kind: types.InputDataDownload})
}
func (s *seedBoth) Finalize(k *kernel.Kernel) {}

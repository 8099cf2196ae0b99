package netsim

import (
	"fmt"
	"sort"

	"github.com/cuemby/awesim/pkg/config"
	"github.com/cuemby/awesim/pkg/kernel"
	"github.com/cuemby/awesim/pkg/metrics"
	"github.com/cuemby/awesim/pkg/types"
)

// Network is the point-to-point transfer model consumed by the store,
// router, and worker LPs. Send computes the simulated transfer time for
// a payload of the given size and schedules its arrival at the
// destination LP through the kernel, so a transfer completion is just
// another timestamped event.
//
// Only the simple-wan model is supported: a fixed per-message startup
// cost plus size over bandwidth.
type Network struct {
	name      string
	startup   float64 // seconds
	byteRate  float64 // bytes per second
	lookahead float64

	// Per-label accounting for the end-of-run stats report. Counters
	// are only touched from inside LP handlers, which the sequential
	// kernel serializes.
	transfers map[string]uint64
	bytes     map[string]uint64
	busy      map[string]float64
}

// New builds a Network from the validated config.
func New(cfg config.NetworkConfig, lookahead float64) *Network {
	return &Network{
		name:      cfg.Model,
		startup:   cfg.Latency,
		byteRate:  cfg.BandwidthMbps * 1e6 / 8,
		lookahead: lookahead,
		transfers: make(map[string]uint64),
		bytes:     make(map[string]uint64),
		busy:      make(map[string]float64),
	}
}

// TransferTime returns the simulated seconds needed to move size bytes,
// floored at the kernel lookahead so a delivery can never violate
// causal order.
func (n *Network) TransferTime(size uint64) float64 {
	t := n.startup + float64(size)/n.byteRate
	if t < n.lookahead {
		t = n.lookahead
	}
	return t
}

// Send delivers payload to dest after the simulated transfer time for
// size bytes. label tags the transfer ("download", "upload") for the
// stats report.
func (n *Network) Send(k *kernel.Kernel, label string, dest types.LPID, size uint64, payload types.Message) {
	delay := n.TransferTime(size)
	k.Schedule(dest, delay, payload)

	n.transfers[label]++
	n.bytes[label] += size
	n.busy[label] += delay
	metrics.NetworkTransfers.WithLabelValues(label).Inc()
	metrics.BytesTransferred.WithLabelValues(label).Add(float64(size))
}

// Stats is the per-label transfer summary reported at simulation end.
type Stats struct {
	Label     string
	Transfers uint64
	Bytes     uint64
	BusyTime  float64
}

// Report returns transfer stats for every label seen, in label order.
func (n *Network) Report() []Stats {
	labels := make([]string, 0, len(n.transfers))
	for l := range n.transfers {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	out := make([]Stats, 0, len(labels))
	for _, l := range labels {
		out = append(out, Stats{
			Label:     l,
			Transfers: n.transfers[l],
			Bytes:     n.bytes[l],
			BusyTime:  n.busy[l],
		})
	}
	return out
}

// String identifies the model for logs.
func (n *Network) String() string {
	return fmt.Sprintf("%s(startup=%gs, rate=%gB/s)", n.name, n.startup, n.byteRate)
}

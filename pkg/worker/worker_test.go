package worker

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cuemby/awesim/pkg/config"
	"github.com/cuemby/awesim/pkg/eventlog"
	"github.com/cuemby/awesim/pkg/kernel"
	"github.com/cuemby/awesim/pkg/netsim"
	"github.com/cuemby/awesim/pkg/store"
	"github.com/cuemby/awesim/pkg/trace"
	"github.com/cuemby/awesim/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	serverID types.LPID = 1
	storeID  types.LPID = 2
	routerID types.LPID = 3
	workerID types.LPID = 4
)

// stubServer assigns its workunits one at a time on checkout, answers
// with an empty object id once none are left, and records completions.
type stubServer struct {
	self    types.LPID
	pending []string
	done    []string
	doneAt  []float64
}

func (s *stubServer) Init(k *kernel.Kernel, self types.LPID) { s.self = self }

func (s *stubServer) Handle(k *kernel.Kernel, m types.Message) {
	switch m.Kind {
	case types.WorkCheckout:
		if len(s.pending) == 0 {
			k.Schedule(m.Src, k.Lookahead(), types.Message{Kind: types.WorkCheckout, Src: s.self})
			return
		}
		next := s.pending[0]
		s.pending = s.pending[1:]
		k.Schedule(m.Src, k.Lookahead(), types.Message{Kind: types.WorkCheckout, Src: s.self, ObjectID: next})
	case types.WorkDone:
		s.done = append(s.done, m.ObjectID)
		s.doneAt = append(s.doneAt, k.Now())
	}
}

func (s *stubServer) Finalize(k *kernel.Kernel) {}

func testCatalog() *trace.Catalog {
	work := &types.Workunit{
		ID:          "A_0_0",
		JobID:       "A",
		TaskIndex:   0,
		Cmd:         "noop",
		Runtime:     10,
		SizeInfile:  1_000_000,
		SizeOutfile: 500_000,
	}
	return &trace.Catalog{
		Works: map[string]*types.Workunit{work.ID: work},
		Jobs:  map[string]*types.Job{},
	}
}

func testNetwork(lookahead float64) *netsim.Network {
	return netsim.New(config.NetworkConfig{
		Model:         "simple-wan",
		Latency:       0.01,
		BandwidthMbps: 8, // 1e6 bytes/s
	}, lookahead)
}

func runLifecycle(t *testing.T, group types.WorkerGroup) (*Worker, *stubServer, *netsim.Network, string) {
	t.Helper()
	var buf bytes.Buffer
	evlog := eventlog.NewWriter(&buf)

	k := kernel.New(0.001)
	net := testNetwork(0.001)
	catalog := testCatalog()

	srv := &stubServer{pending: []string{"A_0_0"}}
	shock := store.New(net)
	router := store.NewRouter(net)
	w := New(catalog, net, evlog, Config{
		Server: serverID,
		Store:  storeID,
		Router: routerID,
		Group:  group,
	})

	k.Register(serverID, "awe_server", srv)
	k.Register(storeID, "shock", shock)
	k.Register(routerID, "shock_router", router)
	k.Register(workerID, "awe_client", w)

	_, err := k.Run(0)
	require.NoError(t, err)
	return w, srv, net, buf.String()
}

func workerTags(logText string) []string {
	var tags []string
	for _, line := range strings.Split(logText, "\n") {
		parts := strings.SplitN(line, ";", 5)
		if len(parts) == 5 && parts[1] == "awe_client" {
			tags = append(tags, parts[3])
		}
	}
	return tags
}

func TestLocalWorkerLifecycle(t *testing.T) {
	w, srv, _, logText := runLifecycle(t, types.GroupLocal)

	// full transition sequence, in order
	assert.Equal(t, []string{"WC", "FI", "FD", "WS", "WD", "FO", "FU"}, workerTags(logText))

	require.Equal(t, []string{"A_0_0"}, srv.done)

	stats := w.Stats()
	assert.Equal(t, 1, stats.TotalProcessed)
	assert.InDelta(t, 10.0, stats.ComputeTime, 1e-9)
	// input payload: request hop, then 0.01 startup + 1s at 1e6 B/s
	assert.InDelta(t, 1.011, stats.DownloadTime, 1e-6)
	// output payload: 0.01 startup + 0.5s, plus the store's ack hop
	assert.InDelta(t, 0.511, stats.UploadTime, 1e-6)

	// busy time never exceeds the observed makespan
	busy := stats.ComputeTime + stats.DownloadTime + stats.UploadTime
	assert.LessOrEqual(t, busy, stats.Makespan)
}

func TestRemoteWorkerLifecycleRoutesThroughRouter(t *testing.T) {
	w, srv, net, logText := runLifecycle(t, types.GroupRemote)

	assert.Equal(t, []string{"WC", "FI", "FD", "WS", "WD", "FO", "FU"}, workerTags(logText))
	require.Equal(t, []string{"A_0_0"}, srv.done)

	stats := w.Stats()
	assert.Equal(t, 1, stats.TotalProcessed)
	assert.InDelta(t, 10.0, stats.ComputeTime, 1e-9)
	// the download payload crosses two network hops: store->router and
	// router->worker
	assert.Greater(t, stats.DownloadTime, 2.0)

	report := net.Report()
	byLabel := map[string]netsim.Stats{}
	for _, st := range report {
		byLabel[st.Label] = st
	}
	assert.Equal(t, uint64(2), byLabel["download"].Transfers)
	assert.Equal(t, uint64(2_000_000), byLabel["download"].Bytes)
	assert.Equal(t, uint64(2), byLabel["upload"].Transfers)
}

func TestWorkerIgnoresEmptyCheckout(t *testing.T) {
	var buf bytes.Buffer
	evlog := eventlog.NewWriter(&buf)

	k := kernel.New(0.001)
	net := testNetwork(0.001)
	srv := &stubServer{} // nothing to hand out
	w := New(testCatalog(), net, evlog, Config{Server: serverID, Store: storeID, Router: routerID, Group: types.GroupLocal})

	k.Register(serverID, "awe_server", srv)
	k.Register(workerID, "awe_client", w)

	_, err := k.Run(0)
	require.NoError(t, err)

	assert.Empty(t, workerTags(buf.String()), "an idle worker emits nothing")
	assert.Equal(t, 0, w.Stats().TotalProcessed)
}

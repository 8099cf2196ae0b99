package trace

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/cuemby/awesim/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var chain2 = types.Pipeline{Name: "chain2", NumTasks: 2, Deps: [][2]int{{1, 0}}}

func writeTrace(t *testing.T, name string, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(lines), 0644))
	return path
}

func TestLoadLinksWorkunitsIntoJobs(t *testing.T) {
	jobs := writeTrace(t, "jobs.txt",
		"jobid=j1;queued=1000;num_tasks=2;pipeline=chain2\n")
	works := writeTrace(t, "works.txt",
		"workid=j1_0_0;cmd=filter;runtime=30;size_infile=1000;size_outfile=500;time_data_in=1.5;time_data_out=0.5\n"+
			"workid=j1_1_1;cmd=blat;runtime=60;size_infile=2000;size_outfile=100;time_data_in=2;time_data_out=1\n"+
			"workid=j1_1_2;cmd=blat;runtime=60;size_infile=2000;size_outfile=100;time_data_in=2;time_data_out=1\n")

	c, err := Load(works, jobs, map[string]types.Pipeline{"chain2": chain2})
	require.NoError(t, err)

	require.Len(t, c.Jobs, 1)
	require.Len(t, c.Works, 3)

	job := c.Jobs["j1"]
	assert.Equal(t, []int{1, 2}, job.TaskSplits)
	assert.Equal(t, []int{1, 2}, job.TaskRemain)
	assert.Equal(t, 1000.0, job.Created)
	assert.Equal(t, 1000.0, c.KickoffEpoch)
	assert.Equal(t, 0.0, c.EtimeToSim(1000))
	assert.Equal(t, 25.0, c.EtimeToSim(1025))

	// total split count matches the workunit population
	total := 0
	for _, n := range job.TaskSplits {
		total += n
	}
	assert.Equal(t, len(c.Works), total)

	work := c.Works["j1_1_2"]
	assert.Equal(t, "j1", work.JobID)
	assert.Equal(t, 1, work.TaskIndex)
	assert.Equal(t, "blat", work.Cmd)
	assert.Equal(t, 60.0, work.Runtime)
	assert.Equal(t, uint64(2000), work.SizeInfile)
	assert.Equal(t, 2.0, work.TimeDataIn)
}

func TestLoadDefaultsMalformedNumericFields(t *testing.T) {
	jobs := writeTrace(t, "jobs.txt", "jobid=j1;queued=notanumber;num_tasks=1\n")
	works := writeTrace(t, "works.txt",
		"workid=j1_0_0;cmd=noop;runtime=bogus;size_infile=10;size_outfile=10;time_data_in=x;time_data_out=0\n")

	c, err := Load(works, jobs, nil)
	require.NoError(t, err, "malformed fields must not abort the load")

	job := c.Jobs["j1"]
	require.NotNil(t, job)
	assert.Equal(t, 0.0, job.Created)

	work := c.Works["j1_0_0"]
	assert.Equal(t, 0.0, work.Runtime)
	assert.Equal(t, 0.0, work.TimeDataIn)
	assert.Equal(t, uint64(10), work.SizeInfile)
}

func TestLoadPrunesJobsWithoutWorkunits(t *testing.T) {
	jobs := writeTrace(t, "jobs.txt",
		"jobid=full;queued=100;num_tasks=1\n"+
			"jobid=hollow;queued=50;num_tasks=2;pipeline=chain2\n")
	works := writeTrace(t, "works.txt",
		"workid=full_0_0;cmd=noop;runtime=1;size_infile=0;size_outfile=0;time_data_in=0;time_data_out=0\n"+
			"workid=hollow_0_0;cmd=noop;runtime=1;size_infile=0;size_outfile=0;time_data_in=0;time_data_out=0\n")

	c, err := Load(works, jobs, map[string]types.Pipeline{"chain2": chain2})
	require.NoError(t, err)

	assert.Contains(t, c.Jobs, "full")
	assert.NotContains(t, c.Jobs, "hollow", "job with a task missing all workunits must be pruned")
	// pruned jobs do not contribute to the kickoff epoch
	assert.Equal(t, 100.0, c.KickoffEpoch)
}

func TestLoadDefaultsMissingNumTasks(t *testing.T) {
	jobs := writeTrace(t, "jobs.txt", "jobid=j1;queued=10\n")
	works := writeTrace(t, "works.txt", "")

	c, err := Load(works, jobs, nil)
	require.NoError(t, err)

	// no workunits at all: the job is pruned, but it must have been
	// created with the default pipeline's task count first
	assert.NotContains(t, c.Jobs, "j1")

	jobs2 := writeTrace(t, "jobs2.txt", "jobid=j2;queued=10\n")
	var workLines string
	for i := 0; i < types.DefaultPipeline.NumTasks; i++ {
		workLines += "workid=j2_" + strconv.Itoa(i) + "_0;cmd=noop;runtime=1;size_infile=0;size_outfile=0;time_data_in=0;time_data_out=0\n"
	}
	works2 := writeTrace(t, "works2.txt", workLines)

	c2, err := Load(works2, jobs2, nil)
	require.NoError(t, err)
	job := c2.Jobs["j2"]
	require.NotNil(t, job)
	assert.Equal(t, types.DefaultPipeline.NumTasks, job.NumTasks)
}

func TestLoadRejectsInvalidWorkunitID(t *testing.T) {
	works := writeTrace(t, "works.txt",
		"workid=brokenid;cmd=noop;runtime=1;size_infile=0;size_outfile=0;time_data_in=0;time_data_out=0\n")

	_, err := Load(works, "", nil)
	assert.Error(t, err, "a workunit id without three parts violates the trace contract")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.txt"), "", nil)
	assert.Error(t, err)
}

func TestJobIDsSorted(t *testing.T) {
	c := &Catalog{Jobs: map[string]*types.Job{
		"zeta": nil, "alpha": nil, "mid": nil,
	}}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, c.JobIDs())
}

package trace

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/cuemby/awesim/pkg/log"
	"github.com/cuemby/awesim/pkg/metrics"
	"github.com/cuemby/awesim/pkg/types"
)

// maxEpoch serves as the initial kickoff epoch, Sat, 20 Nov 2286.
const maxEpoch = 9999999999

// Catalog holds the parsed workload: every job and workunit from the
// traces, keyed by id. It is built once before the kernel starts and no
// entries are added or removed afterwards; during the run the server LP
// is the sole mutator of job task state, and workers stamp the transfer
// timestamps of the workunits they hold.
type Catalog struct {
	Works map[string]*types.Workunit
	Jobs  map[string]*types.Job

	// KickoffEpoch is the minimum queued epoch across all jobs, used as
	// the zero of simulated time.
	KickoffEpoch float64
	FinishEpoch  float64
}

// EtimeToSim converts an epoch time from the trace to simulation seconds.
func (c *Catalog) EtimeToSim(etime float64) float64 {
	return etime - c.KickoffEpoch
}

// JobIDs returns the job ids in sorted order. The server iterates jobs
// at kickoff; sorted order keeps event logs reproducible across runs.
func (c *Catalog) JobIDs() []string {
	ids := make([]string, 0, len(c.Jobs))
	for id := range c.Jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Load parses the job trace and workunit trace, links workunits into
// their jobs' split counts, prunes jobs the traces cannot drive, and
// computes the kickoff epoch.
func Load(worktracePath, jobtracePath string, pipelines map[string]types.Pipeline) (*Catalog, error) {
	timer := metrics.NewTimer()
	c := &Catalog{
		Works:        make(map[string]*types.Workunit),
		Jobs:         make(map[string]*types.Job),
		KickoffEpoch: maxEpoch,
	}

	if jobtracePath != "" {
		if err := c.loadJobs(jobtracePath, pipelines); err != nil {
			return nil, err
		}
	}
	if err := c.loadWorks(worktracePath); err != nil {
		return nil, err
	}

	pruned := c.prune()

	for _, job := range c.Jobs {
		if job.Created < c.KickoffEpoch {
			c.KickoffEpoch = job.Created
		}
	}

	timer.ObserveDuration(metrics.TraceLoadDuration)
	log.WithComponent("trace").Info().
		Int("jobs", len(c.Jobs)).
		Int("workunits", len(c.Works)).
		Int("pruned_jobs", pruned).
		Float64("kickoff_epoch", c.KickoffEpoch).
		Msg("workload traces loaded")
	return c, nil
}

func (c *Catalog) loadJobs(path string, pipelines map[string]types.Pipeline) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open job trace: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		job := parseJobLine(line, pipelines)
		if job.ID == "" {
			log.WithComponent("trace").Warn().Str("line", line).Msg("job record without jobid, skipped")
			continue
		}
		c.Jobs[job.ID] = job
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read job trace: %w", err)
	}
	return nil
}

func (c *Catalog) loadWorks(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open workunit trace: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		work, err := parseWorkLine(line)
		if err != nil {
			return err
		}
		c.Works[work.ID] = work

		// Link the workunit into its job's split bookkeeping.
		if job, ok := c.Jobs[work.JobID]; ok && work.TaskIndex < job.NumTasks {
			job.TaskSplits[work.TaskIndex]++
			job.TaskRemain[work.TaskIndex]++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read workunit trace: %w", err)
	}
	return nil
}

// prune drops jobs the workunit trace cannot drive: zero tasks, or any
// task with no workunit present.
func (c *Catalog) prune() int {
	var invalid []string
	for id, job := range c.Jobs {
		if job.NumTasks == 0 {
			invalid = append(invalid, id)
			continue
		}
		for i := 0; i < job.NumTasks; i++ {
			if job.TaskSplits[i] == 0 {
				invalid = append(invalid, id)
				break
			}
		}
	}
	for _, id := range invalid {
		delete(c.Jobs, id)
		log.WithComponent("trace").Debug().Str("job_id", id).Msg("removed job with missing workunits")
	}
	return len(invalid)
}

func parseJobLine(line string, pipelines map[string]types.Pipeline) *types.Job {
	var (
		id        string
		created   float64
		numTasks  int
		inputSize uint64
		pipeline  string
	)
	forEachField(line, func(key, val string) {
		switch key {
		case "jobid":
			id = val
		case "queued":
			created = float64(parseInt(line, key, val))
		case "num_tasks":
			numTasks = int(parseInt(line, key, val))
		case "inputsize":
			inputSize = uint64(parseInt(line, key, val))
		case "pipeline":
			pipeline = val
		}
	})

	p, ok := pipelines[pipeline]
	if !ok {
		p = types.DefaultPipeline
	}
	if numTasks <= 0 {
		numTasks = p.NumTasks
	}

	job := types.NewJob(id, created, numTasks, p.Matrix())
	job.Pipeline = p.Name
	job.InputSize = inputSize
	return job
}

func parseWorkLine(line string) (*types.Workunit, error) {
	work := &types.Workunit{}
	forEachField(line, func(key, val string) {
		switch key {
		case "workid":
			work.ID = val
		case "cmd":
			work.Cmd = val
		case "runtime":
			work.Runtime = float64(parseInt(line, key, val))
		case "size_infile":
			work.SizeInfile = uint64(parseInt(line, key, val))
		case "size_outfile":
			work.SizeOutfile = uint64(parseInt(line, key, val))
		case "time_data_in":
			work.TimeDataIn = parseFloat(line, key, val)
		case "time_data_out":
			work.TimeDataOut = parseFloat(line, key, val)
		}
	})

	jobID, taskIndex, _, err := types.ParseWorkID(work.ID)
	if err != nil {
		return nil, fmt.Errorf("workunit trace: %w", err)
	}
	work.JobID = jobID
	work.TaskIndex = taskIndex
	return work, nil
}

// forEachField walks a ;-delimited key=val record.
func forEachField(line string, fn func(key, val string)) {
	for _, field := range strings.Split(line, ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		pair := strings.SplitN(field, "=", 2)
		if len(pair) != 2 {
			continue
		}
		fn(pair[0], pair[1])
	}
}

// Malformed numeric fields default to zero rather than aborting the
// load; a warning records which record was affected.
func parseInt(line, key, val string) int64 {
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		log.WithComponent("trace").Warn().
			Str("key", key).
			Str("value", val).
			Str("line", line).
			Msg("unparseable integer field, defaulting to 0")
		return 0
	}
	return n
}

func parseFloat(line, key, val string) float64 {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		log.WithComponent("trace").Warn().
			Str("key", key).
			Str("value", val).
			Str("line", line).
			Msg("unparseable float field, defaulting to 0")
		return 0
	}
	return f
}

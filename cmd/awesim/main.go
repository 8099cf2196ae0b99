package main

import (
	"fmt"
	"os"

	"github.com/cuemby/awesim/pkg/config"
	"github.com/cuemby/awesim/pkg/log"
	"github.com/cuemby/awesim/pkg/metrics"
	"github.com/cuemby/awesim/pkg/sim"
	"github.com/cuemby/awesim/pkg/trace"
	"github.com/cuemby/awesim/pkg/types"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	flagConfig      string
	flagWorktrace   string
	flagJobtrace    string
	flagOutput      string
	flagSchedPolicy int
	flagFraction    int
	flagEndTime     float64
	flagMetricsAddr string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "awesim",
	Short: "awesim - trace-driven simulator of a pilot-job execution service",
	Long: `awesim replays recorded workload traces through a discrete-event model
of a pilot-job service (workload server, workers, shared object store)
to predict makespan, worker utilization, and data movement under
different scheduling policies and network conditions - without running
the real service.`,
	Version: Version,
	RunE:    runSimulation,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"awesim version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	rootCmd.Flags().StringVar(&flagConfig, "codes-config", "", "simulation configuration file (required)")
	rootCmd.Flags().StringVar(&flagWorktrace, "worktrace", "", "workload trace of workunits (required)")
	rootCmd.Flags().StringVar(&flagJobtrace, "jobtrace", "", "job trace")
	rootCmd.Flags().StringVar(&flagOutput, "output", "awesim_output.log", "event log output file")
	rootCmd.Flags().IntVar(&flagSchedPolicy, "sched-policy", 0, "scheduling policy (0=FIFO, 1=data-aware-best-fit, 2=data-aware-greedy)")
	rootCmd.Flags().IntVar(&flagFraction, "fraction", 0, "compress job inter-arrival gaps to this percent of the trace (1-99)")
	rootCmd.Flags().Float64Var(&flagEndTime, "end-time", 0, "virtual end time in seconds (0 = config default)")
	rootCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func runSimulation(cmd *cobra.Command, args []string) error {
	if flagConfig == "" {
		return fmt.Errorf("expected \"codes-config\" option, please see --help")
	}
	if flagWorktrace == "" {
		return fmt.Errorf("expected \"worktrace\" option, please see --help")
	}
	if flagSchedPolicy < int(types.PolicyFIFO) || flagSchedPolicy > int(types.PolicyGreedy) {
		return fmt.Errorf("invalid sched-policy %d", flagSchedPolicy)
	}

	fraction := 1.0
	if flagFraction > 0 && flagFraction < 100 {
		fraction = float64(flagFraction) / 100.0
		log.Logger.Info().Float64("fraction", fraction).Msg("job arrival intervals compressed")
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagEndTime > 0 {
		cfg.EndTime = flagEndTime
	}

	catalog, err := trace.Load(flagWorktrace, flagJobtrace, cfg.PipelineMap())
	if err != nil {
		return err
	}

	if flagMetricsAddr != "" {
		go func() {
			if err := metrics.StartServer(flagMetricsAddr); err != nil {
				log.Logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	result, err := sim.Run(sim.Params{
		Config:     cfg,
		Catalog:    catalog,
		Policy:     types.SchedPolicy(flagSchedPolicy),
		Fraction:   fraction,
		OutputPath: flagOutput,
	})
	if err != nil {
		return err
	}

	printSummary(result)
	return nil
}

func printSummary(res *sim.Result) {
	fmt.Printf("run %s: makespan=%.3fs events=%d jobs=%d tasks=%d workunits=%d\n",
		res.RunID, res.Makespan, res.Events,
		res.JobsCompleted, res.TasksCompleted, res.WorkunitsCompleted)
	for _, st := range res.Network {
		fmt.Printf("net %-10s transfers=%d bytes=%d busy=%.3fs\n",
			st.Label, st.Transfers, st.Bytes, st.BusyTime)
	}
	busyWorkers := 0
	for _, w := range res.Workers {
		if w.TotalProcessed > 0 {
			busyWorkers++
		}
	}
	fmt.Printf("workers %d/%d processed at least one workunit\n", busyWorkers, len(res.Workers))
}

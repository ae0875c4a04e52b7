package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vulturelab/visavulture/equipment"
	"github.com/vulturelab/visavulture/executor"
	"github.com/vulturelab/visavulture/instrument"
	"github.com/vulturelab/visavulture/logger"
	"github.com/vulturelab/visavulture/plan"
)

var (
	flagAddress string
	flagWorkers int
	flagVerbose bool
)

func main() {
	// .env is optional; environment variables seed the flag defaults.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&flagAddress, "address", envOr("VULTURE_ADDRESS", "sim://psu0"), "instrument resource address")
	rootCmd.PersistentFlags().IntVar(&flagWorkers, "workers", envOrInt("VULTURE_WORKERS", 4), "maximum concurrent instrument tasks")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	rootCmd.SilenceErrors = true
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Error("visavulture failed", "error", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "visavulture",
	Short:        "Equipment test sequencing against SCPI instruments",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run executes a demonstration plan against a simulated instrument",
	RunE:  doRun,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version prints build information",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("visavulture: version info not available")
			return
		}
		fmt.Printf("visavulture: %s\n", info.Main.Version)
		fmt.Printf("go:          %s\n", info.GoVersion)
	},
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if flagVerbose {
		logger.SetLevel(logger.DebugLevel)
	}

	inst := instrument.NewSimInstrument("VultureLab,VIRT-PSU-100,0042,1.0")

	cfg, err := equipment.NewConfig(
		equipment.WithMaxWorkers(flagWorkers),
		equipment.WithSampleInterval(500*time.Millisecond),
	)
	if err != nil {
		return err
	}

	coord, err := equipment.NewCoordinator(ctx, inst, cfg)
	if err != nil {
		return err
	}
	defer coord.Close()

	coord.OnStateChange(func(prev, next equipment.State, detail error) {
		if detail != nil {
			logger.Warn("state changed", "from", prev.String(), "to", next.String(), "detail", detail)
			return
		}
		logger.Info("state changed", "from", prev.String(), "to", next.String())
	})
	coord.OnProgress(func(s executor.Sample) {
		fmt.Printf("  t=%-6s step %d  %s\n", s.PlanTime.Round(time.Millisecond), s.StepIndex+1, s.Setpoint.String())
	})

	if _, err := coord.Connect(flagAddress); err != nil {
		return err
	}
	if err := waitForState(ctx, coord, equipment.IdleState, 10*time.Second); err != nil {
		return fmt.Errorf("connect did not settle: %w", err)
	}
	fmt.Printf("connected: %s\n", coord.Identity())

	p, err := plan.NewPlan("voltage-staircase", plan.PowerSupplyStep,
		[]plan.TestStep{
			plan.PowerStep(2*time.Second, 3.3, 1.0),
			plan.PowerStep(2*time.Second, 5.0, 1.5),
			plan.PowerStep(2*time.Second, 12.0, 2.0),
		},
		plan.WithDescription("demonstration staircase on the simulated supply"),
	)
	if err != nil {
		return err
	}

	if err := coord.LoadPlan(p); err != nil {
		return err
	}
	if _, err := coord.Run(); err != nil {
		return err
	}
	if err := waitForState(ctx, coord, equipment.IdleState, p.TotalDuration()+10*time.Second); err != nil {
		return fmt.Errorf("run did not settle: %w", err)
	}

	for _, res := range coord.Drain() {
		if res.Failed() {
			logger.Warn("task failed", "task", res.Name, "error", res.Err)
		}
	}

	if report := coord.LastReport(); report != nil {
		fmt.Printf("run %s: completed=%v steps=%d writes=%d elapsed=%s samples=%d\n",
			report.RunID, report.Completed, report.StepsExecuted,
			report.SetpointWrites, report.Elapsed.Round(time.Millisecond), len(report.Samples))
	}

	_, err = coord.Disconnect()
	return err
}

// waitForState polls until the coordinator reaches the wanted state or the deadline
// passes. ERROR short-circuits the wait when it is not the wanted state.
func waitForState(ctx context.Context, coord *equipment.Coordinator, want equipment.State, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		st := coord.State()
		if st == want {
			return nil
		}
		if st.IsError() && !want.IsError() {
			return fmt.Errorf("equipment faulted while waiting for %s", want)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out in %s waiting for %s", st, want)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envOrInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

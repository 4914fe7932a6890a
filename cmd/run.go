package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"netpol-verify/internal/cluster"
	"netpol-verify/internal/config"
	"netpol-verify/internal/orchestrator"
	"netpol-verify/internal/report"
	"netpol-verify/internal/scenario"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run NetworkPolicy scenarios against a cluster",
	Long: `Run a batch of NetworkPolicy test scenarios against a Kubernetes cluster.

For each scenario the orchestrator:
- creates uniquely named namespaces and the declared pods
- waits for every pod to become ready
- applies the declared NetworkPolicies
- waits for CNI propagation
- runs the connectivity probes in declared order
- compares observed vs expected outcomes and tears the topology down

Scenarios are independent and may run in parallel (--parallelism). The
command writes a machine-readable JSON report and exits 0 only if every
scenario verdict is pass.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		scenariosPath, _ := cmd.Flags().GetString("scenarios")
		globalTimeout, _ := cmd.Flags().GetInt("timeout")

		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}
		setupLogging(cfg.LogLevel, cfg.Verbose)

		scenarios, err := scenario.LoadPath(scenariosPath)
		if err != nil {
			return err
		}
		if len(scenarios) == 0 {
			return errors.Errorf("no scenarios found in %s", scenariosPath)
		}

		gateway, err := cluster.New(cluster.Config{Kubeconfig: cfg.Kubeconfig})
		if err != nil {
			return errors.Wrap(err, "failed to create cluster gateway")
		}

		runner := orchestrator.NewRunner(gateway, orchestrator.Options{
			NamespacePrefix:  cfg.NamespacePrefix,
			ReadyTimeout:     time.Duration(cfg.ReadyTimeoutSeconds) * time.Second,
			PropagationDelay: time.Duration(cfg.PropagationWaitSeconds) * time.Second,
			ProbeTimeout:     time.Duration(cfg.ProbeTimeoutSeconds) * time.Second,
		})

		ctx := context.Background()
		if globalTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(globalTimeout)*time.Second)
			defer cancel()
		}

		kubeconfigSource := cfg.Kubeconfig
		if kubeconfigSource == "" {
			kubeconfigSource = "default context"
		}

		fmt.Printf("Running %d scenario(s) with parallelism %d\n\n", len(scenarios), cfg.Parallelism)
		startedAt := time.Now()

		agg := orchestrator.NewAggregator()
		orchestrator.RunAll(ctx, runner, scenarios, cfg.Parallelism, agg)
		endedAt := time.Now()

		results := agg.Results()
		summary := agg.Summary()

		printResults(results, cfg.Verbose)

		jsonReport := report.Build(kubeconfigSource, cfg.Parallelism, results, summary, startedAt, endedAt)
		if path, err := report.Save(jsonReport, cfg.OutputDir); err != nil {
			fmt.Printf("Warning: failed to write JSON report: %v\n", err)
		} else {
			fmt.Printf("Report written to %s\n", path)
		}

		fmt.Printf("\nSummary: %d total, %d passed, %d failed, %d skipped (pass rate %.0f%%)\n",
			summary.Total, summary.Passed, summary.Failed, summary.Skipped, summary.PassRate*100)

		if !summary.AllPassed() {
			return errors.Errorf("%d of %d scenarios did not pass", summary.Total-summary.Passed, summary.Total)
		}
		fmt.Println("✅ All scenarios passed")
		return nil
	},
}

// printResults renders per-scenario verdicts, naming the diverging probes so
// failures are diagnosable without a re-run.
func printResults(results []orchestrator.ScenarioResult, verbose bool) {
	for _, result := range results {
		switch result.Verdict {
		case orchestrator.VerdictPass:
			fmt.Printf("✅ %s: pass (%d probes, %.1fs)\n",
				result.ScenarioID, len(result.ProbeResults), result.EndedAt.Sub(result.StartedAt).Seconds())
		case orchestrator.VerdictSkip:
			fmt.Printf("⏭️  %s: skip\n", result.ScenarioID)
		default:
			fmt.Printf("❌ %s: fail\n", result.ScenarioID)
		}
		for _, reason := range result.FailureReasons {
			fmt.Printf("    - %s\n", reason)
		}
		if verbose {
			for _, pr := range result.ProbeResults {
				fmt.Printf("    probe %s -> %s :%d/%s expected=%s observed=%s exit=%d (%dms)\n",
					pr.Probe.From, pr.Probe.Destination(), pr.Probe.Port, pr.Probe.Protocol,
					pr.Probe.Expect, pr.Observed, pr.ExitCode, pr.Duration.Milliseconds())
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("scenarios", "s", "scenarios", "scenario YAML file or directory")
	runCmd.Flags().IntP("parallelism", "p", 1, "number of scenarios to run concurrently")
	runCmd.Flags().Int("timeout", 0, "global timeout in seconds for the whole batch (0 = none)")
	runCmd.Flags().Int("propagation-wait", 5, "seconds to wait between policy application and first probe")
	runCmd.Flags().Int("ready-timeout", 120, "seconds to wait for pod readiness")
	runCmd.Flags().String("output-dir", "test_results", "directory for JSON reports")
	runCmd.Flags().String("namespace-prefix", "netpol", "prefix for generated namespace names")

	viper.BindPFlag("parallelism", runCmd.Flags().Lookup("parallelism"))
	viper.BindPFlag("propagation_wait_seconds", runCmd.Flags().Lookup("propagation-wait"))
	viper.BindPFlag("ready_timeout_seconds", runCmd.Flags().Lookup("ready-timeout"))
	viper.BindPFlag("output_dir", runCmd.Flags().Lookup("output-dir"))
	viper.BindPFlag("namespace_prefix", runCmd.Flags().Lookup("namespace-prefix"))
}

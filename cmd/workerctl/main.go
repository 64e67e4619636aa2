package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all subcommands.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
}

// SetupFlags holds flags for the setup command.
type SetupFlags struct {
	AppDir      string
	Interpreter string
	Schedule    string
	Aggregate   bool
	Init        bool
}

// WorkerFlags holds flags for start/stop/restart/status.
type WorkerFlags struct {
	Worker  string
	Force   bool
	Timeout time.Duration
	Export  string
}

// JobsFlags holds flags for the jobs command.
type JobsFlags struct {
	Backup  string
	Restore string
}

// RunPlanFlags holds flags for the run-plan command.
type RunPlanFlags struct {
	PlanPath string
	Delay    time.Duration
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	Listen   string
	BasePath string
	StoreDSN string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	setupFlags := &SetupFlags{}
	workerFlags := &WorkerFlags{}
	jobsFlags := &JobsFlags{}
	runPlanFlags := &RunPlanFlags{}
	serveFlags := &ServeFlags{}

	cli := command{global: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createSetupCommand(cli, setupFlags),
		createStartCommand(cli, workerFlags),
		createStopCommand(cli, workerFlags),
		createRestartCommand(cli, workerFlags),
		createStatusCommand(cli, workerFlags),
		createConfigCommand(cli),
		createJobsCommand(cli, jobsFlags),
		createCleanupCommand(cli),
		createRunPlanCommand(runPlanFlags),
		createServeCommand(cli, serveFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "workerctl",
		Short: "Worker fleet scheduling and supervision tool",
		Long: `Workerctl manages a fleet of long-running worker processes on one host:
it launches them detached with per-worker logs and PID files, installs
crontab entries that bring them up on schedule, and reports their state.

Examples:
  workerctl setup --config=config.json            # Install crontab entries
  workerctl start --config=config.json            # Launch all workers now
  workerctl stop --config=config.json --worker=ocr_processor
  workerctl status --config=config.json`,
	}
	root.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "", "path to JSON config file")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "override configured log level (DEBUG, INFO, WARN, ERROR)")
	return root
}

func createSetupCommand(cli command, flags *SetupFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Install schedule entries for the fleet",
		Long: `Replace this system's crontab entries so the enabled workers start on
schedule. Previously installed entries under the configured tag prefix
are removed first; entries owned by anything else are left alone.

Examples:
  workerctl setup --config=config.json
  workerctl setup --config=config.json --schedule="0 6 * * *"
  workerctl setup --config=config.json --aggregate       # one master job
  workerctl setup --init --app-dir=/opt/app --interpreter=/usr/bin/python3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Setup(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Schedule, "schedule", "", "cron schedule (defaults to configured default_schedule)")
	cmd.Flags().BoolVar(&flags.Aggregate, "aggregate", false, "install one master job instead of per-worker jobs")
	cmd.Flags().BoolVar(&flags.Init, "init", false, "write a default config file before setup")
	cmd.Flags().StringVar(&flags.AppDir, "app-dir", "", "application directory (with --init)")
	cmd.Flags().StringVar(&flags.Interpreter, "interpreter", "", "interpreter path (with --init)")
	return cmd
}

func createStartCommand(cli command, flags *WorkerFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Launch workers immediately",
		Long: `Launch workers right now, bypassing the schedule table.

Examples:
  workerctl start --config=config.json                      # all enabled workers
  workerctl start --config=config.json --worker=ocr_processor`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Start(flags.Worker)
		},
	}
	cmd.Flags().StringVar(&flags.Worker, "worker", "", "worker name (all enabled workers when omitted)")
	return cmd
}

func createStopCommand(cli command, flags *WorkerFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop workers",
		Long: `Stop workers gracefully, escalating to a forced kill after the grace
period. --force kills immediately.

Examples:
  workerctl stop --config=config.json
  workerctl stop --config=config.json --worker=ocr_processor --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Stop(flags.Worker, flags.Force)
		},
	}
	cmd.Flags().StringVar(&flags.Worker, "worker", "", "worker name (all workers when omitted)")
	cmd.Flags().BoolVar(&flags.Force, "force", false, "kill immediately instead of graceful stop")
	return cmd
}

func createRestartCommand(cli command, flags *WorkerFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart workers",
		Long: `Stop and relaunch workers. A worker that was not running is simply
launched.

Examples:
  workerctl restart --config=config.json
  workerctl restart --config=config.json --worker=receipt_matcher`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Restart(flags.Worker, flags.Force)
		},
	}
	cmd.Flags().StringVar(&flags.Worker, "worker", "", "worker name (all workers when omitted)")
	cmd.Flags().BoolVar(&flags.Force, "force", false, "kill immediately instead of graceful stop")
	return cmd
}

func createStatusCommand(cli command, flags *WorkerFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show fleet status",
		Long: `Show the comprehensive status report: configuration, per-worker process
state, schedule entries, and resource totals.

Examples:
  workerctl status --config=config.json
  workerctl status --config=config.json --export=report.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Status(flags.Export)
		},
	}
	cmd.Flags().StringVar(&flags.Export, "export", "", "also write the report as JSON to this file")
	return cmd
}

func createConfigCommand(cli command) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the loaded configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Config()
		},
	}
}

func createJobsCommand(cli command, flags *JobsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs [enable|disable|remove]",
		Short: "Manage this system's schedule entries",
		Long: `List or bulk-edit the crontab entries owned by this system.

Examples:
  workerctl jobs --config=config.json               # list
  workerctl jobs enable --config=config.json
  workerctl jobs disable --config=config.json
  workerctl jobs remove --config=config.json
  workerctl jobs --config=config.json --backup=crontab.bak
  workerctl jobs --config=config.json --restore=crontab.bak`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := ""
			if len(args) == 1 {
				action = args[0]
			}
			return cli.Jobs(action, *flags)
		},
	}
	cmd.Flags().StringVar(&flags.Backup, "backup", "", "write the whole crontab to this file")
	cmd.Flags().StringVar(&flags.Restore, "restore", "", "replace the whole crontab from this file")
	return cmd
}

func createCleanupCommand(cli command) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove stale PID files",
		Long:  "Remove PID files left behind by workers that are no longer alive.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Cleanup()
		},
	}
}

func createRunPlanCommand(flags *RunPlanFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-plan",
		Short: "Replay a saved launch plan",
		Long: `Launch every worker listed in a launch plan file, in order, with a
delay between launches. This is the command the aggregate-mode crontab
entry runs; it needs no config file.

Examples:
  workerctl run-plan --plan=/opt/app/launch_plan.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.PlanPath, "plan", "", "path to launch plan file (required)")
	cmd.Flags().DurationVar(&flags.Delay, "delay", 0, "delay between launches (default 500ms)")
	if err := cmd.MarkFlagRequired("plan"); err != nil {
		panic(err)
	}
	return cmd
}

func createServeCommand(cli command, flags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only HTTP API",
		Long: `Start an HTTP server exposing fleet status, statistics, schedule
entries, and Prometheus metrics. The surface is read-only; mutations
stay on the CLI.

Examples:
  workerctl serve --config=config.json
  workerctl serve --config=config.json --listen=:9310 --store=postgres://user:pw@host/db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Serve(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Listen, "listen", ":8390", "listen address")
	cmd.Flags().StringVar(&flags.BasePath, "base-path", "", "base path to mount the API under")
	cmd.Flags().StringVar(&flags.StoreDSN, "store", "", "lifecycle event store DSN (sqlite path or postgres://)")
	return cmd
}

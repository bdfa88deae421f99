package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bashclaw/bashclaw/internal/cron"
)

// cronCmd implements the operator-facing CLI convenience over §4.G's
// cron.Store: add/remove/list jobs without starting the gateway.
func cronCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cron",
		Short: "Manage scheduled cron jobs",
	}

	var sessionTarget string
	addCmd := &cobra.Command{
		Use:   "add <id> <schedule> <prompt>",
		Short: "Add a scheduled job",
		Args:  cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			store := openCronStore()
			spec := cron.ParseSchedule(args[1])
			if err := store.Add(args[0], spec, args[2], sessionTarget); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Printf("scheduled %s\n", args[0])
		},
	}
	addCmd.Flags().StringVar(&sessionTarget, "agent", "", "agent id the job's prompt runs against (default: main)")
	root.AddCommand(addCmd)

	root.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a scheduled job",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := openCronStore()
			n, err := store.Remove(args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			if n == 0 {
				fmt.Fprintf(os.Stderr, "no such job: %s\n", args[0])
				os.Exit(1)
			}
			fmt.Printf("removed %s\n", args[0])
		},
	})

	var withStats bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		Run: func(cmd *cobra.Command, args []string) {
			runCronList(withStats)
		},
	}
	listCmd.Flags().BoolVar(&withStats, "stats", false, "include run history stats per job")
	root.AddCommand(listCmd)

	return root
}

func scheduleSummary(s cron.ScheduleSpec) string {
	switch s.Kind {
	case cron.KindAt:
		return "at:" + s.At
	case cron.KindEvery:
		return fmt.Sprintf("every:%dms", s.EveryMs)
	default:
		return "cron:" + s.Expr
	}
}

func openCronStore() *cron.Store {
	store, err := cron.OpenStore(filepath.Join(resolveStateDir(), "cron", "jobs.json"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return store
}

// runCronList implements §3.G's `list(withStats bool)` CLI convenience,
// wrapping get_run_stats per job when requested.
func runCronList(withStats bool) {
	store := openCronStore()
	jobs, err := store.List()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(jobs) == 0 {
		fmt.Println("no scheduled jobs")
		return
	}

	var runner *cron.Runner
	if withStats {
		runner, err = cron.NewRunner(store, resolveStateDir(), 0, nil)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	for _, j := range jobs {
		fmt.Printf("%s\tenabled=%v\tschedule=%s\tprompt=%q\n", j.ID, j.Enabled, scheduleSummary(j.Schedule), j.Prompt)
		if withStats {
			stats, err := runner.GetRunStats(j.ID)
			if err != nil {
				continue
			}
			fmt.Printf("\truns=%d success=%d errors=%d avg_ms=%.0f\n", stats.Total, stats.Success, stats.Errors, stats.AvgDurationMs)
		}
	}
}

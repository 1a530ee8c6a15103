package cmd

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/3leaps/gocrack/pkg/api"
	"github.com/3leaps/gocrack/pkg/directory"
	"github.com/3leaps/gocrack/pkg/output"
	"github.com/3leaps/gocrack/pkg/taskstore"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show coordinator status",
	Long: `Show minions, per-hash progress and task counts of a running coordinator.

Example:
  gocrack status
  gocrack status -o yaml
  gocrack status -o jsonl | jq 'select(.type == "gocrack.hash.v1")'`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var minionsCmd = &cobra.Command{
	Use:   "minions",
	Short: "List registered minions",
	Args:  cobra.NoArgs,
	RunE:  runMinions,
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks",
	Long: `List every task known to the coordinator.

Example:
  gocrack tasks
  gocrack tasks --status pending
  gocrack tasks --hash 5f4dcc3b5aa765d61d8327deb882cf99 -o json`,
	Args: cobra.NoArgs,
	RunE: runTasks,
}

var (
	statusCoordinator string
	statusFormat      string
	tasksStatusFilter string
	tasksHashFilter   string
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(minionsCmd)
	rootCmd.AddCommand(tasksCmd)

	addClientFlags(statusCmd, &statusCoordinator, &statusFormat)
	addClientFlags(minionsCmd, &statusCoordinator, &statusFormat)
	addClientFlags(tasksCmd, &statusCoordinator, &statusFormat)
	tasksCmd.Flags().StringVar(&tasksStatusFilter, "status", "", "Only tasks in this status")
	tasksCmd.Flags().StringVar(&tasksHashFilter, "hash", "", "Only tasks of this hash")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := validateFormat(statusFormat); err != nil {
		return err
	}
	c, _, err := newClient(cmd, statusCoordinator)
	if err != nil {
		return err
	}
	snap, err := c.Status(cmd.Context())
	if err != nil {
		return clientError("Failed to fetch status", err)
	}

	out := cmd.OutOrStdout()
	switch statusFormat {
	case FormatTable:
		return printStatus(out, snap)
	case FormatJSONL:
		return output.WriteSnapshot(cmd.Context(), output.NewJSONLWriter(out, c.BaseURL()), snap)
	default:
		return encode(out, statusFormat, snap)
	}
}

func runMinions(cmd *cobra.Command, args []string) error {
	if err := validateFormat(statusFormat); err != nil {
		return err
	}
	c, _, err := newClient(cmd, statusCoordinator)
	if err != nil {
		return err
	}
	minions, err := c.Minions(cmd.Context())
	if err != nil {
		return clientError("Failed to list minions", err)
	}

	out := cmd.OutOrStdout()
	switch statusFormat {
	case FormatTable:
		return printMinions(out, minions)
	case FormatJSONL:
		w := output.NewJSONLWriter(out, c.BaseURL())
		for i := range minions {
			if err := w.WriteMinion(cmd.Context(), &minions[i]); err != nil {
				return err
			}
		}
		return w.Close()
	default:
		return encode(out, statusFormat, api.MinionsResponse{Minions: minions})
	}
}

func runTasks(cmd *cobra.Command, args []string) error {
	if err := validateFormat(statusFormat); err != nil {
		return err
	}
	if tasksStatusFilter != "" && !taskstore.Status(tasksStatusFilter).Valid() {
		return exitError(ExitInvalidArgument, "Invalid --status value",
			fmt.Errorf("unknown status %q", tasksStatusFilter))
	}
	c, _, err := newClient(cmd, statusCoordinator)
	if err != nil {
		return err
	}
	all, err := c.AllTasks(cmd.Context())
	if err != nil {
		return clientError("Failed to list tasks", err)
	}
	tasks := filterTasks(all, taskstore.Status(tasksStatusFilter), tasksHashFilter)

	out := cmd.OutOrStdout()
	switch statusFormat {
	case FormatTable:
		return printTasks(out, tasks)
	case FormatJSONL:
		w := output.NewJSONLWriter(out, c.BaseURL())
		for i := range tasks {
			if err := w.WriteTask(cmd.Context(), &tasks[i]); err != nil {
				return err
			}
		}
		return w.Close()
	default:
		return encode(out, statusFormat, tasks)
	}
}

// filterTasks returns the matching tasks ordered by hash then slice.
func filterTasks(all map[string]taskstore.Task, status taskstore.Status, hash string) []taskstore.Task {
	tasks := make([]taskstore.Task, 0, len(all))
	for _, t := range all {
		if status != "" && t.Status != status {
			continue
		}
		if hash != "" && t.HashValue != hash {
			continue
		}
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].HashValue != tasks[j].HashValue {
			return tasks[i].HashValue < tasks[j].HashValue
		}
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].SliceIndex < tasks[j].SliceIndex
	})
	return tasks
}

func printStatus(out io.Writer, snap api.StatusResponse) error {
	sum := output.Summarize(snap)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	if snap.Config != nil {
		_, _ = fmt.Fprintf(w, "Keyspace:\t%s [%d, %d]\n", snap.Config.Keyspace, snap.Config.MinValue, snap.Config.MaxValue)
		_, _ = fmt.Fprintf(w, "Algorithm:\t%s\n", snap.Config.Algorithm)
	}
	_, _ = fmt.Fprintf(w, "Minions:\t%d (%d active)\n", sum.Minions, sum.ActiveMinions)
	_, _ = fmt.Fprintf(w, "Hashes:\t%d (%d cracked)\n", sum.Hashes, sum.Cracked)
	_, _ = fmt.Fprintf(w, "Tasks:\t%d\n", sum.Tasks)
	for _, s := range taskstore.AllStatuses() {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", s, sum.Counts[s])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(snap.Hashes) == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "HASH\tTASKS\tPENDING\tASSIGNED\tDONE\tRESULT\tFOUND BY")
	for _, h := range snap.Hashes {
		result := h.Result
		if result == "" {
			result = "-"
			if h.Done() {
				result = "(not found)"
			}
		}
		foundBy := h.FoundBy
		if foundBy == "" {
			foundBy = "-"
		}
		done := h.Tasks - h.Counts[taskstore.StatusPending] - h.Counts[taskstore.StatusAssigned]
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			h.HashValue, h.Tasks, h.Counts[taskstore.StatusPending], h.Counts[taskstore.StatusAssigned], done, result, foundBy)
	}
	return w.Flush()
}

func printMinions(out io.Writer, minions []directory.Record) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tADDRESS\tSTATUS\tLAST HEARTBEAT\tCAPABILITIES")
	for _, m := range minions {
		caps := "-"
		if len(m.Capabilities) > 0 {
			caps = fmt.Sprint(m.Capabilities)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.Address(), m.Status, since(m.LastHeartbeat), caps)
	}
	return w.Flush()
}

func printTasks(out io.Writer, tasks []taskstore.Task) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TASK\tSTART\tEND\tSTATUS\tMINION\tRESULT")
	for _, t := range tasks {
		minion := t.AssignedTo
		if minion == "" {
			minion = "-"
		}
		result := t.Result
		if result == "" {
			result = "-"
		}
		if t.Error != "" {
			result = "error: " + t.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\n", t.ID, t.Start, t.End, t.Status, minion, result)
	}
	return w.Flush()
}

func since(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return time.Since(t).Round(time.Second).String() + " ago"
}

package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"crossvoice/internal/config"
	"crossvoice/internal/ledger"
)

type runJSON struct {
	ID          string           `json:"id"`
	ModelRoot   string           `json:"model_root"`
	Vocoder     string           `json:"vocoder"`
	TrainLength string           `json:"train_length,omitempty"`
	Status      ledger.RunStatus `json:"status"`
	Planned     int              `json:"planned"`
	Completed   int              `json:"completed"`
	Skipped     int              `json:"skipped"`
	Failed      int              `json:"failed"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
}

type failedJobJSON struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

type runDetailJSON struct {
	Run    runJSON                  `json:"run"`
	Jobs   map[ledger.JobStatus]int `json:"jobs"`
	Failed []failedJobJSON          `json:"failed,omitempty"`
}

func toRunJSON(run ledger.Run) runJSON {
	out := runJSON{
		ID:          run.ID,
		ModelRoot:   run.ModelRoot,
		Vocoder:     run.Vocoder,
		TrainLength: run.TrainLength,
		Status:      run.Status,
		Planned:     run.Totals.Planned,
		Completed:   run.Totals.Completed,
		Skipped:     run.Totals.Skipped,
		Failed:      run.Totals.Failed,
		Error:       run.Error,
		StartedAt:   run.StartedAt,
	}
	if !run.FinishedAt.IsZero() {
		finished := run.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var runID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show experiment runs recorded in the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLedger(func(cfg *config.Config, store *ledger.Store) error {
				if runID != "" {
					return showRun(cmd, store, runID, asJSON)
				}
				return listRuns(cmd, store, limit, asJSON)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show (0 for all)")
	cmd.Flags().StringVar(&runID, "run", "", "Show one run by id or id prefix")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func listRuns(cmd *cobra.Command, store *ledger.Store, limit int, asJSON bool) error {
	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if asJSON {
		payload := make([]runJSON, 0, len(runs))
		for _, run := range runs {
			payload = append(payload, toRunJSON(run))
		}
		return writeJSON(cmd, payload)
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			shortID(run.ID),
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			string(run.Status),
			run.Vocoder,
			dash(run.TrainLength),
			strconv.Itoa(run.Totals.Planned),
			strconv.Itoa(run.Totals.Completed),
			strconv.Itoa(run.Totals.Skipped),
			strconv.Itoa(run.Totals.Failed),
			run.ModelRoot,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Run", "Started", "Status", "Vocoder", "Train length", "Planned", "Done", "Skipped", "Failed", "Root"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	))
	return nil
}

func showRun(cmd *cobra.Command, store *ledger.Store, id string, asJSON bool) error {
	ctx := cmd.Context()
	run, err := store.FindRun(ctx, id)
	if err != nil {
		return err
	}
	counts, err := store.JobCounts(ctx, run.ID)
	if err != nil {
		return err
	}
	failed, err := store.ListJobs(ctx, run.ID, ledger.JobFailed)
	if err != nil {
		return err
	}

	if asJSON {
		payload := runDetailJSON{Run: toRunJSON(run), Jobs: counts}
		for _, job := range failed {
			payload.Failed = append(payload.Failed, failedJobJSON{Key: job.Key, Error: job.Error})
		}
		return writeJSON(cmd, payload)
	}

	out := cmd.OutOrStdout()
	printRunDetail(out, run, counts)
	if len(failed) > 0 {
		rows := make([][]string, 0, len(failed))
		for _, job := range failed {
			rows = append(rows, []string{job.Key, job.Error})
		}
		fmt.Fprintln(out, tableSpec{Title: "Failed jobs", Headers: []string{"Job", "Error"}, Rows: rows}.render())
	}
	return nil
}

func printRunDetail(out io.Writer, run ledger.Run, counts map[ledger.JobStatus]int) {
	finished := "-"
	elapsed := "-"
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.Local().Format("2006-01-02 15:04:05")
		elapsed = formatDuration(run.FinishedAt.Sub(run.StartedAt))
	}
	rows := [][]string{
		{"Run", run.ID},
		{"Root", run.ModelRoot},
		{"Vocoder", run.Vocoder},
		{"Train length", dash(run.TrainLength)},
		{"Status", string(run.Status)},
		{"Started", run.StartedAt.Local().Format("2006-01-02 15:04:05")},
		{"Finished", finished},
		{"Elapsed", elapsed},
	}
	if run.Error != "" {
		rows = append(rows, []string{"Error", run.Error})
	}
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))

	jobRows := make([][]string, 0, len(counts))
	total := 0
	for _, status := range ledger.JobStatuses() {
		n := counts[status]
		total += n
		jobRows = append(jobRows, []string{string(status), strconv.Itoa(n)})
	}
	fmt.Fprintln(out, tableSpec{
		Headers: []string{"Jobs", "Count"},
		Rows:    jobRows,
		Footer:  []string{"total", strconv.Itoa(total)},
		Aligns:  []columnAlignment{alignLeft, alignRight},
	}.render())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func dash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/macjediwizard/syncbridge/internal/api"
	"github.com/macjediwizard/syncbridge/internal/console"
	"github.com/spf13/cobra"
)

func newLogsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "logs",
		Aliases: []string{"log", "events"},
		Short:   "Browse the sync event log",
	}
	cmd.AddCommand(newLogsListCmd(a), newLogsShowCmd(a))
	return cmd
}

func optionValues(options []console.Option) []string {
	values := make([]string, 0, len(options))
	for _, o := range options {
		if o.Value != "" {
			values = append(values, o.Value)
		}
	}
	return values
}

func newLogsListCmd(a *app) *cobra.Command {
	var (
		status string
		days   int
		limit  int
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recent sync events, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if status != "" && !api.Contains(optionValues(console.StatusOptions), status) {
				return fmt.Errorf("invalid status %q: use %s", status, strings.Join(optionValues(console.StatusOptions), " or "))
			}
			if days <= 0 || limit <= 0 {
				return errors.New("--days and --limit must be positive")
			}

			viewer := console.NewEventLogViewer(a.client, a.toaster, nil)
			if err := viewer.ApplyFilters(cmd.Context(), status, strconv.Itoa(days), strconv.Itoa(limit)); err != nil {
				return reported(err)
			}
			writeEventRows(a.out, viewer.Rows())
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status: "+strings.Join(optionValues(console.StatusOptions), ", "))
	cmd.Flags().IntVar(&days, "days", console.DefaultEventDays, "look-back window in days")
	cmd.Flags().IntVar(&limit, "limit", console.DefaultEventLimit, "maximum number of entries")
	return cmd
}

func writeEventRows(w io.Writer, rows []console.EventRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, subtleStyle.Render("No events"))
		return
	}
	t := &table{headers: []string{"ID", "NAME", "STATUS", "CREATED", "RECORDS", "MESSAGE"}}
	for _, r := range rows {
		t.add(r.ID, r.Name, formatClass(r.StatusClass, r.Status), r.CreatedDate,
			strconv.Itoa(r.RecordCount), r.Message)
	}
	t.write(w)
}

func newLogsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one event with its response payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			viewer := console.NewEventLogViewer(a.client, a.toaster, nil)
			if err := viewer.ViewDetails(cmd.Context(), args[0]); err != nil {
				return reported(err)
			}
			defer viewer.CloseDetails()

			e := viewer.Selected()
			field(a.out, "Name", e.Name)
			field(a.out, "Status", formatClass(console.EventStatusClass(e.Status), e.Status))
			field(a.out, "Created", e.CreatedDate)
			field(a.out, "Sync", e.SyncID)
			field(a.out, "Records", strconv.Itoa(e.RecordCount))
			if e.Message != "" {
				field(a.out, "Message", e.Message)
			}
			if payload := viewer.FormattedResponse(); payload != "" {
				fmt.Fprintln(a.out, titleStyle.Render("Response:"))
				fmt.Fprintln(a.out, payload)
			}
			return nil
		},
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/macjediwizard/syncbridge/internal/activity"
	"github.com/macjediwizard/syncbridge/internal/api"
	"github.com/spf13/cobra"
)

func newRecordsCmd(a *app) *cobra.Command {
	var (
		entity string
		file   string
	)
	cmd := &cobra.Command{
		Use:   "push-records",
		Short: "Push changed CRM records of one entity",
		Long: `Push changed CRM records read from a JSON array of {"id": ..., "fields": {...}}
objects. Use --file - to read from standard input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := readRecords(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			accepted, err := a.client.PushRecords(cmd.Context(), api.IngestRecordsRequest{Entity: entity, Records: records})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, successStyle.Render(fmt.Sprintf("Accepted %d %s records", accepted, entity)))
			return nil
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "source entity of the records")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file, or - for stdin")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readRecords(stdin io.Reader, path string) ([]api.IngestRecord, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var records []api.IngestRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

func newActivityCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "activity",
		Short: "Show running and recently finished sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := a.client.Activity(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, titleStyle.Render("Running"))
			writeRuns(a.out, snap.Active)
			fmt.Fprintln(a.out)
			fmt.Fprintln(a.out, titleStyle.Render("Recent"))
			writeRuns(a.out, snap.Recent)
			return nil
		},
	}
}

var runStatusClass = map[string]string{
	activity.StatusCompleted: "success",
	activity.StatusPartial:   "weak",
	activity.StatusError:     "error",
}

func writeRuns(w io.Writer, runs []*activity.RunActivity) {
	if len(runs) == 0 {
		fmt.Fprintln(w, subtleStyle.Render("none"))
		return
	}
	t := &table{headers: []string{"SYNC", "ENTITY", "MODE", "STATUS", "PROCESSED", "UPLOADED", "FAILED", "DURATION"}}
	for _, r := range runs {
		t.add(r.SyncName, r.SourceEntity, r.Mode, formatClass(runStatusClass[r.Status], r.Status),
			strconv.Itoa(r.RecordsProcessed), strconv.Itoa(r.RecordsUploaded), strconv.Itoa(r.RecordsFailed), r.Duration)
	}
	t.write(w)
}

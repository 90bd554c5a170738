package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/macjediwizard/syncbridge/internal/api"
	"github.com/macjediwizard/syncbridge/internal/console"
	"github.com/spf13/cobra"
)

func newSyncsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "syncs",
		Aliases: []string{"sync"},
		Short:   "List and manage sync configurations",
	}
	cmd.AddCommand(
		newSyncsListCmd(a),
		newSyncsCreateCmd(a),
		newSyncsEditCmd(a),
		newSyncsDeleteCmd(a),
		newSyncsActionCmd(a, "activate", console.ActionActivate, "Activate a sync configuration"),
		newSyncsActionCmd(a, "deactivate", console.ActionDeactivate, "Deactivate a sync configuration"),
		newSyncsActionCmd(a, "historical", console.ActionHistoricalSync, "Run a historical sync over all existing records"),
	)
	return cmd
}

func newSyncsListCmd(a *app) *cobra.Command {
	var (
		connectionID string
		sortBy       string
		desc         bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the sync configurations of a connection",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !slices.Contains(sortColumns, sortBy) {
				return fmt.Errorf("invalid sort column %q: use one of %s", sortBy, strings.Join(sortColumns, ", "))
			}
			list := a.newList(connectionID)
			if err := list.Load(cmd.Context()); err != nil {
				return reported(err)
			}
			direction := console.SortAsc
			if desc {
				direction = console.SortDesc
			}
			list.Sort(sortBy, direction)
			writeSyncRows(a.out, list.Rows())
			return nil
		},
	}
	cmd.Flags().StringVarP(&connectionID, "connection", "c", "", "connection id")
	cmd.Flags().StringVar(&sortBy, "sort", console.ColumnName, "sort column: "+strings.Join(sortColumns, ", "))
	cmd.Flags().BoolVar(&desc, "desc", false, "sort descending")
	_ = cmd.MarkFlagRequired("connection")
	return cmd
}

var sortColumns = []string{
	console.ColumnName,
	console.ColumnSyncType,
	console.ColumnTargetEntity,
	console.ColumnSourceEntity,
	console.ColumnStatus,
}

func writeSyncRows(w io.Writer, rows []console.ListRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, subtleStyle.Render("No sync configurations"))
		return
	}
	t := &table{headers: []string{"ID", "NAME", "SOURCE", "TARGET", "TYPE", "STATUS", "LAST SYNC", "ACTIONS"}}
	for _, r := range rows {
		last := "never"
		if r.LastSyncedAt != nil {
			last = *r.LastSyncedAt
		}
		labels := make([]string, 0, len(r.Actions))
		for _, action := range r.Actions {
			labels = append(labels, action.Label())
		}
		t.add(r.ID, r.Name, r.SourceEntity, r.TargetEntity, r.SyncType,
			formatClass(r.StatusClass, r.Status), last, strings.Join(labels, ", "))
	}
	t.write(w)
}

// syncFlags are the basic configuration fields shared by create and edit.
type syncFlags struct {
	name     string
	syncType string
	source   string
	target   string
	status   string
}

func (f *syncFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "configuration name")
	cmd.Flags().StringVar(&f.syncType, "type", api.SyncTypeCRMToAnalytics, "sync type")
	cmd.Flags().StringVar(&f.source, "source", "", "source entity: "+strings.Join(api.SourceEntities, ", "))
	cmd.Flags().StringVar(&f.target, "target", "", "target entity: "+strings.Join(api.TargetEntities, ", "))
}

// apply sets the flags the user gave on the form. In new mode every field is
// applied so that missing ones surface as validation errors.
func (f *syncFlags) apply(cmd *cobra.Command, form *console.ConfigForm) error {
	values := []struct {
		flag  string
		field console.FormField
		value string
	}{
		{"name", console.FieldName, f.name},
		{"type", console.FieldSyncType, f.syncType},
		{"source", console.FieldSourceEntity, f.source},
		{"target", console.FieldTargetEntity, f.target},
		{"status", console.FieldStatus, f.status},
	}
	for _, v := range values {
		if cmd.Flags().Lookup(v.flag) == nil {
			continue
		}
		if form.Mode() == console.ModeEdit && !cmd.Flags().Changed(v.flag) {
			continue
		}
		if err := form.Set(v.field, strings.TrimSpace(v.value)); err != nil {
			return err
		}
	}
	return nil
}

func newSyncsCreateCmd(a *app) *cobra.Command {
	var (
		connectionID string
		sf           syncFlags
		mf           mappingFlags
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a sync configuration and its field mappings",
		Example: `  syncbridgectl syncs create -c CONN --name "Contacts" --source Contact --target profile \
      --identity Id --map email=Email --map first_name=FirstName`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			list := a.newList(connectionID)
			form := list.AddNew()
			if err := sf.apply(cmd, form); err != nil {
				return err
			}
			if err := form.Submit(ctx); err != nil {
				return reported(err)
			}
			if err := a.saveMappings(ctx, form.Editor(), mf); err != nil {
				// Leaving the mapping step discards the draft configuration.
				form.Editor().Cancel(ctx)
				return err
			}
			fmt.Fprintln(a.out, "Created sync configuration "+titleStyle.Render(form.RecordID()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&connectionID, "connection", "c", "", "connection id")
	sf.register(cmd)
	mf.register(cmd)
	_ = cmd.MarkFlagRequired("connection")
	return cmd
}

func newSyncsEditCmd(a *app) *cobra.Command {
	var (
		sf syncFlags
		mf mappingFlags
	)
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a sync configuration and its field mappings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			list, row, err := a.findRow(ctx, args[0])
			if err != nil {
				return err
			}
			if err := list.HandleAction(ctx, console.ActionEdit, row); err != nil {
				return reported(err)
			}
			form := list.Form()
			if err := sf.apply(cmd, form); err != nil {
				return err
			}
			if err := form.Submit(ctx); err != nil {
				return reported(err)
			}
			if err := a.saveMappings(ctx, form.Editor(), mf); err != nil {
				form.Editor().Cancel(ctx)
				return err
			}
			fmt.Fprintln(a.out, "Updated sync configuration "+titleStyle.Render(form.RecordID()))
			return nil
		},
	}
	sf.register(cmd)
	cmd.Flags().StringVar(&sf.status, "status", "", "status: Active or Inactive")
	mf.register(cmd)
	return cmd
}

func newSyncsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a sync configuration and its field mappings",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			list, row, err := a.findRow(ctx, args[0])
			if err != nil {
				return err
			}
			if err := list.HandleAction(ctx, console.ActionDelete, row); err != nil {
				return err
			}

			ok, err := a.confirm.Confirm(ctx, "Delete Sync Configuration",
				fmt.Sprintf("Are you sure you want to delete %q? Its field mappings are deleted too.", row.Name))
			if err != nil {
				list.CancelDelete()
				return err
			}
			if !ok {
				list.CancelDelete()
				fmt.Fprintln(a.out, subtleStyle.Render("Cancelled"))
				return nil
			}
			return reported(list.ConfirmDelete(ctx))
		},
	}
}

// newSyncsActionCmd runs a status or historical sync row action.
func newSyncsActionCmd(a *app, use string, action console.Action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			list, row, err := a.findRow(ctx, args[0])
			if err != nil {
				return err
			}
			if !slices.Contains(row.Actions, action) {
				return fmt.Errorf("%s is not available for %q with status %s", action.Label(), row.Name, row.Status)
			}
			return reported(list.HandleAction(ctx, action, row))
		},
	}
}

func (a *app) newList(connectionID string) *console.SyncList {
	return console.NewSyncList(a.client, a.toaster, a.confirm, console.ListOptions{ConnectionID: connectionID})
}

// findRow resolves a configuration id to its row in the list of its connection.
func (a *app) findRow(ctx context.Context, id string) (*console.SyncList, console.ListRow, error) {
	cfg, err := a.client.GetSyncConfiguration(ctx, id)
	if err != nil {
		return nil, console.ListRow{}, err
	}

	list := a.newList(cfg.ConnectionID)
	if err := list.Load(ctx); err != nil {
		return nil, console.ListRow{}, reported(err)
	}
	for _, row := range list.Rows() {
		if row.ID == id {
			return list, row, nil
		}
	}
	return nil, console.ListRow{}, fmt.Errorf("sync configuration %s not found", id)
}

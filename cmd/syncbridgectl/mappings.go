package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/macjediwizard/syncbridge/internal/api"
	"github.com/macjediwizard/syncbridge/internal/console"
	"github.com/spf13/cobra"
)

// mappingFlags edit a mapping set from the command line. --map replaces all
// optional rows.
type mappingFlags struct {
	identity  string
	eventName string
	maps      []string
}

func (f *mappingFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.identity, "identity", "", "source field mapped to the customer identity")
	cmd.Flags().StringVar(&f.eventName, "event-name", "", "event name for event targets")
	cmd.Flags().StringArrayVar(&f.maps, "map", nil, "optional mapping target=source[:DataType], repeatable")
}

// parseMapping parses target=source[:DataType].
func parseMapping(s string) (console.Row, error) {
	target, source, ok := strings.Cut(s, "=")
	if !ok {
		return console.Row{}, fmt.Errorf("invalid mapping %q: expected target=source[:DataType]", s)
	}
	dataType := api.DataTypeText
	if i := strings.LastIndex(source, ":"); i >= 0 {
		source, dataType = source[:i], source[i+1:]
	}
	if target == "" || source == "" {
		return console.Row{}, fmt.Errorf("invalid mapping %q: target and source field are required", s)
	}
	return console.Row{Field: target, SourceField: source, DataType: dataType}, nil
}

// apply copies the flags onto an activated editor.
func (f *mappingFlags) apply(editor *console.MappingEditor) error {
	if f.eventName != "" && !editor.IsEvent() {
		return errors.New("--event-name only applies to event targets")
	}
	rows := make([]console.Row, 0, len(f.maps))
	for _, m := range f.maps {
		row, err := parseMapping(m)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	if f.identity != "" {
		editor.SetIdentitySource(f.identity)
	}
	if f.eventName != "" {
		editor.SetEventName(f.eventName)
	}
	if len(rows) > 0 {
		for _, r := range editor.Rows() {
			editor.DeleteRow(r.ID)
		}
		for _, r := range rows {
			id := editor.AddRow()
			if err := editor.UpdateRow(id, func(console.Row) console.Row { return r }); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *app) saveMappings(ctx context.Context, editor *console.MappingEditor, f mappingFlags) error {
	if editor == nil {
		return errors.New("mapping editor is not open")
	}
	if err := f.apply(editor); err != nil {
		return err
	}
	return reported(editor.Save(ctx))
}

func newMappingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mappings",
		Aliases: []string{"mapping"},
		Short:   "Show and edit field mappings",
	}
	cmd.AddCommand(
		newMappingsShowCmd(a),
		newMappingsSetCmd(a),
		newEntitiesCmd(a),
		newFieldsCmd(a),
		newPicklistCmd(a),
	)
	return cmd
}

// openEditor loads the editor of an existing configuration.
func (a *app) openEditor(ctx context.Context, syncID string) (*console.MappingEditor, error) {
	cfg, err := a.client.GetSyncConfiguration(ctx, syncID)
	if err != nil {
		return nil, err
	}
	editor := console.NewMappingEditor(a.client, a.toaster, console.EditorOptions{
		SyncID:       cfg.ID,
		SourceEntity: cfg.SourceEntity,
		TargetEntity: cfg.TargetEntity,
	})
	if err := editor.Activate(ctx); err != nil {
		return nil, reported(err)
	}
	return editor, nil
}

func newMappingsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <sync-id>",
		Short: "Show the field mappings of a sync configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			editor, err := a.openEditor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			writeMappings(a.out, editor)
			return nil
		},
	}
}

func writeMappings(w io.Writer, editor *console.MappingEditor) {
	identity := editor.IdentitySource()
	if identity == "" {
		identity = warningStyle.Render("(not mapped)")
	}
	field(w, api.IdentityField, identity)
	if editor.IsEvent() {
		field(w, api.EventNameField, editor.EventName())
	}

	rows := editor.Rows()
	if len(rows) == 0 {
		fmt.Fprintln(w, subtleStyle.Render("No optional mappings"))
		return
	}
	t := &table{headers: []string{"TARGET", "SOURCE", "TYPE"}}
	for _, r := range rows {
		t.add(r.Field, r.SourceField, r.DataType)
	}
	t.write(w)
}

func newMappingsSetCmd(a *app) *cobra.Command {
	var mf mappingFlags
	cmd := &cobra.Command{
		Use:   "set <sync-id>",
		Short: "Replace the field mappings of a sync configuration",
		Example: `  syncbridgectl mappings set SYNC --identity Id --map email=Email --map score=Score__c:Number
  syncbridgectl mappings set SYNC --event-name sf_lead_update`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			editor, err := a.openEditor(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.saveMappings(ctx, editor, mf); err != nil {
				return err
			}
			writeMappings(a.out, editor)
			return nil
		},
	}
	mf.register(cmd)
	return cmd
}

func newEntitiesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "List the source entities a sync can read from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entities, err := a.client.ListEntities(cmd.Context())
			if err != nil {
				return err
			}
			for _, e := range entities {
				fmt.Fprintln(a.out, e)
			}
			return nil
		},
	}
}

func newFieldsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fields <entity>",
		Short: "List the selectable fields of a source entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := a.client.ListFields(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			t := &table{headers: []string{"FIELD", "LABEL"}}
			for _, f := range fields {
				t.add(f.Value, f.Label)
			}
			t.write(a.out)
			return nil
		},
	}
}

func newPicklistCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "picklist <object> <field>",
		Short: "List the allowed values of a picklist field",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := a.client.GetPicklistValues(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			t := &table{headers: []string{"VALUE", "LABEL"}}
			for _, v := range values {
				t.add(v.Value, v.Label)
			}
			t.write(a.out)
			return nil
		},
	}
}

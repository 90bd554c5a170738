package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/macjediwizard/syncbridge/internal/api"
	"github.com/spf13/cobra"
)

const envPasscode = "SYNCBRIDGE_PASSCODE"

func newConnectionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conn"},
		Short:   "Manage analytics connections",
	}
	cmd.AddCommand(
		newConnectionsListCmd(a),
		newConnectionsValidateCmd(a),
		newConnectionsCreateCmd(a),
		newConnectionsUpdateCmd(a),
		newConnectionsDeleteCmd(a),
	)
	return cmd
}

func newConnectionsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List analytics connections",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conns, err := a.client.ListConnections(cmd.Context())
			if err != nil {
				return err
			}
			if len(conns) == 0 {
				fmt.Fprintln(a.out, subtleStyle.Render("No connections"))
				return nil
			}
			t := &table{headers: []string{"ID", "NAME", "REGION", "ACCOUNT", "CREATED"}}
			for _, c := range conns {
				t.add(c.ID, c.Name, c.Region, c.AccountID, c.CreatedAt)
			}
			t.write(a.out)
			return nil
		},
	}
}

// credentialFlags hold analytics credentials. The passcode falls back to
// SYNCBRIDGE_PASSCODE and then to a masked prompt.
type credentialFlags struct {
	region    string
	accountID string
	passcode  string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.region, "region", "", "analytics region")
	cmd.Flags().StringVar(&f.accountID, "account", "", "analytics account id")
	cmd.Flags().StringVar(&f.passcode, "passcode", "", "analytics passcode (env "+envPasscode+")")
	_ = cmd.MarkFlagRequired("region")
	_ = cmd.MarkFlagRequired("account")
}

func (f *credentialFlags) resolvePasscode(ctx context.Context) error {
	if f.passcode == "" {
		f.passcode = os.Getenv(envPasscode)
	}
	if f.passcode != "" {
		return nil
	}
	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Passcode").
			EchoMode(huh.EchoModePassword).
			Value(&f.passcode).
			Validate(func(s string) error {
				if s == "" {
					return errors.New("passcode is required")
				}
				return nil
			}),
	)).WithTheme(huh.ThemeDracula()).RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return errors.New("cancelled")
	}
	return err
}

func newConnectionsValidateCmd(a *app) *cobra.Command {
	var cf credentialFlags
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check analytics credentials without saving them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := cf.resolvePasscode(ctx); err != nil {
				return err
			}
			res, err := a.client.ValidateCredentials(ctx, api.ValidateCredentialsRequest{
				Region:    cf.region,
				AccountID: cf.accountID,
				Passcode:  cf.passcode,
			})
			if err != nil {
				return err
			}
			if !res.Valid {
				fmt.Fprintln(a.out, errorStyle.Render("Invalid credentials: "+res.Message))
				return reported(errors.New(res.Message))
			}
			fmt.Fprintln(a.out, successStyle.Render("Credentials are valid"))
			return nil
		},
	}
	cf.register(cmd)
	return cmd
}

func newConnectionsCreateCmd(a *app) *cobra.Command {
	var (
		name string
		cf   credentialFlags
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add an analytics connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := cf.resolvePasscode(ctx); err != nil {
				return err
			}
			conn, err := a.client.CreateConnection(ctx, api.SaveConnectionRequest{
				Name:      name,
				Region:    cf.region,
				AccountID: cf.accountID,
				Passcode:  cf.passcode,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Created connection "+titleStyle.Render(conn.ID))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "connection name")
	_ = cmd.MarkFlagRequired("name")
	cf.register(cmd)
	return cmd
}

func newConnectionsUpdateCmd(a *app) *cobra.Command {
	var (
		name string
		cf   credentialFlags
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename a connection or change its credentials",
		Long: `Update a connection. Flags left unset keep their current value. The stored
passcode is kept unless --passcode or SYNCBRIDGE_PASSCODE is given; a new
passcode is checked by the server before it is saved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := a.client.GetConnection(ctx, args[0])
			if err != nil {
				return err
			}

			req := api.SaveConnectionRequest{
				Name:      conn.Name,
				Region:    conn.Region,
				AccountID: conn.AccountID,
				Passcode:  cf.passcode,
			}
			if cmd.Flags().Changed("name") {
				req.Name = name
			}
			if cmd.Flags().Changed("region") {
				req.Region = cf.region
			}
			if cmd.Flags().Changed("account") {
				req.AccountID = cf.accountID
			}
			if req.Passcode == "" {
				req.Passcode = os.Getenv(envPasscode)
			}

			updated, err := a.client.UpdateConnection(ctx, conn.ID, req)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, successStyle.Render("Updated connection "+updated.Name))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "connection name")
	cmd.Flags().StringVar(&cf.region, "region", "", "analytics region")
	cmd.Flags().StringVar(&cf.accountID, "account", "", "analytics account id")
	cmd.Flags().StringVar(&cf.passcode, "passcode", "", "new analytics passcode (env "+envPasscode+")")
	return cmd
}

func newConnectionsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a connection and all of its sync configurations",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := a.client.GetConnection(ctx, args[0])
			if err != nil {
				return err
			}
			ok, err := a.confirm.Confirm(ctx, "Delete Connection",
				fmt.Sprintf("Are you sure you want to delete %q? All of its sync configurations are deleted too.", conn.Name))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(a.out, subtleStyle.Render("Cancelled"))
				return nil
			}
			if err := a.client.DeleteConnection(ctx, conn.ID); err != nil {
				return err
			}
			fmt.Fprintln(a.out, successStyle.Render("Connection deleted"))
			return nil
		},
	}
}

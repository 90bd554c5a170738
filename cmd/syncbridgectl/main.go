// Command syncbridgectl manages sync configurations, field mappings and the
// event log of a syncbridge server.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/macjediwizard/syncbridge/internal/client"
	"github.com/macjediwizard/syncbridge/internal/console"
	"github.com/spf13/cobra"
)

const (
	envServer     = "SYNCBRIDGE_SERVER"
	envToken      = "SYNCBRIDGE_TOKEN"
	defaultServer = "http://localhost:8080"
)

// app carries what every command needs once flags are parsed.
type app struct {
	server    string
	token     string
	assumeYes bool

	out     io.Writer
	client  *client.Client
	toaster console.Toaster
	confirm console.Confirmer
}

func main() {
	root := newRootCmd(os.Stdout)
	if err := root.Execute(); err != nil {
		var shown reportedError
		if !errors.As(err, &shown) {
			fmt.Fprintln(os.Stderr, errorStyle.Render("ERROR: "+err.Error()))
		}
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "syncbridgectl",
		Short:         "Manage CRM to analytics sync configurations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.SetOut(out)

	root.PersistentFlags().StringVar(&a.server, "server", "", "server URL (env "+envServer+")")
	root.PersistentFlags().StringVar(&a.token, "token", "", "API token (env "+envToken+")")
	root.PersistentFlags().BoolVarP(&a.assumeYes, "yes", "y", false, "answer yes to confirmations")

	root.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "admin", Title: "Admin Commands:"},
	)

	for _, cmd := range []*cobra.Command{newSyncsCmd(a), newMappingsCmd(a), newLogsCmd(a)} {
		cmd.GroupID = "core"
		root.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{newConnectionsCmd(a), newRecordsCmd(a), newActivityCmd(a)} {
		cmd.GroupID = "admin"
		root.AddCommand(cmd)
	}
	root.SetHelpCommandGroupID("admin")
	root.SetCompletionCommandGroupID("admin")

	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if a.server == "" {
		a.server = os.Getenv(envServer)
	}
	if a.server == "" {
		a.server = defaultServer
	}
	if a.token == "" {
		a.token = os.Getenv(envToken)
	}
	if !strings.HasPrefix(a.server, "http://") && !strings.HasPrefix(a.server, "https://") {
		return fmt.Errorf("invalid server URL %q: must start with http:// or https://", a.server)
	}

	a.out = cmd.OutOrStdout()
	a.client = client.New(a.server, a.token)
	a.toaster = newToaster(a.out)
	a.confirm = &promptConfirmer{assumeYes: a.assumeYes}
	return nil
}

// reportedError marks a failure the user has already seen as a toast.
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error { return e.error }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return reportedError{err}
}

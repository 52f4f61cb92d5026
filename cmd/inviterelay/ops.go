package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/inviterelay/idgen"
	"github.com/hazyhaar/inviterelay/kit"
	"github.com/hazyhaar/inviterelay/relay"
	"github.com/hazyhaar/inviterelay/store"
)

var follow bool

var statusCmd = &cobra.Command{
	Use:   "status [--follow]",
	Short: "Print the shared state.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()
		op := e.operator(cliRunID())
		if !follow {
			return printState(cmd.Context(), cmd.OutOrStdout(), op)
		}
		return followState(cmd.Context(), cmd.OutOrStdout(), e.store, op)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the stored code and its attempt counter.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()
		s, err := e.operator(cliRunID()).Reset(kit.WithTransport(cmd.Context(), "cli"))
		if err != nil {
			return err
		}
		return writeState(cmd.OutOrStdout(), s)
	},
}

var setCodeCmd = &cobra.Command{
	Use:   "set-code <code>",
	Short: "Store an invite code by hand.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()
		s, err := e.operator(cliRunID()).SetCode(kit.WithTransport(cmd.Context(), "cli"), args[0])
		if err != nil {
			return err
		}
		return writeState(cmd.OutOrStdout(), s)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the operator tools over MCP on stdio.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		srv := mcp.NewServer(&mcp.Implementation{
			Name:    "inviterelay",
			Version: "1.0.0",
		}, nil)
		e.operator(cliRunID()).RegisterMCP(srv)

		e.logger.Info("relay: mcp server on stdio")
		return srv.Run(cmd.Context(), &mcp.StdioTransport{})
	},
}

func init() {
	statusCmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing the state on every change")
	rootCmd.AddCommand(statusCmd, resetCmd, setCodeCmd, mcpCmd)
}

func cliRunID() string {
	return idgen.Prefixed("cli_", idgen.NanoID(10))()
}

func printState(ctx context.Context, w io.Writer, op *relay.Operator) error {
	s, err := op.State(ctx)
	if err != nil {
		return err
	}
	return writeState(w, s)
}

// followState prints the state once, then again after every write until
// ctx ends.
func followState(ctx context.Context, w io.Writer, st store.Store, op *relay.Operator) error {
	sub, ok := st.(store.Subscriber)
	if !ok {
		return fmt.Errorf("status: store cannot be followed")
	}
	changes := sub.Subscribe(ctx)
	if err := printState(ctx, w, op); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, open := <-changes:
			if !open {
				return nil
			}
			if err := printState(ctx, w, op); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func writeState(w io.Writer, s relay.State) error {
	return json.NewEncoder(w).Encode(s)
}

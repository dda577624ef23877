// Package cli implements sessionctl, the operator tool for stored chat sessions.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"orderbridge/internal/archive"
)

// Archive is the session archive surface the CLI drives.
type Archive interface {
	Exists(ctx context.Context, tenantKey string) bool
	Save(ctx context.Context, tenantKey, localPath string) (*archive.Pending, error)
	Extract(ctx context.Context, tenantKey, dest string) bool
	Delete(ctx context.Context, tenantKey string) error
}

// Opener builds the archive once a command actually needs it.
type Opener func(ctx context.Context) (Archive, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"
	open   Opener
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the sessionctl root command.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Inspect and manage archived chat sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewExistsCommand(opts))
	cmd.AddCommand(NewSaveCommand(opts))
	cmd.AddCommand(NewExtractCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))

	return cmd
}

func (o *RootOptions) archive(ctx context.Context) (Archive, error) {
	if o.open == nil {
		return nil, NewExitError(ExitCommandError, "no session archive configured")
	}
	a, err := o.open(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open session archive", err)
	}
	return a, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// tenantArg accepts either a bare tenant key or an automation session name.
func tenantArg(arg string) string {
	return archive.TenantKeyFromSession(arg)
}

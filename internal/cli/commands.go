package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"orderbridge/internal/archive"
)

type existsResult struct {
	TenantKey string `json:"tenantKey"`
	Exists    bool   `json:"exists"`
}

// NewExistsCommand reports whether a session is stored for a tenant.
func NewExistsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <tenant>",
		Short: "Report whether a session is stored for a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.archive(cmd.Context())
			if err != nil {
				return err
			}
			tenant := tenantArg(args[0])
			res := existsResult{TenantKey: tenant, Exists: a.Exists(cmd.Context(), tenant)}
			text := fmt.Sprintf("✗ no session stored for %s", tenant)
			if res.Exists {
				text = fmt.Sprintf("✓ session stored for %s", tenant)
			}
			return rootOpts.formatter(cmd).Success(res, text)
		},
	}
}

type saveResult struct {
	TenantKey string `json:"tenantKey"`
	Status    string `json:"status"`
	BlobKey   string `json:"blobKey,omitempty"`
	Seq       int64  `json:"seq,omitempty"`
	SizeBytes int64  `json:"sizeBytes,omitempty"`
}

// NewSaveCommand uploads a local bundle and waits for the outcome.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "save <tenant> <bundle.zip>",
		Short: "Archive a local session bundle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.archive(cmd.Context())
			if err != nil {
				return err
			}
			out := rootOpts.formatter(cmd)
			tenant := tenantArg(args[0])

			pending, err := a.Save(cmd.Context(), tenant, args[1])
			if errors.Is(err, archive.ErrNoBundle) {
				return out.Failure("NO_BUNDLE", fmt.Sprintf("no bundle at %s", args[1]), saveResult{TenantKey: tenant, Status: "rejected"})
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "save", err)
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			outcome, err := pending.Wait(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "waiting for save", err)
			}

			res := saveResult{
				TenantKey: tenant,
				Status:    outcome.Status,
				BlobKey:   outcome.BlobKey,
				Seq:       outcome.Seq,
				SizeBytes: outcome.SizeBytes,
			}
			if !outcome.Committed() {
				msg := fmt.Sprintf("save %s for %s", outcome.Status, tenant)
				if outcome.Err != nil {
					msg = fmt.Sprintf("%s: %v", msg, outcome.Err)
				}
				return out.Failure("SAVE_"+strings.ToUpper(outcome.Status), msg, res)
			}
			return out.Success(res, fmt.Sprintf("✓ saved %s (%d bytes) as %s", tenant, outcome.SizeBytes, outcome.BlobKey))
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "maximum time to wait for the upload (0 waits for the store's own timeout)")
	return cmd
}

type extractResult struct {
	TenantKey string `json:"tenantKey"`
	Dest      string `json:"dest"`
}

// NewExtractCommand restores a stored session into a local file.
func NewExtractCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <tenant> <dest.zip>",
		Short: "Restore a stored session bundle to a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.archive(cmd.Context())
			if err != nil {
				return err
			}
			tenant := tenantArg(args[0])
			res := extractResult{TenantKey: tenant, Dest: args[1]}
			if !a.Extract(cmd.Context(), tenant, args[1]) {
				return rootOpts.formatter(cmd).Failure("EXTRACT_FAILED", fmt.Sprintf("could not extract session for %s", tenant), res)
			}
			return rootOpts.formatter(cmd).Success(res, fmt.Sprintf("✓ extracted %s to %s", tenant, args[1]))
		},
	}
}

type deleteResult struct {
	TenantKey string `json:"tenantKey"`
	Deleted   bool   `json:"deleted"`
}

// NewDeleteCommand removes every stored trace of a tenant's session.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <tenant>",
		Short: "Delete a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.archive(cmd.Context())
			if err != nil {
				return err
			}
			tenant := tenantArg(args[0])
			if err := a.Delete(cmd.Context(), tenant); err != nil {
				return rootOpts.formatter(cmd).Failure("DELETE_FAILED", fmt.Sprintf("delete %s: %v", tenant, err), deleteResult{TenantKey: tenant})
			}
			return rootOpts.formatter(cmd).Success(deleteResult{TenantKey: tenant, Deleted: true}, fmt.Sprintf("✓ deleted session for %s", tenant))
		},
	}
}

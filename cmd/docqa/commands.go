package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	appsvc "docqa/internal/app"
	"docqa/internal/bootstrap"
)

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Store and index local files, as if uploaded",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				var failed int
				for _, path := range args {
					res, err := ingestFile(ctx, app, path)
					if err != nil {
						failed++
						logger(app).Error("ingest failed", "path", path, "error", err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks\n", res.Filename, res.Chunks)
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d files failed", failed, len(args))
				}
				return nil
			})
		},
	}
}

func ingestFile(ctx context.Context, app *bootstrap.App, path string) (*appsvc.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return app.Documents.Upload(ctx, filepath.Base(path), f)
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer from the closest chunks without recording history",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				answer, err := app.Query.Ask(ctx, question)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), answer)
				return nil
			})
		},
	}
}

func queryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <question>",
		Short: "Answer with cited sources and record the question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				answer, err := app.Query.Answer(ctx, question)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), answer)
			})
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Remove index entries whose uploaded file no longer exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				res, err := app.Documents.Reconcile(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/prompta/internal/api"
	"github.com/jackzampolin/prompta/internal/bundle"
)

func newImportCommand(newClient func() *api.Client) *cobra.Command {
	var bundleFile string
	var exts []string
	var public bool
	var concurrency int
	var opts bundle.RemoteOptions
	cmd := &cobra.Command{
		Use:   "import [dir]",
		Short: "Upload a directory of prompt files or a download bundle",
		Long: `Upload prompt files from a directory, or the prompts of a bundle
written by "prompta api prompts download --out".

Directories are walked recursively. Files matched by .gitignore or
.promptaignore at the top of the directory are skipped. Each file's
path relative to the directory becomes its location, and its name
without extension becomes the prompt name.

A file whose location matches one of your prompts adds a new version
when its content changed. Anything else becomes a new prompt.

Examples:
  prompta api prompts import ./prompts
  prompta api prompts import ./prompts --project tools --ext .md
  prompta api prompts import --bundle prompts.json --dry-run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var items []bundle.Item
			switch {
			case bundleFile != "" && len(args) > 0:
				return fmt.Errorf("give a directory or --bundle, not both")
			case bundleFile != "":
				b, err := bundle.ReadFile(bundleFile)
				if err != nil {
					return err
				}
				items = bundle.FromBundle(b)
			case len(args) == 1:
				var err error
				if items, err = bundle.Collect(args[0], exts); err != nil {
					return err
				}
			default:
				return fmt.Errorf("a directory or --bundle is required")
			}
			if public {
				for i := range items {
					items[i].IsPublic = true
				}
			}

			ctx := cmd.Context()
			upload, err := bundle.RemoteUploader(ctx, newClient(), opts)
			if err != nil {
				return err
			}
			results, err := bundle.Upload(ctx, items, concurrency, upload)
			if err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if r.Outcome == bundle.OutcomeFailed {
					failed++
				}
			}
			if api.IsStructuredOutput() {
				if err := api.Output(results); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				for _, r := range results {
					if r.Error != "" {
						fmt.Fprintf(out, "%-9s %s: %s\n", r.Outcome, r.Location, r.Error)
						continue
					}
					fmt.Fprintf(out, "%-9s %s\n", r.Outcome, r.Location)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d prompts failed to import", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bundleFile, "bundle", "", "Import a JSON download bundle")
	cmd.Flags().StringSliceVar(&exts, "ext", bundle.DefaultExtensions, "File extensions to import")
	cmd.Flags().StringVarP(&opts.ProjectName, "project", "p", "", "File new prompts under this project")
	cmd.Flags().StringVarP(&opts.CommitMessage, "message", "m", "", "Commit message for written versions")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Report what would change without writing")
	cmd.Flags().BoolVar(&public, "public", false, "Make new prompts public")
	cmd.Flags().IntVar(&concurrency, "concurrency", bundle.DefaultConcurrency, "Parallel uploads")
	return cmd
}

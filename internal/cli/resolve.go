package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"bibkeys/internal/config"
	"bibkeys/internal/keys"
	"bibkeys/internal/services"

	"github.com/spf13/cobra"
)

// collectPaths expands file and directory arguments. A nil result means the
// command should read stdin.
func collectPaths(args, patterns []string) ([]string, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		return nil, nil
	}
	collector, err := services.NewFileCollector(patterns)
	if err != nil {
		return nil, err
	}
	return collector.Collect(args)
}

// writeOutput writes content to path, or to the command's stdout for "" or "-".
func writeOutput(cmd *cobra.Command, path, content string) error {
	if path == "" || path == "-" {
		_, err := io.WriteString(cmd.OutOrStdout(), content)
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fileService returns a BibTeX service that works on files only.
func fileService(cfg *config.Config) *services.DefaultBibTexService {
	return services.NewBibTexService(nil, cfg.Keys)
}

func (a *app) newResolveCmd() *cobra.Command {
	var (
		output   string
		patterns []string
		report   bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [file|dir ...]",
		Short: "Rename duplicate citation keys",
		Long: `Read one or more BibTeX files (or stdin) and write them back with every
citation key made unique. The first entry using a key keeps it; later ones
get a suffix. Directories are searched for files matching --match.`,
		Example: `  bibkeys resolve refs.bib -o refs.resolved.bib
  cat refs.bib | bibkeys resolve --style alpha`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			ctx, logger := a.commandContext(cmd, cfg)
			svc := fileService(cfg)

			paths, err := collectPaths(args, patterns)
			if err != nil {
				return err
			}

			var bib string
			var renames []keys.Rename
			if paths == nil {
				result, err := svc.Dedupe(ctx, cmd.InOrStdin())
				if err != nil {
					return err
				}
				bib, renames = result.BibTeX, result.Renames
			} else {
				merged, mergeReport, err := svc.MergeFiles(ctx, paths, false)
				if err != nil {
					return err
				}
				bib, renames = merged, mergeReport.Renames
			}

			for _, rn := range renames {
				logger.Info().Str("from", rn.From).Str("to", rn.To).Msg("renamed")
			}

			if report {
				return writeJSON(cmd, renames)
			}
			return writeOutput(cmd, output, bib)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringSliceVar(&patterns, "match", nil, "glob patterns for files inside directories (default: **.bib)")
	cmd.Flags().BoolVar(&report, "report", false, "print the renames as JSON instead of BibTeX")
	return cmd
}

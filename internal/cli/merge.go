package cli

import (
	"github.com/spf13/cobra"
)

func (a *app) newMergeCmd() *cobra.Command {
	var (
		output        string
		patterns      []string
		dropIdentical bool
	)

	cmd := &cobra.Command{
		Use:   "merge file|dir [file|dir ...]",
		Short: "Merge BibTeX files into one with unique keys",
		Long: `Concatenate the given BibTeX files in order and resolve key collisions.
With --drop-identical, entries that repeat an earlier entry exactly (same
key, type and fields) are dropped instead of renamed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			ctx, logger := a.commandContext(cmd, cfg)

			paths, err := collectPaths(args, patterns)
			if err != nil {
				return err
			}

			merged, report, err := fileService(cfg).MergeFiles(ctx, paths, dropIdentical)
			if err != nil {
				return err
			}
			for _, rn := range report.Renames {
				logger.Info().Str("from", rn.From).Str("to", rn.To).Msg("renamed")
			}

			return writeOutput(cmd, output, merged)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringSliceVar(&patterns, "match", nil, "glob patterns for files inside directories (default: **.bib)")
	cmd.Flags().BoolVar(&dropIdentical, "drop-identical", false, "drop exact repeats instead of renaming them")
	return cmd
}

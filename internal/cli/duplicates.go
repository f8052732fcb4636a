package cli

import (
	"fmt"

	"bibkeys/internal/keys"

	"github.com/spf13/cobra"
)

func (a *app) newDuplicatesCmd() *cobra.Command {
	var (
		format   string
		patterns []string
	)

	cmd := &cobra.Command{
		Use:   "duplicates [file|dir ...]",
		Short: "List citation keys used more than once",
		Long: `Report every citation key shared by two or more entries across the
given files (or stdin). Exits non-zero when duplicates exist, so it can
guard a CI step.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("unknown format %q (want text or json)", format)
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			ctx, _ := a.commandContext(cmd, cfg)
			svc := fileService(cfg)

			paths, err := collectPaths(args, patterns)
			if err != nil {
				return err
			}

			var groups []keys.DuplicateGroup
			if paths == nil {
				groups, err = svc.Duplicates(ctx, cmd.InOrStdin())
			} else {
				groups, err = svc.DuplicatesInFiles(ctx, paths)
			}
			if err != nil {
				return err
			}

			if format == "json" {
				if err := writeJSON(cmd, groups); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				for _, g := range groups {
					fmt.Fprintf(out, "%s (%d)\n", g.Key, len(g.References))
					for _, ref := range g.References {
						title := ref.Fields["title"]
						if ref.FilePath != "" && ref.FilePath != "-" {
							fmt.Fprintf(out, "  @%s  %s  [%s]\n", ref.EntryType, title, ref.FilePath)
						} else {
							fmt.Fprintf(out, "  @%s  %s\n", ref.EntryType, title)
						}
					}
				}
			}

			if len(groups) > 0 {
				return fmt.Errorf("%w: %d", ErrDuplicatesFound, len(groups))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	cmd.Flags().StringSliceVar(&patterns, "match", nil, "glob patterns for files inside directories (default: **.bib)")
	return cmd
}

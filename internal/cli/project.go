package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func (a *app) newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage reference projects stored in the database",
	}

	cmd.AddCommand(
		a.newProjectCreateCmd(),
		a.newProjectListCmd(),
		a.newProjectDeleteCmd(),
		a.newProjectImportCmd(),
		a.newProjectExportCmd(),
		a.newProjectAttachCmd(),
	)
	return cmd
}

func (a *app) newProjectCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create NAME",
		Short: "Create an empty project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			projects, _, closeDB, err := a.openServices(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			project, err := projects.CreateProject(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created project %s (%s)\n", project.Name, project.ID)
			return nil
		},
	}
}

func (a *app) newProjectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			projects, _, closeDB, err := a.openServices(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			list, err := projects.ListProjects()
			if err != nil {
				return err
			}
			for _, p := range list {
				fmt.Fprintln(cmd.OutOrStdout(), p.Name)
			}
			return nil
		},
	}
}

func (a *app) newProjectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a project and its references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			projects, _, closeDB, err := a.openServices(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := projects.DeleteProject(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted project %s\n", args[0])
			return nil
		},
	}
}

func (a *app) newProjectImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import NAME FILE [FILE ...]",
		Short: "Import BibTeX files into a project",
		Long: `Import entries into a project. Keys already in the project never change;
incoming entries that collide are renamed.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			ctx, _ := a.commandContext(cmd, cfg)
			_, bib, closeDB, err := a.openServices(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			for _, path := range args[1:] {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				result, err := bib.ImportBibTeX(ctx, args[0], bytes.NewReader(content))
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: imported %d references, renamed %d\n", path, len(result.References), len(result.Renames))
				for _, rn := range result.Renames {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s -> %s\n", rn.From, rn.To)
				}
			}
			return nil
		},
	}
}

func (a *app) newProjectExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export NAME",
		Short: "Export a project as BibTeX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			ctx, _ := a.commandContext(cmd, cfg)
			_, bib, closeDB, err := a.openServices(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			var out bytes.Buffer
			if err := bib.ExportBibTeX(ctx, args[0], &out); err != nil {
				return err
			}
			return writeOutput(cmd, output, out.String())
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

func (a *app) newProjectAttachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach NAME KEY FILE",
		Short: "Copy a paper file into the project and link it to a reference",
		Long: `Copy FILE into the project's storage directory (storage.dir) under a
standardized LastName_Year_Title.pdf name and record it on the reference.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			projects, _, closeDB, err := a.openServices(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			src, err := os.Open(args[2])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[2], err)
			}
			defer src.Close()

			reference, err := projects.AttachFile(args[0], args[1], src)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "attached %s to %s\n", reference.FilePath, reference.Key)
			return nil
		},
	}
}

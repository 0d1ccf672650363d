package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/catstoryflow/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.Projects.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printProject(cmd.OutOrStdout(), p)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		projects, err := a.Projects.List(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tSIZE\tSTATUS\tPROGRESS\tCREATED")
		for _, p := range projects {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d%%\t%s\n",
				p.ID, p.Title, p.HumanFileSize(), p.Status.Display(), p.Status.Progress(), humanize.Time(p.CreatedAt))
		}
		return tw.Flush()
	},
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate <id>",
	Short: "Render the PDF of a finished project again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.Projects.Regenerate(cmd.Context(), args[0]); err != nil {
			return err
		}
		if err := a.Queue.Wait(cmd.Context()); err != nil {
			return err
		}
		p, err := a.Projects.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printProject(cmd.OutOrStdout(), p)
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Dispatch the next stage of a stalled project",
	Long: `Resume picks up a project that rests between stages because the next
stage was never dispatched. A project left in an active status by a run
that died is marked failed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.Projects.Resume(cmd.Context(), args[0]); err != nil {
			return err
		}
		if err := a.Queue.Wait(cmd.Context()); err != nil {
			return err
		}
		p, err := a.Projects.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printProject(cmd.OutOrStdout(), p)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a project and its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Projects.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted project %s\n", args[0])
		return nil
	},
}

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Write the rendered PDF of a completed project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := a.Projects.PDF(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := exportOut
		if out == "" {
			out = args[0] + ".pdf"
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", out, humanize.IBytes(uint64(len(data))))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "output file (default: <id>.pdf)")
}

func printProject(w io.Writer, p *models.Project) {
	fmt.Fprintf(w, "ID:       %s\n", p.ID)
	fmt.Fprintf(w, "Title:    %s\n", p.Title)
	fmt.Fprintf(w, "File:     %s (%s, %s)\n", p.OriginalFilename, p.FileType, p.HumanFileSize())
	fmt.Fprintf(w, "Status:   %s (%d%%)\n", p.Status.Display(), p.Status.Progress())
	if p.PDFPath != "" {
		fmt.Fprintf(w, "PDF:      %s\n", p.PDFPath)
	}
	if p.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:    %s\n", p.ErrorMessage)
	}
	fmt.Fprintf(w, "Updated:  %s\n", humanize.Time(p.UpdatedAt))
}

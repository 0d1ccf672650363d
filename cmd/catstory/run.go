package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/catstoryflow/internal/pipeline"
)

var (
	runTitle string
	runSync  bool
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Upload a document and start the pipeline",
	Long: `Upload a DOCX, PPTX or PDF document (10 MiB at most) and start processing.

Without --sync the command returns once the project is created and the
first stage is queued. Stages still running when the process exits are
abandoned, so use --sync for anything but a smoke test.

Examples:
  catstory run report.docx
  catstory run slides.pptx --title "Team Notes" --sync
  catstory run paper.pdf --narrator echo --sync`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.Projects.Upload(cmd.Context(), pipeline.Upload{
			Filename: filepath.Base(args[0]),
			Title:    runTitle,
			Data:     data,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created project %s (%s, %s)\n", p.ID, p.Title, p.HumanFileSize())
		if !runSync {
			return nil
		}

		if err := a.Queue.Wait(cmd.Context()); err != nil {
			return err
		}
		p, err = a.Projects.Get(cmd.Context(), p.ID)
		if err != nil {
			return err
		}
		printProject(cmd.OutOrStdout(), p)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runTitle, "title", "", "project title (default: derived from the file name)")
	runCmd.Flags().BoolVar(&runSync, "sync", false, "wait for the pipeline to finish")
}

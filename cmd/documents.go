package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/auction-docs/internal/archive"
	"github.com/sells-group/auction-docs/internal/model"
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Inspect downloaded documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents under the output directory",
	RunE: func(_ *cobra.Command, _ []string) error {
		arc := archive.New(cfg.Pipeline.OutputDir, cfg.Pipeline.Source, cfg.Pipeline.Ext)
		files, err := arc.List()
		if err != nil {
			return eris.Wrap(err, "documents list")
		}
		if len(files) == 0 {
			fmt.Fprintln(os.Stderr, "No documents found.")
			return nil
		}
		formatDocumentsList(os.Stdout, files)
		return nil
	},
}

func formatDocumentsList(w io.Writer, files []model.StoredFile) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSOURCE\tSIZE\tCREATED")
	var total int64
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			f.Name, f.Source, humanize.IBytes(uint64(f.Size)), f.CreatedAt.Local().Format(time.DateTime))
		total += f.Size
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%d documents, %s\n", len(files), humanize.IBytes(uint64(total)))
}

func init() {
	documentsCmd.AddCommand(documentsListCmd)
	rootCmd.AddCommand(documentsCmd)
}

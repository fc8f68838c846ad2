package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"media-proxy/internal/models"
)

func init() {
	rootCmd.AddCommand(formatsCmd)
	formatsCmd.Flags().Bool("json", false, "Print the full response as JSON instead of a table")
}

var formatsCmd = &cobra.Command{
	Use:   "formats <url>",
	Short: "List the downloadable formats of a media page",
	Args:  cobra.ExactArgs(1),
	RunE:  runFormats,
}

func runFormats(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	svc, err := buildServices(globalConfig)
	if err != nil {
		return err
	}
	defer svc.Close()

	resp, err := svc.formats.List(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	return printFormats(os.Stdout, resp)
}

func printFormats(w io.Writer, resp models.FormatsResponse) error {
	fmt.Fprintf(w, "%s\n", resp.Title)
	if resp.Thumbnail != "" {
		fmt.Fprintf(w, "Thumbnail: %s\n", resp.Thumbnail)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tEXT\tRESOLUTION\tSIZE\tBITRATE\tCODECS")
	for _, f := range resp.Formats {
		size := "-"
		if f.Size != nil {
			size = f.Size.MB
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			f.Code, f.Extension, f.Resolution, size, orDash(f.Bitrate), orDash(f.Codecs))
	}
	return tw.Flush()
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

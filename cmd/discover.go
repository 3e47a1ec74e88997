package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var discoverInstitution string

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List the auction events of one institution without downloading",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if discoverInstitution == "" {
			return eris.New("--institution is required")
		}

		env, err := initScrapeEnv(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer env.Close()

		urls, err := env.Pipeline.DiscoverEvents(cmd.Context(), discoverInstitution)
		if err != nil {
			return err
		}
		if len(urls) == 0 {
			fmt.Fprintln(os.Stderr, "No events found.")
			return nil
		}
		for _, u := range urls {
			fmt.Fprintln(os.Stdout, u)
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverInstitution, "institution", "", "institution name (e.g. bradesco)")
	rootCmd.AddCommand(discoverCmd)
}

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/research-token/internal/catalog"
	"github.com/ZanzyTHEbar/research-token/internal/scoring"
	"github.com/ZanzyTHEbar/research-token/internal/types"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute the Research Impact Score of raw metrics",
	Long: `score prints the Research Impact Score, its weighted breakdown and the
tokenization eligibility of the given metrics as JSON. Out-of-range values are
clamped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var m scoring.PublicationMetrics
		var err error
		if m.NoveltyScore, err = cmd.Flags().GetFloat64("novelty"); err != nil {
			return err
		}
		if m.CitationCount, err = cmd.Flags().GetFloat64("citations"); err != nil {
			return err
		}
		if m.PeerReviewCount, err = cmd.Flags().GetFloat64("peer-reviews"); err != nil {
			return err
		}
		if m.JournalImpactFactor, err = cmd.Flags().GetFloat64("jif"); err != nil {
			return err
		}
		amount, err := cmd.Flags().GetFloat64("amount")
		if err != nil {
			return err
		}

		impact := scoring.ComputeImpactScore(m)
		out := struct {
			scoring.ImpactScore
			TokenAmount *float64 `json:"token_amount,omitempty"`
		}{ImpactScore: impact}
		if cmd.Flags().Changed("amount") {
			tokens := scoring.ComputeTokenAmount(impact.Score, amount)
			out.TokenAmount = &tokens
		}
		return writeJSON(cmd.OutOrStdout(), out)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the publication catalog",
	Long: `search matches the query against titles, abstracts, authors and keywords
of the catalog and prints the matching publications with their scores as JSON.
An empty query lists the whole catalog.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		idx, err := catalog.Open(cfg.Catalog.Path)
		if err != nil {
			return err
		}

		var filters types.SearchFilters
		if filters.Year, err = cmd.Flags().GetInt("year"); err != nil {
			return err
		}
		if filters.Journal, err = cmd.Flags().GetString("journal"); err != nil {
			return err
		}
		if filters.Author, err = cmd.Flags().GetString("author"); err != nil {
			return err
		}
		if filters.Topic, err = cmd.Flags().GetString("topic"); err != nil {
			return err
		}
		page, err := cmd.Flags().GetInt("page")
		if err != nil {
			return err
		}

		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		resp, err := idx.Search(cmd.Context(), query, filters, catalog.Page{Number: page})
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), resp)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of research-token",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "research-token %s\n", version)
	},
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	scoreCmd.Flags().Float64("novelty", 0, "novelty score (0-100)")
	scoreCmd.Flags().Float64("citations", 0, "citation count")
	scoreCmd.Flags().Float64("peer-reviews", 0, "peer review count")
	scoreCmd.Flags().Float64("jif", 0, "journal impact factor")
	scoreCmd.Flags().Float64("amount", 0, "funding amount to estimate tokens for")

	searchCmd.Flags().Int("year", 0, "publication year")
	searchCmd.Flags().String("journal", "", "filter by journal")
	searchCmd.Flags().String("author", "", "filter by author name")
	searchCmd.Flags().String("topic", "", "filter by keyword or topic")
	searchCmd.Flags().Int("page", 1, "result page")

	rootCmd.AddCommand(scoreCmd, searchCmd, versionCmd)
}

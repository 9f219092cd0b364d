package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/lookalike/internal/constants"
	"github.com/kozaktomas/lookalike/internal/embedding"
	"github.com/kozaktomas/lookalike/internal/match"
	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Run a lookup locally and print the matches",
	Long: `Run a lookup against the configured index and metadata without starting
the web server.

The query is either a precomputed embedding (--vector, a JSON file holding an
array of numbers or an object with an "embedding" array) or a photo (--image)
that is sent to the embedding service first.

Examples:
  # Look up a stored embedding
  lookalike match --vector face.json

  # Look up a photo, five neighbors, keep matches above 70%
  lookalike match --image me.jpg -k 5 --threshold 70

  # Output as JSON
  lookalike match --vector face.json --json`,
	Args: cobra.NoArgs,
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("vector", "", "JSON file with the query embedding")
	matchCmd.Flags().String("image", "", "Photo to embed with the embedding service")
	matchCmd.Flags().IntP("neighbors", "k", constants.DefaultNeighbors, "Number of nearest neighbors to consider")
	matchCmd.Flags().Int("threshold", constants.DefaultSimilarityThreshold, "Keep matches with similarity strictly above this percentage")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
	matchCmd.MarkFlagsMutuallyExclusive("vector", "image")
	matchCmd.MarkFlagsOneRequired("vector", "image")
}

// readVectorFile accepts either [0.1, ...] or {"embedding": [0.1, ...]}.
func readVectorFile(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vector file: %w", err)
	}
	data = bytes.TrimSpace(data)

	var vector []float32
	if len(data) > 0 && data[0] == '[' {
		err = json.Unmarshal(data, &vector)
	} else {
		var wrapped struct {
			Embedding []float32 `json:"embedding"`
		}
		err = json.Unmarshal(data, &wrapped)
		vector = wrapped.Embedding
	}
	if err != nil {
		return nil, fmt.Errorf("parsing vector file %s: %w", path, err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector file %s holds no embedding", path)
	}
	return vector, nil
}

// embedImage sends a photo to the embedding service and returns its single face.
func embedImage(cmd *cobra.Command, url, path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	prepared, err := embedding.PrepareImage(data, constants.MaxImageSize)
	if err != nil {
		return nil, err
	}
	resp, err := embedding.NewClient(url).ComputeFaceEmbeddings(cmd.Context(), prepared)
	if err != nil {
		return nil, err
	}
	return embedding.SelectSingleFace(resp)
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	k := mustGetInt(cmd, "neighbors")
	threshold := mustGetInt(cmd, "threshold")
	jsonOutput := mustGetBool(cmd, "json")

	var vector []float32
	if path := mustGetString(cmd, "vector"); path != "" {
		vector, err = readVectorFile(path)
	} else {
		vector, err = embedImage(cmd, cfg.Embedding.URL, mustGetString(cmd, "image"))
	}
	if err != nil {
		return err
	}

	data, err := loadLookupData(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	matches, err := data.pipeline.FindMatches(vector, k, threshold)
	if match.IsNoMatch(err) {
		if jsonOutput {
			return outputJSON([]match.Match{})
		}
		fmt.Printf("No match above %d%% among the %d nearest faces.\n", threshold, k)
		return nil
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(matches)
	}
	printMatches(matches)
	return nil
}

func printMatches(matches []match.Match) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tNAME\tSIMILARITY\tDISTANCE\tPHOTO")
	for i, m := range matches {
		fmt.Fprintf(w, "%d\t%d\t%s\t%d%%\t%.4f\t%s\n", i+1, m.ID, m.Name(), m.Similarity, m.Distance, m.FullPhotoFilename)
	}
	w.Flush()
}

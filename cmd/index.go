package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/lookalike/internal/constants"
	"github.com/kozaktomas/lookalike/internal/index"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect, verify and build the face vector index",
}

var indexInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print backend, metric, dimension and vector count",
	Args:  cobra.NoArgs,
	RunE:  runIndexInspect,
}

var indexVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that every stored vector finds itself and has metadata",
	Long: `Load the index and metadata, then query every stored vector with k=1.

A vector passes when it is its own nearest neighbor (or an exact duplicate of
it is) and its id has a metadata record. The command exits non-zero when any
vector fails.`,
	Args: cobra.NoArgs,
	RunE: runIndexVerify,
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Write an index file from a JSON list of embeddings",
	Long: `Write a flat or HNSW index file from a JSON file holding an array of
embeddings. The array position of each embedding becomes its id.
Compression applies to the flat format only.

Examples:
  lookalike index build --vectors embeddings.json --out data/faces.index
  lookalike index build --vectors embeddings.json --out faces.index --compression zstd --metric cosine
  lookalike index build --vectors embeddings.json --out faces.hnsw --backend hnsw`,
	Args: cobra.NoArgs,
	RunE: runIndexBuild,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexInspectCmd)
	indexCmd.AddCommand(indexVerifyCmd)
	indexCmd.AddCommand(indexBuildCmd)

	indexInspectCmd.Flags().Bool("json", false, "Output as JSON")
	indexVerifyCmd.Flags().Bool("json", false, "Output as JSON")

	indexBuildCmd.Flags().String("vectors", "", "JSON file with an array of embeddings")
	indexBuildCmd.Flags().String("out", "", "Output index file")
	indexBuildCmd.Flags().String("metric", "", "Distance metric (defaults to INDEX_METRIC)")
	indexBuildCmd.Flags().String("compression", "none", "Payload compression: none, zstd or lz4")
	indexBuildCmd.Flags().String("backend", "flat", "Output format: flat or hnsw")
	_ = indexBuildCmd.MarkFlagRequired("vectors")
	_ = indexBuildCmd.MarkFlagRequired("out")
}

func runIndexInspect(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	data, err := loadLookupData(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	info := data.index.Info()
	if mustGetBool(cmd, "json") {
		return outputJSON(struct {
			index.Info
			Records int `json:"records"`
		}{info, data.store.Len()})
	}

	fmt.Printf("Backend:    %s\n", info.Backend)
	fmt.Printf("Metric:     %s\n", info.Metric)
	fmt.Printf("Dimension:  %d\n", info.Dimension)
	fmt.Printf("Vectors:    %d\n", info.Count)
	fmt.Printf("Records:    %d\n", data.store.Len())
	if info.Path != "" {
		fmt.Printf("Path:       %s\n", info.Path)
	}
	return nil
}

// VerifyResult summarizes an index verify run.
type VerifyResult struct {
	Checked         int        `json:"checked"`
	SelfMissed      int        `json:"self_missed"`
	MetadataMissing int        `json:"metadata_missing"`
	FailedSample    []index.ID `json:"failed_sample,omitempty"`
}

const maxVerifySample = 20

// errVerifyFailed marks a verify run that found problems.
var errVerifyFailed = errors.New("index verification failed")

func runIndexVerify(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	// Missing metadata is reported per id below instead of failing the load.
	cfg.Index.SkipCrossCheck = true
	jsonOutput := mustGetBool(cmd, "json")

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	data, err := loadLookupData(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	count := data.index.Len()
	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(count,
			progressbar.OptionSetDescription("Verifying index"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("vectors"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	result := verifyIndex(data.index, data.store, func(done int) {
		if bar != nil {
			bar.Add(done)
		}
	})
	if bar != nil {
		bar.Finish()
	}

	if jsonOutput {
		if err := outputJSON(result); err != nil {
			return err
		}
	} else {
		fmt.Println("\nVerify complete!")
		fmt.Printf("  Vectors checked:   %d\n", result.Checked)
		fmt.Printf("  Self-recall miss:  %d\n", result.SelfMissed)
		fmt.Printf("  Metadata missing:  %d\n", result.MetadataMissing)
		if len(result.FailedSample) > 0 {
			fmt.Printf("  First failed ids:  %v\n", result.FailedSample)
		}
	}

	if result.SelfMissed > 0 || result.MetadataMissing > 0 {
		return errVerifyFailed
	}
	return nil
}

// vectorSource is the part of the index verify needs.
type vectorSource interface {
	Len() int
	Vector(id index.ID) ([]float32, bool)
	Query(vector []float32, k int) ([]index.ID, []float64, error)
}

// recordSource reports whether an id has metadata.
type recordSource interface {
	Has(id index.ID) bool
}

// verifyIndex checks self-recall and metadata presence for every id.
// progress is called with the number of ids checked since the last call.
func verifyIndex(idx vectorSource, records recordSource, progress func(int)) VerifyResult {
	var result VerifyResult
	count := idx.Len()
	pending := 0

	fail := func(id index.ID) {
		if len(result.FailedSample) < maxVerifySample {
			result.FailedSample = append(result.FailedSample, id)
		}
	}

	for i := range count {
		id := index.ID(i)
		result.Checked++

		ok := false
		if vec, found := idx.Vector(id); found {
			ids, dists, err := idx.Query(vec, 1)
			// An exact duplicate with a lower id wins the tie and still counts.
			ok = err == nil && len(ids) == 1 && (ids[0] == id || dists[0] == 0)
		}
		if !ok {
			result.SelfMissed++
		}
		hasRecord := records.Has(id)
		if !hasRecord {
			result.MetadataMissing++
		}
		if !ok || !hasRecord {
			fail(id)
		}

		pending++
		if pending == constants.VerifyBatchSize {
			progress(pending)
			pending = 0
		}
	}
	if pending > 0 {
		progress(pending)
	}
	return result
}

// readVectorsFile reads a JSON array of embeddings.
func readVectorsFile(path string) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening vectors file: %w", err)
	}
	defer f.Close()

	var vectors [][]float32
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("parsing vectors file %s: %w", path, err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("vectors file %s is empty", path)
	}
	return vectors, nil
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	metricName := mustGetString(cmd, "metric")
	if metricName == "" {
		metricName = cfg.Index.Metric
	}
	metric, err := index.ParseMetric(metricName)
	if err != nil {
		return err
	}
	compression, err := index.ParseCompression(mustGetString(cmd, "compression"))
	if err != nil {
		return err
	}
	backend, err := index.ParseBackend(mustGetString(cmd, "backend"))
	if err != nil {
		return err
	}
	if backend == index.BackendPostgres {
		return fmt.Errorf("%w: postgres indexes are loaded from a table, not built", index.ErrUnknownBackend)
	}

	vectors, err := readVectorsFile(mustGetString(cmd, "vectors"))
	if err != nil {
		return err
	}
	dim := len(vectors[0])

	out := mustGetString(cmd, "out")
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating index file: %w", err)
	}
	w := bufio.NewWriter(f)
	if backend == index.BackendHNSW {
		err = index.WriteHNSW(w, metric, dim, vectors)
	} else {
		err = index.WriteFlat(w, metric, dim, vectors, compression)
	}
	if err != nil {
		f.Close()
		os.Remove(out)
		return fmt.Errorf("writing index: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(out)
		return fmt.Errorf("writing index: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing index file: %w", err)
	}

	if backend == index.BackendHNSW {
		fmt.Printf("Wrote HNSW graph with %d vectors (dim %d, %s) to %s\n", len(vectors), dim, metric, out)
		return nil
	}
	fmt.Printf("Wrote %d vectors (dim %d, %s, %s) to %s\n", len(vectors), dim, metric, compression, out)
	return nil
}

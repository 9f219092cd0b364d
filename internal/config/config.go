package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Default values used when the corresponding environment variable is unset.
const (
	DefaultDataFolder     = "./data"
	DefaultIndexFile      = "faces.index"
	DefaultMetadataFile   = "stars_data.json"
	DefaultIndexMetric    = "euclidean"
	DefaultIndexDim       = 128
	DefaultEmbeddingURL   = "http://localhost:8000"
	DefaultCacheDir       = "./cache"
	DefaultRateLimitRPS   = 5.0
	DefaultRateLimitBurst = 10
)

type Config struct {
	SecretAPIKey   string
	DataFolderPath string
	Index          IndexConfig
	Metadata       MetadataConfig
	Embedding      EmbeddingConfig
	Storage        StorageConfig
	Web            WebConfig
	Log            LogConfig
}

type IndexConfig struct {
	Path           string // file path, s3://bucket/key, or a PostgreSQL DSN for the postgres backend
	Backend        string // flat (default), hnsw or postgres
	Metric         string // euclidean (default), euclidean_squared or cosine
	Dim            int    // defaults to 128
	Table          string // table for the postgres backend
	EfSearch       int    // HNSW candidate pool size (0 = library default)
	ParallelScan   int    // vector count from which flat scans are sharded (0 = default)
	SkipCrossCheck bool   // skip the startup index/metadata cross-check
}

type MetadataConfig struct {
	Path   string // .json or .yaml file, or s3://bucket/key
	Driver string // postgres or mysql; when set, metadata is read from SQL instead of Path
	DSN    string
	Table  string
}

type EmbeddingConfig struct {
	URL string // defaults to http://localhost:8000
}

type StorageConfig struct {
	Endpoint  string // S3-compatible endpoint (host:port) for s3:// paths
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	CacheDir  string // local directory for downloaded artifacts
}

type WebConfig struct {
	Host           string
	Port           int
	RateLimitRPS   float64 // per-client requests per second on lookup endpoints (0 disables)
	RateLimitBurst int
	AllowedOrigins []string // extra CORS origins; localhost is always allowed
}

type LogConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// PhotosDir returns the directory served under /static.
func (c *Config) PhotosDir() string {
	return filepath.Join(c.DataFolderPath, "photos")
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a non-negative float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean ("1", "true", "yes").
func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// envList splits a comma-separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	dataFolder := envString("DATA_FOLDER_PATH", DefaultDataFolder)

	return &Config{
		SecretAPIKey:   os.Getenv("SECRET_API_KEY"),
		DataFolderPath: dataFolder,
		Index: IndexConfig{
			Path:           envString("INDEX_PATH", filepath.Join(dataFolder, DefaultIndexFile)),
			Backend:        envString("INDEX_BACKEND", "flat"),
			Metric:         envString("INDEX_METRIC", DefaultIndexMetric),
			Dim:            envInt("INDEX_DIM", DefaultIndexDim),
			Table:          os.Getenv("INDEX_TABLE"),
			EfSearch:       envInt("INDEX_EF_SEARCH", 0),
			ParallelScan:   envInt("INDEX_PARALLEL_SCAN", 0),
			SkipCrossCheck: envBool("INDEX_SKIP_CROSSCHECK"),
		},
		Metadata: MetadataConfig{
			Path:   envString("METADATA_PATH", filepath.Join(dataFolder, DefaultMetadataFile)),
			Driver: os.Getenv("METADATA_DRIVER"),
			DSN:    os.Getenv("METADATA_DSN"),
			Table:  os.Getenv("METADATA_TABLE"),
		},
		Embedding: EmbeddingConfig{
			URL: envString("EMBEDDING_URL", DefaultEmbeddingURL),
		},
		Storage: StorageConfig{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			UseSSL:    envBool("S3_USE_SSL"),
			Region:    os.Getenv("S3_REGION"),
			CacheDir:  envString("CACHE_DIR", DefaultCacheDir),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			RateLimitRPS:   envFloat("RATE_LIMIT_RPS", DefaultRateLimitRPS),
			RateLimitBurst: envInt("RATE_LIMIT_BURST", DefaultRateLimitBurst),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Level:       envString("LOG_LEVEL", "info"),
			Development: envBool("LOG_DEVELOPMENT"),
		},
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SECRET_API_KEY", "DATA_FOLDER_PATH", "INDEX_PATH", "INDEX_BACKEND", "INDEX_METRIC",
		"INDEX_DIM", "INDEX_TABLE", "INDEX_EF_SEARCH", "INDEX_PARALLEL_SCAN", "INDEX_SKIP_CROSSCHECK",
		"METADATA_PATH", "METADATA_DRIVER", "METADATA_DSN", "METADATA_TABLE", "EMBEDDING_URL",
		"S3_ENDPOINT", "S3_USE_SSL", "CACHE_DIR", "WEB_HOST", "WEB_PORT",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "LOG_LEVEL", "LOG_DEVELOPMENT", "WEB_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.DataFolderPath != DefaultDataFolder {
		t.Errorf("expected data folder %q, got %q", DefaultDataFolder, cfg.DataFolderPath)
	}
	if want := filepath.Join(DefaultDataFolder, "faces.index"); cfg.Index.Path != want {
		t.Errorf("expected index path %q, got %q", want, cfg.Index.Path)
	}
	if want := filepath.Join(DefaultDataFolder, "stars_data.json"); cfg.Metadata.Path != want {
		t.Errorf("expected metadata path %q, got %q", want, cfg.Metadata.Path)
	}
	if cfg.Index.Backend != "flat" {
		t.Errorf("expected backend 'flat', got '%s'", cfg.Index.Backend)
	}
	if cfg.Index.Metric != "euclidean" {
		t.Errorf("expected metric 'euclidean', got '%s'", cfg.Index.Metric)
	}
	if cfg.Index.Dim != 128 {
		t.Errorf("expected index dim 128, got %d", cfg.Index.Dim)
	}
	if cfg.Index.SkipCrossCheck {
		t.Error("expected cross-check to be enabled by default")
	}
	if cfg.Embedding.URL != DefaultEmbeddingURL {
		t.Errorf("expected embedding URL %q, got %q", DefaultEmbeddingURL, cfg.Embedding.URL)
	}
	if cfg.Web.Port != 8080 || cfg.Web.Host != "0.0.0.0" {
		t.Errorf("expected 0.0.0.0:8080, got %s:%d", cfg.Web.Host, cfg.Web.Port)
	}
	if cfg.Web.RateLimitRPS != DefaultRateLimitRPS || cfg.Web.RateLimitBurst != DefaultRateLimitBurst {
		t.Errorf("unexpected rate limit defaults: %v/%d", cfg.Web.RateLimitRPS, cfg.Web.RateLimitBurst)
	}
	if cfg.Log.Level != "info" || cfg.Log.Development {
		t.Errorf("unexpected log defaults: %+v", cfg.Log)
	}
}

func TestLoad_DataFolderDrivesDefaultPaths(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_FOLDER_PATH", "/srv/stars")

	cfg := Load()

	if cfg.Index.Path != "/srv/stars/faces.index" {
		t.Errorf("expected index path under data folder, got '%s'", cfg.Index.Path)
	}
	if cfg.Metadata.Path != "/srv/stars/stars_data.json" {
		t.Errorf("expected metadata path under data folder, got '%s'", cfg.Metadata.Path)
	}
	if cfg.PhotosDir() != "/srv/stars/photos" {
		t.Errorf("expected photos dir '/srv/stars/photos', got '%s'", cfg.PhotosDir())
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SECRET_API_KEY", "s3cr3t")
	t.Setenv("INDEX_PATH", "s3://models/faces.index")
	t.Setenv("INDEX_BACKEND", "hnsw")
	t.Setenv("INDEX_METRIC", "cosine")
	t.Setenv("INDEX_DIM", "512")
	t.Setenv("INDEX_SKIP_CROSSCHECK", "true")
	t.Setenv("METADATA_DRIVER", "mysql")
	t.Setenv("METADATA_DSN", "user:pass@tcp(db:3306)/stars")
	t.Setenv("S3_USE_SSL", "1")
	t.Setenv("RATE_LIMIT_RPS", "0.5")
	t.Setenv("LOG_DEVELOPMENT", "yes")

	cfg := Load()

	if cfg.SecretAPIKey != "s3cr3t" {
		t.Errorf("expected secret 's3cr3t', got '%s'", cfg.SecretAPIKey)
	}
	if cfg.Index.Path != "s3://models/faces.index" || cfg.Index.Backend != "hnsw" || cfg.Index.Metric != "cosine" {
		t.Errorf("unexpected index config: %+v", cfg.Index)
	}
	if cfg.Index.Dim != 512 {
		t.Errorf("expected index dim 512, got %d", cfg.Index.Dim)
	}
	if !cfg.Index.SkipCrossCheck {
		t.Error("expected cross-check to be skipped")
	}
	if cfg.Metadata.Driver != "mysql" || cfg.Metadata.DSN == "" {
		t.Errorf("unexpected metadata config: %+v", cfg.Metadata)
	}
	if !cfg.Storage.UseSSL {
		t.Error("expected S3 SSL to be enabled")
	}
	if cfg.Web.RateLimitRPS != 0.5 {
		t.Errorf("expected rate limit 0.5, got %v", cfg.Web.RateLimitRPS)
	}
	if !cfg.Log.Development {
		t.Error("expected development logging")
	}
}

func TestLoad_InvalidIndexDim(t *testing.T) {
	tests := []string{"invalid", "-100", "0"}

	for _, value := range tests {
		t.Run(value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("INDEX_DIM", value)

			cfg := Load()

			// Should fall back to default
			if cfg.Index.Dim != DefaultIndexDim {
				t.Errorf("expected default index dim %d for %q, got %d", DefaultIndexDim, value, cfg.Index.Dim)
			}
		})
	}
}

func TestLoad_InvalidRateLimit(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATE_LIMIT_RPS", "-2")

	cfg := Load()

	if cfg.Web.RateLimitRPS != DefaultRateLimitRPS {
		t.Errorf("expected default rate limit for negative input, got %v", cfg.Web.RateLimitRPS)
	}
}

func TestLoad_AllowedOrigins(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEB_ALLOWED_ORIGINS", "https://stars.example.com, ,https://admin.example.com")

	cfg := Load()

	if len(cfg.Web.AllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.Web.AllowedOrigins)
	}
	if cfg.Web.AllowedOrigins[0] != "https://stars.example.com" || cfg.Web.AllowedOrigins[1] != "https://admin.example.com" {
		t.Errorf("unexpected origins: %v", cfg.Web.AllowedOrigins)
	}
}

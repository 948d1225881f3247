package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/dgallion1/pagechunk/internal/chunker"
	"github.com/dgallion1/pagechunk/internal/confluence"
	"github.com/dgallion1/pagechunk/internal/navigate"
	"github.com/dgallion1/pagechunk/internal/parser"
	"github.com/dgallion1/pagechunk/internal/render"
	"github.com/dgallion1/pagechunk/internal/sink"
	"github.com/dgallion1/pagechunk/internal/source"
)

// Source kinds.
const (
	SourceConfluence = "confluence"
	SourceDirectory  = "directory"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Page source
	Source                string        `env:"SOURCE" envDefault:"confluence"`
	ConfluenceBaseURL     string        `env:"CONFLUENCE_BASE_URL"`
	ConfluenceAuthToken   string        `env:"CONFLUENCE_AUTH_TOKEN"`
	ConfluencePageIDs     []string      `env:"CONFLUENCE_PAGE_IDS" envSeparator:","`
	ConfluenceSpaceKey    string        `env:"CONFLUENCE_SPACE_KEY"`
	MaxConcurrentRequests int           `env:"MAX_CONCURRENT_REQUESTS" envDefault:"10"`
	RequestTimeout        time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	MaxRetries            int           `env:"MAX_RETRIES" envDefault:"3"`
	SourceDir             string        `env:"SOURCE_DIR"`
	SourceBaseURL         string        `env:"SOURCE_BASE_URL"`
	PDFFallbackPdftotext  bool          `env:"PDF_FALLBACK_PDFTOTEXT" envDefault:"true"`

	// Block extraction
	BlockTags        []string `env:"BLOCK_TAGS" envSeparator:","`
	ExcludedTags     []string `env:"EXCLUDED_TAGS" envSeparator:","`
	ExcludedClasses  []string `env:"EXCLUDED_CLASSES" envSeparator:","`
	ExcludedIDs      []string `env:"EXCLUDED_IDS" envSeparator:","`
	MaxHeadingLevels int      `env:"MAX_HEADING_LEVELS" envDefault:"2"`
	TableRowBlocks   bool     `env:"TABLE_ROW_BLOCKS" envDefault:"false"`

	// Chunking
	ChunkSize         int    `env:"CHUNK_SIZE" envDefault:"512"`
	ChunkOverlap      int    `env:"CHUNK_OVERLAP" envDefault:"0"`
	ChunkingStrategy  string `env:"CHUNKING_STRATEGY" envDefault:"approximate"`
	TokenEncoding     string `env:"TOKEN_ENCODING" envDefault:"cl100k_base"`
	IncludePageTag    bool   `env:"INCLUDE_PAGE_TAG" envDefault:"true"`
	IncludeSectionTag bool   `env:"INCLUDE_SECTION_TAG" envDefault:"true"`
	ForwardOverlap    bool   `env:"FORWARD_OVERLAP" envDefault:"false"`
	ReserveTagTokens  bool   `env:"RESERVE_TAG_TOKENS" envDefault:"false"`
	AnchorChars       int    `env:"ANCHOR_CHARS" envDefault:"100"`

	// Run loop
	WorkerCount            int  `env:"WORKER_COUNT" envDefault:"4"`
	MaxQueueSize           int  `env:"MAX_QUEUE_SIZE" envDefault:"100"`
	ShowPerformanceMetrics bool `env:"SHOW_PERFORMANCE_METRICS" envDefault:"false"`

	// Output
	OutputDir             string `env:"OUTPUT_DIR" envDefault:"output"`
	OutputJSON            bool   `env:"OUTPUT_JSON" envDefault:"true"`
	OutputFile            string `env:"OUTPUT_FILE" envDefault:"chunks.json"`
	OutputSQLite          bool   `env:"OUTPUT_SQLITE" envDefault:"false"`
	SQLitePath            string `env:"SQLITE_PATH"`
	IncludeBlocksInOutput bool   `env:"INCLUDE_BLOCKS_IN_OUTPUT" envDefault:"false"`

	// HTTP server
	Port           string        `env:"PORT" envDefault:"8090"`
	APIKey         string        `env:"PAGECHUNK_API_KEY"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"52428800"`
	JobTTL         time.Duration `env:"JOB_TTL" envDefault:"1h"`
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if len(cfg.BlockTags) == 0 {
		cfg.BlockTags = parser.DefaultBlockTags
	}
	if len(cfg.ExcludedTags) == 0 {
		cfg.ExcludedTags = parser.DefaultExcludedTags
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = filepath.Join(cfg.OutputDir, "chunks.db")
	}
	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))
	return cfg, nil
}

// Validate checks the settings every command needs and reports all
// violations at once.
func (c Config) Validate() error {
	var errs []error
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must not be negative, got %d", c.ChunkOverlap))
	}
	if c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", c.ChunkOverlap, c.ChunkSize))
	}
	if c.ForwardOverlap && 2*c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("FORWARD_OVERLAP needs CHUNK_SIZE (%d) above twice CHUNK_OVERLAP (%d)", c.ChunkSize, c.ChunkOverlap))
	}
	if _, err := chunker.ParseStrategy(c.ChunkingStrategy); err != nil {
		errs = append(errs, fmt.Errorf("CHUNKING_STRATEGY: %w", err))
	}
	if c.MaxHeadingLevels <= 0 {
		errs = append(errs, fmt.Errorf("MAX_HEADING_LEVELS must be positive, got %d", c.MaxHeadingLevels))
	}
	if c.WorkerCount <= 0 {
		errs = append(errs, fmt.Errorf("WORKER_COUNT must be positive, got %d", c.WorkerCount))
	}
	if c.MaxQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_QUEUE_SIZE must be positive, got %d", c.MaxQueueSize))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateBatch additionally checks the page source and outputs of a
// batch run.
func (c Config) ValidateBatch() error {
	errs := []error{c.Validate()}
	switch c.Source {
	case SourceConfluence:
		if c.ConfluenceBaseURL == "" {
			errs = append(errs, errors.New("CONFLUENCE_BASE_URL is required for the confluence source"))
		}
		if c.MaxConcurrentRequests <= 0 {
			errs = append(errs, fmt.Errorf("MAX_CONCURRENT_REQUESTS must be positive, got %d", c.MaxConcurrentRequests))
		}
		if c.RequestTimeout <= 0 {
			errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout))
		}
		if c.MaxRetries <= 0 {
			errs = append(errs, fmt.Errorf("MAX_RETRIES must be positive, got %d", c.MaxRetries))
		}
	case SourceDirectory:
		if c.SourceDir == "" {
			errs = append(errs, errors.New("SOURCE_DIR is required for the directory source"))
		}
	default:
		errs = append(errs, fmt.Errorf("SOURCE must be %q or %q, got %q", SourceConfluence, SourceDirectory, c.Source))
	}
	if !c.OutputJSON && !c.OutputSQLite {
		errs = append(errs, errors.New("enable at least one of OUTPUT_JSON and OUTPUT_SQLITE"))
	}
	return errors.Join(errs...)
}

// ValidateServer additionally checks the HTTP server settings.
func (c Config) ValidateServer() error {
	errs := []error{c.Validate()}
	if c.APIKey == "" {
		errs = append(errs, errors.New("PAGECHUNK_API_KEY is required"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes))
	}
	if c.JobTTL <= 0 {
		errs = append(errs, fmt.Errorf("JOB_TTL must be positive, got %s", c.JobTTL))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LOG_LEVEL to a slog level.
func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

func (c Config) ExtractorConfig() parser.ExtractorConfig {
	return parser.ExtractorConfig{
		AllowedTags:      c.BlockTags,
		ExcludedTags:     c.ExcludedTags,
		ExcludedClasses:  c.ExcludedClasses,
		ExcludedIDs:      c.ExcludedIDs,
		MaxHeadingLevels: c.MaxHeadingLevels,
		TableRows:        c.TableRowBlocks,
	}
}

func (c Config) ChunkerConfig() chunker.Config {
	return chunker.Config{
		ChunkSize:         c.ChunkSize,
		ChunkOverlap:      c.ChunkOverlap,
		IncludePageTag:    c.IncludePageTag,
		IncludeSectionTag: c.IncludeSectionTag,
		ForwardOverlap:    c.ForwardOverlap,
		ReserveTagTokens:  c.ReserveTagTokens,
	}
}

func (c Config) ResolverConfig() navigate.ResolverConfig {
	return navigate.ResolverConfig{AnchorChars: c.AnchorChars, FragmentChars: c.AnchorChars}
}

func (c Config) RenderOptions() render.Options {
	return render.Options{PDFFallbackPdftotext: c.PDFFallbackPdftotext}
}

func (c Config) ConfluenceClientConfig() confluence.ClientConfig {
	return confluence.ClientConfig{
		BaseURL:    c.ConfluenceBaseURL,
		AuthToken:  c.ConfluenceAuthToken,
		Timeout:    c.RequestTimeout,
		MaxRetries: c.MaxRetries,
	}
}

func (c Config) ConfluenceSourceConfig() confluence.SourceConfig {
	return confluence.SourceConfig{
		PageIDs:       c.ConfluencePageIDs,
		SpaceKey:      c.ConfluenceSpaceKey,
		MaxConcurrent: c.MaxConcurrentRequests,
	}
}

func (c Config) DirectoryConfig() source.DirectoryConfig {
	return source.DirectoryConfig{
		Root:    c.SourceDir,
		BaseURL: c.SourceBaseURL,
		Render:  c.RenderOptions(),
	}
}

// OutputPath is the JSON output file inside OUTPUT_DIR.
func (c Config) OutputPath() string {
	return filepath.Join(c.OutputDir, c.OutputFile)
}

// Settings records the chunking settings for run metadata. strategy is
// the name of the metric actually in use.
func (c Config) Settings(strategy string) sink.Settings {
	return sink.Settings{
		ChunkSize:        c.ChunkSize,
		ChunkOverlap:     c.ChunkOverlap,
		Strategy:         strategy,
		MaxHeadingLevels: c.MaxHeadingLevels,
	}
}

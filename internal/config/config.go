package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rananth45/wokwi-autoscript/internal/apperr"
)

const DefaultDiagramEndpoint = "https://wokwi.com/api/projects/{id}/zip"

type Config struct {
	ConfigFile  string
	DiagramFile string
	URLFile     string
	Log         LogConfig
	Scan        ScanConfig
	Fetch       FetchConfig
	Artifact    ArtifactConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type ScanConfig struct {
	MaxDepth        int
	AmbiguityWindow time.Duration
}

type FetchConfig struct {
	Endpoint       string
	MaxAttempts    int
	AttemptTimeout time.Duration
	Backoff        time.Duration
	MaxBackoff     time.Duration
}

type ArtifactConfig struct {
	Enabled bool
	// Dir mirrors to a local directory instead of a bucket.
	Dir       string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Load reads an optional .env file from the working directory and then the
// process environment. Unset values fall back to defaults; malformed values
// are an EnvironmentError.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary variable lookup.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	env := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	p := parser{env: env}

	cfg := &Config{
		ConfigFile:  firstNonEmpty(env("WOKWI_CONFIG_FILE"), "wokwi.toml"),
		DiagramFile: firstNonEmpty(env("WOKWI_DIAGRAM_FILE"), "diagram.json"),
		URLFile:     firstNonEmpty(env("WOKWI_URL_FILE"), "url.txt"),
		Log: LogConfig{
			Level:  firstNonEmpty(env("LOG_LEVEL"), "info"),
			Format: firstNonEmpty(env("LOG_FORMAT"), "text"),
		},
		Scan: ScanConfig{
			MaxDepth:        p.int("WOKWI_SCAN_DEPTH", 4),
			AmbiguityWindow: p.duration("WOKWI_AMBIGUITY_WINDOW", 2*time.Minute),
		},
		Fetch: FetchConfig{
			Endpoint:       firstNonEmpty(env("WOKWI_DIAGRAM_ENDPOINT"), DefaultDiagramEndpoint),
			MaxAttempts:    p.int("WOKWI_FETCH_ATTEMPTS", 4),
			AttemptTimeout: p.duration("WOKWI_FETCH_TIMEOUT", 30*time.Second),
			Backoff:        p.duration("WOKWI_FETCH_BACKOFF", 500*time.Millisecond),
			MaxBackoff:     p.duration("WOKWI_FETCH_MAX_BACKOFF", 8*time.Second),
		},
		Artifact: loadArtifactConfig(env, &p),
	}
	if p.err != nil {
		return nil, apperr.Wrap(apperr.KindEnvironment, "config", p.err)
	}
	if !strings.Contains(cfg.Fetch.Endpoint, "{id}") {
		return nil, apperr.New(apperr.KindEnvironment, "config", "WOKWI_DIAGRAM_ENDPOINT must contain {id}")
	}
	return cfg, nil
}

func loadArtifactConfig(env func(string) string, p *parser) ArtifactConfig {
	endpoint := env("ARTIFACT_S3_ENDPOINT")
	dir := env("ARTIFACT_DIR")
	return ArtifactConfig{
		Enabled:   endpoint != "" || dir != "",
		Dir:       dir,
		Endpoint:  endpoint,
		Region:    firstNonEmpty(env("ARTIFACT_S3_REGION"), "us-east-1"),
		AccessKey: firstNonEmpty(env("ARTIFACT_S3_ACCESS_KEY"), env("MINIO_ROOT_USER")),
		SecretKey: firstNonEmpty(env("ARTIFACT_S3_SECRET_KEY"), env("MINIO_ROOT_PASSWORD")),
		Bucket:    firstNonEmpty(env("ARTIFACT_S3_BUCKET"), "wokwi-artifacts"),
		UseSSL:    p.bool("ARTIFACT_S3_USE_SSL", true),
	}
}

// parser remembers the first malformed value it saw.
type parser struct {
	env func(string) string
	err error
}

func (p *parser) int(key string, def int) int {
	raw := p.env(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		p.fail(fmt.Errorf("%s: want a positive integer, got %q", key, raw))
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.env(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v < 0 {
		p.fail(fmt.Errorf("%s: want a duration like 500ms, got %q", key, raw))
		return def
	}
	return v
}

func (p *parser) bool(key string, def bool) bool {
	raw := p.env(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(fmt.Errorf("%s: want true or false, got %q", key, raw))
		return def
	}
	return v
}

func (p *parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// App holds all runtime settings shared by the api and worker binaries.
// Everything comes from the environment with sane defaults, so both
// binaries boot with zero configuration in development.
type App struct {
	WorkerCount  int           `env:"WORKER_COUNT,default=10"`
	LockDuration time.Duration `env:"JOB_LOCK_DURATION,default=1m"`

	StatusTTL     time.Duration `env:"STATUS_TTL,default=30m"`
	SweepSchedule string        `env:"SWEEP_SCHEDULE,default=@every 1m"`

	StreamPollInterval time.Duration `env:"STREAM_POLL_INTERVAL,default=500ms"`
	StreamHeartbeat    time.Duration `env:"STREAM_HEARTBEAT,default=20s"`
	StreamGraceDelay   time.Duration `env:"STREAM_GRACE_DELAY,default=1s"`

	PipelinePollInterval time.Duration `env:"PIPELINE_POLL_INTERVAL,default=2s"`
	PipelineWindowStart  int           `env:"PIPELINE_WINDOW_START,default=40"`
	PipelineWindowEnd    int           `env:"PIPELINE_WINDOW_END,default=90"`

	NormalizerURL     string        `env:"NORMALIZER_URL,default=http://localhost:8090"`
	NormalizerTimeout time.Duration `env:"NORMALIZER_TIMEOUT,default=5m"`
	StorageURL        string        `env:"STORAGE_URL,default=http://localhost:8091"`
	StorageTimeout    time.Duration `env:"STORAGE_TIMEOUT,default=30s"`
	AMQPURL           string        `env:"AMQP_URL"`

	TemplateDir      string        `env:"TEMPLATE_DIR,default=./templates"`
	ArtifactDir      string        `env:"ARTIFACT_DIR,default=./artifacts"`
	FillToolPath     string        `env:"FILL_TOOL_PATH"`
	FillToolTimeout  time.Duration `env:"FILL_TOOL_TIMEOUT,default=30s"`
	PhaseWeightsFile string        `env:"PHASE_WEIGHTS_FILE"`

	ListenAddr string `env:"LISTEN_ADDR,default=:8080"`
	LogLevel   string `env:"LOG_LEVEL,default=info"`
	LogFormat  string `env:"LOG_FORMAT,default=console"`
}

// to help with testing
var envProcess = envconfig.Process

// Load reads the application config from the environment and validates it.
func Load(ctx context.Context) (*App, error) {
	var cfg App
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *App) error {
	var errs []string

	if cfg.WorkerCount < 1 {
		errs = append(errs, "WORKER_COUNT must be at least 1")
	}

	if cfg.LockDuration <= 0 {
		errs = append(errs, "JOB_LOCK_DURATION must be positive")
	}

	if cfg.StatusTTL <= 0 {
		errs = append(errs, "STATUS_TTL must be positive")
	}

	if cfg.StreamPollInterval <= 0 {
		errs = append(errs, "STREAM_POLL_INTERVAL must be positive")
	}

	if cfg.StreamHeartbeat < 5*time.Second {
		errs = append(errs, "STREAM_HEARTBEAT must be at least 5s")
	}

	if cfg.PipelineWindowStart < 0 || cfg.PipelineWindowStart > 100 {
		errs = append(errs, "PIPELINE_WINDOW_START must be between 0 and 100")
	}

	if cfg.PipelineWindowEnd <= cfg.PipelineWindowStart || cfg.PipelineWindowEnd > 100 {
		errs = append(errs, "PIPELINE_WINDOW_END must be greater than PIPELINE_WINDOW_START and at most 100")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

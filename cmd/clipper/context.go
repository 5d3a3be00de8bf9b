package main

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"clipper/internal/candidates"
	"clipper/internal/config"
	"clipper/internal/decision"
	"clipper/internal/logging"
	"clipper/internal/picker"
	"clipper/internal/pipeline"
	"clipper/internal/queue"
	"clipper/internal/render"
	"clipper/internal/review"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.loggerOnce.Do(func() {
		c.logger, c.loggerErr = logging.NewForRun(cfg.Paths.LogDir, cfg.Logging.Level, cfg.Logging.Format)
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) queueStore() (*queue.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return queue.NewStore(cfg.Paths.QueueDir), nil
}

func (c *commandContext) newPicker() (*picker.Picker, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	scanner := candidates.NewScanner(
		cfg.Paths.LibraryDir,
		cfg.Library.RawVideoName,
		cfg.Library.CandidatesName,
		cfg.Library.AnalysisMarker,
	)
	store := queue.NewStore(cfg.Paths.QueueDir)
	return picker.New(scanner, store, cfg.Library.CandidatesName, cfg.LockPath(), logger), nil
}

func (c *commandContext) newDriver(gate review.Gate) (*pipeline.Driver, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	renderer := render.New(render.Settings{
		FFmpeg:         cfg.FFmpegBinary(),
		FFprobe:        cfg.FFprobeBinary(),
		RawVideoName:   cfg.Library.RawVideoName,
		OutWidth:       cfg.Render.OutWidth,
		OutHeight:      cfg.Render.OutHeight,
		CropScale:      cfg.Render.CropScale,
		WindowSeconds:  cfg.Render.WindowSeconds,
		CRF:            cfg.Render.CRF,
		Preset:         cfg.Render.Preset,
		AudioBitrate:   cfg.Render.AudioBitrate,
		BGMPath:        cfg.Render.BGMPath,
		MixVolume:      cfg.Render.MixVolume,
		FontFile:       cfg.Render.FontFile,
		CaptionTop1:    cfg.Render.CaptionTop1,
		CaptionTop2:    cfg.Render.CaptionTop2,
		MaxAttempts:    cfg.Render.MaxAttempts,
		AttemptTimeout: time.Duration(cfg.Render.AttemptTimeoutSeconds) * time.Second,
		RetryBackoff:   time.Duration(cfg.Render.RetryBackoffSeconds) * time.Second,
	}, logger)

	decider := decision.NewService(
		cfg.Decision.Command,
		cfg.Decision.Args,
		time.Duration(cfg.Decision.TimeoutSeconds)*time.Second,
		logger,
	)

	if gate == nil {
		gate, err = review.ForAction(cfg.Pipeline.ReviewAction)
		if err != nil {
			return nil, err
		}
	}

	deps := pipeline.Deps{
		Store:    queue.NewStore(cfg.Paths.QueueDir),
		Renderer: renderer,
		Decider:  decider,
		Gate:     gate,
		Logger:   logger,
		LockPath: cfg.LockPath(),
		Bounds: decision.Bounds{
			MinDurationSec: cfg.Decision.MinDurationSec,
			MaxDurationSec: cfg.Decision.MaxDurationSec,
			WindowSeconds:  cfg.Render.WindowSeconds,
		},
		RawVideoName:   cfg.Library.RawVideoName,
		DetectionsName: cfg.Library.DetectionsName,
		WindowSeconds:  cfg.Render.WindowSeconds,
	}
	return pipeline.New(deps), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

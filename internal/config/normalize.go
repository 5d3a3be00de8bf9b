package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLibrary()
	c.normalizePicker()
	c.normalizePipeline()
	c.normalizeDecision()
	if err := c.normalizeRender(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.QueueDir, err = expandPath(c.Paths.QueueDir); err != nil {
		return fmt.Errorf("paths.queue_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLibrary() {
	if strings.TrimSpace(c.Library.RawVideoName) == "" {
		c.Library.RawVideoName = defaultRawVideoName
	}
	if strings.TrimSpace(c.Library.DetectionsName) == "" {
		c.Library.DetectionsName = defaultDetectionsName
	}
	if strings.TrimSpace(c.Library.CandidatesName) == "" {
		c.Library.CandidatesName = defaultCandidatesName
	}
	if strings.TrimSpace(c.Library.AnalysisMarker) == "" {
		c.Library.AnalysisMarker = defaultAnalysisMarker
	}
}

func (c *Config) normalizePicker() {
	c.Picker.Mode = strings.ToLower(strings.TrimSpace(c.Picker.Mode))
	if c.Picker.Mode == "" {
		c.Picker.Mode = defaultPickerMode
	}
	if c.Picker.Total <= 0 {
		c.Picker.Total = defaultPickerTotal
	}
	if c.Picker.MaxPerSession < 0 {
		c.Picker.MaxPerSession = 0
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.MaxItems <= 0 {
		c.Pipeline.MaxItems = defaultPipelineMaxItems
	}
	c.Pipeline.ReviewAction = strings.ToLower(strings.TrimSpace(c.Pipeline.ReviewAction))
	if c.Pipeline.ReviewAction == "" {
		c.Pipeline.ReviewAction = defaultPipelineReviewAction
	}
}

func (c *Config) normalizeDecision() {
	c.Decision.Command = strings.TrimSpace(c.Decision.Command)
	if c.Decision.TimeoutSeconds <= 0 {
		c.Decision.TimeoutSeconds = defaultDecisionTimeoutSeconds
	}
	if c.Decision.MinDurationSec <= 0 {
		c.Decision.MinDurationSec = defaultDecisionMinDurationSec
	}
	if c.Decision.MaxDurationSec <= 0 {
		c.Decision.MaxDurationSec = defaultDecisionMaxDurationSec
	}
}

func (c *Config) normalizeRender() error {
	if c.Render.OutWidth <= 0 {
		c.Render.OutWidth = defaultRenderOutWidth
	}
	if c.Render.OutHeight <= 0 {
		c.Render.OutHeight = defaultRenderOutHeight
	}
	if c.Render.CropScale <= 0 {
		c.Render.CropScale = defaultRenderCropScale
	}
	if c.Render.WindowSeconds <= 0 {
		c.Render.WindowSeconds = defaultRenderWindowSeconds
	}
	if c.Render.CRF <= 0 {
		c.Render.CRF = defaultRenderCRF
	}
	c.Render.Preset = strings.TrimSpace(c.Render.Preset)
	if c.Render.Preset == "" {
		c.Render.Preset = defaultRenderPreset
	}
	c.Render.AudioBitrate = strings.TrimSpace(c.Render.AudioBitrate)
	if c.Render.AudioBitrate == "" {
		c.Render.AudioBitrate = defaultRenderAudioBitrate
	}
	if c.Render.MixVolume <= 0 {
		c.Render.MixVolume = defaultRenderMixVolume
	}
	if c.Render.MaxAttempts <= 0 {
		c.Render.MaxAttempts = defaultRenderMaxAttempts
	}
	if c.Render.AttemptTimeoutSeconds <= 0 {
		c.Render.AttemptTimeoutSeconds = defaultRenderAttemptTimeout
	}
	if c.Render.RetryBackoffSeconds < 0 {
		c.Render.RetryBackoffSeconds = defaultRenderRetryBackoff
	}
	if c.Render.MinFreeGiB < 0 {
		c.Render.MinFreeGiB = 0
	}

	var err error
	if strings.TrimSpace(c.Render.BGMPath) != "" {
		if c.Render.BGMPath, err = expandPath(c.Render.BGMPath); err != nil {
			return fmt.Errorf("render.bgm_path: %w", err)
		}
	}
	if strings.TrimSpace(c.Render.FontFile) != "" {
		if c.Render.FontFile, err = expandPath(c.Render.FontFile); err != nil {
			return fmt.Errorf("render.font_file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

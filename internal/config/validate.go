package config

import (
	"errors"
	"fmt"
)

var pickerModes = map[string]struct{}{
	"random": {},
	"motion": {},
	"band":   {},
	"hybrid": {},
}

var reviewActions = map[string]struct{}{
	"approve": {},
	"reject":  {},
	"defer":   {},
	"prompt":  {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePicker(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateDecision(); err != nil {
		return err
	}
	return c.validateRender()
}

func (c *Config) validatePaths() error {
	if c.Paths.LibraryDir == "" {
		return errors.New("paths.library_dir must be set")
	}
	if c.Paths.QueueDir == "" {
		return errors.New("paths.queue_dir must be set")
	}
	return nil
}

func (c *Config) validatePicker() error {
	if _, ok := pickerModes[c.Picker.Mode]; !ok {
		return fmt.Errorf("picker.mode must be one of random|motion|band|hybrid, got %q", c.Picker.Mode)
	}
	if c.Picker.Total < 1 {
		return errors.New("picker.total must be >= 1")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if _, ok := reviewActions[c.Pipeline.ReviewAction]; !ok {
		return fmt.Errorf("pipeline.review_action must be one of approve|reject|defer|prompt, got %q", c.Pipeline.ReviewAction)
	}
	if c.Pipeline.MaxItems < 1 {
		return errors.New("pipeline.max_items must be >= 1")
	}
	return nil
}

func (c *Config) validateDecision() error {
	if c.Decision.MinDurationSec >= c.Decision.MaxDurationSec {
		return errors.New("decision.min_duration_sec must be less than decision.max_duration_sec")
	}
	return nil
}

func (c *Config) validateRender() error {
	if err := ensurePositiveMap(map[string]int{
		"render.out_width":               c.Render.OutWidth,
		"render.out_height":              c.Render.OutHeight,
		"render.window_seconds":          c.Render.WindowSeconds,
		"render.max_attempts":            c.Render.MaxAttempts,
		"render.attempt_timeout_seconds": c.Render.AttemptTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Render.CropScale <= 0 {
		return errors.New("render.crop_scale must be positive")
	}
	if c.Render.MixVolume <= 0 || c.Render.MixVolume > 1 {
		return errors.New("render.mix_volume must be within (0, 1]")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

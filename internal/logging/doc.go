// Package logging builds the slog loggers used across clipper.
//
// It provides a console handler that renders compact single-line output, a
// JSON handler for machine consumption, standardized field keys, and helpers
// for deriving per-item loggers from context annotations.
package logging

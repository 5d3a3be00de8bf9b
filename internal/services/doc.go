// Package services carries the cross-cutting plumbing shared by pipeline
// stages: context annotations for logging correlation and the sentinel error
// taxonomy used to classify external-call failures.
package services

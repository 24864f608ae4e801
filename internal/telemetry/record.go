package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/download-simulator/internal/download"
)

// Stage denotes the milestone a Record represents.
type Stage string

// Supported stages, one per download.Progress variant.
const (
	StageStarted  Stage = "STARTED"
	StageAdvanced Stage = "ADVANCED"
	StageFinished Stage = "FINISHED"
)

// StageOf maps a progress event to its Stage.
func StageOf(p download.Progress) (Stage, error) {
	switch p.(type) {
	case download.Started:
		return StageStarted, nil
	case download.Advanced:
		return StageAdvanced, nil
	case download.Finished:
		return StageFinished, nil
	default:
		return "", fmt.Errorf("unknown progress %T", p)
	}
}

// Record captures one progress step observed by the consumer.
type Record struct {
	// RunID identifies the application session that observed the step.
	RunID uuid.UUID
	// DownloadID is the consumer's id for the download, rendered as text.
	DownloadID string
	// TS is the UTC time the consumer handled the step.
	TS time.Time
	// Stage is the kind of step.
	Stage Stage
	// URL is the descriptor the download was submitted with, when known.
	URL string
	// Percent is set for ADVANCED records and may exceed 100.
	Percent float64
	// Elapsed is the time since the download started; set on FINISHED.
	Elapsed time.Duration
}

// Validate performs coarse validation on Record payloads.
func (r Record) Validate() error {
	if r.DownloadID == "" {
		return errors.New("download id is required")
	}
	if r.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch r.Stage {
	case StageStarted, StageFinished:
	case StageAdvanced:
		if r.Percent < 0 {
			return errors.New("percent must be >= 0")
		}
	default:
		return fmt.Errorf("unknown stage %q", r.Stage)
	}
	if r.Elapsed < 0 {
		return errors.New("elapsed must be >= 0")
	}
	return nil
}

package config

const (
	defaultLibraryDir = "~/recordings"
	defaultQueueDir   = "~/.local/share/clipper/queues"
	defaultLogDir     = "~/.local/share/clipper/logs"

	defaultRawVideoName   = "raw.mkv"
	defaultDetectionsName = "detections.jsonl"
	defaultCandidatesName = "candidates.jsonl"
	defaultAnalysisMarker = ".analysis_complete"

	defaultPickerMode           = "hybrid"
	defaultPickerTotal          = 8
	defaultPickerMaxPerSession  = 2
	defaultPickerPitchHours     = 3.0
	defaultPublishOffsetMinutes = 9 * 60 // UTC+9

	defaultPipelineMaxItems     = 5
	defaultPipelineReviewAction = "prompt"

	defaultDecisionTimeoutSeconds = 1800
	defaultDecisionMinDurationSec = 5
	defaultDecisionMaxDurationSec = 20

	defaultRenderOutWidth       = 720
	defaultRenderOutHeight      = 1280
	defaultRenderCropScale      = 3.0
	defaultRenderWindowSeconds  = 20
	defaultRenderCRF            = 20
	defaultRenderPreset         = "veryfast"
	defaultRenderAudioBitrate   = "128k"
	defaultRenderMixVolume      = 0.16
	defaultRenderMaxAttempts    = 2
	defaultRenderAttemptTimeout = 2400
	defaultRenderRetryBackoff   = 2
	defaultRenderMinFreeGiB     = 5

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			QueueDir:   defaultQueueDir,
			LogDir:     defaultLogDir,
		},
		Library: Library{
			RawVideoName:   defaultRawVideoName,
			DetectionsName: defaultDetectionsName,
			CandidatesName: defaultCandidatesName,
			AnalysisMarker: defaultAnalysisMarker,
		},
		Picker: Picker{
			Mode:                 defaultPickerMode,
			Total:                defaultPickerTotal,
			MaxPerSession:        defaultPickerMaxPerSession,
			NoOverlap:            true,
			PitchHours:           defaultPickerPitchHours,
			PublishOffsetMinutes: defaultPublishOffsetMinutes,
		},
		Pipeline: Pipeline{
			MaxItems:     defaultPipelineMaxItems,
			ReviewAction: defaultPipelineReviewAction,
		},
		Decision: Decision{
			TimeoutSeconds: defaultDecisionTimeoutSeconds,
			MinDurationSec: defaultDecisionMinDurationSec,
			MaxDurationSec: defaultDecisionMaxDurationSec,
		},
		Render: Render{
			OutWidth:              defaultRenderOutWidth,
			OutHeight:             defaultRenderOutHeight,
			CropScale:             defaultRenderCropScale,
			WindowSeconds:         defaultRenderWindowSeconds,
			CRF:                   defaultRenderCRF,
			Preset:                defaultRenderPreset,
			AudioBitrate:          defaultRenderAudioBitrate,
			MixVolume:             defaultRenderMixVolume,
			MaxAttempts:           defaultRenderMaxAttempts,
			AttemptTimeoutSeconds: defaultRenderAttemptTimeout,
			RetryBackoffSeconds:   defaultRenderRetryBackoff,
			MinFreeGiB:            defaultRenderMinFreeGiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

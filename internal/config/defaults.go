package config

const (
	defaultStagingDir             = "~/.local/share/telecine/staging"
	defaultLogDir                 = "~/.local/share/telecine/logs"
	defaultStorageRegion          = "us-east-1"
	defaultQueueWorkerCount       = 2
	defaultQueuePollInterval      = 5
	defaultQueueMaxAttempts       = 3
	defaultHeartbeatInterval      = 15
	defaultHeartbeatTimeout       = 120
	defaultTranscodePreset        = "medium"
	defaultTranscodeSegment       = 6
	defaultTranscodeTimeout       = 120
	defaultUploadPartSizeMiB      = 16
	defaultUploadURLTTLMinutes    = 60
	defaultPlaybackURLTTLMinutes  = 360
	defaultCallbackRequestTimeout = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Storage: Storage{
			Region: defaultStorageRegion,
		},
		Queue: Queue{
			WorkerCount:       defaultQueueWorkerCount,
			PollInterval:      defaultQueuePollInterval,
			MaxAttempts:       defaultQueueMaxAttempts,
			HeartbeatInterval: defaultHeartbeatInterval,
			HeartbeatTimeout:  defaultHeartbeatTimeout,
		},
		Transcode: Transcode{
			Preset:         defaultTranscodePreset,
			SegmentSeconds: defaultTranscodeSegment,
			TimeoutMinutes: defaultTranscodeTimeout,
		},
		Upload: Upload{
			PartSizeMiB:   defaultUploadPartSizeMiB,
			URLTTLMinutes: defaultUploadURLTTLMinutes,
		},
		Playback: Playback{
			URLTTLMinutes: defaultPlaybackURLTTLMinutes,
		},
		Callbacks: Callbacks{
			RequestTimeout: defaultCallbackRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

package config

const (
	defaultConfigPath        = "~/.config/histosync/config.toml"
	projectConfigName        = "histosync.toml"
	defaultImagesDir         = "~/.local/share/histosync/images"
	defaultLogDir            = "~/.local/share/histosync/logs"
	defaultStateDir          = "~/.local/share/histosync/state"
	defaultImageExtension    = ".bmp"
	defaultThresholdGB       = 5
	defaultCapacityPoll      = 60
	defaultFallbackReserveGB = 10
	defaultShrinkBinary      = "ShrinkImage"
	defaultRGBABinary        = "ConvertRGBAToRGB"
	defaultWorkflowPoll      = 10
	defaultEmptyChecks       = 2
	defaultStalePartHours    = 24
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
	defaultBackend           = BackendFTP
	defaultFTPPort           = 21
	defaultTransientRetries  = 3
	defaultDialTimeout       = 30
	defaultResume            = true
)

// Supported remote backends.
const (
	BackendFTP = "ftp"
	BackendS3  = "s3"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ImagesDir: defaultImagesDir,
			LogDir:    defaultLogDir,
			StateDir:  defaultStateDir,
		},
		Images: Images{
			Extension: defaultImageExtension,
		},
		Capacity: Capacity{
			ThresholdGB:       defaultThresholdGB,
			PollInterval:      defaultCapacityPoll,
			FallbackReserveGB: defaultFallbackReserveGB,
		},
		Tools: Tools{
			ShrinkBinary: defaultShrinkBinary,
			RGBABinary:   defaultRGBABinary,
		},
		Workflow: Workflow{
			PollInterval:   defaultWorkflowPoll,
			EmptyChecks:    defaultEmptyChecks,
			StalePartHours: defaultStalePartHours,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Journal: Journal{
			Enabled: true,
		},
	}
}

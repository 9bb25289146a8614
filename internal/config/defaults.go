package config

const (
	defaultConfigPath       = "~/.config/bidsify/config.toml"
	defaultOutputDir        = "~/bids"
	defaultLogDir           = "~/.local/share/bidsify/logs"
	defaultConverterBinary  = "dcm2niix"
	defaultCompressionLevel = 7
	defaultFilenameFormat   = "{subject}_%d_%a_%c"
	defaultSourceLayout     = "{root}/sub-{subject}/{session}/func"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Converter: Converter{
			Binary:           defaultConverterBinary,
			CompressionLevel: defaultCompressionLevel,
			FilenameFormat:   defaultFilenameFormat,
			BIDSSidecar:      true,
			SourceLayout:     defaultSourceLayout,
		},
		Classifier: Classifier{
			AccelerationMarkers: []string{"(MB4iPAT2)"},
		},
		Workflow: Workflow{
			ContinueOnError: true,
		},
		History: History{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

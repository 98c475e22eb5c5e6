package config

const (
	defaultConfigPath      = "~/.config/crossvoice/config.toml"
	projectConfigName      = "crossvoice.toml"
	defaultExperimentRoot  = "../Experiment"
	defaultLogDir          = "~/.local/share/crossvoice/logs"
	defaultStateDir        = "~/.local/share/crossvoice/state"
	defaultWorkDir         = "~/.cache/crossvoice"
	defaultModelDir        = "."
	defaultLauncher        = "python"
	defaultPython          = "python3"
	defaultDevice          = "auto"
	defaultRequestTimeout  = 1800
	defaultLoadTimeout     = 600
	defaultConversionModel = "Models/AutoVC/AutoVC_seed40_200k.pt"
	defaultWaveRNNModel    = "Models/WaveRNN/WaveRNN_Pretrained.pyt"
	defaultWaveNetModel    = "Models/WaveNet/WaveNetVC_pretrained.pth"
	defaultEncoderModel    = "Models/SpeakerEncoder/SpeakerEncoder.pt"
	defaultVocoderKind     = "wavernn"
	defaultWaveRNNTarget   = 11000
	defaultWaveRNNOverlap  = 550
	defaultEmbeddingDim    = 256
	defaultModelName       = "AutoVC"
	defaultMetadata        = "../data/persons2.csv"
	defaultDataset         = "../data/test_data"
	defaultDatasetLayout   = "speaker_dirs"
	defaultTestSize        = 3
	defaultConflict        = "fail"
	defaultReconConflict   = "skip"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultLogRetention    = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ExperimentRoot: defaultExperimentRoot,
			LogDir:         defaultLogDir,
			StateDir:       defaultStateDir,
			WorkDir:        defaultWorkDir,
		},
		Models: Models{
			Conversion:     defaultConversionModel,
			WaveRNN:        defaultWaveRNNModel,
			WaveNet:        defaultWaveNetModel,
			SpeakerEncoder: defaultEncoderModel,
		},
		Runtime: Runtime{
			ModelDir:              defaultModelDir,
			Launcher:              defaultLauncher,
			Python:                defaultPython,
			Device:                defaultDevice,
			RequestTimeoutSeconds: defaultRequestTimeout,
			LoadTimeoutSeconds:    defaultLoadTimeout,
		},
		Vocoder: Vocoder{
			Kind:           defaultVocoderKind,
			WaveRNNTarget:  defaultWaveRNNTarget,
			WaveRNNOverlap: defaultWaveRNNOverlap,
		},
		Embedding: Embedding{
			Dimension: defaultEmbeddingDim,
		},
		Experiment: Experiment{
			ModelName:     defaultModelName,
			Metadata:      defaultMetadata,
			Dataset:       defaultDataset,
			DatasetLayout: defaultDatasetLayout,
			TestSize:      defaultTestSize,
			Resume:        true,
		},
		Output: Output{
			CreateDirs:             true,
			Conflict:               defaultConflict,
			ReconstructionConflict: defaultReconConflict,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetention,
		},
	}
}

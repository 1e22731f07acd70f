package domain

// SubmitterConfig configures the handoff to the grid submission client
type SubmitterConfig struct {
	CrabBinary     string `json:"crab_binary"`     // "crab"
	MaxConcurrent  int64  `json:"max_concurrent"`  // parallel `crab submit` invocations
	CommandTimeout int    `json:"command_timeout"` // seconds
}

// DryRunConfig configures local test runs of the wrapper script
type DryRunConfig struct {
	Image string `json:"image"` // "cmssw/el8:x86_64"
}

// AppConfig is the main application configuration
type AppConfig struct {
	StorageUser string          `json:"storage_user"`
	Submitter   SubmitterConfig `json:"submitter"`
	DryRun      DryRunConfig    `json:"dry_run"`
}

// DefaultConfig returns safe defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		StorageUser: DefaultBuildConfig().StorageUser,
		Submitter: SubmitterConfig{
			CrabBinary:     "crab",
			MaxConcurrent:  2,
			CommandTimeout: 300,
		},
		DryRun: DryRunConfig{
			Image: "cmssw/el8:x86_64",
		},
	}
}

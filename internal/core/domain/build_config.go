package domain

// BuildConfig carries the literal parameters of the track pair efficiency production.
type BuildConfig struct {
	Card     string       `json:"card"`
	JobTag   string       `json:"job_tag"`
	Manifest string       `json:"manifest"`
	Location FileLocation `json:"location"`

	PSetName     string   `json:"pset_name"`
	ScriptExe    string   `json:"script_exe"`
	SupportFiles []string `json:"support_files"` // staged next to the card

	MaxJobRuntimeMin int `json:"max_job_runtime_min"`
	MaxMemoryMB      int `json:"max_memory_mb"`

	OutputPrimaryDataset string `json:"output_primary_dataset"`
	StorageUser          string `json:"storage_user"` // owner of /store/user/<name>

	Whitelist   []string `json:"whitelist"`
	StorageSite string   `json:"storage_site"`
	ExtraJDL    []string `json:"extra_jdl"`
}

// DefaultBuildConfig returns the 2023-03-14 whole tracker production against
// the Pythia+Hydjet 2018 miniAOD forest.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		Card:     "cardTrackPairEfficiencyPbPbMC.input",
		JobTag:   "trackPairEfficiency_wholeTracker_2023-03-14",
		Manifest: "pythiaHydjet2018_miniAODforest.txt",
		Location: LocationVanderbilt,

		PSetName:  "PSet.py",
		ScriptExe: "compileAndRun.sh",
		SupportFiles: []string{
			"FrameworkJobReport.xml",
			"trackPairEfficiencyAnalysis.tar.gz",
		},

		MaxJobRuntimeMin: 400,
		MaxMemoryMB:      1800,

		OutputPrimaryDataset: "PbPbTrackPairEfficiency",
		StorageUser:          "jviinika",

		Whitelist:   []string{"T2_US_Vanderbilt"},
		StorageSite: "T3_US_FNALLPC",
		// really force the scheduler to stay on whitelisted sites
		ExtraJDL: []string{"+CMS_ALLOW_OVERFLOW=False"},
	}
}

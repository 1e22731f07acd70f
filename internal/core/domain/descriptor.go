package domain

import (
	"encoding/json"
	"path"
	"slices"
)

// FileLocation tells the remote wrapper where to read input files from.
// The value is passed through to the wrapper untouched.
type FileLocation string

// Known locations understood by compileAndRun.sh.
const (
	LocationPurdue     FileLocation = "0"
	LocationCERN       FileLocation = "1"
	LocationVanderbilt FileLocation = "2"
	LocationXrootd     FileLocation = "3"
)

const (
	PluginAnalysis     = "Analysis"
	SplittingFileBased = "FileBased"
)

// JobDescriptor is the complete set of values handed to the grid submission client.
// It is populated once by the builder and never mutated afterwards; derived values
// are computed from the stored ones on every call.
type JobDescriptor struct {
	requestName string
	storageUser string

	pluginName       string
	psetName         string
	scriptExe        string
	scriptArgs       []string
	inputFiles       []string
	outputFiles      []string
	maxJobRuntimeMin int
	maxMemoryMB      int

	userInputFiles       []string
	splitting            string
	unitsPerJob          int
	outputPrimaryDataset string
	publication          bool

	whitelist   []string
	storageSite string

	extraJDL []string
}

// NewJobDescriptor assembles a descriptor from build parameters and the manifest lines.
func NewJobDescriptor(cfg BuildConfig, inputs []string) *JobDescriptor {
	output := cfg.JobTag + ".root"
	return &JobDescriptor{
		requestName: cfg.JobTag,
		storageUser: cfg.StorageUser,

		pluginName: PluginAnalysis,
		psetName:   cfg.PSetName,
		scriptExe:  cfg.ScriptExe,
		scriptArgs: []string{
			"card=" + cfg.Card,
			"output=" + output,
			"location=" + string(cfg.Location),
		},
		inputFiles:       append(slices.Clone(cfg.SupportFiles), cfg.Card),
		outputFiles:      []string{output},
		maxJobRuntimeMin: cfg.MaxJobRuntimeMin,
		maxMemoryMB:      cfg.MaxMemoryMB,

		userInputFiles:       slices.Clone(inputs),
		splitting:            SplittingFileBased,
		unitsPerJob:          1,
		outputPrimaryDataset: cfg.OutputPrimaryDataset,
		publication:          false,

		whitelist:   slices.Clone(cfg.Whitelist),
		storageSite: cfg.StorageSite,

		extraJDL: slices.Clone(cfg.ExtraJDL),
	}
}

func (d *JobDescriptor) RequestName() string { return d.requestName }

// WorkArea is the local CRAB project directory. It always matches the request name.
func (d *JobDescriptor) WorkArea() string { return d.requestName }

func (d *JobDescriptor) PluginName() string           { return d.pluginName }
func (d *JobDescriptor) PSetName() string             { return d.psetName }
func (d *JobDescriptor) ScriptExe() string            { return d.scriptExe }
func (d *JobDescriptor) ScriptArgs() []string         { return slices.Clone(d.scriptArgs) }
func (d *JobDescriptor) InputFiles() []string         { return slices.Clone(d.inputFiles) }
func (d *JobDescriptor) OutputFiles() []string        { return slices.Clone(d.outputFiles) }
func (d *JobDescriptor) MaxJobRuntimeMin() int        { return d.maxJobRuntimeMin }
func (d *JobDescriptor) MaxMemoryMB() int             { return d.maxMemoryMB }
func (d *JobDescriptor) UserInputFiles() []string     { return slices.Clone(d.userInputFiles) }
func (d *JobDescriptor) Splitting() string            { return d.splitting }
func (d *JobDescriptor) UnitsPerJob() int             { return d.unitsPerJob }
func (d *JobDescriptor) OutputPrimaryDataset() string { return d.outputPrimaryDataset }
func (d *JobDescriptor) Publication() bool            { return d.publication }
func (d *JobDescriptor) Whitelist() []string          { return slices.Clone(d.whitelist) }
func (d *JobDescriptor) StorageSite() string          { return d.storageSite }
func (d *JobDescriptor) ExtraJDL() []string           { return slices.Clone(d.extraJDL) }

// OutputFile is the histogram file the wrapper writes, named after the request.
func (d *JobDescriptor) OutputFile() string { return d.requestName + ".root" }

// TotalUnits is the number of input files; with file based splitting one unit is one file.
func (d *JobDescriptor) TotalUnits() int { return len(d.userInputFiles) }

// OutLFNDirBase is the logical directory on the storage site receiving the outputs.
func (d *JobDescriptor) OutLFNDirBase() string {
	return path.Join("/store/user", d.storageUser, d.requestName)
}

// descriptorJSON is the wire form, grouped the way the submission client groups it.
type descriptorJSON struct {
	General struct {
		RequestName string `json:"request_name"`
		WorkArea    string `json:"work_area"`
	} `json:"general"`
	JobType struct {
		PluginName       string   `json:"plugin_name"`
		PSetName         string   `json:"pset_name"`
		ScriptExe        string   `json:"script_exe"`
		ScriptArgs       []string `json:"script_args"`
		InputFiles       []string `json:"input_files"`
		OutputFiles      []string `json:"output_files"`
		MaxJobRuntimeMin int      `json:"max_job_runtime_min"`
		MaxMemoryMB      int      `json:"max_memory_mb"`
	} `json:"job_type"`
	Data struct {
		UserInputFiles       []string `json:"user_input_files"`
		Splitting            string   `json:"splitting"`
		UnitsPerJob          int      `json:"units_per_job"`
		TotalUnits           int      `json:"total_units"`
		OutputPrimaryDataset string   `json:"output_primary_dataset"`
		OutLFNDirBase        string   `json:"out_lfn_dir_base"`
		Publication          bool     `json:"publication"`
	} `json:"data"`
	Site struct {
		Whitelist   []string `json:"whitelist"`
		StorageSite string   `json:"storage_site"`
	} `json:"site"`
	Debug struct {
		ExtraJDL []string `json:"extra_jdl"`
	} `json:"debug"`
}

// MarshalJSON emits stored and derived values together.
func (d *JobDescriptor) MarshalJSON() ([]byte, error) {
	var out descriptorJSON
	out.General.RequestName = d.requestName
	out.General.WorkArea = d.WorkArea()

	out.JobType.PluginName = d.pluginName
	out.JobType.PSetName = d.psetName
	out.JobType.ScriptExe = d.scriptExe
	out.JobType.ScriptArgs = nonNil(d.scriptArgs)
	out.JobType.InputFiles = nonNil(d.inputFiles)
	out.JobType.OutputFiles = nonNil(d.outputFiles)
	out.JobType.MaxJobRuntimeMin = d.maxJobRuntimeMin
	out.JobType.MaxMemoryMB = d.maxMemoryMB

	out.Data.UserInputFiles = nonNil(d.userInputFiles)
	out.Data.Splitting = d.splitting
	out.Data.UnitsPerJob = d.unitsPerJob
	out.Data.TotalUnits = d.TotalUnits()
	out.Data.OutputPrimaryDataset = d.outputPrimaryDataset
	out.Data.OutLFNDirBase = d.OutLFNDirBase()
	out.Data.Publication = d.publication

	out.Site.Whitelist = nonNil(d.whitelist)
	out.Site.StorageSite = d.storageSite

	out.Debug.ExtraJDL = nonNil(d.extraJDL)
	return json.Marshal(out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

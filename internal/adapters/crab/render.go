// Package crab talks to the CMS Remote Analysis Builder client: it renders job
// descriptors as WMCore configuration files and runs `crab submit` on them.
package crab

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/manthysbr/gridjob/internal/core/domain"
)

var configTemplate = template.Must(template.New("crabConfig").Funcs(template.FuncMap{
	"py":     pyString,
	"pylist": pyList,
	"pybool": pyBool,
}).Parse(`from WMCore.Configuration import Configuration
config = Configuration()

config.section_("General")
config.General.requestName = {{py .RequestName}}
config.General.workArea = {{py .WorkArea}}

config.section_("JobType")
config.JobType.pluginName = {{py .PluginName}}
config.JobType.psetName = {{py .PSetName}}
config.JobType.scriptExe = {{py .ScriptExe}}
config.JobType.scriptArgs = {{pylist .ScriptArgs}}
config.JobType.inputFiles = {{pylist .InputFiles}}
config.JobType.outputFiles = {{pylist .OutputFiles}}
config.JobType.maxJobRuntimeMin = {{.MaxJobRuntimeMin}}
config.JobType.maxMemoryMB = {{.MaxMemoryMB}}

config.section_("Data")
config.Data.userInputFiles = {{pylist .UserInputFiles}}
config.Data.splitting = {{py .Splitting}}
config.Data.unitsPerJob = {{.UnitsPerJob}}
config.Data.totalUnits = {{.TotalUnits}}
config.Data.outputPrimaryDataset = {{py .OutputPrimaryDataset}}
config.Data.outLFNDirBase = {{py .OutLFNDirBase}}
config.Data.publication = {{pybool .Publication}}

config.section_("Site")
config.Site.whitelist = {{pylist .Whitelist}}
config.Site.storageSite = {{py .StorageSite}}

config.section_("Debug")
config.Debug.extraJDL = {{pylist .ExtraJDL}}
`))

// Render writes the descriptor as a CRAB configuration file.
func Render(w io.Writer, d *domain.JobDescriptor) error {
	if err := configTemplate.Execute(w, d); err != nil {
		return fmt.Errorf("render crab config: %w", err)
	}
	return nil
}

// ConfigFileName is the file Render output is stored under in the work area.
func ConfigFileName(d *domain.JobDescriptor) string {
	return "crabConfig_" + d.RequestName() + ".py"
}

var pyEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`)

func pyString(s string) string {
	return "'" + pyEscaper.Replace(s) + "'"
}

func pyList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = pyString(s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

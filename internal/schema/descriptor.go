// Package schema validates job descriptors before they are handed to the
// grid submission client.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/manthysbr/gridjob/internal/core/domain"
)

var descriptorSchema = newDescriptorSchema()

func nonEmptyString() *openapi3.Schema {
	return openapi3.NewStringSchema().WithMinLength(1)
}

func nonEmptyStrings() *openapi3.Schema {
	return openapi3.NewArraySchema().WithItems(nonEmptyString()).WithMinItems(1)
}

func object(required []string, props map[string]*openapi3.Schema) *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	for name, prop := range props {
		s = s.WithProperty(name, prop)
	}
	s.Required = required
	return s
}

func newDescriptorSchema() *openapi3.Schema {
	general := object([]string{"request_name", "work_area"}, map[string]*openapi3.Schema{
		"request_name": nonEmptyString(),
		"work_area":    nonEmptyString(),
	})

	jobType := object(
		[]string{"plugin_name", "pset_name", "script_exe", "script_args", "input_files", "output_files", "max_job_runtime_min", "max_memory_mb"},
		map[string]*openapi3.Schema{
			"plugin_name":         openapi3.NewStringSchema().WithEnum(domain.PluginAnalysis),
			"pset_name":           nonEmptyString(),
			"script_exe":          nonEmptyString(),
			"script_args":         openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema()),
			"input_files":         openapi3.NewArraySchema().WithItems(nonEmptyString()),
			"output_files":        nonEmptyStrings(),
			"max_job_runtime_min": openapi3.NewIntegerSchema().WithMin(1),
			"max_memory_mb":       openapi3.NewIntegerSchema().WithMin(1),
		},
	)

	data := object(
		[]string{"user_input_files", "splitting", "units_per_job", "total_units", "output_primary_dataset", "out_lfn_dir_base", "publication"},
		map[string]*openapi3.Schema{
			"user_input_files":       nonEmptyStrings(),
			"splitting":              openapi3.NewStringSchema().WithEnum(domain.SplittingFileBased),
			"units_per_job":          openapi3.NewIntegerSchema().WithMin(1).WithMax(1),
			"total_units":            openapi3.NewIntegerSchema().WithMin(1),
			"output_primary_dataset": nonEmptyString(),
			"out_lfn_dir_base":       openapi3.NewStringSchema().WithPattern(`^/store/user/[^/]+/.+`),
			"publication":            openapi3.NewBoolSchema().WithEnum(false),
		},
	)

	site := object([]string{"whitelist", "storage_site"}, map[string]*openapi3.Schema{
		"whitelist":    nonEmptyStrings(),
		"storage_site": nonEmptyString(),
	})

	debug := object(nil, map[string]*openapi3.Schema{
		"extra_jdl": openapi3.NewArraySchema().WithItems(nonEmptyString()),
	})

	return object([]string{"general", "job_type", "data", "site"}, map[string]*openapi3.Schema{
		"general":  general,
		"job_type": jobType,
		"data":     data,
		"site":     site,
		"debug":    debug,
	})
}

var (
	ErrUnitMismatch     = errors.New("total units differ from input file count")
	ErrWorkAreaMismatch = errors.New("work area differs from request name")
)

// Validate checks a descriptor against the descriptor schema and the
// cross-field invariants the schema cannot express.
func Validate(d *domain.JobDescriptor) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	return ValidateJSON(raw)
}

// ValidateJSON validates the JSON form of a descriptor.
func ValidateJSON(raw []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode descriptor: %w", err)
	}

	if err := descriptorSchema.VisitJSON(doc, openapi3.MultiErrors()); err != nil {
		return err
	}

	general, _ := doc["general"].(map[string]any)
	if general["work_area"] != general["request_name"] {
		return ErrWorkAreaMismatch
	}

	data, _ := doc["data"].(map[string]any)
	inputs, _ := data["user_input_files"].([]any)
	total, _ := data["total_units"].(float64)
	if int(total) != len(inputs) {
		return fmt.Errorf("%w: %d units, %d files", ErrUnitMismatch, int(total), len(inputs))
	}
	return nil
}

// Copyright Contributors to the KubeTask project

// Package apptemplate merges a referenced application template into its
// enclosing job: loading the template file, enforcing disjoint
// job/template property sets, rendering it, and applying the result.
package apptemplate

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/kubetask/jobexpander/pkg/jexerr"
	"github.com/kubetask/jobexpander/pkg/jobmodel"
	"github.com/kubetask/jobexpander/pkg/template"
)

// FileSystem is the injected collaborator used to read a referenced
// template file.
type FileSystem interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// templatePermitted is the set of top-level keys an application template
// document is allowed to declare.
var templatePermitted = map[string]bool{
	"jobManagerTask":            true,
	"jobPreparationTask":        true,
	"jobReleaseTask":            true,
	"commonEnvironmentSettings": true,
	"usesTaskDependencies":      true,
	"onAllTasksComplete":        true,
	"onTaskFailure":             true,
	"taskFactory":               true,
	"templateMetadata":          true,
	"parameters":                true,
	"metadata":                  true,
}

// templateReserved is the first seven keys above: properties a *job* that
// references a template must not itself set.
var templateReserved = []string{
	"jobManagerTask",
	"jobPreparationTask",
	"jobReleaseTask",
	"commonEnvironmentSettings",
	"usesTaskDependencies",
	"onAllTasksComplete",
	"onTaskFailure",
}

// jobReserved is forbidden on a template document.
var jobReserved = []string{
	"id",
	"displayName",
	"priority",
	"constraints",
	"poolInfo",
	"applicationTemplateInfo",
}

// Merge expands job's applicationTemplateInfo reference, if any. A job
// with no "applicationTemplateInfo" is returned unmodified.
func Merge(ctx context.Context, job jobmodel.Doc, workingDir string, fs FileSystem, logger logr.Logger) (jobmodel.Doc, error) {
	info, ok := jobmodel.GetMap(job, "applicationTemplateInfo")
	if !ok {
		return job, nil
	}

	for _, key := range templateReserved {
		if jobmodel.HasAny(job, key) {
			return nil, jexerr.New(jexerr.Reserved, "job references a template but also sets template-reserved property %q", key)
		}
	}

	filePath, ok := jobmodel.GetString(info, "filePath")
	if !ok || filePath == "" {
		return nil, jexerr.New(jexerr.TypeMismatch, "applicationTemplateInfo.filePath is required")
	}
	resolvedPath := filePath
	if !filepath.IsAbs(filePath) {
		resolvedPath = filepath.Join(workingDir, filePath)
	}

	data, err := fs.ReadFile(ctx, resolvedPath)
	if err != nil {
		return nil, jexerr.Wrap(jexerr.IO, err, "failed to read application template %q", resolvedPath)
	}

	templateDoc, err := parseTemplateDoc(data)
	if err != nil {
		return nil, err
	}
	if err := checkPropertySets(templateDoc); err != nil {
		return nil, err
	}

	templateParams, _ := jobmodel.GetMap(templateDoc, "parameters")
	templateVars, _ := jobmodel.GetMap(templateDoc, "variables")
	callerValues, _ := jobmodel.GetMap(info, "parameters")

	if err := checkUnknownParameters(templateParams, callerValues); err != nil {
		return nil, err
	}

	tctx, err := template.NewContext(templateParams, callerValues, templateVars, logger)
	if err != nil {
		return nil, err
	}
	rendered, err := template.Render(string(data), tctx)
	if err != nil {
		return nil, err
	}
	jobFromTemplate, ok := rendered.(map[string]any)
	if !ok {
		return nil, jexerr.New(jexerr.Parse, "rendered application template is not a JSON object")
	}

	if err := checkPropertySets(jobFromTemplate); err != nil {
		return nil, err
	}

	mergedMetadata, err := mergeMetadata(jobFromTemplate, job, resolvedPath)
	if err != nil {
		return nil, err
	}

	for key, value := range jobFromTemplate {
		job[key] = value
	}
	delete(job, "applicationTemplateInfo")
	delete(job, "templateMetadata")
	delete(job, "parameters")
	job["metadata"] = mergedMetadata

	return job, nil
}

// checkPropertySets rejects any key outside templatePermitted, and any
// job-reserved key, from appearing on a template document (raw or rendered).
func checkPropertySets(doc jobmodel.Doc) error {
	for _, key := range jobReserved {
		if jobmodel.HasAny(doc, key) {
			return jexerr.New(jexerr.Reserved, "application template sets job-reserved property %q", key)
		}
	}
	for key := range doc {
		if !templatePermitted[key] {
			return jexerr.New(jexerr.Reserved, "application template sets unrecognized property %q", key)
		}
	}
	return nil
}

func checkUnknownParameters(templateParams, callerValues jobmodel.Doc) error {
	for name := range callerValues {
		if _, ok := templateParams[name]; !ok {
			return jexerr.New(jexerr.TypeMismatch, "unknown parameter %q supplied to application template", name)
		}
	}
	return nil
}

func mergeMetadata(jobFromTemplate, job jobmodel.Doc, resolvedPath string) ([]any, error) {
	seen := make(map[string]bool)
	var merged []any

	appendEntries := func(raw []any) error {
		for _, item := range raw {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name, _ := jobmodel.GetString(entry, "name")
			if hasAzBatchPrefix(name) {
				return jexerr.New(jexerr.Reserved, "metadata name %q uses reserved az_batch prefix", name)
			}
			if seen[name] {
				return jexerr.New(jexerr.DuplicateName, "duplicate metadata name %q", name)
			}
			seen[name] = true
			merged = append(merged, entry)
		}
		return nil
	}

	if templateMeta, ok := jobmodel.GetSlice(jobFromTemplate, "metadata"); ok {
		if err := appendEntries(templateMeta); err != nil {
			return nil, err
		}
	}
	if jobMeta, ok := jobmodel.GetSlice(job, "metadata"); ok {
		if err := appendEntries(jobMeta); err != nil {
			return nil, err
		}
	}

	merged = append(merged, map[string]any{
		"name":  "az_batch:template_filepath",
		"value": resolvedPath,
	})
	return merged, nil
}

func hasAzBatchPrefix(name string) bool {
	const prefix = "az_batch"
	return len(name) >= len(prefix) && name[:len(prefix)] == prefix
}

func parseTemplateDoc(data []byte) (jobmodel.Doc, error) {
	var doc jobmodel.Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, jexerr.Wrap(jexerr.Parse, err, "application template is not valid JSON")
	}
	return doc, nil
}

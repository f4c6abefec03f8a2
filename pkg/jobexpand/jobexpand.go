// Copyright Contributors to the KubeTask project

// Package jobexpand is the pipeline orchestrator: the public entry point
// sequencing template rendering, application-template merging, task-
// factory expansion, command-line wrapping, and resource-file resolution.
package jobexpand

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/kubetask/jobexpander/pkg/apptemplate"
	"github.com/kubetask/jobexpander/pkg/cmdline"
	"github.com/kubetask/jobexpander/pkg/factory"
	"github.com/kubetask/jobexpander/pkg/jexerr"
	"github.com/kubetask/jobexpander/pkg/jobmodel"
	"github.com/kubetask/jobexpander/pkg/paramvalidate"
	"github.com/kubetask/jobexpander/pkg/resourcefile"
	"github.com/kubetask/jobexpander/pkg/template"
)

// FileSystem is the injected collaborator for reading template/parameter/
// application-template files.
type FileSystem = apptemplate.FileSystem

// Storage is the union of every storage capability the pipeline's stages
// need, so the embedding application can inject one collaborator for the
// whole expansion.
type Storage interface {
	factory.Storage
	cmdline.Storage
	resourcefile.Storage
}

// Prompter asks the caller for a missing parameter value, used only by
// ExpandTemplate.
type Prompter interface {
	Prompt(message string) (string, error)
}

// ExpandTemplate loads the template (and, if given, a parameters file),
// resolves every declared parameter (supplied value, else default, else
// interactive prompt), validates each against its declaration, and renders
// the template text.
func ExpandTemplate(ctx context.Context, templatePath, parametersPath string, fs FileSystem, prompter Prompter, logger logr.Logger) (any, error) {
	templateBytes, err := fs.ReadFile(ctx, templatePath)
	if err != nil {
		return nil, jexerr.Wrap(jexerr.IO, err, "failed to read template %q", templatePath)
	}
	var templateDoc jobmodel.Doc
	if err := json.Unmarshal(templateBytes, &templateDoc); err != nil {
		return nil, jexerr.Wrap(jexerr.Parse, err, "template %q is not valid JSON", templatePath)
	}

	paramValues := jobmodel.Doc{}
	if parametersPath != "" {
		paramBytes, err := fs.ReadFile(ctx, parametersPath)
		if err != nil {
			return nil, jexerr.Wrap(jexerr.IO, err, "failed to read parameters file %q", parametersPath)
		}
		if err := json.Unmarshal(paramBytes, &paramValues); err != nil {
			return nil, jexerr.Wrap(jexerr.Parse, err, "parameters file %q is not valid JSON", parametersPath)
		}
	}

	rawParams, _ := jobmodel.GetMap(templateDoc, "parameters")
	resolved := jobmodel.Doc{}
	for name, raw := range rawParams {
		d, ok := raw.(map[string]any)
		if !ok {
			return nil, jexerr.New(jexerr.TypeMismatch, "parameter %q definition is not an object", name)
		}
		def, err := paramvalidate.DefinitionFromDoc(d)
		if err != nil {
			return nil, err
		}
		value, err := resolveParameterValue(name, def, paramValues, prompter, logger)
		if err != nil {
			return nil, err
		}
		resolved[name] = value
	}

	rawVars, _ := jobmodel.GetMap(templateDoc, "variables")
	tctx, err := template.NewContext(rawParams, resolved, rawVars, logger)
	if err != nil {
		return nil, err
	}
	return template.Render(string(templateBytes), tctx)
}

func resolveParameterValue(name string, def paramvalidate.Definition, paramValues jobmodel.Doc, prompter Prompter, logger logr.Logger) (any, error) {
	if raw, ok := lookupSuppliedValue(paramValues, name); ok {
		coerced, err := paramvalidate.Validate(name, def, raw)
		if err == nil {
			return coerced, nil
		}
		if prompter == nil {
			return nil, err
		}
		logger.Info("supplied parameter value is invalid, prompting", "parameter", name, "error", err.Error())
	} else if def.HasDefault {
		return def.DefaultValue, nil
	} else if prompter == nil {
		return nil, jexerr.New(jexerr.OutOfRange, "parameter %q has no supplied value, no default, and no prompter", name)
	}

	for {
		answer, err := prompter.Prompt(fmt.Sprintf("Enter value for parameter %q (%s): ", name, def.Type))
		if err != nil {
			return nil, jexerr.Wrap(jexerr.IO, err, "failed to prompt for parameter %q", name)
		}
		coerced, verr := paramvalidate.Validate(name, def, answer)
		if verr == nil {
			return coerced, nil
		}
		logger.Info("invalid parameter value, reprompting", "parameter", name, "error", verr.Error())
	}
}

func lookupSuppliedValue(values jobmodel.Doc, name string) (any, bool) {
	v, ok := values[name]
	if !ok {
		return nil, false
	}
	if m, ok2 := v.(map[string]any); ok2 {
		if val, has := m["value"]; has {
			return val, true
		}
	}
	return v, true
}

// ExpandApplicationTemplate merges the template referenced by the job's
// applicationTemplateInfo into the job.
func ExpandApplicationTemplate(ctx context.Context, job jobmodel.Doc, workingDir string, fs FileSystem, logger logr.Logger) (jobmodel.Doc, error) {
	return apptemplate.Merge(ctx, job, workingDir, fs, logger)
}

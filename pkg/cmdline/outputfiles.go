// Copyright Contributors to the KubeTask project

package cmdline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kubetask/jobexpander/pkg/jexerr"
	"github.com/kubetask/jobexpander/pkg/jobmodel"
)

// Storage is the collaborator needed to resolve an autoStorage output-file
// destination into a container SAS.
type Storage interface {
	GetContainerSas(ctx context.Context, fileGroup string) (string, error)
}

const defaultFileEgressBaseURL = "https://raw.githubusercontent.com/Azure/azure-batch-cli-extensions/master"

var commonUploaderFiles = []string{
	"batchfileuploader.py",
	"configuration.py",
	"requirements.txt",
	"setup_uploader.py",
	"uploader.py",
	"util.py",
	"uploadfiles.py",
}

// UploaderConfig holds the file-egress base URL. Callers read
// FILE_EGRESS_OVERRIDE_URL once at construction time so the core never
// touches the environment mid-call.
type UploaderConfig struct {
	BaseURL string
}

// NewUploaderConfig builds an UploaderConfig, falling back to the default
// GitHub-hosted base URL when envOverride is empty.
func NewUploaderConfig(envOverride string) UploaderConfig {
	base := defaultFileEgressBaseURL
	if envOverride != "" {
		base = envOverride
	}
	return UploaderConfig{BaseURL: base}
}

// StageUploaderFiles returns the resource files that must be staged onto
// the job-preparation task's working directory for the uploader helper
// scripts.
func (c UploaderConfig) StageUploaderFiles(osFlavor OSFlavor) []any {
	names := append([]string{}, commonUploaderFiles...)
	if osFlavor == Windows {
		names = append(names, "bootstrap.cmd")
	}
	files := make([]any, 0, len(names))
	for _, name := range names {
		files = append(files, map[string]any{
			"filePath":   name,
			"blobSource": strings.TrimRight(c.BaseURL, "/") + "/" + name,
		})
	}
	return files
}

// ProcessTaskOutputFiles validates and normalizes task.outputFiles, wraps
// commandLine to upload them on exit, and records the upload config as an
// environment setting. Returns whether the task was rewritten (false when
// it has no outputFiles).
func ProcessTaskOutputFiles(ctx context.Context, task jobmodel.Doc, osFlavor OSFlavor, storage Storage) (bool, error) {
	rawOutputs, ok := jobmodel.GetSlice(task, "outputFiles")
	if !ok || len(rawOutputs) == 0 {
		return false, nil
	}

	normalized := make([]any, 0, len(rawOutputs))
	for i, raw := range rawOutputs {
		of, ok := raw.(map[string]any)
		if !ok {
			return false, jexerr.New(jexerr.TypeMismatch, "outputFiles[%d] is not an object", i)
		}
		n, err := normalizeOutputFile(ctx, of, storage)
		if err != nil {
			return false, err
		}
		normalized = append(normalized, n)
	}

	userCmd, _ := jobmodel.GetString(task, "commandLine")
	if osFlavor == Windows {
		task["commandLine"] = fmt.Sprintf(`cmd /c "%s & %%AZ_BATCH_JOB_PREP_WORKING_DIR%%\uploadfiles.py %%errorlevel%%"`, userCmd)
	} else {
		inner := fmt.Sprintf(`%s;err=$?;$AZ_BATCH_JOB_PREP_WORKING_DIR/uploadfiles.py $err;exit $err`, userCmd)
		task["commandLine"] = "/bin/bash -c " + shellQuote(inner)
	}

	configJSON, err := json.Marshal(normalized)
	if err != nil {
		return false, jexerr.Wrap(jexerr.Parse, err, "failed to serialize AZ_BATCH_FILE_UPLOAD_CONFIG")
	}
	envSettings, _ := jobmodel.GetSlice(task, "environmentSettings")
	envSettings = append(envSettings, map[string]any{
		"name":  "AZ_BATCH_FILE_UPLOAD_CONFIG",
		"value": string(configJSON),
	})
	task["environmentSettings"] = envSettings
	delete(task, "outputFiles")
	return true, nil
}

func normalizeOutputFile(ctx context.Context, of jobmodel.Doc, storage Storage) (jobmodel.Doc, error) {
	if _, ok := jobmodel.GetString(of, "filePattern"); !ok {
		return nil, jexerr.New(jexerr.TypeMismatch, "outputFiles entry requires filePattern")
	}
	dest, ok := jobmodel.GetMap(of, "destination")
	if !ok {
		return nil, jexerr.New(jexerr.TypeMismatch, "outputFiles entry requires destination")
	}
	uploadDetails, ok := jobmodel.GetMap(of, "uploadDetails")
	if !ok {
		return nil, jexerr.New(jexerr.TypeMismatch, "outputFiles entry requires uploadDetails")
	}
	if _, ok := jobmodel.GetString(uploadDetails, "taskStatus"); !ok {
		return nil, jexerr.New(jexerr.TypeMismatch, "outputFiles entry requires uploadDetails.taskStatus")
	}

	_, hasContainer := jobmodel.GetMap(dest, "container")
	autoStorage, hasAuto := jobmodel.GetMap(dest, "autoStorage")
	if hasContainer == hasAuto {
		return nil, jexerr.New(jexerr.TypeMismatch, "outputFiles destination must have exactly one of container/autoStorage")
	}
	if !hasAuto {
		return of, nil
	}

	fileGroup, _ := jobmodel.GetString(autoStorage, "fileGroup")
	sas, err := storage.GetContainerSas(ctx, fileGroup)
	if err != nil {
		return nil, jexerr.Wrap(jexerr.IO, err, "failed to obtain container SAS for file group %q", fileGroup)
	}
	path, _ := jobmodel.GetString(autoStorage, "path")

	out, ok := jobmodel.DeepCopy(of).(jobmodel.Doc)
	if !ok {
		return nil, jexerr.New(jexerr.TypeMismatch, "outputFiles entry is not an object")
	}
	out["destination"] = jobmodel.Doc{
		"container": jobmodel.Doc{
			"containerSas": sas,
			"path":         path,
		},
	}
	return out, nil
}

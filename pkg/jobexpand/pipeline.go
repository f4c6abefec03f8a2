// Copyright Contributors to the KubeTask project

package jobexpand

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/kubetask/jobexpander/pkg/cmdline"
	"github.com/kubetask/jobexpander/pkg/factory"
	"github.com/kubetask/jobexpander/pkg/jexerr"
	"github.com/kubetask/jobexpander/pkg/jobmodel"
	"github.com/kubetask/jobexpander/pkg/resourcefile"
)

// ExpandTaskFactory pops taskFactory from job and dispatches it by type.
// Returns (nil, nil) if job has no taskFactory.
func ExpandTaskFactory(ctx context.Context, job jobmodel.Doc, storage Storage, logger logr.Logger) ([]jobmodel.Doc, error) {
	factoryDoc, ok := jobmodel.GetMap(job, "taskFactory")
	if !ok {
		return nil, nil
	}
	tasks, err := factory.Expand(ctx, factoryDoc, storage, logger)
	if err != nil {
		return nil, err
	}
	delete(job, "taskFactory")
	return tasks, nil
}

// ProcessJobForOutputFiles wraps every task's commandLine for output-file
// upload, plus the job's own jobManagerTask if it carries outputFiles,
// and, if anything was rewritten, returns a command fragment that stages
// the uploader scripts for the caller to fold into the job-preparation
// task's setup (via cmdline.BuildSetupTask).
func ProcessJobForOutputFiles(ctx context.Context, job jobmodel.Doc, tasks []jobmodel.Doc, osFlavor cmdline.OSFlavor, storage cmdline.Storage, uploaderConfig cmdline.UploaderConfig) (*cmdline.CommandFragment, error) {
	rewritten := false
	if jobManagerTask, ok := jobmodel.GetMap(job, "jobManagerTask"); ok {
		ok, err := cmdline.ProcessTaskOutputFiles(ctx, jobManagerTask, osFlavor, storage)
		if err != nil {
			return nil, fmt.Errorf("jobManagerTask: %w", err)
		}
		if ok {
			rewritten = true
		}
	}
	for i, task := range tasks {
		ok, err := cmdline.ProcessTaskOutputFiles(ctx, task, osFlavor, storage)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		if ok {
			rewritten = true
		}
	}
	if !rewritten {
		return nil, nil
	}
	return &cmdline.CommandFragment{
		CmdLine:       bootstrapUploaderCommand(osFlavor),
		IsWindows:     osFlavor == cmdline.Windows,
		ResourceFiles: uploaderConfig.StageUploaderFiles(osFlavor),
	}, nil
}

// bootstrapUploaderCommand installs the uploader's Python dependencies
// once its scripts have been staged as resource files: pip-installing
// requirements.txt on Linux, running the staged bootstrap.cmd on Windows.
func bootstrapUploaderCommand(osFlavor cmdline.OSFlavor) string {
	if osFlavor == cmdline.Windows {
		return `%AZ_BATCH_JOB_PREP_WORKING_DIR%\bootstrap.cmd`
	}
	return `pip3 install -r $AZ_BATCH_JOB_PREP_WORKING_DIR/requirements.txt`
}

// ProcessPoolPackageReferences builds the install command for the pool's
// packageReferences, if any, and strips them from the pool. The resulting
// command's OS must agree with the pool's own inferred OS: a Windows pool
// cannot install an aptPackage.
func ProcessPoolPackageReferences(pool jobmodel.Doc, osFlavor cmdline.OSFlavor) (*cmdline.CommandFragment, error) {
	refs, ok := jobmodel.GetSlice(pool, "packageReferences")
	if !ok || len(refs) == 0 {
		return nil, nil
	}
	install, err := cmdline.BuildPackageInstallCommand(jobmodel.AsDocs(refs))
	if err != nil {
		return nil, err
	}
	if err := checkPackageOSMatch(install, osFlavor); err != nil {
		return nil, err
	}
	delete(pool, "packageReferences")
	return &cmdline.CommandFragment{CmdLine: install.CmdLine, IsWindows: install.IsWindows}, nil
}

// ProcessTaskPackageReferences builds one install command from the union
// of every task's packageReferences, de-duplicated by id, then strips
// packageReferences from every task. osFlavor is the pool's inferred OS; a
// package type whose OS disagrees with it is rejected rather than silently
// producing a command the pool can never run.
func ProcessTaskPackageReferences(tasks []jobmodel.Doc, osFlavor cmdline.OSFlavor) (*cmdline.CommandFragment, error) {
	seen := make(map[string]bool)
	var deduped []jobmodel.Doc
	anyRefs := false
	for _, task := range tasks {
		if refs, ok := jobmodel.GetSlice(task, "packageReferences"); ok && len(refs) > 0 {
			anyRefs = true
			for _, d := range jobmodel.AsDocs(refs) {
				id, _ := jobmodel.GetString(d, "id")
				if seen[id] {
					continue
				}
				seen[id] = true
				deduped = append(deduped, d)
			}
		}
		delete(task, "packageReferences")
	}
	if !anyRefs {
		return nil, nil
	}
	install, err := cmdline.BuildPackageInstallCommand(deduped)
	if err != nil {
		return nil, err
	}
	if err := checkPackageOSMatch(install, osFlavor); err != nil {
		return nil, err
	}
	return &cmdline.CommandFragment{CmdLine: install.CmdLine, IsWindows: install.IsWindows}, nil
}

func checkPackageOSMatch(install cmdline.InstallCommand, osFlavor cmdline.OSFlavor) error {
	wantWindows := osFlavor == cmdline.Windows
	if install.IsWindows != wantWindows {
		return jexerr.New(jexerr.TypeMismatch, "packageReferences require %s but pool OS is %s", installOSName(install.IsWindows), osFlavor)
	}
	return nil
}

func installOSName(isWindows bool) string {
	if isWindows {
		return "windows"
	}
	return "linux"
}

// PostProcessing resolves every abstract resourceFiles/commonResourceFiles
// reference in req into concrete blob references.
func PostProcessing(ctx context.Context, req any, storage resourcefile.Storage) (any, error) {
	return resourcefile.Process(ctx, req, storage)
}

// ShouldGetPool reports whether the caller needs pool OS information:
// true iff any task has packageReferences, outputFiles, or
// clientExtensions.dockerOptions.
func ShouldGetPool(tasks []jobmodel.Doc) bool {
	for _, t := range tasks {
		if refs, ok := jobmodel.GetSlice(t, "packageReferences"); ok && len(refs) > 0 {
			return true
		}
		if of, ok := jobmodel.GetSlice(t, "outputFiles"); ok && len(of) > 0 {
			return true
		}
		if ce, ok := jobmodel.GetMap(t, "clientExtensions"); ok {
			if _, ok := jobmodel.GetMap(ce, "dockerOptions"); ok {
				return true
			}
		}
	}
	return false
}

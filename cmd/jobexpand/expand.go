// Copyright Contributors to the KubeTask project

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/kubetask/jobexpander/internal/logging"
	"github.com/kubetask/jobexpander/pkg/cliio"
	"github.com/kubetask/jobexpander/pkg/cmdline"
	"github.com/kubetask/jobexpander/pkg/jobexpand"
	"github.com/kubetask/jobexpander/pkg/jobmodel"
	"github.com/kubetask/jobexpander/pkg/localstorage"
)

func init() {
	rootCmd.AddCommand(expandCmd)
	expandCmd.Flags().StringVar(&expandTemplate, "template", "", "Path to the job template JSON file (required)")
	expandCmd.Flags().StringVar(&expandParameters, "parameters", "", "Path to a parameters JSON file")
	expandCmd.Flags().StringVar(&expandWorkingDir, "working-dir", ".", "Working directory application-template filePath values are resolved against")
	expandCmd.Flags().StringVar(&expandFileRoot, "file-root", ".", "Local directory used to resolve fileGroup/prefix resource-file and taskPerFile references")
	expandCmd.Flags().StringVar(&expandOutput, "output", "json", "Output format: json or yaml")
	expandCmd.Flags().BoolVar(&expandVerbose, "verbose", false, "Enable verbose development logging")
	_ = expandCmd.MarkFlagRequired("template")
}

var (
	expandTemplate   string
	expandParameters string
	expandWorkingDir string
	expandFileRoot   string
	expandOutput     string
	expandVerbose    bool
)

var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Render a job template and expand its task factory into a concrete job and task list",
	RunE:  runExpand,
}

// expandResult is the shape printed to stdout: the fully-expanded job
// document alongside its ordered, concrete task list.
type expandResult struct {
	Job   jobmodel.Doc   `json:"job"`
	Tasks []jobmodel.Doc `json:"tasks"`
}

func runExpand(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	logger := logging.New(expandVerbose)

	fs := cliio.OSFileSystem{}
	prompter := cliio.NewStdinPrompter()
	storage := localstorage.New(expandFileRoot)
	uploaderConfig := cmdline.NewUploaderConfig(os.Getenv("FILE_EGRESS_OVERRIDE_URL"))

	rendered, err := jobexpand.ExpandTemplate(ctx, expandTemplate, expandParameters, fs, prompter, logger)
	if err != nil {
		return err
	}
	job, ok := rendered.(jobmodel.Doc)
	if !ok {
		return fmt.Errorf("rendered template %q is not a JSON object", expandTemplate)
	}

	job, err = jobexpand.ExpandApplicationTemplate(ctx, job, expandWorkingDir, fs, logger)
	if err != nil {
		return err
	}

	tasks, err := jobexpand.ExpandTaskFactory(ctx, job, storage, logger)
	if err != nil {
		return err
	}
	if tasks == nil {
		tasks = []jobmodel.Doc{}
	}

	pool, _ := extractPool(job)
	osFlavor := cmdline.Linux
	if pool != nil {
		osFlavor = cmdline.InferOSFlavor(pool)
	} else if jobexpand.ShouldGetPool(tasks) {
		logger.Info("task list references pool-dependent features but the job carries no inline pool; defaulting to linux", "job", job["id"])
	}

	var poolFragments []cmdline.CommandFragment
	if pool != nil {
		frag, err := jobexpand.ProcessPoolPackageReferences(pool, osFlavor)
		if err != nil {
			return err
		}
		if frag != nil {
			poolFragments = append(poolFragments, *frag)
		}
	}
	if len(poolFragments) > 0 {
		startTask, _ := jobmodel.GetMap(pool, "startTask")
		merged, err := cmdline.BuildSetupTask(startTask, poolFragments)
		if err != nil {
			return err
		}
		pool["startTask"] = merged
	}

	var prepFragments []cmdline.CommandFragment
	taskFrag, err := jobexpand.ProcessTaskPackageReferences(tasks, osFlavor)
	if err != nil {
		return err
	}
	if taskFrag != nil {
		prepFragments = append(prepFragments, *taskFrag)
	}
	outputFrag, err := jobexpand.ProcessJobForOutputFiles(ctx, job, tasks, osFlavor, storage, uploaderConfig)
	if err != nil {
		return err
	}
	if outputFrag != nil {
		prepFragments = append(prepFragments, *outputFrag)
	}
	if len(prepFragments) > 0 {
		prepTask, _ := jobmodel.GetMap(job, "jobPreparationTask")
		merged, err := cmdline.BuildSetupTask(prepTask, prepFragments)
		if err != nil {
			return err
		}
		job["jobPreparationTask"] = merged
	}

	processedJob, err := jobexpand.PostProcessing(ctx, job, storage)
	if err != nil {
		return err
	}
	job, _ = processedJob.(jobmodel.Doc)

	processedTasks, err := jobexpand.PostProcessing(ctx, anySliceFromDocs(tasks), storage)
	if err != nil {
		return err
	}
	tasks = docsFromAnySlice(processedTasks)

	return printResult(expandResult{Job: job, Tasks: tasks}, expandOutput)
}

// extractPool returns job.poolInfo.autoPoolSpecification.pool, the only
// shape in which a job carries a concrete, OS-inferrable pool definition
// inline; a poolId reference to a pre-existing pool has no local pool
// document to inspect, and the remote pool lookup belongs to the embedding
// application.
func extractPool(job jobmodel.Doc) (jobmodel.Doc, bool) {
	poolInfo, ok := jobmodel.GetMap(job, "poolInfo")
	if !ok {
		return nil, false
	}
	auto, ok := jobmodel.GetMap(poolInfo, "autoPoolSpecification")
	if !ok {
		return nil, false
	}
	return jobmodel.GetMap(auto, "pool")
}

func anySliceFromDocs(docs []jobmodel.Doc) []any {
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out
}

func docsFromAnySlice(v any) []jobmodel.Doc {
	items, _ := v.([]any)
	return jobmodel.AsDocs(items)
}

func printResult(result expandResult, format string) error {
	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}
	switch format {
	case "", "json":
		fmt.Println(string(b))
	case "yaml":
		y, err := sigsyaml.JSONToYAML(b)
		if err != nil {
			return fmt.Errorf("failed to convert result to yaml: %w", err)
		}
		fmt.Print(string(y))
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
	return nil
}

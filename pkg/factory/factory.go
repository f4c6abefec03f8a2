// Copyright Contributors to the KubeTask project

// Package factory expands parametricSweep, taskCollection, and
// taskPerFile task factories into ordered concrete task lists.
package factory

import (
	"context"
	"strconv"

	"github.com/go-logr/logr"

	"github.com/kubetask/jobexpander/pkg/jexerr"
	"github.com/kubetask/jobexpander/pkg/jobmodel"
	"github.com/kubetask/jobexpander/pkg/placeholder"
)

// Storage is the injected collaborator backing taskPerFile.
type Storage interface {
	GetContainerList(ctx context.Context, source jobmodel.Doc) ([]placeholder.FileRef, error)
}

// repeatTaskProps is the whitelisted set of per-task properties a repeat
// task (and a mergeTask, "parsed like a repeat task") may carry.
var repeatTaskProps = []string{
	"displayName",
	"resourceFiles",
	"environmentSettings",
	"constraints",
	"userIdentity",
	"exitConditions",
	"clientExtensions",
	"outputFiles",
	"packageReferences",
	"commandLine",
}

// collectionTaskProps additionally allows the caller-supplied id plus the
// two properties only a taskCollection task can set directly.
var collectionTaskProps = append(append([]string{}, repeatTaskProps...), "id", "multiInstanceSettings", "dependsOn")

// Expand dispatches a taskFactory document by its "type" to the matching
// expander.
func Expand(ctx context.Context, factory jobmodel.Doc, storage Storage, logger logr.Logger) ([]jobmodel.Doc, error) {
	typ, _ := jobmodel.GetString(factory, "type")
	switch typ {
	case "parametricSweep":
		return expandParametricSweep(factory)
	case "taskCollection":
		return expandTaskCollection(factory)
	case "taskPerFile":
		return expandTaskPerFile(ctx, factory, storage)
	default:
		return nil, jexerr.New(jexerr.TypeMismatch, "unknown task factory type %q", typ)
	}
}

func expandParametricSweep(factory jobmodel.Doc) ([]jobmodel.Doc, error) {
	setsRaw, ok := jobmodel.GetSlice(factory, "parameterSets")
	if !ok || len(setsRaw) == 0 {
		return nil, jexerr.New(jexerr.TypeMismatch, "parametricSweep requires a non-empty parameterSets")
	}
	repeatTaskDoc, ok := jobmodel.GetMap(factory, "repeatTask")
	if !ok {
		return nil, jexerr.New(jexerr.TypeMismatch, "parametricSweep requires repeatTask")
	}
	repeatTaskDoc, err := validateRepeatTaskDoc(repeatTaskDoc)
	if err != nil {
		return nil, err
	}

	ranges := make([][]int64, 0, len(setsRaw))
	for i, raw := range setsRaw {
		setDoc, ok := raw.(map[string]any)
		if !ok {
			return nil, jexerr.New(jexerr.TypeMismatch, "parameterSets[%d] is not an object", i)
		}
		r, err := buildRange(i, setDoc)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}

	tuples := cartesianProduct(ranges)
	tasks := make([]jobmodel.Doc, 0, len(tuples))
	for i, tuple := range tuples {
		task, ok := jobmodel.DeepCopy(repeatTaskDoc).(jobmodel.Doc)
		if !ok {
			return nil, jexerr.New(jexerr.TypeMismatch, "repeatTask is not an object")
		}
		if err := applySubstitution(task, placeholder.Sweep(tuple)); err != nil {
			return nil, err
		}
		task["id"] = strconv.Itoa(i)
		tasks = append(tasks, task)
	}

	if mergeRaw, ok := jobmodel.GetMap(factory, "mergeTask"); ok {
		tasks = append(tasks, buildMergeTask(mergeRaw, len(tasks)))
	}
	return tasks, nil
}

func buildRange(index int, setDoc jobmodel.Doc) ([]int64, error) {
	start, ok := asInt64(setDoc["start"])
	if !ok {
		return nil, jexerr.New(jexerr.TypeMismatch, "parameterSets[%d].start is required", index)
	}
	end, ok := asInt64(setDoc["end"])
	if !ok {
		return nil, jexerr.New(jexerr.TypeMismatch, "parameterSets[%d].end is required", index)
	}
	step := int64(1)
	if raw, has := setDoc["step"]; has {
		step, ok = asInt64(raw)
		if !ok {
			return nil, jexerr.New(jexerr.TypeMismatch, "parameterSets[%d].step is not an integer", index)
		}
	}
	if step == 0 {
		return nil, jexerr.New(jexerr.OutOfRange, "parameterSets[%d].step must not be zero", index)
	}
	if step > 0 && start > end {
		return nil, jexerr.New(jexerr.OutOfRange, "parameterSets[%d]: start %d is after end %d with positive step", index, start, end)
	}
	if step < 0 && start < end {
		return nil, jexerr.New(jexerr.OutOfRange, "parameterSets[%d]: start %d is before end %d with negative step", index, start, end)
	}

	var values []int64
	if step > 0 {
		for v := start; v <= end; v += step {
			values = append(values, v)
		}
	} else {
		for v := start; v >= end; v += step {
			values = append(values, v)
		}
	}
	return values, nil
}

// cartesianProduct returns every tuple of the cartesian product of ranges,
// in row-major order: the last range varies fastest.
func cartesianProduct(ranges [][]int64) [][]int64 {
	result := [][]int64{{}}
	for _, r := range ranges {
		next := make([][]int64, 0, len(result)*len(r))
		for _, prefix := range result {
			for _, v := range r {
				tuple := make([]int64, len(prefix)+1)
				copy(tuple, prefix)
				tuple[len(prefix)] = v
				next = append(next, tuple)
			}
		}
		result = next
	}
	return result
}

// validateRepeatTaskDoc requires a repeatTask to have commandLine, rejects
// a caller-supplied id (the expander assigns ids itself), and drops any
// property outside repeatTaskProps.
func validateRepeatTaskDoc(doc jobmodel.Doc) (jobmodel.Doc, error) {
	if _, hasID := doc["id"]; hasID {
		return nil, jexerr.New(jexerr.TypeMismatch, "repeatTask must not set id")
	}
	if _, ok := jobmodel.GetString(doc, "commandLine"); !ok {
		return nil, jexerr.New(jexerr.TypeMismatch, "repeatTask must have commandLine")
	}
	return filterProps(doc, repeatTaskProps), nil
}

func buildMergeTask(mergeRaw jobmodel.Doc, n int) jobmodel.Doc {
	task := filterProps(mergeRaw, repeatTaskProps)
	task["id"] = "merge"
	task["dependsOn"] = jobmodel.Doc{
		"taskIdRanges": jobmodel.Doc{
			"start": 0,
			"end":   n - 1,
		},
	}
	return task
}

func expandTaskCollection(factory jobmodel.Doc) ([]jobmodel.Doc, error) {
	rawTasks, ok := jobmodel.GetSlice(factory, "tasks")
	if !ok {
		return nil, jexerr.New(jexerr.TypeMismatch, "taskCollection requires tasks")
	}
	tasks := make([]jobmodel.Doc, 0, len(rawTasks))
	for i, raw := range rawTasks {
		t, ok := raw.(map[string]any)
		if !ok {
			return nil, jexerr.New(jexerr.TypeMismatch, "tasks[%d] is not an object", i)
		}
		if _, ok := jobmodel.GetString(t, "id"); !ok {
			return nil, jexerr.New(jexerr.TypeMismatch, "tasks[%d].id is required", i)
		}
		if _, ok := jobmodel.GetString(t, "commandLine"); !ok {
			return nil, jexerr.New(jexerr.TypeMismatch, "tasks[%d].commandLine is required", i)
		}
		tasks = append(tasks, filterProps(t, collectionTaskProps))
	}
	return tasks, nil
}

func expandTaskPerFile(ctx context.Context, factory jobmodel.Doc, storage Storage) ([]jobmodel.Doc, error) {
	source, ok := jobmodel.GetMap(factory, "source")
	if !ok {
		return nil, jexerr.New(jexerr.TypeMismatch, "taskPerFile requires source")
	}
	repeatTaskDoc, ok := jobmodel.GetMap(factory, "repeatTask")
	if !ok {
		return nil, jexerr.New(jexerr.TypeMismatch, "taskPerFile requires repeatTask")
	}
	repeatTaskDoc, err := validateRepeatTaskDoc(repeatTaskDoc)
	if err != nil {
		return nil, err
	}

	files, err := storage.GetContainerList(ctx, source)
	if err != nil {
		return nil, jexerr.Wrap(jexerr.IO, err, "failed to list files for taskPerFile")
	}

	tasks := make([]jobmodel.Doc, 0, len(files))
	for i, f := range files {
		task, ok := jobmodel.DeepCopy(repeatTaskDoc).(jobmodel.Doc)
		if !ok {
			return nil, jexerr.New(jexerr.TypeMismatch, "repeatTask is not an object")
		}
		if err := applySubstitution(task, placeholder.File(f)); err != nil {
			return nil, err
		}
		task["id"] = strconv.Itoa(i)
		tasks = append(tasks, task)
	}

	if mergeRaw, ok := jobmodel.GetMap(factory, "mergeTask"); ok {
		tasks = append(tasks, buildMergeTask(mergeRaw, len(tasks)))
	}
	return tasks, nil
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	default:
		return 0, false
	}
}

func filterProps(doc jobmodel.Doc, allowed []string) jobmodel.Doc {
	out := jobmodel.Doc{}
	for _, k := range allowed {
		if v, ok := doc[k]; ok {
			out[k] = jobmodel.DeepCopy(v)
		}
	}
	return out
}

// applySubstitution runs fn over every stringly-typed position a repeat
// task exposes to placeholders, leaving everything else untouched.
func applySubstitution(task jobmodel.Doc, fn placeholder.Func) error {
	if err := substField(task, "commandLine", fn); err != nil {
		return err
	}
	if err := substField(task, "displayName", fn); err != nil {
		return err
	}
	if rf, ok := jobmodel.GetSlice(task, "resourceFiles"); ok {
		if err := applyResourceFiles(rf, fn); err != nil {
			return err
		}
	}
	if es, ok := jobmodel.GetSlice(task, "environmentSettings"); ok {
		if err := applyEnvironmentSettings(es, fn); err != nil {
			return err
		}
	}
	if of, ok := jobmodel.GetSlice(task, "outputFiles"); ok {
		if err := applyOutputFiles(of, fn); err != nil {
			return err
		}
	}
	return applyClientExtensions(task, fn)
}

func substField(m jobmodel.Doc, key string, fn placeholder.Func) error {
	s, ok := jobmodel.GetString(m, key)
	if !ok {
		return nil
	}
	out, err := placeholder.Substitute(s, fn)
	if err != nil {
		return err
	}
	m[key] = out
	return nil
}

var resourceFileSourceKeys = []string{"fileGroup", "prefix", "containerUrl", "url"}

func applyResourceFiles(list []any, fn placeholder.Func) error {
	for _, item := range list {
		rf, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if err := substField(rf, "filePath", fn); err != nil {
			return err
		}
		if src, ok := jobmodel.GetMap(rf, "source"); ok {
			for _, key := range resourceFileSourceKeys {
				if _, has := src[key]; has {
					if err := substField(src, key, fn); err != nil {
						return err
					}
				}
			}
		} else if err := substField(rf, "blobSource", fn); err != nil {
			return err
		}
	}
	return nil
}

func applyEnvironmentSettings(list []any, fn placeholder.Func) error {
	for _, item := range list {
		es, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if err := substField(es, "name", fn); err != nil {
			return err
		}
		if err := substField(es, "value", fn); err != nil {
			return err
		}
	}
	return nil
}

func applyOutputFiles(list []any, fn placeholder.Func) error {
	for _, item := range list {
		of, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if err := substField(of, "filePattern", fn); err != nil {
			return err
		}
		dest, ok := jobmodel.GetMap(of, "destination")
		if !ok {
			continue
		}
		if container, ok := jobmodel.GetMap(dest, "container"); ok {
			if err := substField(container, "path", fn); err != nil {
				return err
			}
			if err := substField(container, "containerSas", fn); err != nil {
				return err
			}
		}
		if auto, ok := jobmodel.GetMap(dest, "autoStorage"); ok {
			if err := substField(auto, "path", fn); err != nil {
				return err
			}
			if err := substField(auto, "fileGroup", fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyClientExtensions(task jobmodel.Doc, fn placeholder.Func) error {
	ce, ok := jobmodel.GetMap(task, "clientExtensions")
	if !ok {
		return nil
	}
	docker, ok := jobmodel.GetMap(ce, "dockerOptions")
	if !ok {
		return nil
	}
	if err := substField(docker, "image", fn); err != nil {
		return err
	}
	if dataVolumes, ok := jobmodel.GetSlice(docker, "dataVolumes"); ok {
		for _, item := range dataVolumes {
			dv, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if err := substField(dv, "hostPath", fn); err != nil {
				return err
			}
			if err := substField(dv, "containerPath", fn); err != nil {
				return err
			}
		}
	}
	if sharedVolumes, ok := jobmodel.GetSlice(docker, "sharedDataVolumes"); ok {
		for _, item := range sharedVolumes {
			sv, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if err := substField(sv, "name", fn); err != nil {
				return err
			}
			if err := substField(sv, "containerPath", fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Copyright Contributors to the KubeTask project

package jobexpand_test

import (
	"context"

	"github.com/kubetask/jobexpander/pkg/jexerr"
	"github.com/kubetask/jobexpander/pkg/jobmodel"
	"github.com/kubetask/jobexpander/pkg/placeholder"
)

type fakeFS struct {
	files map[string][]byte
}

func (f fakeFS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, jexerr.New(jexerr.IO, "no such file %q", path)
	}
	return data, nil
}

type fakePrompter struct {
	answers map[string]string
}

func (p fakePrompter) Prompt(message string) (string, error) {
	for name, answer := range p.answers {
		_ = name
		return answer, nil
	}
	return "", jexerr.New(jexerr.IO, "no scripted answer for prompt %q", message)
}

// fakeStorage backs every collaborator capability the pipeline needs:
// factory.Storage (GetContainerList), cmdline.Storage (GetContainerSas), and
// resourcefile.Storage (ResolveResourceFile).
type fakeStorage struct {
	files map[string][]placeholder.FileRef
	sas   string
}

func (s fakeStorage) GetContainerList(ctx context.Context, source jobmodel.Doc) ([]placeholder.FileRef, error) {
	group, _ := jobmodel.GetString(source, "fileGroup")
	return s.files[group], nil
}

func (s fakeStorage) GetContainerSas(ctx context.Context, fileGroup string) (string, error) {
	if s.sas == "" {
		return "sv=fake", nil
	}
	return s.sas, nil
}

func (s fakeStorage) ResolveResourceFile(ctx context.Context, ref jobmodel.Doc) ([]any, error) {
	return []any{ref}, nil
}

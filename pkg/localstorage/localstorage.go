// Copyright Contributors to the KubeTask project

// Package localstorage is a filesystem-backed stand-in for the storage
// collaborator the pipeline calls for resource-file resolution, container
// SAS issuance, and container listings. The core never talks to real blob
// storage itself, so this package exists to give the demonstration CLI
// (cmd/jobexpand) something concrete to inject; an embedding application
// talking to real blob storage supplies its own implementation of the same
// three interfaces instead.
package localstorage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kubetask/jobexpander/pkg/jexerr"
	"github.com/kubetask/jobexpander/pkg/jobmodel"
	"github.com/kubetask/jobexpander/pkg/placeholder"
)

// Storage resolves file-group/prefix/container references against a local
// directory tree, rooted at BaseDir, instead of a real blob container.
type Storage struct {
	BaseDir string
}

// New returns a Storage rooted at baseDir.
func New(baseDir string) Storage {
	return Storage{BaseDir: baseDir}
}

// ResolveResourceFile implements resourcefile.Storage: a reference that
// already carries blobSource/httpUrl is concrete and returned as-is; a
// fileGroup/prefix reference expands into one entry per matching local file.
func (s Storage) ResolveResourceFile(ctx context.Context, ref jobmodel.Doc) ([]any, error) {
	if _, ok := ref["blobSource"]; ok {
		return []any{ref}, nil
	}
	if _, ok := ref["httpUrl"]; ok {
		return []any{ref}, nil
	}
	source, ok := jobmodel.GetMap(ref, "source")
	if !ok {
		return []any{ref}, nil
	}
	filePath, _ := jobmodel.GetString(ref, "filePath")

	files, err := s.listGroup(source)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(files))
	for _, f := range files {
		entry := jobmodel.Doc{
			"blobSource": f.URL,
			"filePath":   f.FilePath,
		}
		if filePath != "" && len(files) == 1 {
			entry["filePath"] = filePath
		}
		out = append(out, entry)
	}
	return out, nil
}

// GetContainerSas fabricates a local pseudo-SAS token for fileGroup. Real
// deployments inject a collaborator that calls the storage account's SAS
// issuance API instead.
func (s Storage) GetContainerSas(ctx context.Context, fileGroup string) (string, error) {
	if fileGroup == "" {
		return "", jexerr.New(jexerr.TypeMismatch, "fileGroup is required to obtain a container SAS")
	}
	return "local-sas?fileGroup=" + fileGroup, nil
}

// GetContainerList implements factory.Storage's taskPerFile backing: it
// walks source.fileGroup (optionally narrowed by source.prefix) under
// BaseDir and returns one FileRef per regular file found, sorted by path
// for deterministic task ordering.
func (s Storage) GetContainerList(ctx context.Context, source jobmodel.Doc) ([]placeholder.FileRef, error) {
	return s.listGroup(source)
}

func (s Storage) listGroup(source jobmodel.Doc) ([]placeholder.FileRef, error) {
	fileGroup, _ := jobmodel.GetString(source, "fileGroup")
	if fileGroup == "" {
		return nil, jexerr.New(jexerr.TypeMismatch, "source.fileGroup is required for a local container listing")
	}
	prefix, _ := jobmodel.GetString(source, "prefix")

	root := filepath.Join(s.BaseDir, fileGroup)
	var refs []placeholder.FileRef
	err := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(rel, prefix) {
			return nil
		}
		name := filepath.Base(rel)
		ext := filepath.Ext(name)
		refs = append(refs, placeholder.FileRef{
			URL:                      "file://" + filepath.ToSlash(path),
			FilePath:                 rel,
			FileName:                 name,
			FileNameWithoutExtension: strings.TrimSuffix(name, ext),
		})
		return nil
	})
	if err != nil {
		return nil, jexerr.Wrap(jexerr.IO, err, "failed to list local file group %q", fileGroup)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].FilePath < refs[j].FilePath })
	return refs, nil
}

// Copyright Contributors to the KubeTask project

// Package resourcefile resolves abstract resourceFiles/
// commonResourceFiles references into concrete blob references via the
// storage collaborator.
package resourcefile

import (
	"context"

	"github.com/kubetask/jobexpander/pkg/jexerr"
	"github.com/kubetask/jobexpander/pkg/jobmodel"
)

// Storage is the injected collaborator that turns one abstract resource
// file reference into zero-or-more concrete ones (a file-group reference
// may expand into N blob references).
type Storage interface {
	ResolveResourceFile(ctx context.Context, ref jobmodel.Doc) ([]any, error)
}

// Process recursively walks doc, replacing every resourceFiles/
// commonResourceFiles list with the flattened result of resolving each of
// its entries, and descending into every other nested object/array.
func Process(ctx context.Context, doc any, storage Storage) (any, error) {
	switch v := doc.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			if key != "resourceFiles" && key != "commonResourceFiles" {
				processed, err := Process(ctx, value, storage)
				if err != nil {
					return nil, err
				}
				out[key] = processed
				continue
			}
			list, ok := value.([]any)
			if !ok {
				out[key] = value
				continue
			}
			resolved, err := resolveList(ctx, list, storage)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, value := range v {
			processed, err := Process(ctx, value, storage)
			if err != nil {
				return nil, err
			}
			out[i] = processed
		}
		return out, nil
	default:
		return v, nil
	}
}

func resolveList(ctx context.Context, list []any, storage Storage) ([]any, error) {
	var resolved []any
	for i, item := range list {
		ref, ok := item.(map[string]any)
		if !ok {
			return nil, jexerr.New(jexerr.TypeMismatch, "resourceFiles[%d] is not an object", i)
		}
		concrete, err := storage.ResolveResourceFile(ctx, ref)
		if err != nil {
			return nil, jexerr.Wrap(jexerr.IO, err, "failed to resolve resource file at index %d", i)
		}
		resolved = append(resolved, concrete...)
	}
	return resolved, nil
}

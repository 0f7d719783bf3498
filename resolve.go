// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/msiextract

package msiextract

import (
	"fmt"
	"path"

	"go.uber.org/zap"
)

// Resolver turns table ids into relative install paths using an Index.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	idx    *Index
	logger *zap.Logger
	warn   func(w Warning)
}

// NewResolver returns a resolver over idx. Warnings go to logger and onWarning when set.
func NewResolver(idx *Index, logger *zap.Logger, onWarning func(w Warning)) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Resolver{idx: idx, logger: logger, warn: onWarning}
}

// ResolveDirectory returns directory path segments from just below the root
// down to dirID. The root directory name is never included.
func (r *Resolver) ResolveDirectory(dirID string) ([]string, error) {
	name, ok := r.idx.dirName[dirID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDirectory, dirID)
	}

	segments := []string{name}
	visited := map[string]struct{}{dirID: {}}

	cur := dirID
	for {
		parent, ok := r.idx.dirParent[cur]
		if !ok {
			break
		}
		if _, seen := visited[parent]; seen {
			return nil, fmt.Errorf("%w: cycle at %s from %s", ErrMalformedHierarchy, parent, dirID)
		}

		visited[parent] = struct{}{}
		cur = parent

		parentName, ok := r.idx.dirName[cur]
		if !ok {
			r.emit(Warning{
				Kind:      WarningMissingDirectoryName,
				Directory: cur,
				Message:   fmt.Sprintf("directory %s on the parent chain of %s has no default name", cur, dirID),
			})
		}
		segments = append(segments, parentName)
	}

	// drop root
	segments = segments[:len(segments)-1]

	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}

	return segments, nil
}

// ResolveFileSegments returns directory segments plus decoded long filename for fileID.
func (r *Resolver) ResolveFileSegments(fileID string) ([]string, error) {
	return r.resolveFileSegments(fileID, nil)
}

// ResolveFile returns slash-separated relative install path for fileID.
func (r *Resolver) ResolveFile(fileID string) (string, error) {
	segments, err := r.resolveFileSegments(fileID, nil)
	if err != nil {
		return "", err
	}

	return path.Join(segments...), nil
}

// resolveFileSegments resolves one file, memoizing directory paths in cache when non-nil.
func (r *Resolver) resolveFileSegments(fileID string, cache map[string][]string) ([]string, error) {
	rawName, ok := r.idx.fileName[fileID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFile, fileID)
	}

	component, ok := r.idx.fileComponent[fileID]
	if !ok {
		return nil, fmt.Errorf("%w: file %s has no component", ErrUnknownComponent, fileID)
	}

	dirID, ok := r.idx.componentDir[component]
	if !ok {
		return nil, fmt.Errorf("%w: component %s of file %s not found", ErrUnknownComponent, component, fileID)
	}

	dirSegments, cached := cache[dirID]
	if !cached {
		var err error
		dirSegments, err = r.ResolveDirectory(dirID)
		if err != nil {
			return nil, fmt.Errorf("resolve directory of file %s: %w", fileID, err)
		}
		if cache != nil {
			cache[dirID] = dirSegments
		}
	}

	out := make([]string, 0, len(dirSegments)+1)
	out = append(out, dirSegments...)
	return append(out, LongName(rawName)), nil
}

// emit routes one warning to logger and callback.
func (r *Resolver) emit(w Warning) {
	r.logger.Warn(w.Message,
		zap.String("kind", string(w.Kind)),
		zap.String("directory", w.Directory),
		zap.String("file_id", w.FileID),
	)

	if r.warn != nil {
		r.warn(w)
	}
}

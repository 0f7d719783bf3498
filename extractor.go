// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/msiextract

package msiextract

import (
	"io"
	"path"
	"sync"

	"go.uber.org/zap"
)

// Extractor pairs the embedded cabinet of an installer package with the
// install paths rebuilt from its tables.
type Extractor struct {
	// index is the immutable table index built at open time.
	index *Index
	// resolver resolves paths with open-time warning sink.
	resolver *Resolver
	// cab is the located and validated embedded cabinet.
	cab *cabinetStream
	// closer is set when Extractor owns the package.
	closer io.Closer
	// logger receives structured diagnostics.
	logger *zap.Logger
	// onWarning is the open-time warning sink.
	onWarning func(w Warning)
	// mu guards closed state and close operation.
	mu sync.Mutex
	// closed reports whether Close was already called.
	closed bool
}

// Open opens an installer package by path and prepares it for extraction.
func Open(path string) (*Extractor, error) {
	return OpenWithOptions(path, OpenOptions{})
}

// OpenWithOptions opens an installer package by path using explicit options.
func OpenWithOptions(path string, opts OpenOptions) (*Extractor, error) {
	pkg, err := OpenPackage(path)
	if err != nil {
		return nil, err
	}

	x, err := NewExtractor(pkg, opts)
	if err != nil {
		_ = pkg.Close()
		return nil, err
	}

	x.closer = pkg
	return x, nil
}

// NewExtractorFromReaderAt parses an installer package from existing ReaderAt and known size.
func NewExtractorFromReaderAt(ra io.ReaderAt, size int64, opts OpenOptions) (*Extractor, error) {
	pkg, err := OpenPackageReaderAt(ra, size)
	if err != nil {
		return nil, err
	}

	x, err := NewExtractor(pkg, opts)
	if err != nil {
		return nil, err
	}

	x.closer = pkg
	return x, nil
}

// NewExtractor builds the table index and locates the embedded cabinet of src.
// Closing the extractor does not close src.
func NewExtractor(src PackageSource, opts OpenOptions) (*Extractor, error) {
	if src == nil {
		return nil, ErrNilReader
	}

	opts.applyDefaults()

	idx, err := BuildIndex(src)
	if err != nil {
		return nil, err
	}

	cab, err := openCabinetStream(src)
	if err != nil {
		return nil, err
	}

	opts.Logger.Debug("package opened",
		zap.String("cabinet", cab.name),
		zap.Int("files", idx.FileCount()),
		zap.Int("directories", idx.DirectoryCount()),
	)

	return &Extractor{
		index:     idx,
		resolver:  NewResolver(idx, opts.Logger, opts.OnWarning),
		cab:       cab,
		logger:    opts.Logger,
		onWarning: opts.OnWarning,
	}, nil
}

// CabinetName returns the name of the embedded cabinet stream.
func (x *Extractor) CabinetName() string {
	if x == nil || x.cab == nil {
		return ""
	}

	return x.cab.name
}

// Index returns the table index built at open time.
func (x *Extractor) Index() *Index {
	if x == nil {
		return nil
	}

	return x.index
}

// ResolveFile returns slash-separated relative install path for fileID.
func (x *Extractor) ResolveFile(fileID string) (string, error) {
	if err := x.checkOpen(); err != nil {
		return "", err
	}

	return x.resolver.ResolveFile(fileID)
}

// ResolveDirectory returns path segments below the root for dirID.
func (x *Extractor) ResolveDirectory(dirID string) ([]string, error) {
	if err := x.checkOpen(); err != nil {
		return nil, err
	}

	return x.resolver.ResolveDirectory(dirID)
}

// Entries lists cabinet entries with resolved install paths without decompressing payload.
// Unresolvable entries carry Err instead of Path.
func (x *Extractor) Entries() ([]EntryInfo, error) {
	if err := x.checkOpen(); err != nil {
		return nil, err
	}

	files := x.cab.entries()
	cache := make(map[string][]string)
	entries := make([]EntryInfo, 0, len(files))
	for _, file := range files {
		info := EntryInfo{FileID: file.name, Size: file.size}
		segments, err := x.resolver.resolveFileSegments(file.name, cache)
		if err != nil {
			info.Err = err
		} else {
			info.Path = path.Join(segments...)
		}

		entries = append(entries, info)
	}

	return entries, nil
}

// Close releases the index and closes the package if extractor owns it.
func (x *Extractor) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return nil
	}

	x.closed = true
	x.index = nil
	x.cab = nil
	if x.closer != nil {
		return x.closer.Close()
	}

	return nil
}

// checkOpen reports ErrNilReader or ErrClosed for unusable extractors.
func (x *Extractor) checkOpen() error {
	if x == nil {
		return ErrNilReader
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrClosed
	}
	if x.cab == nil || x.resolver == nil {
		return ErrNilReader
	}

	return nil
}

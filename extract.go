// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/msiextract

package msiextract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// extractCopyBufferSize defines buffer size for file copy during extraction.
const extractCopyBufferSize = 64 * 1024

// extractRun carries per-call state of one Extract invocation.
type extractRun struct {
	opts      ExtractOptions
	result    *ExtractResult
	resolver  *Resolver
	filter    *entryFilter
	dirCache  map[string][]string
	dstRoot   string
	copyBuf   []byte
	onWarning func(w Warning)
}

// Extract writes every cabinet entry with a resolvable install path under dstDir.
// Entries that cannot be resolved, created or written are skipped and listed in
// the result; with FailFast the first skip stops extraction with ErrIncomplete.
// Fatal package or cabinet failures are returned with the partial result.
func (x *Extractor) Extract(ctx context.Context, dstDir string, opts ExtractOptions) (*ExtractResult, error) {
	if err := x.checkOpen(); err != nil {
		return nil, err
	}

	opts.applyDefaults(x.logger)

	filter, err := newEntryFilter(opts.Filter, opts.FilterMatcherOptions)
	if err != nil {
		return nil, err
	}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}

	if err := os.MkdirAll(dstRootAbs, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	run := &extractRun{
		opts:     opts,
		result:   &ExtractResult{},
		filter:   filter,
		dirCache: make(map[string][]string),
		dstRoot:  dstRootAbs,
		copyBuf:  make([]byte, extractCopyBufferSize),
	}
	run.onWarning = combineWarningSinks(x.onWarning, opts.OnWarning)
	run.resolver = NewResolver(x.index, opts.Logger, run.onWarning)

	start := time.Now()
	defer func() { opts.Metrics.observeDuration(time.Since(start)) }()

	walkErr := x.cab.walkCabinet(func(entry cabinetEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		return run.extractEntry(entry)
	})

	opts.Logger.Info("extraction finished",
		zap.String("destination", dstRootAbs),
		zap.Int("extracted", len(run.result.Extracted)),
		zap.Int("skipped", len(run.result.Skipped)),
		zap.Int("filtered", run.result.Filtered),
		zap.Int64("bytes", run.result.Bytes),
		zap.Duration("duration", time.Since(start)),
	)

	if walkErr != nil {
		return run.result, walkErr
	}

	return run.result, nil
}

// extractEntry resolves and writes one cabinet entry; only fail-fast skips return an error.
func (run *extractRun) extractEntry(entry cabinetEntry) error {
	segments, err := run.resolver.resolveFileSegments(entry.name, run.dirCache)
	if err != nil {
		return run.skip(SkippedEntry{FileID: entry.name, Reason: SkipReasonResolve, Err: err})
	}

	relPath, err := extractRelPath(segments, run.opts.RawNames)
	if err != nil {
		return run.skip(SkippedEntry{
			FileID: entry.name,
			Path:   strings.Join(segments, "/"),
			Reason: SkipReasonPath,
			Err:    err,
		})
	}

	if !run.filter.Allow(relPath) {
		run.result.Filtered++
		run.opts.Metrics.recordFiltered()
		return nil
	}

	outPath, err := joinWithinRoot(run.dstRoot, relPath)
	if err != nil {
		return run.skip(SkippedEntry{FileID: entry.name, Path: relPath, Reason: SkipReasonPath, Err: err})
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return run.skip(SkippedEntry{
			FileID: entry.name,
			Path:   relPath,
			Reason: SkipReasonCreate,
			Err:    fmt.Errorf("create directory: %w", err),
		})
	}

	file, err := openExtractFile(outPath, run.opts.FileMode)
	if err != nil {
		return run.skip(SkippedEntry{
			FileID: entry.name,
			Path:   relPath,
			Reason: SkipReasonCreate,
			Err:    fmt.Errorf("open %s: %w", relPath, err),
		})
	}

	written, copyErr := copyExtractData(file, entry.r, run.copyBuf)
	closeErr := file.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(outPath)
		return run.skip(SkippedEntry{
			FileID: entry.name,
			Path:   relPath,
			Reason: SkipReasonWrite,
			Err:    fmt.Errorf("write %s: %w", relPath, err),
		})
	}

	done := ExtractedEntry{
		FileID:     entry.name,
		Path:       relPath,
		OutputPath: outPath,
		Written:    written,
	}
	run.result.Extracted = append(run.result.Extracted, done)
	run.result.Bytes += written
	run.opts.Metrics.recordExtracted(written)
	run.opts.Logger.Debug("entry extracted",
		zap.String("file_id", entry.name),
		zap.String("path", relPath),
		zap.Int64("written", written),
	)

	if run.opts.OnEntryDone != nil {
		run.opts.OnEntryDone(done)
	}

	return nil
}

// skip records one absorbed failure and returns ErrIncomplete in fail-fast mode.
func (run *extractRun) skip(s SkippedEntry) error {
	run.result.Skipped = append(run.result.Skipped, s)
	run.opts.Metrics.recordSkipped(s.Reason)

	run.opts.Logger.Warn("entry skipped",
		zap.String("file_id", s.FileID),
		zap.String("path", s.Path),
		zap.String("reason", string(s.Reason)),
		zap.Error(s.Err),
	)

	if run.onWarning != nil {
		run.onWarning(Warning{
			Kind:    WarningSkippedEntry,
			FileID:  s.FileID,
			Message: fmt.Sprintf("%s: %v", s.Reason, s.Err),
		})
	}

	if run.opts.FailFast {
		return fmt.Errorf("%w: entry %s: %w", ErrIncomplete, s.FileID, s.Err)
	}

	return nil
}

// combineWarningSinks returns one sink calling every non-nil sink in order.
func combineWarningSinks(sinks ...func(w Warning)) func(w Warning) {
	active := make([]func(w Warning), 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			active = append(active, sink)
		}
	}
	if len(active) == 0 {
		return nil
	}

	return func(w Warning) {
		for _, sink := range active {
			sink(w)
		}
	}
}

// extractRelPath turns resolved segments into a normalized relative output path.
func extractRelPath(segments []string, rawNames bool) (string, error) {
	if rawNames {
		return normalizeExtractEntryPath(strings.Join(segments, "/"))
	}

	sanitized, err := SanitizeSegments(segments)
	if err != nil {
		return "", err
	}

	return normalizeExtractEntryPath(sanitized)
}

// openExtractFile opens output path according to selected extract file mode.
func openExtractFile(path string, mode ExtractFileMode) (*os.File, error) {
	switch mode {
	case ExtractFileModeTruncate:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	case ExtractFileModeCreateOnly:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	default:
		return nil, fmt.Errorf("unknown extract file mode %q", mode)
	}
}

// copyExtractData copies one entry stream to output file using fixed buffer.
func copyExtractData(dst *os.File, src io.Reader, buf []byte) (int64, error) {
	if len(buf) == 0 {
		return 0, io.ErrShortBuffer
	}

	var total int64
	for {
		readN, readErr := src.Read(buf)
		if readN > 0 {
			writeN, writeErr := dst.Write(buf[:readN])
			total += int64(writeN)

			if writeErr != nil {
				return total, writeErr
			}

			if writeN != readN {
				return total, io.ErrShortWrite
			}
		}

		if readErr == nil {
			continue
		}

		if readErr == io.EOF {
			return total, nil
		}

		return total, readErr
	}
}

// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/msiextract

package msiextract

import (
	"github.com/woozymasta/pathrules"
	"go.uber.org/zap"
)

// Installer tables and columns read by the index builder.
const (
	TableFile      = "File"
	TableComponent = "Component"
	TableDirectory = "Directory"

	ColumnFile            = "File"
	ColumnFileName        = "FileName"
	ColumnFileComponent   = "Component_"
	ColumnComponent       = "Component"
	ColumnComponentDir    = "Directory_"
	ColumnDirectory       = "Directory"
	ColumnDirectoryParent = "Directory_Parent"
	ColumnDefaultDir      = "DefaultDir"
)

// CabinetExt is the stream name suffix that marks an embedded cabinet.
const CabinetExt = ".cab"

// Row is one table row keyed by column name. Null cells are absent.
type Row map[string]string

// TableReader yields rows of a named package table.
type TableReader interface {
	Rows(table string) ([]Row, error)
}

// StreamSource lists and opens named package streams.
type StreamSource interface {
	// Streams returns non-table stream names in storage order.
	Streams() []string
	// ReadStream returns full content of the named stream.
	ReadStream(name string) ([]byte, error)
}

// PackageSource is everything the extractor needs from an opened package.
type PackageSource interface {
	TableReader
	StreamSource
}

// WarningKind classifies absorbed anomalies.
type WarningKind string

// Warning kinds emitted through OnWarning.
const (
	// WarningMissingDirectoryName means a parent chain directory has no default name.
	WarningMissingDirectoryName WarningKind = "missing_directory_name"
	// WarningSkippedEntry means one cabinet entry was not extracted.
	WarningSkippedEntry WarningKind = "skipped_entry"
)

// Warning describes one absorbed anomaly.
type Warning struct {
	Kind      WarningKind `json:"kind" yaml:"kind"`
	Directory string      `json:"directory,omitempty" yaml:"directory,omitempty"`
	FileID    string      `json:"file_id,omitempty" yaml:"file_id,omitempty"`
	Message   string      `json:"message" yaml:"message"`
}

// SkipReason tells at which stage an entry was dropped.
type SkipReason string

// Skip reasons reported in ExtractResult.
const (
	// SkipReasonResolve means the file id has no resolvable install path.
	SkipReasonResolve SkipReason = "resolve"
	// SkipReasonPath means the resolved path is unusable under destination root.
	SkipReasonPath SkipReason = "path"
	// SkipReasonCreate means output directory or file could not be created.
	SkipReasonCreate SkipReason = "create"
	// SkipReasonWrite means payload copy to output file failed.
	SkipReasonWrite SkipReason = "write"
)

// EntryInfo describes one cabinet entry with its resolved install path.
type EntryInfo struct {
	// Err is set when the install path could not be resolved.
	Err error `json:"-" yaml:"-"`
	// FileID is the cabinet entry name, a File table key.
	FileID string `json:"file_id" yaml:"file_id"`
	// Path is slash-separated relative install path; empty when Err is set.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	// Size is uncompressed entry size from the cabinet file record.
	Size int64 `json:"size" yaml:"size"`
}

// ExtractedEntry is one entry written to disk.
type ExtractedEntry struct {
	FileID     string `json:"file_id" yaml:"file_id"`
	Path       string `json:"path" yaml:"path"`
	OutputPath string `json:"output_path" yaml:"output_path"`
	Written    int64  `json:"written" yaml:"written"`
}

// SkippedEntry is one entry that was not written, with the cause.
type SkippedEntry struct {
	Err    error      `json:"-" yaml:"-"`
	FileID string     `json:"file_id" yaml:"file_id"`
	Path   string     `json:"path,omitempty" yaml:"path,omitempty"`
	Reason SkipReason `json:"reason" yaml:"reason"`
}

// ExtractResult summarizes one extraction run.
type ExtractResult struct {
	// Extracted lists written entries in cabinet order.
	Extracted []ExtractedEntry `json:"extracted" yaml:"extracted"`
	// Skipped lists entries dropped by the best-effort policy.
	Skipped []SkippedEntry `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	// Filtered is number of entries excluded by include/exclude rules.
	Filtered int `json:"filtered,omitempty" yaml:"filtered,omitempty"`
	// Bytes is total payload bytes written.
	Bytes int64 `json:"bytes" yaml:"bytes"`
}

// Complete reports whether no entry was skipped.
func (r *ExtractResult) Complete() bool {
	return r != nil && len(r.Skipped) == 0
}

// OpenOptions configures package opening and path resolution.
type OpenOptions struct {
	// Logger receives structured diagnostics; nil means no logging.
	Logger *zap.Logger `json:"-" yaml:"-"`
	// OnWarning is called for every absorbed resolution anomaly.
	OnWarning func(w Warning) `json:"-" yaml:"-"`
}

// ExtractOptions configures Extract behavior.
type ExtractOptions struct {
	// OnEntryDone is called after one entry is fully written to disk.
	OnEntryDone func(entry ExtractedEntry) `json:"-" yaml:"-"`
	// OnWarning is called for every skipped entry in addition to open-time sink.
	OnWarning func(w Warning) `json:"-" yaml:"-"`
	// Logger overrides extractor logger for this call.
	Logger *zap.Logger `json:"-" yaml:"-"`
	// Metrics records extraction counters when set.
	Metrics *Metrics `json:"-" yaml:"-"`
	// FileMode controls output file creation policy.
	FileMode ExtractFileMode `json:"file_mode,omitempty" yaml:"file_mode,omitempty"`
	// Filter defines ordered include/exclude rules matched against resolved paths.
	Filter []pathrules.Rule `json:"filter,omitempty" yaml:"filter,omitempty"`
	// FilterMatcherOptions control filter rule matching.
	FilterMatcherOptions pathrules.MatcherOptions `json:"filter_matcher_options,omitzero" yaml:"filter_matcher_options,omitzero"`
	// FailFast stops on the first skipped entry and returns ErrIncomplete.
	FailFast bool `json:"fail_fast,omitempty" yaml:"fail_fast,omitempty"`
	// RawNames disables default path sanitization during extract.
	RawNames bool `json:"raw_names,omitempty" yaml:"raw_names,omitempty"`
}

// ExtractFileMode controls output file open behavior during extraction.
type ExtractFileMode string

// Output file creation policies for extraction.
const (
	// ExtractFileModeTruncate opens existing files with truncate and creates missing files.
	// Two entries resolving to one path leave the last written content.
	ExtractFileModeTruncate ExtractFileMode = "truncate"
	// ExtractFileModeCreateOnly creates files only when absent and skips existing files.
	ExtractFileModeCreateOnly ExtractFileMode = "create_only"
)

// applyDefaults fills zero-valued open options with defaults.
func (opts *OpenOptions) applyDefaults() {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
}

// applyDefaults fills zero-valued extract options with defaults.
func (opts *ExtractOptions) applyDefaults(logger *zap.Logger) {
	if opts.FileMode == "" {
		opts.FileMode = ExtractFileModeTruncate
	}

	if opts.Logger == nil {
		opts.Logger = logger
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	if opts.FilterMatcherOptions == (pathrules.MatcherOptions{}) {
		opts.FilterMatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionInclude,
		}
	}

	if opts.FilterMatcherOptions.DefaultAction == pathrules.ActionUnknown {
		opts.FilterMatcherOptions.DefaultAction = pathrules.ActionInclude
	}
}

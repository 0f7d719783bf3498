// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/msiextract

package msiextract

import "errors"

// Sentinel errors for package and extraction operations. Use errors.Is in callers.
var (
	// ErrNilReader means the reader is nil.
	ErrNilReader = errors.New("reader is nil")
	// ErrClosed means the package or extractor is already closed.
	ErrClosed = errors.New("package or extractor already closed")
	// ErrInvalidPackage means the source is not a readable installer database.
	ErrInvalidPackage = errors.New("invalid installer package")
	// ErrStreamNotFound means the named stream is not present in the package.
	ErrStreamNotFound = errors.New("stream not found")
	// ErrTableNotFound means the named table is not described by the package schema.
	ErrTableNotFound = errors.New("table not found")
	// ErrInvalidStringPool means the string pool streams are malformed.
	ErrInvalidStringPool = errors.New("invalid string pool")
	// ErrInvalidTable means a table stream does not match its column layout.
	ErrInvalidTable = errors.New("invalid table data")
	// ErrCabinetNotFound means no embedded cabinet stream exists in the package.
	ErrCabinetNotFound = errors.New("embedded cabinet stream not found")
	// ErrInvalidCabinet means the embedded cabinet stream cannot be parsed.
	ErrInvalidCabinet = errors.New("invalid cabinet stream")
	// ErrUnsupportedCompression means a cabinet folder uses a codec other than none or MSZIP.
	ErrUnsupportedCompression = errors.New("unsupported cabinet compression")
	// ErrUnknownFile means the file id has no filename record.
	ErrUnknownFile = errors.New("unknown file id")
	// ErrUnknownComponent means the file has no resolvable owning component.
	ErrUnknownComponent = errors.New("unknown component")
	// ErrUnknownDirectory means the directory id has no default name record.
	ErrUnknownDirectory = errors.New("unknown directory")
	// ErrMalformedHierarchy means the directory parent chain contains a cycle.
	ErrMalformedHierarchy = errors.New("malformed directory hierarchy")
	// ErrInvalidExtractPath means a resolved path is invalid for extraction destination.
	ErrInvalidExtractPath = errors.New("invalid extract path")
	// ErrExtractPathOutsideRoot means resolved extraction path escapes destination root.
	ErrExtractPathOutsideRoot = errors.New("extract path escapes destination root")
	// ErrIncomplete means extraction stopped on the first skipped entry in fail-fast mode.
	ErrIncomplete = errors.New("extraction incomplete")
	// ErrInvalidFilterRules means one or more include/exclude rules are invalid.
	ErrInvalidFilterRules = errors.New("invalid filter rules")
)

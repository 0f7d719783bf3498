// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/msiextract

package msiextract

import "strings"

// LongName decodes a "SHORT|Long Name" field to its long form.
// Fields without "|" are returned unchanged.
func LongName(field string) string {
	if _, long, ok := strings.Cut(field, "|"); ok {
		return long
	}

	return field
}

// DirectoryName decodes a DefaultDir field to the segment used on the target side.
// The "target:source" split is applied first, then the long form of target is taken.
func DirectoryName(field string) string {
	target, _, _ := strings.Cut(field, ":")
	return LongName(target)
}

// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/msiextract

package msiextract

import (
	"fmt"
	"strings"

	"github.com/woozymasta/pathrules"
)

// entryFilter holds compiled include/exclude rules for resolved install paths.
type entryFilter struct {
	matcher *pathrules.Matcher
}

// newEntryFilter compiles filter rules; no rules yields a nil filter that accepts everything.
func newEntryFilter(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*entryFilter, error) {
	rules = normalizeFilterRules(rules)
	if len(rules) == 0 {
		return nil, nil
	}

	matcher, err := pathrules.NewMatcher(rules, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidFilterRules, err)
	}

	return &entryFilter{matcher: matcher}, nil
}

// normalizeFilterRules trims patterns, converts separators and drops empty patterns.
func normalizeFilterRules(rules []pathrules.Rule) []pathrules.Rule {
	normalized := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern := strings.ReplaceAll(strings.TrimSpace(rule.Pattern), `\`, `/`)
		if pattern == "" {
			continue
		}

		normalized = append(normalized, pathrules.Rule{
			Action:  rule.Action,
			Pattern: pattern,
		})
	}

	return normalized
}

// Allow reports whether resolved path passes the filter.
func (f *entryFilter) Allow(path string) bool {
	if f == nil || f.matcher == nil {
		return true
	}

	candidate := NormalizePath(path)
	if candidate == "" {
		return false
	}

	return f.matcher.Included(candidate, false)
}

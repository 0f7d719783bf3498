// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/msiextract

/*
Package msiextract extracts files from Windows Installer (MSI) packages.

An MSI package is an OLE compound file holding a relational database and
one or more embedded cabinet streams. Cabinet entries are keyed by File
identifiers, not by install paths, so extraction rebuilds every path from
the File, Component and Directory tables before writing payload to disk.
Cabinet folders may be stored or MSZIP compressed; LZX and Quantum folders
are rejected with ErrUnsupportedCompression.

Path resolution rules (summary):
  - File -> Component -> Directory gives the directory of each file;
  - the Directory_Parent chain is walked up to the root, which is dropped;
  - names use "short|long" form and directory names may carry a
    "target:source" pair; the long target name is used;
  - a cyclic parent chain fails with ErrMalformedHierarchy;
  - a directory without a name contributes an empty segment and a warning.

# Extracting

Open a package and extract every resolvable file:

	x, err := msiextract.Open("setup.msi")
	if err != nil {
	    return err
	}
	defer x.Close()

	res, err := x.Extract(ctx, "out", msiextract.ExtractOptions{})
	if err != nil {
	    return err
	}
	if !res.Complete() {
	    for _, s := range res.Skipped {
	        log.Printf("skipped %s: %v", s.FileID, s.Err)
	    }
	}

Entries that fail to resolve or write are skipped and listed in
ExtractResult.Skipped. Set FailFast to stop at the first such entry with
ErrIncomplete instead.

Restrict output with gitignore-style rules matched against install paths:

	res, err := x.Extract(ctx, "out", msiextract.ExtractOptions{
	    Filter: []pathrules.Rule{
	        {Action: pathrules.ActionInclude, Pattern: "bin/**"},
	        {Action: pathrules.ActionExclude, Pattern: "*.pdb"},
	    },
	    FilterMatcherOptions: pathrules.MatcherOptions{
	        CaseInsensitive: true,
	        DefaultAction:   pathrules.ActionExclude,
	    },
	})

# Listing

List cabinet entries with their install paths without writing anything:

	entries, err := x.Entries()
	if err != nil {
	    return err
	}
	for _, e := range entries {
	    if e.Err != nil {
	        continue
	    }
	    fmt.Println(e.FileID, e.Path)
	}

# Diagnostics

Warnings are delivered to OpenOptions.OnWarning and ExtractOptions.OnWarning
and logged through the configured zap logger. Prometheus counters are
recorded when ExtractOptions.Metrics is set:

	reg := prometheus.NewRegistry()
	res, err := x.Extract(ctx, "out", msiextract.ExtractOptions{
	    Metrics: msiextract.NewMetrics(reg),
	    Logger:  logger,
	})

# Lower-level access

Package exposes the decoded database tables and raw streams; BuildIndex
and NewResolver work on any TableReader, so path rules can be applied to
tables coming from other sources.
*/
package msiextract

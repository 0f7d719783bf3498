// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/msiextract

package msiextract

import "fmt"

// Index holds lookup mappings built once from File, Component and Directory tables.
// It is read-only after BuildIndex returns.
type Index struct {
	// fileName maps file id to raw FileName field.
	fileName map[string]string
	// fileComponent maps file id to owning component id.
	fileComponent map[string]string
	// componentDir maps component id to directory id.
	componentDir map[string]string
	// dirParent maps directory id to parent directory id; roots are absent.
	dirParent map[string]string
	// dirName maps directory id to decoded target-side default name.
	dirName map[string]string
}

// BuildIndex scans the three path tables once. Rows missing the key or the
// value column do not contribute that mapping; only reader failures are returned.
func BuildIndex(tables TableReader) (*Index, error) {
	if tables == nil {
		return nil, ErrNilReader
	}

	idx := &Index{
		fileName:      make(map[string]string),
		fileComponent: make(map[string]string),
		componentDir:  make(map[string]string),
		dirParent:     make(map[string]string),
		dirName:       make(map[string]string),
	}

	files, err := tables.Rows(TableFile)
	if err != nil {
		return nil, fmt.Errorf("read %s table: %w", TableFile, err)
	}
	for _, row := range files {
		collectPair(idx.fileName, row, ColumnFile, ColumnFileName)
		collectPair(idx.fileComponent, row, ColumnFile, ColumnFileComponent)
	}

	components, err := tables.Rows(TableComponent)
	if err != nil {
		return nil, fmt.Errorf("read %s table: %w", TableComponent, err)
	}
	for _, row := range components {
		collectPair(idx.componentDir, row, ColumnComponent, ColumnComponentDir)
	}

	dirs, err := tables.Rows(TableDirectory)
	if err != nil {
		return nil, fmt.Errorf("read %s table: %w", TableDirectory, err)
	}
	for _, row := range dirs {
		dir, hasDir := row[ColumnDirectory]
		if !hasDir {
			continue
		}

		// A directory listed as its own parent is a root.
		if parent, ok := row[ColumnDirectoryParent]; ok && parent != dir {
			idx.dirParent[dir] = parent
		}

		if name, ok := row[ColumnDefaultDir]; ok {
			idx.dirName[dir] = DirectoryName(name)
		}
	}

	return idx, nil
}

// collectPair stores row[valueCol] under row[keyCol] when both are present.
func collectPair(dst map[string]string, row Row, keyCol string, valueCol string) {
	key, ok := row[keyCol]
	if !ok {
		return
	}

	value, ok := row[valueCol]
	if !ok {
		return
	}

	dst[key] = value
}

// FileCount returns number of files with a filename record.
func (idx *Index) FileCount() int {
	if idx == nil {
		return 0
	}

	return len(idx.fileName)
}

// DirectoryCount returns number of directories with a default name record.
func (idx *Index) DirectoryCount() int {
	if idx == nil {
		return 0
	}

	return len(idx.dirName)
}

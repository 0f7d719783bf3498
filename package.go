// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/msiextract

package msiextract

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/richardlehane/mscfb"
)

// Package provides read-only access to an installer database container.
type Package struct {
	// ra is the underlying random-access reader of the compound file.
	ra io.ReaderAt
	// file is set when Package owns an *os.File opened via OpenPackage.
	file *os.File
	// size is total source size in bytes.
	size int64
	// db is the parsed table schema and string pool.
	db *Database
	// streams are decoded non-table stream names in storage order.
	streams []string
	// mu guards closed state and close operation.
	mu sync.Mutex
	// closed reports whether Close was already called.
	closed bool
}

// OpenPackage opens an installer package by path.
func OpenPackage(path string) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	p, err := OpenPackageReaderAt(f, fi.Size())
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	p.file = f
	return p, nil
}

// OpenPackageReaderAt parses an installer package from existing ReaderAt.
// Table streams are loaded eagerly; other streams are read on demand.
func OpenPackageReaderAt(ra io.ReaderAt, size int64) (*Package, error) {
	if ra == nil {
		return nil, ErrNilReader
	}

	doc, err := mscfb.New(io.NewSectionReader(ra, 0, size))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPackage, err)
	}

	p := &Package{ra: ra, size: size}
	tables := make(map[string][]byte)
	for entry, err := doc.Next(); ; entry, err = doc.Next() {
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: walk storage: %w", ErrInvalidPackage, err)
		}
		if len(entry.Path) != 0 {
			continue
		}

		name, isTable := decodeStreamName(storageName(entry))
		if !isTable {
			p.streams = append(p.streams, name)
			continue
		}

		data, err := io.ReadAll(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: read table %s: %w", ErrInvalidPackage, name, err)
		}
		tables[name] = data
	}

	db, err := newDatabase(tables)
	if err != nil {
		return nil, err
	}

	p.db = db
	return p, nil
}

// Streams returns non-table stream names in storage order.
// A nil or closed package has no streams.
func (p *Package) Streams() []string {
	if p.checkOpen() != nil {
		return nil
	}

	out := make([]string, len(p.streams))
	copy(out, p.streams)
	return out
}

// ReadStream reads full content of one non-table stream.
func (p *Package) ReadStream(name string) ([]byte, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}

	doc, err := mscfb.New(p.sectionReader())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPackage, err)
	}

	for entry, err := doc.Next(); ; entry, err = doc.Next() {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s", ErrStreamNotFound, name)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: walk storage: %w", ErrInvalidPackage, err)
		}
		if len(entry.Path) != 0 {
			continue
		}

		if decoded, isTable := decodeStreamName(storageName(entry)); isTable || decoded != name {
			continue
		}

		data, err := io.ReadAll(entry)
		if err != nil {
			return nil, fmt.Errorf("read stream %s: %w", name, err)
		}

		return data, nil
	}
}

// Rows returns rows of the named table.
func (p *Package) Rows(table string) ([]Row, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}

	return p.db.Rows(table)
}

// Tables returns table names in database order.
func (p *Package) Tables() []string {
	if p == nil || p.db == nil {
		return nil
	}

	return p.db.Tables()
}

// Codepage returns string pool code page identifier.
func (p *Package) Codepage() uint32 {
	if p == nil || p.db == nil {
		return 0
	}

	return p.db.Codepage()
}

// Close closes the underlying file if package owns one.
func (p *Package) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	if p.file != nil {
		return p.file.Close()
	}

	return nil
}

// checkOpen reports ErrNilReader or ErrClosed for unusable packages.
func (p *Package) checkOpen() error {
	if p == nil || p.ra == nil || p.db == nil {
		return ErrNilReader
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	return nil
}

// storageName restores the control character mscfb strips from names such as
// "\x05SummaryInformation" and keeps in File.Initial.
func storageName(entry *mscfb.File) string {
	if entry.Initial != 0 {
		return string(rune(entry.Initial)) + entry.Name
	}

	return entry.Name
}

// sectionReader returns a fresh reader over the whole compound file.
func (p *Package) sectionReader() *io.SectionReader {
	return io.NewSectionReader(p.ra, 0, p.size)
}

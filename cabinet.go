// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/msiextract

package msiextract

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/go-cabfile/cabfile"
)

// Cabinet header layout and folder compression types. The low nibble of
// CFFOLDER.typeCompress selects the codec; the high bits carry its parameters.
const (
	cabHeaderSize = 36
	cabFolderSize = 8
	cabFileSize   = 16

	cabFlagPrevCabinet    = 0x0001
	cabFlagNextCabinet    = 0x0002
	cabFlagReservePresent = 0x0004

	cabCompressMask    = 0x000f
	cabCompressNone    = 0x0000
	cabCompressMSZIP   = 0x0001
	cabCompressQuantum = 0x0002
	cabCompressLZX     = 0x0003
)

// cabinetStream is the located embedded cabinet payload.
type cabinetStream struct {
	name string
	data []byte
	dir  cabinetDirectory
}

// cabinetFile is one CFFILE record.
type cabinetFile struct {
	name   string
	size   int64
	folder uint16
}

// cabinetDirectory holds folder compression types and file records of a cabinet.
type cabinetDirectory struct {
	compress []uint16
	files    []cabinetFile
}

// locateCabinet returns the first stream whose name ends with CabinetExt.
func locateCabinet(src StreamSource) (string, error) {
	for _, name := range src.Streams() {
		if strings.HasSuffix(strings.ToLower(name), CabinetExt) {
			return name, nil
		}
	}

	return "", ErrCabinetNotFound
}

// openCabinetStream locates, reads and validates the embedded cabinet.
func openCabinetStream(src StreamSource) (*cabinetStream, error) {
	name, err := locateCabinet(src)
	if err != nil {
		return nil, err
	}

	data, err := src.ReadStream(name)
	if err != nil {
		return nil, fmt.Errorf("read cabinet stream %s: %w", name, err)
	}

	dir, err := readCabinetDirectory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCabinet, name, err)
	}
	if err := dir.checkCompression(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCabinet, name, err)
	}

	cs := &cabinetStream{name: name, data: data, dir: dir}
	if _, err := cs.open(); err != nil {
		return nil, err
	}

	return cs, nil
}

// open parses cabinet headers over a fresh reader; the returned cabinet iterates once.
func (cs *cabinetStream) open() (*cabfile.Cabinet, error) {
	cab, err := cabfile.New(bytes.NewReader(cs.data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCabinet, cs.name, err)
	}

	return cab, nil
}

// cabinetEntry is one decompressed entry yielded by walkCabinet.
type cabinetEntry struct {
	r    io.Reader
	name string
	size int64
}

// walkCabinet calls fn for each entry in folder order. Entry readers are valid
// only during fn. Cabinet data errors stop the walk since the reader cannot
// advance past a broken folder.
func (cs *cabinetStream) walkCabinet(fn func(entry cabinetEntry) error) error {
	cab, err := cs.open()
	if err != nil {
		return err
	}

	for {
		r, fi, err := cab.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidCabinet, cs.name, err)
		}

		if err := fn(cabinetEntry{r: r, name: fi.Name(), size: fi.Size()}); err != nil {
			return err
		}
	}
}

// entries lists file records in cabinet order without decompressing payload.
func (cs *cabinetStream) entries() []cabinetFile {
	out := make([]cabinetFile, len(cs.dir.files))
	copy(out, cs.dir.files)
	return out
}

// readCabinetDirectory parses CFFOLDER and CFFILE records from cabinet bytes.
// Payload blocks are not touched.
func readCabinetDirectory(data []byte) (cabinetDirectory, error) {
	var dir cabinetDirectory
	if len(data) < cabHeaderSize || string(data[:4]) != "MSCF" {
		return dir, errors.New("missing cabinet signature")
	}

	filesOffset := int(binary.LittleEndian.Uint32(data[16:]))
	folderCount := int(binary.LittleEndian.Uint16(data[26:]))
	fileCount := int(binary.LittleEndian.Uint16(data[28:]))
	flags := binary.LittleEndian.Uint16(data[30:])

	if flags&(cabFlagPrevCabinet|cabFlagNextCabinet) != 0 {
		return dir, errors.New("multi-part cabinets are unsupported")
	}

	pos := cabHeaderSize
	folderReserve := 0
	if flags&cabFlagReservePresent != 0 {
		if len(data) < pos+4 {
			return dir, errors.New("reserve header truncated")
		}
		headerReserve := int(binary.LittleEndian.Uint16(data[pos:]))
		folderReserve = int(data[pos+2])
		pos += 4 + headerReserve
	}

	dir.compress = make([]uint16, 0, folderCount)
	for idx := 0; idx < folderCount; idx++ {
		if len(data) < pos+cabFolderSize {
			return dir, fmt.Errorf("folder %d record truncated", idx)
		}
		dir.compress = append(dir.compress, binary.LittleEndian.Uint16(data[pos+6:]))
		pos += cabFolderSize + folderReserve
	}

	pos = filesOffset
	dir.files = make([]cabinetFile, 0, fileCount)
	for idx := 0; idx < fileCount; idx++ {
		if pos < 0 || len(data) < pos+cabFileSize {
			return dir, fmt.Errorf("file %d record truncated", idx)
		}

		nameStart := pos + cabFileSize
		nameLen := bytes.IndexByte(data[nameStart:], 0)
		if nameLen < 0 {
			return dir, fmt.Errorf("file %d name is not terminated", idx)
		}

		dir.files = append(dir.files, cabinetFile{
			name:   string(data[nameStart : nameStart+nameLen]),
			size:   int64(binary.LittleEndian.Uint32(data[pos:])),
			folder: binary.LittleEndian.Uint16(data[pos+8:]),
		})
		pos = nameStart + nameLen + 1
	}

	return dir, nil
}

// checkCompression rejects folders packed with a codec the decoder cannot read.
func (d cabinetDirectory) checkCompression() error {
	for idx, typ := range d.compress {
		switch typ & cabCompressMask {
		case cabCompressNone, cabCompressMSZIP:
		default:
			return fmt.Errorf("%w: folder %d uses %s", ErrUnsupportedCompression, idx, compressionName(typ))
		}
	}

	return nil
}

// compressionName renders a CFFOLDER compression type for diagnostics.
func compressionName(typ uint16) string {
	switch typ & cabCompressMask {
	case cabCompressNone:
		return "no compression"
	case cabCompressMSZIP:
		return "MSZIP"
	case cabCompressQuantum:
		return fmt.Sprintf("Quantum level %d", (typ>>4)&0xf)
	case cabCompressLZX:
		return fmt.Sprintf("LZX window 2^%d", (typ>>8)&0x1f)
	default:
		return fmt.Sprintf("compression type %#04x", typ)
	}
}

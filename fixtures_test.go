// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/msiextract

package msiextract

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"unicode/utf16"
)

// Column types used by fixture tables.
const (
	fixtureKeyString      = 0x2000 | columnTypeString | columnTypeValid | 72
	fixtureString         = columnTypeString | columnTypeValid | 255
	fixtureNullableString = columnTypeNullable | columnTypeString | columnTypeValid | 72
	fixtureShort          = columnTypeNullable | columnTypeValid | 2
	fixtureLong           = columnTypeNullable | columnTypeValid | 4
	fixtureBinary         = columnTypeNullable | columnTypeString | columnTypeValid
)

type fixtureColumn struct {
	name string
	typ  int
}

// fixtureTable holds rows as strings; "" stores a null cell.
type fixtureTable struct {
	name string
	cols []fixtureColumn
	rows [][]string
}

type fixtureStream struct {
	name string
	data []byte
	// raw keeps name as is instead of packing it.
	raw bool
}

type fixturePool struct {
	ids    map[string]uint32
	values []string
}

func newFixturePool() *fixturePool {
	return &fixturePool{ids: make(map[string]uint32)}
}

func (p *fixturePool) ref(value string) uint32 {
	if value == "" {
		return 0
	}
	if id, ok := p.ids[value]; ok {
		return id
	}

	p.values = append(p.values, value)
	id := uint32(len(p.values))
	p.ids[value] = id
	return id
}

// encode renders _StringPool and _StringData streams.
func (p *fixturePool) encode(codepage uint32, longRefs bool) ([]byte, []byte) {
	header := codepage
	if longRefs {
		header |= longStringRefsFlag
	}

	var pool, data bytes.Buffer
	_ = binary.Write(&pool, binary.LittleEndian, header)
	for _, value := range p.values {
		_ = binary.Write(&pool, binary.LittleEndian, uint16(len(value)))
		_ = binary.Write(&pool, binary.LittleEndian, uint16(1))
		data.WriteString(value)
	}

	return pool.Bytes(), data.Bytes()
}

// fixtureTables returns the File, Component and Directory tables of the default package.
//
//	TARGETDIR (SourceDir)
//	  A
//	    B Long (f1 hello.txt)
//	  . (ProgramFilesFolder)
//	    Vendor (f4 tool.exe)
//	f2 root.txt sits in TARGETDIR, f3 points at a missing component.
func fixtureTables() []fixtureTable {
	return []fixtureTable{
		{
			name: TableFile,
			cols: []fixtureColumn{
				{name: ColumnFile, typ: fixtureKeyString},
				{name: ColumnFileComponent, typ: fixtureString},
				{name: ColumnFileName, typ: fixtureString},
				{name: "FileSize", typ: fixtureLong},
				{name: "Sequence", typ: fixtureShort},
			},
			rows: [][]string{
				{"f1", "C1", "HELLO~1.TXT|hello.txt", "5", "1"},
				{"f2", "C2", "root.txt", "4", "2"},
				{"f3", "Cmissing", "lost.txt", "4", "3"},
				{"f4", "C3", "tool.exe", "3", "4"},
			},
		},
		{
			name: TableComponent,
			cols: []fixtureColumn{
				{name: ColumnComponent, typ: fixtureKeyString},
				{name: "ComponentId", typ: fixtureNullableString},
				{name: ColumnComponentDir, typ: fixtureString},
			},
			rows: [][]string{
				{"C1", "{11111111-1111-1111-1111-111111111111}", "B"},
				{"C2", "", "TARGETDIR"},
				{"C3", "", "Vendor"},
			},
		},
		{
			name: TableDirectory,
			cols: []fixtureColumn{
				{name: ColumnDirectory, typ: fixtureKeyString},
				{name: ColumnDirectoryParent, typ: fixtureNullableString},
				{name: ColumnDefaultDir, typ: fixtureString},
			},
			rows: [][]string{
				{"TARGETDIR", "", "SourceDir"},
				{"A", "TARGETDIR", "A"},
				{"B", "A", "BDIR|B Long:BSRC"},
				{"ProgramFilesFolder", "TARGETDIR", "."},
				{"Vendor", "ProgramFilesFolder", "VENDOR|Vendor"},
			},
		},
	}
}

// fixtureCabinetFiles are payloads of the default package cabinet in folder order.
func fixtureCabinetFiles() []fixtureStream {
	return []fixtureStream{
		{name: "f1", data: []byte("hello")},
		{name: "f2", data: []byte("root")},
		{name: "f3", data: []byte("lost")},
		{name: "f4", data: []byte("exe")},
	}
}

// buildTableStreams encodes schema and user tables keyed by table name.
func buildTableStreams(t testing.TB, tables []fixtureTable, longRefs bool) map[string][]byte {
	t.Helper()

	refSize := 2
	if longRefs {
		refSize = 3
	}

	pool := newFixturePool()
	for _, table := range tables {
		pool.ref(table.name)
		for _, col := range table.cols {
			pool.ref(col.name)
		}
	}

	streams := make(map[string][]byte)

	var tablesStream bytes.Buffer
	var columnRows [][]uint32
	for _, table := range tables {
		writeCell(&tablesStream, pool.ref(table.name), refSize)
		for idx, col := range table.cols {
			columnRows = append(columnRows, []uint32{
				pool.ref(table.name),
				uint32(idx + 1 + shortBias),
				pool.ref(col.name),
				uint32(col.typ + shortBias),
			})
		}
	}
	streams[tableTables] = tablesStream.Bytes()
	streams[tableColumns] = encodeColumnMajor(columnsSchema, columnRows, refSize)

	for _, table := range tables {
		schema := make([]column, 0, len(table.cols))
		for idx, col := range table.cols {
			schema = append(schema, column{name: col.name, number: idx + 1, typ: col.typ})
		}

		cells := make([][]uint32, 0, len(table.rows))
		for _, row := range table.rows {
			raw := make([]uint32, len(schema))
			for idx, col := range schema {
				raw[idx] = fixtureCell(t, pool, col, row[idx], refSize)
			}
			cells = append(cells, raw)
		}
		streams[table.name] = encodeColumnMajor(schema, cells, refSize)
	}

	poolData, stringData := pool.encode(1252, longRefs)
	streams[tableStringPool] = poolData
	streams[tableStringData] = stringData

	return streams
}

func fixtureCell(t testing.TB, pool *fixturePool, col column, value string, refSize int) uint32 {
	t.Helper()

	switch {
	case col.isBinary():
		return 0
	case col.isString():
		return pool.ref(value)
	case value == "":
		return 0
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		t.Fatalf("fixture integer %q: %v", value, err)
	}
	if col.width(refSize) == 2 {
		return uint32(n + shortBias)
	}

	return uint32(int32(n)) ^ longBias
}

func encodeColumnMajor(cols []column, rows [][]uint32, refSize int) []byte {
	var out bytes.Buffer
	for colIdx, col := range cols {
		width := col.width(refSize)
		for _, row := range rows {
			writeCell(&out, row[colIdx], width)
		}
	}

	return out.Bytes()
}

func writeCell(dst *bytes.Buffer, value uint32, width int) {
	for idx := 0; idx < width; idx++ {
		dst.WriteByte(byte(value >> (8 * idx)))
	}
}

// fixtureFolder is one cabinet folder with its CFFOLDER compression type.
type fixtureFolder struct {
	files    []fixtureStream
	compress uint16
}

// fixtureCabinetBlock is one encoded CFDATA payload.
type fixtureCabinetBlock struct {
	data   []byte
	uncomp int
}

// fixtureCabinetBlockSize keeps each MSZIP block within one deflate block.
const fixtureCabinetBlockSize = 8192

// buildCabinet writes an uncompressed single-folder cabinet.
func buildCabinet(files []fixtureStream) []byte {
	return buildCabinetFolders(fixtureFolder{files: files, compress: cabCompressNone})
}

// buildCabinetFolders writes a cabinet with one CFFOLDER per folder, files in folder order.
func buildCabinetFolders(folders ...fixtureFolder) []byte {
	const dataHeaderSize = 8

	filesOffset := cabHeaderSize + cabFolderSize*len(folders)
	dataOffset := filesOffset
	fileCount := 0
	for _, folder := range folders {
		for _, f := range folder.files {
			dataOffset += cabFileSize + len(f.name) + 1
			fileCount++
		}
	}

	blocks := make([][]fixtureCabinetBlock, len(folders))
	starts := make([]int, len(folders))
	total := dataOffset
	for idx, folder := range folders {
		starts[idx] = total
		blocks[idx] = encodeCabinetBlocks(folder)
		for _, block := range blocks[idx] {
			total += dataHeaderSize + len(block.data)
		}
	}

	var out bytes.Buffer
	out.WriteString("MSCF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(0))
	_ = binary.Write(&out, binary.LittleEndian, uint32(total))
	_ = binary.Write(&out, binary.LittleEndian, uint32(0))
	_ = binary.Write(&out, binary.LittleEndian, uint32(filesOffset))
	_ = binary.Write(&out, binary.LittleEndian, uint32(0))
	out.WriteByte(3) // minor
	out.WriteByte(1) // major
	_ = binary.Write(&out, binary.LittleEndian, uint16(len(folders)))
	_ = binary.Write(&out, binary.LittleEndian, uint16(fileCount))
	_ = binary.Write(&out, binary.LittleEndian, uint16(0))
	_ = binary.Write(&out, binary.LittleEndian, uint16(0x1234))
	_ = binary.Write(&out, binary.LittleEndian, uint16(0))

	for idx, folder := range folders {
		_ = binary.Write(&out, binary.LittleEndian, uint32(starts[idx]))
		_ = binary.Write(&out, binary.LittleEndian, uint16(len(blocks[idx])))
		_ = binary.Write(&out, binary.LittleEndian, folder.compress)
	}

	for idx, folder := range folders {
		offset := uint32(0)
		for _, f := range folder.files {
			_ = binary.Write(&out, binary.LittleEndian, uint32(len(f.data)))
			_ = binary.Write(&out, binary.LittleEndian, offset)
			_ = binary.Write(&out, binary.LittleEndian, uint16(idx))
			_ = binary.Write(&out, binary.LittleEndian, uint16(0x5821))
			_ = binary.Write(&out, binary.LittleEndian, uint16(0))
			_ = binary.Write(&out, binary.LittleEndian, uint16(0x20))
			out.WriteString(f.name)
			out.WriteByte(0)
			offset += uint32(len(f.data))
		}
	}

	for _, folderBlocks := range blocks {
		for _, block := range folderBlocks {
			_ = binary.Write(&out, binary.LittleEndian, uint32(0))
			_ = binary.Write(&out, binary.LittleEndian, uint16(len(block.data)))
			_ = binary.Write(&out, binary.LittleEndian, uint16(block.uncomp))
			out.Write(block.data)
		}
	}

	return out.Bytes()
}

// encodeCabinetBlocks splits folder payload into CFDATA blocks. MSZIP blocks use
// the previous block as deflate dictionary.
func encodeCabinetBlocks(folder fixtureFolder) []fixtureCabinetBlock {
	var payload []byte
	for _, f := range folder.files {
		payload = append(payload, f.data...)
	}

	var out []fixtureCabinetBlock
	var history []byte
	for len(payload) > 0 {
		n := min(len(payload), fixtureCabinetBlockSize)
		chunk := payload[:n]
		payload = payload[n:]

		if folder.compress == cabCompressMSZIP {
			out = append(out, fixtureCabinetBlock{data: deflateCabinetBlock(chunk, history), uncomp: n})
			history = chunk
			continue
		}

		out = append(out, fixtureCabinetBlock{data: chunk, uncomp: n})
	}

	return out
}

func deflateCabinetBlock(chunk []byte, history []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("CK")

	var w *flate.Writer
	if len(history) == 0 {
		w, _ = flate.NewWriter(&buf, flate.DefaultCompression)
	} else {
		w, _ = flate.NewWriterDict(&buf, flate.DefaultCompression, history)
	}
	_, _ = w.Write(chunk)
	_ = w.Close()

	return buf.Bytes()
}

// Compound file layout constants for version 3 files.
const (
	cfbSectorSize     = 512
	cfbMiniSectorSize = 64
	cfbMiniCutoff     = 4096
	cfbDirEntrySize   = 128
	cfbFreeSect       = 0xFFFFFFFF
	cfbEndOfChain     = 0xFFFFFFFE
	cfbFATSect        = 0xFFFFFFFD
	cfbNoStream       = 0xFFFFFFFF
)

// buildCompoundFile writes root-level streams into a minimal version 3 compound file.
func buildCompoundFile(t testing.TB, streams []fixtureStream) []byte {
	t.Helper()

	type placement struct {
		start uint32
		size  int
	}
	places := make([]placement, len(streams))

	var mini []byte
	var miniFAT []uint32
	var bigIdx []int
	for idx, s := range streams {
		switch {
		case len(s.data) >= cfbMiniCutoff:
			bigIdx = append(bigIdx, idx)
		case len(s.data) == 0:
			places[idx] = placement{start: cfbEndOfChain}
		default:
			count := ceilDiv(len(s.data), cfbMiniSectorSize)
			start := uint32(len(miniFAT))
			for k := 0; k < count; k++ {
				next := uint32(len(miniFAT) + 1)
				if k == count-1 {
					next = cfbEndOfChain
				}
				miniFAT = append(miniFAT, next)
			}
			mini = append(mini, padBytes(s.data, cfbMiniSectorSize)...)
			places[idx] = placement{start: start, size: len(s.data)}
		}
	}

	dirSectors := ceilDiv((len(streams)+1)*cfbDirEntrySize, cfbSectorSize)
	miniFATSectors := ceilDiv(len(miniFAT)*4, cfbSectorSize)
	miniStreamSectors := ceilDiv(len(mini), cfbSectorSize)
	bigSectors := 0
	for _, idx := range bigIdx {
		bigSectors += ceilDiv(len(streams[idx].data), cfbSectorSize)
	}

	other := dirSectors + miniFATSectors + miniStreamSectors + bigSectors
	fatSectors := 1
	for fatSectors*cfbSectorSize/4 < fatSectors+other {
		fatSectors++
	}
	if fatSectors > 109 {
		t.Fatalf("fixture compound file too large: %d FAT sectors", fatSectors)
	}

	fat := make([]uint32, fatSectors*cfbSectorSize/4)
	for idx := range fat {
		fat[idx] = cfbFreeSect
	}
	for idx := 0; idx < fatSectors; idx++ {
		fat[idx] = cfbFATSect
	}

	next := uint32(fatSectors)
	chain := func(count int) uint32 {
		if count == 0 {
			return cfbEndOfChain
		}
		start := next
		for k := 0; k < count; k++ {
			if k == count-1 {
				fat[next] = cfbEndOfChain
			} else {
				fat[next] = next + 1
			}
			next++
		}
		return start
	}

	dirStart := chain(dirSectors)
	miniFATStart := chain(miniFATSectors)
	miniStreamStart := chain(miniStreamSectors)
	for _, idx := range bigIdx {
		places[idx] = placement{
			start: chain(ceilDiv(len(streams[idx].data), cfbSectorSize)),
			size:  len(streams[idx].data),
		}
	}

	var out bytes.Buffer
	out.Write([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})
	out.Write(make([]byte, 16))
	_ = binary.Write(&out, binary.LittleEndian, uint16(0x003E))
	_ = binary.Write(&out, binary.LittleEndian, uint16(0x0003))
	_ = binary.Write(&out, binary.LittleEndian, uint16(0xFFFE))
	_ = binary.Write(&out, binary.LittleEndian, uint16(9))
	_ = binary.Write(&out, binary.LittleEndian, uint16(6))
	out.Write(make([]byte, 6))
	_ = binary.Write(&out, binary.LittleEndian, uint32(0))
	_ = binary.Write(&out, binary.LittleEndian, uint32(fatSectors))
	_ = binary.Write(&out, binary.LittleEndian, dirStart)
	_ = binary.Write(&out, binary.LittleEndian, uint32(0))
	_ = binary.Write(&out, binary.LittleEndian, uint32(cfbMiniCutoff))
	_ = binary.Write(&out, binary.LittleEndian, miniFATStart)
	_ = binary.Write(&out, binary.LittleEndian, uint32(miniFATSectors))
	_ = binary.Write(&out, binary.LittleEndian, uint32(cfbEndOfChain))
	_ = binary.Write(&out, binary.LittleEndian, uint32(0))
	for idx := 0; idx < 109; idx++ {
		if idx < fatSectors {
			_ = binary.Write(&out, binary.LittleEndian, uint32(idx))
			continue
		}
		_ = binary.Write(&out, binary.LittleEndian, uint32(cfbFreeSect))
	}

	for _, entry := range fat {
		_ = binary.Write(&out, binary.LittleEndian, entry)
	}

	var dir bytes.Buffer
	rootChild := uint32(cfbNoStream)
	if len(streams) > 0 {
		rootChild = 1
	}
	rootStart := miniStreamStart
	writeDirEntry(&dir, "Root Entry", 5, cfbNoStream, rootChild, rootStart, len(mini))
	for idx, s := range streams {
		right := uint32(cfbNoStream)
		if idx+1 < len(streams) {
			right = uint32(idx + 2)
		}

		name := s.name
		if !s.raw {
			name = encodeStreamName(s.name, false)
		}
		writeDirEntry(&dir, name, 2, right, cfbNoStream, places[idx].start, places[idx].size)
	}
	for dir.Len() < dirSectors*cfbSectorSize {
		writeEmptyDirEntry(&dir)
	}
	out.Write(dir.Bytes())

	var miniFATBuf bytes.Buffer
	for _, entry := range miniFAT {
		_ = binary.Write(&miniFATBuf, binary.LittleEndian, entry)
	}
	for miniFATBuf.Len() < miniFATSectors*cfbSectorSize {
		_ = binary.Write(&miniFATBuf, binary.LittleEndian, uint32(cfbFreeSect))
	}
	out.Write(miniFATBuf.Bytes())

	out.Write(padBytes(mini, cfbSectorSize))
	for _, idx := range bigIdx {
		out.Write(padBytes(streams[idx].data, cfbSectorSize))
	}

	return out.Bytes()
}

func writeDirEntry(dst *bytes.Buffer, name string, objectType byte, right uint32, child uint32, start uint32, size int) {
	encoded := utf16.Encode([]rune(name))
	nameBuf := make([]byte, 64)
	for idx, unit := range encoded {
		binary.LittleEndian.PutUint16(nameBuf[idx*2:], unit)
	}

	dst.Write(nameBuf)
	_ = binary.Write(dst, binary.LittleEndian, uint16((len(encoded)+1)*2))
	dst.WriteByte(objectType)
	dst.WriteByte(1) // black
	_ = binary.Write(dst, binary.LittleEndian, uint32(cfbNoStream))
	_ = binary.Write(dst, binary.LittleEndian, right)
	_ = binary.Write(dst, binary.LittleEndian, child)
	dst.Write(make([]byte, 16+4+8+8))
	_ = binary.Write(dst, binary.LittleEndian, start)
	_ = binary.Write(dst, binary.LittleEndian, uint64(size))
}

func writeEmptyDirEntry(dst *bytes.Buffer) {
	dst.Write(make([]byte, 64+2+1+1))
	_ = binary.Write(dst, binary.LittleEndian, uint32(cfbNoStream))
	_ = binary.Write(dst, binary.LittleEndian, uint32(cfbNoStream))
	_ = binary.Write(dst, binary.LittleEndian, uint32(cfbNoStream))
	dst.Write(make([]byte, 16+4+8+8+4+8))
}

func padBytes(data []byte, unit int) []byte {
	if rem := len(data) % unit; rem != 0 {
		return append(append([]byte(nil), data...), make([]byte, unit-rem)...)
	}

	return data
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}

// buildPackage assembles a full installer package with table streams and extra streams.
func buildPackage(t testing.TB, tables []fixtureTable, extra []fixtureStream) []byte {
	t.Helper()

	tableStreams := buildTableStreams(t, tables, false)
	streams := make([]fixtureStream, 0, len(tableStreams)+len(extra))
	for _, name := range []string{tableStringPool, tableStringData, tableTables, tableColumns} {
		streams = append(streams, fixtureStream{name: encodeStreamName(name, true), data: tableStreams[name], raw: true})
	}
	for _, table := range tables {
		streams = append(streams, fixtureStream{name: encodeStreamName(table.name, true), data: tableStreams[table.name], raw: true})
	}
	streams = append(streams, extra...)

	return buildCompoundFile(t, streams)
}

// writeDefaultPackage writes the default package with cabinet "product.cab" and returns its path.
func writeDefaultPackage(t testing.TB) string {
	t.Helper()

	return writePackage(t, fixtureTables(), []fixtureStream{
		{name: "\x05SummaryInformation", data: []byte("summary"), raw: true},
		{name: "product.cab", data: buildCabinet(fixtureCabinetFiles())},
	})
}

func writePackage(t testing.TB, tables []fixtureTable, extra []fixtureStream) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "setup.msi")
	if err := os.WriteFile(path, buildPackage(t, tables, extra), 0o600); err != nil {
		t.Fatalf("write package: %v", err)
	}

	return path
}

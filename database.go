// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/msiextract

package msiextract

import (
	"fmt"
	"sort"
	"strconv"
)

// Column type bits as stored in the _Columns table.
const (
	columnTypeSizeMask = 0x00ff
	columnTypeValid    = 0x0100
	columnTypeString   = 0x0800
	columnTypeNullable = 0x1000
)

// Integer cells are stored biased so that zero means null.
const (
	shortBias = 0x8000
	longBias  = 0x80000000
)

// column describes one table column layout.
type column struct {
	name   string
	number int
	typ    int
}

// isBinary reports whether column stores stream references.
func (c column) isBinary() bool {
	return c.typ&^columnTypeNullable == columnTypeString|columnTypeValid
}

// isString reports whether column stores string pool references.
func (c column) isString() bool {
	return c.typ&columnTypeString != 0
}

// width returns stored cell size in bytes.
func (c column) width(refSize int) int {
	switch {
	case c.isBinary():
		return 2
	case c.isString():
		return refSize
	case c.typ&columnTypeSizeMask <= 2:
		return 2
	default:
		return 4
	}
}

// Schemas of system tables which are not described in _Columns.
var (
	tablesSchema = []column{
		{name: "Name", number: 1, typ: columnTypeString | columnTypeValid | 64},
	}
	columnsSchema = []column{
		{name: "Table", number: 1, typ: columnTypeString | columnTypeValid | 64},
		{name: "Number", number: 2, typ: columnTypeValid | 2},
		{name: "Name", number: 3, typ: columnTypeString | columnTypeValid | 64},
		{name: "Type", number: 4, typ: columnTypeValid | 2},
	}
)

// Database is a parsed installer database schema with raw table streams.
type Database struct {
	pool    *stringPool
	schemas map[string][]column
	streams map[string][]byte
	tables  []string
}

// newDatabase parses schema tables from decoded table streams keyed by table name.
func newDatabase(streams map[string][]byte) (*Database, error) {
	poolData, ok := streams[tableStringPool]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s stream", ErrInvalidPackage, tableStringPool)
	}

	pool, err := parseStringPool(poolData, streams[tableStringData])
	if err != nil {
		return nil, err
	}

	db := &Database{
		pool:    pool,
		streams: streams,
		schemas: map[string][]column{
			tableTables:  tablesSchema,
			tableColumns: columnsSchema,
		},
	}

	if _, ok := streams[tableColumns]; !ok {
		return nil, fmt.Errorf("%w: missing %s stream", ErrInvalidPackage, tableColumns)
	}

	if err := db.loadColumns(); err != nil {
		return nil, err
	}

	if err := db.loadTables(); err != nil {
		return nil, err
	}

	return db, nil
}

// loadColumns builds per-table column layouts from _Columns.
func (db *Database) loadColumns() error {
	cells, err := db.readCells(tableColumns, columnsSchema)
	if err != nil {
		return err
	}

	for rowIdx, row := range cells {
		table, ok, err := db.pool.lookup(row[0])
		if err != nil {
			return fmt.Errorf("read %s row %d: %w", tableColumns, rowIdx, err)
		}
		if !ok {
			continue
		}

		name, _, err := db.pool.lookup(row[2])
		if err != nil {
			return fmt.Errorf("read %s row %d: %w", tableColumns, rowIdx, err)
		}

		if row[1] == 0 || row[3] == 0 {
			return fmt.Errorf("%w: %s row %d has null number or type", ErrInvalidTable, tableColumns, rowIdx)
		}

		db.schemas[table] = append(db.schemas[table], column{
			name:   name,
			number: int(row[1]) - shortBias,
			typ:    int(row[3]) - shortBias,
		})
	}

	for table, cols := range db.schemas {
		sort.SliceStable(cols, func(i, j int) bool { return cols[i].number < cols[j].number })
		db.schemas[table] = cols
	}

	return nil
}

// loadTables reads table names in _Tables order; absent _Tables falls back to schema names.
func (db *Database) loadTables() error {
	if _, ok := db.streams[tableTables]; !ok {
		for table := range db.schemas {
			if table == tableTables || table == tableColumns {
				continue
			}
			db.tables = append(db.tables, table)
		}
		sort.Strings(db.tables)
		return nil
	}

	cells, err := db.readCells(tableTables, tablesSchema)
	if err != nil {
		return err
	}

	db.tables = make([]string, 0, len(cells))
	for _, row := range cells {
		name, ok, err := db.pool.lookup(row[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", tableTables, err)
		}
		if ok {
			db.tables = append(db.tables, name)
		}
	}

	return nil
}

// readCells splits a column-major table stream into raw per-row cells.
func (db *Database) readCells(table string, cols []column) ([][]uint32, error) {
	data := db.streams[table]
	if len(data) == 0 || len(cols) == 0 {
		return nil, nil
	}

	rowSize := 0
	for _, col := range cols {
		rowSize += col.width(db.pool.refSize)
	}

	if len(data)%rowSize != 0 {
		return nil, fmt.Errorf("%w: %s stream size %d is not a multiple of row size %d",
			ErrInvalidTable, table, len(data), rowSize)
	}

	rowCount := len(data) / rowSize
	cells := make([][]uint32, rowCount)
	for rowIdx := range cells {
		cells[rowIdx] = make([]uint32, len(cols))
	}

	// Each column occupies a contiguous block of rowCount cells.
	colStart := 0
	for colIdx, col := range cols {
		width := col.width(db.pool.refSize)
		for rowIdx := 0; rowIdx < rowCount; rowIdx++ {
			off := colStart*rowCount + rowIdx*width
			cells[rowIdx][colIdx] = readLittleEndian(data[off : off+width])
		}
		colStart += width
	}

	return cells, nil
}

// readLittleEndian decodes a 2, 3 or 4 byte little-endian cell.
func readLittleEndian(b []byte) uint32 {
	var v uint32
	for idx := len(b) - 1; idx >= 0; idx-- {
		v = v<<8 | uint32(b[idx])
	}

	return v
}

// Rows returns all rows of table. Binary stream columns are omitted.
func (db *Database) Rows(table string) ([]Row, error) {
	cols, ok := db.schemas[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}

	cells, err := db.readCells(table, cols)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(cells))
	for rowIdx, raw := range cells {
		row := make(Row, len(cols))
		for colIdx, col := range cols {
			value, present, err := db.cellValue(col, raw[colIdx])
			if err != nil {
				return nil, fmt.Errorf("read %s row %d column %s: %w", table, rowIdx, col.name, err)
			}
			if present {
				row[col.name] = value
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// cellValue renders one raw cell as string according to column type.
func (db *Database) cellValue(col column, raw uint32) (string, bool, error) {
	switch {
	case col.isBinary():
		return "", false, nil
	case col.isString():
		return db.pool.lookup(raw)
	case raw == 0:
		return "", false, nil
	case col.width(db.pool.refSize) == 2:
		return strconv.Itoa(int(raw) - shortBias), true, nil
	default:
		return strconv.FormatInt(int64(int32(raw^longBias)), 10), true, nil
	}
}

// Tables returns table names in database order.
func (db *Database) Tables() []string {
	out := make([]string, len(db.tables))
	copy(out, db.tables)
	return out
}

// Codepage returns string pool code page identifier.
func (db *Database) Codepage() uint32 {
	return db.pool.codepage
}

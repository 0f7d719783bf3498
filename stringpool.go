// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/msiextract

package msiextract

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// longStringRefsFlag in the pool header switches string references to 3 bytes.
const longStringRefsFlag = 0x80000000

// stringPool holds interned database strings; index 0 is the null string.
type stringPool struct {
	strings  []string
	codepage uint32
	refSize  int
}

// codepageDecoders maps ANSI code pages found in installer databases.
var codepageDecoders = map[uint32]encoding.Encoding{
	437:  charmap.CodePage437,
	850:  charmap.CodePage850,
	852:  charmap.CodePage852,
	866:  charmap.CodePage866,
	874:  charmap.Windows874,
	1250: charmap.Windows1250,
	1251: charmap.Windows1251,
	1252: charmap.Windows1252,
	1253: charmap.Windows1253,
	1254: charmap.Windows1254,
	1255: charmap.Windows1255,
	1256: charmap.Windows1256,
	1257: charmap.Windows1257,
	1258: charmap.Windows1258,
}

// parseStringPool decodes _StringPool entry table against _StringData bytes.
func parseStringPool(pool []byte, data []byte) (*stringPool, error) {
	if len(pool) < 4 {
		return nil, fmt.Errorf("%w: short pool header", ErrInvalidStringPool)
	}

	header := binary.LittleEndian.Uint32(pool[0:4])
	sp := &stringPool{
		codepage: header &^ longStringRefsFlag,
		refSize:  2,
		strings:  []string{""},
	}
	if header&longStringRefsFlag != 0 {
		sp.refSize = 3
	}

	decoder := codepageDecoders[sp.codepage]

	entries := pool[4:]
	count := len(entries) / 4
	offset := 0
	for idx := 0; idx < count; idx++ {
		length := int(binary.LittleEndian.Uint16(entries[idx*4:]))
		refs := binary.LittleEndian.Uint16(entries[idx*4+2:])

		if length == 0 && refs == 0 {
			sp.strings = append(sp.strings, "")
			continue
		}

		// Strings over 64 KiB zero the length and spill into the next entry.
		if length == 0 {
			if idx+1 >= count {
				return nil, fmt.Errorf("%w: truncated long string entry %d", ErrInvalidStringPool, len(sp.strings))
			}
			idx++
			length = int(binary.LittleEndian.Uint16(entries[idx*4:])) |
				int(binary.LittleEndian.Uint16(entries[idx*4+2:]))<<16
		}

		if offset+length > len(data) {
			return nil, fmt.Errorf("%w: string %d overruns data (%d+%d > %d)",
				ErrInvalidStringPool, len(sp.strings), offset, length, len(data))
		}

		value, err := decodeCodepage(data[offset:offset+length], decoder)
		if err != nil {
			return nil, fmt.Errorf("%w: decode string %d: %w", ErrInvalidStringPool, len(sp.strings), err)
		}

		sp.strings = append(sp.strings, value)
		offset += length
	}

	return sp, nil
}

// decodeCodepage converts one raw pool string to UTF-8.
// Unknown code pages and UTF-8 pass through when the bytes are valid UTF-8.
func decodeCodepage(raw []byte, decoder encoding.Encoding) (string, error) {
	if decoder == nil {
		if utf8.Valid(raw) {
			return string(raw), nil
		}
		decoder = charmap.Windows1252
	}

	out, err := decoder.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}

	return string(out), nil
}

// lookup returns the string for a reference and whether it is non-null.
func (sp *stringPool) lookup(ref uint32) (string, bool, error) {
	if ref == 0 {
		return "", false, nil
	}
	if int(ref) >= len(sp.strings) {
		return "", false, fmt.Errorf("%w: string reference %d out of range", ErrInvalidTable, ref)
	}

	return sp.strings[ref], true, nil
}

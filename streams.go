// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/msiextract

package msiextract

import "strings"

// Installer databases pack stream names into CJK code points: two characters
// of the [0-9A-Za-z._] alphabet per rune in U+3800..U+47FF, one character per
// rune in U+4800..U+483F. Table streams carry a leading U+4840 marker.
const (
	streamPairBase   = 0x3800
	streamSingleBase = 0x4800
	streamTableMark  = 0x4840
)

// Reserved system tables describing the database schema.
const (
	tableStringPool = "_StringPool"
	tableStringData = "_StringData"
	tableTables     = "_Tables"
	tableColumns    = "_Columns"
)

// streamAlphabetIndex returns the 6-bit code of b, or -1 when b cannot be packed.
func streamAlphabetIndex(b rune) int {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0')
	case b >= 'A' && b <= 'Z':
		return int(b-'A') + 10
	case b >= 'a' && b <= 'z':
		return int(b-'a') + 36
	case b == '.':
		return 62
	case b == '_':
		return 63
	default:
		return -1
	}
}

// streamAlphabetRune is the inverse of streamAlphabetIndex.
func streamAlphabetRune(code int) rune {
	switch {
	case code < 10:
		return rune('0' + code)
	case code < 36:
		return rune('A' + code - 10)
	case code < 62:
		return rune('a' + code - 36)
	case code == 62:
		return '.'
	default:
		return '_'
	}
}

// decodeStreamName unpacks a raw storage name and reports whether it names a table.
func decodeStreamName(raw string) (string, bool) {
	var b strings.Builder
	b.Grow(len(raw) * 2)

	isTable := false
	for idx, r := range raw {
		switch {
		case r == streamTableMark && idx == 0:
			isTable = true
		case r >= streamPairBase && r < streamSingleBase:
			code := int(r - streamPairBase)
			b.WriteRune(streamAlphabetRune(code & 0x3f))
			b.WriteRune(streamAlphabetRune((code >> 6) & 0x3f))
		case r >= streamSingleBase && r < streamTableMark:
			b.WriteRune(streamAlphabetRune(int(r - streamSingleBase)))
		default:
			b.WriteRune(r)
		}
	}

	return b.String(), isTable
}

// encodeStreamName packs a stream name the way installer databases store it.
func encodeStreamName(name string, isTable bool) string {
	var b strings.Builder
	if isTable {
		b.WriteRune(streamTableMark)
	}

	runes := []rune(name)
	for idx := 0; idx < len(runes); idx++ {
		first := streamAlphabetIndex(runes[idx])
		if first < 0 {
			b.WriteRune(runes[idx])
			continue
		}

		if idx+1 < len(runes) {
			if second := streamAlphabetIndex(runes[idx+1]); second >= 0 {
				b.WriteRune(rune(streamPairBase + first + second<<6))
				idx++
				continue
			}
		}

		b.WriteRune(rune(streamSingleBase + first))
	}

	return b.String()
}

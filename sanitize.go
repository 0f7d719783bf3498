// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/msiextract

package msiextract

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// maxSanitizedSegmentLen limits one path segment to common filesystem-safe length.
const maxSanitizedSegmentLen = 240

// reservedDeviceNames contains case-insensitive Windows device names.
var reservedDeviceNames = map[string]struct{}{
	"aux": {}, "clock$": {}, "con": {}, "conin$": {}, "conout$": {}, "nul": {}, "prn": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {}, "com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {}, "lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

// SanitizeSegments rewrites resolved install path segments into one
// filesystem-safe slash-separated relative path. Empty and "." segments are dropped.
func SanitizeSegments(segments []string) (string, error) {
	out := make([]string, 0, len(segments))
	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" || segment == "." {
			continue
		}

		out = append(out, sanitizePathSegment(segment))
	}
	if len(out) == 0 {
		return "", ErrInvalidExtractPath
	}

	return strings.Join(out, "/"), nil
}

// sanitizePathSegment sanitizes one path segment for broad filesystem compatibility.
func sanitizePathSegment(segment string) string {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return "_"
	}
	if segment == ".." {
		return "__"
	}

	segment = sanitizeWindowsGUIDSuffix(segment)
	rawReserved := isReservedDeviceName(segment)

	var b strings.Builder
	b.Grow(len(segment))
	for _, r := range segment {
		if isUnsafeControlCharRune(r) || strings.ContainsRune(`<>:"/\|?*`, r) {
			b.WriteRune('_')
			continue
		}

		b.WriteRune(r)
	}

	sanitized := strings.TrimRight(b.String(), ". ")
	if sanitized == "" {
		sanitized = "_"
	}

	if rawReserved || isReservedDeviceName(sanitized) {
		sanitized = "_" + sanitized
	}

	if len(sanitized) > maxSanitizedSegmentLen {
		sanitized = shortenSegmentDeterministic(sanitized, maxSanitizedSegmentLen)
	}

	return sanitized
}

// isUnsafeControlCharRune reports whether rune is unsafe in file names.
func isUnsafeControlCharRune(r rune) bool {
	if unicode.IsControl(r) || unicode.In(r, unicode.Cf) {
		return true
	}

	return r == '\uFFFD'
}

// sanitizeWindowsGUIDSuffix rewrites trailing ".{GUID}" to avoid Windows shell namespace aliasing.
func sanitizeWindowsGUIDSuffix(segment string) string {
	dotIndex := strings.LastIndex(segment, ".{")
	if dotIndex < 0 {
		return segment
	}

	bracedGUID := segment[dotIndex+1:]
	if !isBracedGUID(bracedGUID) {
		return segment
	}

	return segment[:dotIndex] + "_" + bracedGUID
}

// isBracedGUID reports whether token matches "{xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx}".
func isBracedGUID(token string) bool {
	if len(token) != 38 || token[0] != '{' || token[len(token)-1] != '}' {
		return false
	}

	for idx := 1; idx < len(token)-1; idx++ {
		ch := token[idx]
		switch idx {
		case 9, 14, 19, 24:
			if ch != '-' {
				return false
			}
		default:
			if !isHex(ch) {
				return false
			}
		}
	}

	return true
}

// isHex reports whether byte is one ASCII hexadecimal character.
func isHex(ch byte) bool {
	return (ch >= '0' && ch <= '9') ||
		(ch >= 'a' && ch <= 'f') ||
		(ch >= 'A' && ch <= 'F')
}

// isReservedDeviceName reports whether name, ignoring extension, is a Windows device name.
func isReservedDeviceName(name string) bool {
	candidate := strings.ToLower(strings.TrimRight(strings.TrimSpace(name), ". :"))
	if dot := strings.IndexByte(candidate, '.'); dot >= 0 {
		candidate = candidate[:dot]
	}
	candidate = strings.TrimRight(candidate, " :")
	if candidate == "" {
		return false
	}

	_, ok := reservedDeviceNames[candidate]
	return ok
}

// shortenSegmentDeterministic shortens long segment while keeping a stable hash suffix.
func shortenSegmentDeterministic(value string, maxLen int) string {
	if len(value) <= maxLen {
		return value
	}
	if maxLen <= 10 {
		return value[:maxLen]
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(value))
	hashPart := fmt.Sprintf("~%08x", h.Sum32())

	return value[:max(maxLen-len(hashPart), 1)] + hashPart
}

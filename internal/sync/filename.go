// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sync

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// diacriticsStripper decomposes accented runes to base+mark pairs (NFD),
// drops the nonspacing marks, then recomposes (NFC) — turning e.g. "Café"
// into "Cafe" so filenames stay portable across filesystems that mangle
// combining characters.
var diacriticsStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SanitizeTitleForFilename normalizes a video title into a value safe to
// interpolate into a filename template: diacritics stripped, and
// characters forbidden on common filesystems (Windows, in particular)
// replaced with "_".
func SanitizeTitleForFilename(title string) string {
	ascii, _, err := transform.String(diacriticsStripper, title)
	if err != nil {
		ascii = title
	}

	return strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r):
			return '_'
		case r < 0x20:
			return '_'
		default:
			return r
		}
	}, ascii)
}

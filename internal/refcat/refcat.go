// Package refcat formats DASCH reference-catalog numbers as the display
// identifiers of their source catalogs.
//
// The leading digit of a reference number names the catalog; the remaining
// digits carry the catalog's own identifier.
package refcat

import (
	"strconv"
	"strings"
)

// Catalog codes.
const (
	CodeGSC   = '1'
	CodeKIC   = '2'
	CodeDASCH = '3'
	CodeAPASS = '4'
	CodeTycho = '5'
	CodeUCAC4 = '6'
	CodeGaia1 = '7'
	CodeGaia2 = '8'
	CodeATLAS = '9'
)

// Text returns the display identifier for a reference number.
func Text(refnum uint64) string {
	if refnum == 0 {
		return "NONE"
	}

	text := strconv.FormatUint(refnum, 10)
	code, rest := text[0], text[1:]

	switch code {
	case CodeGSC:
		if rest == "" {
			break
		}
		switch rest[0] {
		case '1':
			return "N" + rest[1:]
		case '2':
			return "S" + rest[1:]
		}
	case CodeKIC:
		return "K" + rest
	case CodeDASCH, CodeAPASS:
		return designation(code, rest)
	case CodeTycho:
		return "T" + rest
	case CodeUCAC4:
		return "U" + rest
	case CodeGaia1:
		return "UNHANDLED-GAIA1"
	case CodeGaia2:
		return "UNHANDLED-GAIA2"
	case CodeATLAS:
		return "ATLAS2_" + rest
	}
	return "UNKNOWN"
}

// designation builds a J2000 positional name: HHMMSS.s followed by a signed
// DDMMSS, where the sign digit is 1 for north and 2 for south.
func designation(code byte, rest string) string {
	const malformed = "MALFORMED-DASCH/APASS"
	if len(rest) != 14 {
		return malformed
	}

	var b strings.Builder
	b.Grow(21)
	if code == CodeDASCH {
		b.WriteString("DASCH_J")
	} else {
		b.WriteString("APASS_J")
	}
	b.WriteString(rest[:6])
	b.WriteByte('.')
	b.WriteByte(rest[6])

	switch rest[7] {
	case '1':
		b.WriteByte('+')
	case '2':
		b.WriteByte('-')
	default:
		return malformed
	}
	b.WriteString(rest[8:])
	return b.String()
}

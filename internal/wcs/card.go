package wcs

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kilupskalvis/dasch-science/internal/models"
)

// CardLength is the fixed width of a FITS header record.
const CardLength = 80

// Card is one FITS header keyword record. Raw holds the value literal as it
// appears in the header: quoted for strings, bare for numbers and logicals.
type Card struct {
	Key     string
	Raw     string
	Comment string
}

// StringCard builds a card with a quoted string value.
func StringCard(key, value, comment string) Card {
	s := strings.ReplaceAll(value, "'", "''")
	if len(s) < 8 {
		s += strings.Repeat(" ", 8-len(s))
	}
	return Card{Key: key, Raw: "'" + s + "'", Comment: comment}
}

// FloatCard builds a card with a real value.
func FloatCard(key string, value float64, comment string) Card {
	s := strconv.FormatFloat(value, 'G', -1, 64)
	if !strings.ContainsAny(s, ".EN") {
		s += ".0"
	}
	return Card{Key: key, Raw: s, Comment: comment}
}

// IntCard builds a card with an integer value.
func IntCard(key string, value int64, comment string) Card {
	return Card{Key: key, Raw: strconv.FormatInt(value, 10), Comment: comment}
}

// BoolCard builds a card with a logical value.
func BoolCard(key string, value bool, comment string) Card {
	raw := "F"
	if value {
		raw = "T"
	}
	return Card{Key: key, Raw: raw, Comment: comment}
}

// Str returns the value of a string card without quotes and trailing blanks.
func (c Card) Str() string {
	raw := strings.TrimSpace(c.Raw)
	if len(raw) >= 2 && raw[0] == '\'' && raw[len(raw)-1] == '\'' {
		raw = strings.ReplaceAll(raw[1:len(raw)-1], "''", "'")
		return strings.TrimRight(raw, " ")
	}
	return raw
}

// Float parses a real value, accepting Fortran D exponents.
func (c Card) Float() (float64, error) {
	raw := strings.Replace(strings.TrimSpace(c.Raw), "D", "E", 1)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("keyword %s: %w", c.Key, err)
	}
	return v, nil
}

// Int parses an integer value.
func (c Card) Int() (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(c.Raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("keyword %s: %w", c.Key, err)
	}
	return v, nil
}

// String formats the card as an 80-column record. Numeric and logical values
// are right-justified to column 30, strings start at column 11.
func (c Card) String() string {
	var b strings.Builder
	key := c.Key
	if len(key) > 8 {
		key = key[:8]
	}
	b.WriteString(key)
	b.WriteString(strings.Repeat(" ", 8-len(key)))

	if c.Key == "END" || c.Key == "COMMENT" || c.Key == "HISTORY" || c.Key == "" {
		b.WriteString("  ")
		b.WriteString(c.Comment)
	} else {
		b.WriteString("= ")
		if strings.HasPrefix(c.Raw, "'") {
			b.WriteString(c.Raw)
		} else {
			if n := 20 - len(c.Raw); n > 0 {
				b.WriteString(strings.Repeat(" ", n))
			}
			b.WriteString(c.Raw)
		}
		if c.Comment != "" {
			b.WriteString(" / ")
			b.WriteString(c.Comment)
		}
	}

	s := b.String()
	if len(s) > CardLength {
		return s[:CardLength]
	}
	return s + strings.Repeat(" ", CardLength-len(s))
}

// parseCard splits one 80-column record.
func parseCard(rec []byte) Card {
	s := string(rec)
	key := strings.TrimSpace(s[:8])
	if len(s) < 10 || s[8:10] != "= " {
		return Card{Key: key, Comment: strings.TrimSpace(s[8:])}
	}

	rest := s[10:]
	trimmed := strings.TrimLeft(rest, " ")
	if strings.HasPrefix(trimmed, "'") {
		// Quoted string; '' is an escaped quote.
		i := 1
		for i < len(trimmed) {
			if trimmed[i] == '\'' {
				if i+1 < len(trimmed) && trimmed[i+1] == '\'' {
					i += 2
					continue
				}
				break
			}
			i++
		}
		end := min(i+1, len(trimmed))
		card := Card{Key: key, Raw: trimmed[:end]}
		if j := strings.Index(trimmed[end:], "/"); j >= 0 {
			card.Comment = strings.TrimSpace(trimmed[end+j+1:])
		}
		return card
	}

	card := Card{Key: key, Raw: strings.TrimSpace(rest)}
	if j := strings.Index(rest, "/"); j >= 0 {
		card.Raw = strings.TrimSpace(rest[:j])
		card.Comment = strings.TrimSpace(rest[j+1:])
	}
	return card
}

// ParseHeader reads 80-column header records until END or end of input.
// Records may be packed back to back, as in a FITS file, or separated by
// single newlines, as in the ASCII headers stored with the plate metadata.
func ParseHeader(r io.Reader) ([]Card, error) {
	br := bufio.NewReader(r)
	rec := make([]byte, CardLength)
	var cards []Card

	for {
		n, err := io.ReadFull(br, rec)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return cards, nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				if len(bytes.TrimSpace(rec[:n])) == 0 {
					return cards, nil
				}
				return nil, fmt.Errorf("truncated header record (%d bytes): %w", n, models.ErrCorruptSource)
			}
			return nil, fmt.Errorf("read header: %w", err)
		}
		if bytes.IndexByte(rec, '\n') >= 0 {
			return nil, fmt.Errorf("malformed header record %q: %w", rec, models.ErrCorruptSource)
		}

		card := parseCard(rec)
		if card.Key == "END" {
			return cards, nil
		}
		if card.Key != "" {
			cards = append(cards, card)
		}

		next, err := br.Peek(1)
		if err == nil && next[0] == '\n' {
			br.Discard(1)
		}
	}
}

// ParseGzipHeader decodes a gzipped ASCII header.
func ParseGzipHeader(data []byte) ([]Card, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzipped header: %v: %w", err, models.ErrCorruptSource)
	}
	defer zr.Close()

	cards, err := ParseHeader(zr)
	if err != nil {
		if errors.Is(err, models.ErrCorruptSource) {
			return nil, err
		}
		return nil, fmt.Errorf("decompress header: %v: %w", err, models.ErrCorruptSource)
	}
	return cards, nil
}

// GzipCards encodes cards in the newline-separated ASCII form read by
// ParseGzipHeader.
func GzipCards(cards []Card) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	for i, c := range cards {
		if i > 0 {
			zw.Write([]byte{'\n'})
		}
		if _, err := zw.Write([]byte(c.String())); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Lookup returns the last card with the given key.
func Lookup(cards []Card, key string) (Card, bool) {
	for i := len(cards) - 1; i >= 0; i-- {
		if cards[i].Key == key {
			return cards[i], true
		}
	}
	return Card{}, false
}

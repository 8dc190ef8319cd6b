// Package sanitize normalizes column, table and file names into lowercase
// identifiers that are safe for the query service and object keys.
package sanitize

import (
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Name lowercases s, folds accents, drops periods, parentheses and hyphens,
// and turns whitespace and any other rune that is not a letter, digit or
// underscore into an underscore. Name is idempotent.
func Name(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r == '.' || r == '(' || r == ')' || r == '-':
			// dropped
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// FileName sanitizes the base of a file name and keeps its extension, so
// "Q1 Sales (final).CSV" becomes "q1_sales_final.csv".
func FileName(name string) string {
	base, ext := SplitExt(name)
	if ext == "" {
		return Name(base)
	}
	return Name(base) + "." + Name(ext)
}

// FileBase returns the sanitized file name without its extension.
func FileBase(name string) string {
	base, _ := SplitExt(name)
	return Name(base)
}

// SplitExt splits a file name into its base and extension (without the dot).
func SplitExt(name string) (base, ext string) {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 || dot == len(name)-1 {
		return name, ""
	}
	return name[:dot], name[dot+1:]
}

// Columns sanitizes a header row, preserving order. Empty results are
// replaced with positional names so every column stays addressable.
func Columns(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		name := Name(strings.TrimSpace(h))
		if name == "" || strings.Trim(name, "_") == "" {
			name = "column_" + itoa(i+1)
		}
		out[i] = name
	}
	return out
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}

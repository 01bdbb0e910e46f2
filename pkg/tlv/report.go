package tlv

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Describe renders the byte-slice fields of a struct (or pointer to struct) as
// report lines of the form "    - Prefix.Field (TAG): VALUE".
//
// The `fmt` struct tag picks the value rendering: "ascii", "int", "version"
// (dotted decimal) or hex by default. Leftover []bertlv.TLV fields are listed
// tag by tag. Empty fields are skipped.
func Describe(prefix string, s any) []string {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}

	typ := val.Type()
	var lines []string

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		sf := typ.Field(i)
		if !sf.IsExported() {
			continue
		}

		switch v := field.Interface().(type) {
		case []byte:
			if len(v) == 0 {
				continue
			}
			name := sf.Name
			if tag := strings.Split(sf.Tag.Get("tlv"), ",")[0]; tag != "" {
				name = fmt.Sprintf("%s (%s)", name, tag)
			}
			lines = append(lines, fmt.Sprintf("    - %s.%s: %s", prefix, name, FormatBytes(v, sf.Tag.Get("fmt"))))

		case []bertlv.TLV:
			for _, p := range v {
				lines = append(lines, fmt.Sprintf("    - %s.Unknown Tag %s: %s", prefix, strings.ToUpper(p.Tag), strings.ToUpper(hex.EncodeToString(p.Value))))
			}
		}
	}

	return lines
}

// WriteStructFields appends Describe lines to sb, newline separated and without
// a trailing newline.
func WriteStructFields(sb *strings.Builder, prefix string, s any) {
	lines := Describe(prefix, s)
	if len(lines) == 0 {
		return
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(strings.Join(lines, "\n"))
}

// FormatBytes renders data according to a `fmt` struct tag value.
func FormatBytes(data []byte, format string) string {
	switch format {
	case "ascii":
		return fmt.Sprintf("%X (%q)", data, SafeASCII(data))
	case "int":
		var n uint64
		for _, b := range data {
			n = n<<8 | uint64(b)
		}
		return fmt.Sprintf("%X (Dec: %d)", data, n)
	case "version":
		parts := make([]string, len(data))
		for i, b := range data {
			parts[i] = fmt.Sprint(b)
		}
		return fmt.Sprintf("%X (v%s)", data, strings.Join(parts, "."))
	default:
		return strings.ToUpper(hex.EncodeToString(data))
	}
}

// SafeASCII replaces non-printable bytes with '.'.
func SafeASCII(data []byte) string {
	return strings.Map(func(r rune) rune {
		if r >= 32 && r <= 126 {
			return r
		}
		return '.'
	}, string(data))
}

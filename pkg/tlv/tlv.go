// Package tlv holds the BER-TLV helpers used by the secure element parsers:
// a BER length codec, a struct-tag decoder built on moov-io/bertlv, and the
// report writer shared by the Describe methods.
package tlv

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Unmarshal decodes BER-TLV data and maps it onto the fields of target.
//
// Fields are matched with a `tlv:"TAG"` struct tag (hex, case-insensitive).
// Supported field kinds are []byte (primitive value, or the re-encoded children
// of a constructed tag) and struct / *struct (decoded recursively from the
// children). A field tagged `tlv:",unknown"` of type []bertlv.TLV receives every
// packet that no other field claimed.
func Unmarshal(data []byte, target any) error {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Errorf("bertlv decode failed: %w", err)
	}
	return UnmarshalPackets(packets, target)
}

// UnmarshalPackets is Unmarshal for packets that were already decoded.
func UnmarshalPackets(packets []bertlv.TLV, target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("target must be a non-nil pointer to a struct, got %T", target)
	}
	v = v.Elem()
	t := v.Type()

	claimed := make([]bool, len(packets))
	unknown := -1

	for i := 0; i < t.NumField(); i++ {
		tag, ok := t.Field(i).Tag.Lookup("tlv")
		if !ok {
			continue
		}
		if tag == ",unknown" {
			unknown = i
			continue
		}

		want := strings.ToUpper(strings.Split(tag, ",")[0])
		for idx, p := range packets {
			if strings.ToUpper(p.Tag) != want {
				continue
			}
			if err := assign(v.Field(i), p); err != nil {
				return fmt.Errorf("tag %s: %w", want, err)
			}
			claimed[idx] = true
		}
	}

	if unknown < 0 {
		return nil
	}

	var rest []bertlv.TLV
	for idx, p := range packets {
		if !claimed[idx] {
			rest = append(rest, p)
		}
	}
	if len(rest) > 0 {
		v.Field(unknown).Set(reflect.ValueOf(rest))
	}
	return nil
}

func assign(field reflect.Value, p bertlv.TLV) error {
	switch {
	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.Uint8:
		raw, err := valueOf(p)
		if err != nil {
			return err
		}
		field.SetBytes(raw)
		return nil

	case field.Kind() == reflect.Struct:
		return decodeInto(field.Addr().Interface(), p)

	case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct:
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return decodeInto(field.Interface(), p)
	}

	return fmt.Errorf("unsupported field type %s", field.Type())
}

func decodeInto(target any, p bertlv.TLV) error {
	if len(p.TLVs) > 0 {
		return UnmarshalPackets(p.TLVs, target)
	}
	return Unmarshal(p.Value, target)
}

func valueOf(p bertlv.TLV) ([]byte, error) {
	if len(p.TLVs) == 0 {
		return p.Value, nil
	}
	return bertlv.Encode(p.TLVs)
}

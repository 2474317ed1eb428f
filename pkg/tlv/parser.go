// Package tlv maps BER-TLV encoded data objects onto Go structures using struct tags.
//
// It is used to decode the data objects carried in card answers, for example the
// historical bytes of a contactless storage card ATR (tag '4F').
package tlv

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Unmarshal parses raw BER-TLV data and maps it into a target Go struct.
//
// Supported field kinds:
//   - []byte: raw value of the matching tag (re-encoded children for constructed tags)
//   - struct or *struct: nested template
//   - []bertlv.TLV tagged ",unknown": every data object that no other field consumed
func Unmarshal(data []byte, target interface{}) error {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Errorf("bertlv decode failed: %w", err)
	}
	return UnmarshalFromPackets(packets, target)
}

// UnmarshalFromPackets maps a slice of pre-decoded bertlv.TLV objects to a target struct.
func UnmarshalFromPackets(packets []bertlv.TLV, target interface{}) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("target must be a non-nil pointer")
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("target must point to a struct, got %s", v.Kind())
	}
	t := v.Type()

	consumed := make(map[int]bool)

	for i := 0; i < v.NumField(); i++ {
		tag := fieldTag(t.Field(i))
		if tag == "" {
			continue
		}

		for idx, packet := range packets {
			if !strings.EqualFold(packet.Tag, tag) {
				continue
			}
			if err := decodeToValue(packet, v.Field(i)); err != nil {
				return fmt.Errorf("tag %s: %w", tag, err)
			}
			consumed[idx] = true
		}
	}

	return collectUnknown(v, t, packets, consumed)
}

// fieldTag returns the upper-case tag configured for a field, or "" for
// untagged fields and the unknown collector.
func fieldTag(f reflect.StructField) string {
	cfg := f.Tag.Get("tlv")
	if cfg == "" || strings.HasPrefix(cfg, ",") {
		return ""
	}
	return strings.ToUpper(strings.Split(cfg, ",")[0])
}

func decodeToValue(packet bertlv.TLV, field reflect.Value) error {
	switch {
	case isByteSlice(field):
		field.SetBytes(rawValue(packet))
		return nil
	case field.Kind() == reflect.Struct:
		return unmarshalNested(packet, field.Addr())
	case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct:
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return unmarshalNested(packet, field)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
}

func unmarshalNested(packet bertlv.TLV, target reflect.Value) error {
	if len(packet.TLVs) > 0 {
		return UnmarshalFromPackets(packet.TLVs, target.Interface())
	}
	return Unmarshal(packet.Value, target.Interface())
}

func collectUnknown(v reflect.Value, t reflect.Type, packets []bertlv.TLV, consumed map[int]bool) error {
	for i := 0; i < v.NumField(); i++ {
		if t.Field(i).Tag.Get("tlv") != ",unknown" {
			continue
		}

		var leftovers []bertlv.TLV
		for idx, packet := range packets {
			if !consumed[idx] {
				leftovers = append(leftovers, packet)
			}
		}
		if len(leftovers) > 0 && v.Field(i).CanSet() {
			v.Field(i).Set(reflect.ValueOf(leftovers))
		}
		return nil
	}
	return nil
}

func rawValue(p bertlv.TLV) []byte {
	if len(p.TLVs) > 0 {
		if enc, err := bertlv.Encode(p.TLVs); err == nil {
			return enc
		}
	}
	return p.Value
}

func isByteSlice(v reflect.Value) bool {
	return v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8
}

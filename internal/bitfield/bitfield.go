// Package bitfield packs and unpacks small tagged fields into a single
// integer using struct tags, adapted from iansmith-mazarin's
// src/bitfield package (itself a trimmed-down
// golang.org/x/text/internal/gen/bitfield). The original only packed; this
// copy adds Unpack so a packed tag (a B-tree node's "children are leaves"
// bit) can be read back. Page-table entries do not use this package; they
// are packed with plain uint64 bit operations in internal/pagetable.
package bitfield

import (
	"fmt"
	"reflect"
)

// Config determines settings for packing and unpacking.
type Config struct {
	// NumBits fixes the width of the packed integer. 0 means no check is
	// performed at pack time.
	NumBits uint
}

type taggedField struct {
	index int
	bits  uint
}

func taggedFields(t reflect.Type) ([]taggedField, error) {
	fields := make([]taggedField, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("bitfield")
		if tag == "" {
			continue
		}
		var bits uint
		if _, err := fmt.Sscanf(tag, ",%d", &bits); err != nil {
			return nil, fmt.Errorf("bitfield: invalid tag %q on field %s", tag, t.Field(i).Name)
		}
		if bits == 0 {
			continue
		}
		fields = append(fields, taggedField{index: i, bits: bits})
	}
	return fields, nil
}

// Pack packs every "bitfield"-tagged field of x, in declaration order, into
// the low bits of the returned integer.
func Pack(x interface{}, c *Config) (packed uint64, err error) {
	if c == nil {
		c = &Config{NumBits: 64}
	}

	v := reflect.ValueOf(x)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return 0, fmt.Errorf("bitfield: Pack expected a struct, got %v", v.Kind())
	}

	fields, err := taggedFields(v.Type())
	if err != nil {
		return 0, err
	}

	var bitOffset uint
	for _, f := range fields {
		fv := v.Field(f.index)

		var bits uint64
		switch fv.Kind() {
		case reflect.Bool:
			if fv.Bool() {
				bits = 1
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			bits = fv.Uint()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if fv.Int() < 0 {
				return 0, fmt.Errorf("bitfield: Pack: negative value for field %s", v.Type().Field(f.index).Name)
			}
			bits = uint64(fv.Int())
		default:
			return 0, fmt.Errorf("bitfield: Pack: unsupported field kind %v", fv.Kind())
		}

		if max := uint64(1)<<f.bits - 1; bits > max {
			return 0, fmt.Errorf("bitfield: Pack: value %d exceeds %d bits for field %s", bits, f.bits, v.Type().Field(f.index).Name)
		}

		packed |= bits << bitOffset
		bitOffset += f.bits
	}

	if c.NumBits > 0 && bitOffset > c.NumBits {
		return 0, fmt.Errorf("bitfield: Pack: total width %d exceeds NumBits %d", bitOffset, c.NumBits)
	}
	return packed, nil
}

// Unpack reverses Pack: it reads packed's bits back into x's
// "bitfield"-tagged fields, in the same declaration order Pack used.
func Unpack(x interface{}, packed uint64, c *Config) error {
	v := reflect.ValueOf(x)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("bitfield: Unpack expected a non-nil pointer, got %v", reflect.ValueOf(x).Kind())
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("bitfield: Unpack expected a pointer to struct, got %v", v.Kind())
	}

	fields, err := taggedFields(v.Type())
	if err != nil {
		return err
	}

	var bitOffset uint
	for _, f := range fields {
		mask := uint64(1)<<f.bits - 1
		bits := (packed >> bitOffset) & mask
		bitOffset += f.bits

		fv := v.Field(f.index)
		if !fv.CanSet() {
			continue
		}
		switch fv.Kind() {
		case reflect.Bool:
			fv.SetBool(bits != 0)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fv.SetUint(bits)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			fv.SetInt(int64(bits))
		default:
			return fmt.Errorf("bitfield: Unpack: unsupported field kind %v", fv.Kind())
		}
	}
	return nil
}

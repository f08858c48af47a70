// Package codec packs and unpacks the heterogeneous, typed item
// sequences memsess's wire protocol frames are built from.
//
// Grounded on original_source/src/util/serialization.hpp: the same six
// item kinds, the same big-endian length-prefixed STRING encoding, and
// the same "fail flat, no partial state" unpack discipline, expressed
// as an idiomatic Go schema/field table instead of a translated switch
// over a C struct.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package codec

import (
	"encoding/binary"
	"errors"
)

// Kind identifies the wire encoding of a single Item.
type Kind int

const (
	// Char is a single byte.
	Char Kind = iota
	// String is a 4-byte big-endian length prefix followed by that many bytes.
	String
	// FixedString is exactly Len bytes, with Len known from the schema (not on the wire).
	FixedString
	// StringWithNull is bytes up to and including a terminating zero byte.
	StringWithNull
	// ShortInt is a 2-byte big-endian unsigned integer.
	ShortInt
	// Int is a 4-byte big-endian unsigned integer.
	Int
)

// ErrMalformed is returned by Unpack when the input doesn't match the
// schema: a field would read past the end, a STRING_WITH_NULL has no
// terminator, or bytes remain unconsumed after the schema completes.
var ErrMalformed = errors.New("codec: malformed input")

// Item is one field of a pack/unpack schema. Exactly one of the value
// fields is meaningful, selected by Kind. FixedString's length comes
// from Len (schema-known); String and StringWithNull derive their
// length from Bytes/Str at pack time and from the wire at unpack time.
type Item struct {
	Kind Kind

	// Len is the fixed length for FixedString items.
	Len int

	// Char holds the byte value for Kind == Char.
	Char byte

	// Bytes holds the payload for Kind in {String, FixedString,
	// StringWithNull}. On Pack it is the input; on Unpack it is set to
	// a sub-slice of the input buffer (no copy).
	Bytes []byte

	// ShortInt holds the value for Kind == ShortInt.
	ShortInt uint16

	// Int holds the value for Kind == Int.
	Int uint32
}

// Schema is an ordered list of Items describing one request or response
// body, terminated implicitly by the slice's end (the wire protocol's
// END sentinel is simply "no more items").
type Schema []*Item

// Pack serializes the schema's items into a freshly allocated buffer.
func Pack(items Schema) []byte {
	total := 0
	for _, it := range items {
		switch it.Kind {
		case Char:
			total++
		case String:
			total += 4 + len(it.Bytes)
		case FixedString:
			total += it.Len
		case StringWithNull:
			total += len(it.Bytes) + 1
		case ShortInt:
			total += 2
		case Int:
			total += 4
		}
	}

	buf := make([]byte, total)
	offset := 0
	for _, it := range items {
		switch it.Kind {
		case Char:
			buf[offset] = it.Char
			offset++
		case String:
			binary.BigEndian.PutUint32(buf[offset:], uint32(len(it.Bytes)))
			offset += 4
			offset += copy(buf[offset:], it.Bytes)
		case FixedString:
			offset += copy(buf[offset:], it.Bytes)
		case StringWithNull:
			offset += copy(buf[offset:], it.Bytes)
			buf[offset] = 0
			offset++
		case ShortInt:
			binary.BigEndian.PutUint16(buf[offset:], it.ShortInt)
			offset += 2
		case Int:
			binary.BigEndian.PutUint32(buf[offset:], it.Int)
			offset += 4
		}
	}
	return buf
}

// Unpack walks the schema against data, bounds-checking every read and
// populating each Item in place. It fails flat (returns ErrMalformed,
// no partial population guarantee beyond what the caller already had)
// if any field would overrun the buffer, a StringWithNull has no
// terminator, or bytes remain after the last schema item.
func Unpack(items Schema, data []byte) error {
	offset := 0
	length := len(data)

	for _, it := range items {
		switch it.Kind {
		case Char:
			if offset+1 > length {
				return ErrMalformed
			}
			it.Char = data[offset]
			offset++
		case String:
			if offset+4 > length {
				return ErrMalformed
			}
			strLen := int(binary.BigEndian.Uint32(data[offset:]))
			offset += 4
			if strLen < 0 || offset+strLen > length {
				return ErrMalformed
			}
			it.Bytes = data[offset : offset+strLen]
			offset += strLen
		case FixedString:
			if it.Len < 0 || offset+it.Len > length {
				return ErrMalformed
			}
			it.Bytes = data[offset : offset+it.Len]
			offset += it.Len
		case StringWithNull:
			start := offset
			found := false
			for offset < length {
				if data[offset] == 0 {
					found = true
					break
				}
				offset++
			}
			if !found {
				return ErrMalformed
			}
			it.Bytes = data[start:offset]
			offset++ // consume the terminator
		case ShortInt:
			if offset+2 > length {
				return ErrMalformed
			}
			it.ShortInt = binary.BigEndian.Uint16(data[offset:])
			offset += 2
		case Int:
			if offset+4 > length {
				return ErrMalformed
			}
			it.Int = binary.BigEndian.Uint32(data[offset:])
			offset += 4
		}
	}

	if offset != length {
		return ErrMalformed
	}
	return nil
}

// CharItem creates a Char item for building a Schema.
func CharItem(v byte) *Item { return &Item{Kind: Char, Char: v} }

// StringItem creates a String item for building a Schema.
func StringItem(v []byte) *Item { return &Item{Kind: String, Bytes: v} }

// FixedStringItem creates a FixedString item for building a Schema.
func FixedStringItem(v []byte, length int) *Item {
	return &Item{Kind: FixedString, Bytes: v, Len: length}
}

// StringWithNullItem creates a StringWithNull item for building a Schema.
func StringWithNullItem(v []byte) *Item { return &Item{Kind: StringWithNull, Bytes: v} }

// ShortIntItem creates a ShortInt item for building a Schema.
func ShortIntItem(v uint16) *Item { return &Item{Kind: ShortInt, ShortInt: v} }

// IntItem creates an Int item for building a Schema.
func IntItem(v uint32) *Item { return &Item{Kind: Int, Int: v} }

// EmptyFixedString is a helper for unpack schemas: the caller doesn't
// know the field's content up front, only its fixed length.
func EmptyFixedString(length int) *Item { return &Item{Kind: FixedString, Len: length} }

// Package uuid generates and converts the v4-shaped session identifiers
// memsess uses: a 36-character text form on the wire and a 16-byte raw
// form used internally for FIXED_STRING fields.
//
// Grounded on original_source/src/util/uuid.hpp: the same deterministic
// hyphen/version/variant positions and the same toBin/toNormal
// conversions, reseeded here per the Open Question decision in
// SPEC_FULL.md (a sync.Pool of generators, each seeded from crypto/rand
// when the pool creates it, rather than a single mutex-guarded global
// generator).
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package uuid

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
	mathrand "math/rand"
	"sync"
)

// TextLen is the length of the canonical 36-character text form.
const TextLen = 36

// RawLen is the length of the 16-byte raw binary form.
const RawLen = 16

const hexDigits = "0123456789abcdef"

var genPool = sync.Pool{
	New: func() interface{} {
		seed, err := rand.Int(rand.Reader, big.NewInt(1<<62))
		if err != nil {
			// crypto/rand failure is effectively unrecoverable on any
			// real platform; fall back to a seed read directly from
			// crypto/rand (zero if that read fails too) rather than
			// panic the dispatcher.
			var buf [8]byte
			_, _ = rand.Read(buf[:])
			return mathrand.New(mathrand.NewSource(int64(binary.BigEndian.Uint64(buf[:]))))
		}
		return mathrand.New(mathrand.NewSource(seed.Int64()))
	},
}

func hexDigit(r *mathrand.Rand) byte {
	return hexDigits[r.Intn(16)]
}

// Generate fills out (len(out) must be TextLen) with a v4-formatted id:
// hyphens at 8/13/18/23, '4' at 14, a variant digit drawn from {8,9,a,b}
// at 19, uniform hex digits elsewhere.
func Generate(out []byte) {
	r := genPool.Get().(*mathrand.Rand)
	defer genPool.Put(r)

	for i := 0; i < TextLen; i++ {
		switch i {
		case 8, 13, 18, 23:
			out[i] = '-'
		case 14:
			out[i] = '4'
		case 19:
			out[i] = hexDigits[8+r.Intn(4)]
		default:
			out[i] = hexDigit(r)
		}
	}
}

// New returns a freshly generated id as a string.
func New() string {
	buf := make([]byte, TextLen)
	Generate(buf)
	return string(buf)
}

func hexVal(ch byte) (int, bool) {
	switch {
	case ch >= '0' && ch <= '9':
		return int(ch - '0'), true
	case ch >= 'a' && ch <= 'f':
		return int(ch-'a') + 10, true
	case ch >= 'A' && ch <= 'F':
		return int(ch-'A') + 10, true
	default:
		return 0, false
	}
}

// ToBin parses the 36-character text form into the 16-byte raw form,
// rejecting non-hex characters at non-hyphen positions.
func ToBin(text []byte) ([]byte, bool) {
	if len(text) != TextLen {
		return nil, false
	}

	out := make([]byte, RawLen)
	even := true
	outIdx := 0
	var hi int

	for i := 0; i < TextLen; i++ {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			continue
		}

		v, ok := hexVal(text[i])
		if !ok {
			return nil, false
		}

		if even {
			hi = v
		} else {
			out[outIdx] = byte(hi<<4 | v)
			outIdx++
		}
		even = !even
	}

	return out, true
}

// ToNormal is the inverse of ToBin: it renders the 16-byte raw form
// back into 36-character canonical text, returning false if the
// resulting text is not v4-shaped (index 14 != '4').
func ToNormal(bin []byte) ([]byte, bool) {
	if len(bin) != RawLen {
		return nil, false
	}

	out := make([]byte, TextLen)
	offset := 0
	sep := 0

	for i := 0; i < RawLen; i++ {
		b := bin[i]
		out[offset+sep] = hexDigits[b>>4]
		out[offset+sep+1] = hexDigits[b&0x0F]

		if i == 3 || i == 5 || i == 7 || i == 9 {
			out[offset+sep+2] = '-'
			sep++
		}
		offset += 2
	}

	return out, out[14] == '4'
}

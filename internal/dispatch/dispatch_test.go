// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package dispatch

import (
	"testing"
	"time"

	"github.com/agilira/memsess/internal/clock"
	"github.com/agilira/memsess/internal/codec"
	"github.com/agilira/memsess/internal/store"
	"github.com/agilira/memsess/internal/uuid"
)

// fakeCounters is a minimal in-memory Counters for exercising the
// dispatcher without depending on internal/metrics.
type fakeCounters struct {
	passed map[string]int
	failed map[string]int
	errors map[string]int
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{
		passed: make(map[string]int),
		failed: make(map[string]int),
		errors: make(map[string]int),
	}
}

func (f *fakeCounters) IncPassed(op string)                       { f.passed[op]++ }
func (f *fakeCounters) IncFailed(op string)                       { f.failed[op]++ }
func (f *fakeCounters) IncError(reason string)                    { f.errors[reason]++ }
func (f *fakeCounters) AddReceived(n int)                         {}
func (f *fakeCounters) AddSent(n int)                             {}
func (f *fakeCounters) ObserveLatency(stage string, d time.Duration) {}
func (f *fakeCounters) Snapshot() []int64                         { return []int64{1, 2, 3} }

func newTestDispatcher() (*Dispatcher, *clock.Manual) {
	clk := clock.NewManual(1000)
	st := store.NewSingleThreaded(clk)
	return New(st, newFakeCounters()), clk
}

func unpackEnvelope(t *testing.T, resp []byte) []byte {
	t.Helper()
	body := &codec.Item{Kind: codec.String}
	if err := codec.Unpack(codec.Schema{body}, resp); err != nil {
		t.Fatalf("unpack outer envelope: %v", err)
	}
	return body.Bytes
}

func packRequest(cmd byte, items codec.Schema) []byte {
	body := codec.Pack(items)
	return append([]byte{cmd}, body...)
}

func TestHappyPathScenario(t *testing.T) {
	d, _ := newTestDispatcher()

	resp := d.Handle(packRequest(CmdGenerate, codec.Schema{codec.IntItem(60)}))
	inner := unpackEnvelope(t, resp)
	if inner[0] != wireOK {
		t.Fatalf("GENERATE: code = %d, want OK", inner[0])
	}
	rawID := inner[1 : 1+uuid.RawLen]

	resp = d.Handle(packRequest(CmdAddKey, codec.Schema{
		codec.FixedStringItem(rawID, uuid.RawLen),
		codec.StringWithNullItem([]byte("a")),
		codec.StringItem([]byte{0x01, 0x02, 0x03, 0x04}),
		codec.IntItem(0),
	}))
	inner = unpackEnvelope(t, resp)
	if inner[0] != wireOK {
		t.Fatalf("ADD_KEY: code = %d, want OK", inner[0])
	}

	resp = d.Handle(packRequest(CmdGetKey, codec.Schema{
		codec.FixedStringItem(rawID, uuid.RawLen),
		codec.StringWithNullItem([]byte("a")),
		codec.ShortIntItem(0),
	}))
	inner = unpackEnvelope(t, resp)
	if inner[0] != wireOK {
		t.Fatalf("GET_KEY: code = %d, want OK", inner[0])
	}
	value := &codec.Item{Kind: codec.String}
	counterKeys := codec.IntItem(0)
	counterRecord := codec.IntItem(0)
	if err := codec.Unpack(codec.Schema{value, counterKeys, counterRecord}, inner[1:]); err != nil {
		t.Fatalf("unpack GET_KEY payload: %v", err)
	}
	if string(value.Bytes) != "\x01\x02\x03\x04" {
		t.Fatalf("GET_KEY value = %x, want 01020304", value.Bytes)
	}
	if counterKeys.Int != 1 || counterRecord.Int != 0 {
		t.Fatalf("GET_KEY counters = (%d,%d), want (1,0)", counterKeys.Int, counterRecord.Int)
	}

	resp = d.Handle(packRequest(CmdSetKey, codec.Schema{
		codec.FixedStringItem(rawID, uuid.RawLen),
		codec.StringWithNullItem([]byte("a")),
		codec.StringItem([]byte{0xAA, 0xBB}),
		codec.IntItem(1),
		codec.IntItem(0),
		codec.ShortIntItem(0),
	}))
	inner = unpackEnvelope(t, resp)
	if inner[0] != wireOK {
		t.Fatalf("SET_KEY: code = %d, want OK", inner[0])
	}

	resp = d.Handle(packRequest(CmdGetKey, codec.Schema{
		codec.FixedStringItem(rawID, uuid.RawLen),
		codec.StringWithNullItem([]byte("a")),
		codec.ShortIntItem(0),
	}))
	inner = unpackEnvelope(t, resp)
	value = &codec.Item{Kind: codec.String}
	counterKeys = codec.IntItem(0)
	counterRecord = codec.IntItem(0)
	if err := codec.Unpack(codec.Schema{value, counterKeys, counterRecord}, inner[1:]); err != nil {
		t.Fatalf("unpack second GET_KEY payload: %v", err)
	}
	if string(value.Bytes) != "\xAA\xBB" {
		t.Fatalf("GET_KEY value after SET_KEY = %x, want AABB", value.Bytes)
	}
	if counterRecord.Int != 1 {
		t.Fatalf("GET_KEY counterRecord after SET_KEY = %d, want 1", counterRecord.Int)
	}
}

func TestCASConflictScenario(t *testing.T) {
	d, _ := newTestDispatcher()

	resp := d.Handle(packRequest(CmdGenerate, codec.Schema{codec.IntItem(0)}))
	rawID := unpackEnvelope(t, resp)[1 : 1+uuid.RawLen]

	d.Handle(packRequest(CmdAddKey, codec.Schema{
		codec.FixedStringItem(rawID, uuid.RawLen),
		codec.StringWithNullItem([]byte("a")),
		codec.StringItem([]byte{0xAA}),
		codec.IntItem(0),
	}))
	d.Handle(packRequest(CmdSetKey, codec.Schema{
		codec.FixedStringItem(rawID, uuid.RawLen),
		codec.StringWithNullItem([]byte("a")),
		codec.StringItem([]byte{0xAA, 0xBB}),
		codec.IntItem(1),
		codec.IntItem(0),
		codec.ShortIntItem(0),
	}))

	resp = d.Handle(packRequest(CmdSetKey, codec.Schema{
		codec.FixedStringItem(rawID, uuid.RawLen),
		codec.StringWithNullItem([]byte("a")),
		codec.StringItem([]byte{0xCC}),
		codec.IntItem(1),
		codec.IntItem(0), // stale counterRecord
		codec.ShortIntItem(0),
	}))
	inner := unpackEnvelope(t, resp)
	if inner[0] != wireRecordBeenChanged {
		t.Fatalf("stale SET_KEY: code = %d, want RECORD_BEEN_CHANGED(%d)", inner[0], wireRecordBeenChanged)
	}

	resp = d.Handle(packRequest(CmdGetKey, codec.Schema{
		codec.FixedStringItem(rawID, uuid.RawLen),
		codec.StringWithNullItem([]byte("a")),
		codec.ShortIntItem(0),
	}))
	inner = unpackEnvelope(t, resp)
	value := &codec.Item{Kind: codec.String}
	if err := codec.Unpack(codec.Schema{value, codec.IntItem(0), codec.IntItem(0)}, inner[1:]); err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if string(value.Bytes) != "\xAA\xBB" {
		t.Fatalf("value after rejected CAS = %x, want AABB (unchanged)", value.Bytes)
	}
}

func TestRateLimitScenario(t *testing.T) {
	d, clk := newTestDispatcher()

	resp := d.Handle(packRequest(CmdGenerate, codec.Schema{codec.IntItem(0)}))
	rawID := unpackEnvelope(t, resp)[1 : 1+uuid.RawLen]
	d.Handle(packRequest(CmdAddKey, codec.Schema{
		codec.FixedStringItem(rawID, uuid.RawLen),
		codec.StringWithNullItem([]byte("a")),
		codec.StringItem([]byte("v")),
		codec.IntItem(0),
	}))

	get := func() byte {
		resp := d.Handle(packRequest(CmdGetKey, codec.Schema{
			codec.FixedStringItem(rawID, uuid.RawLen),
			codec.StringWithNullItem([]byte("a")),
			codec.ShortIntItem(2),
		}))
		return unpackEnvelope(t, resp)[0]
	}

	if c := get(); c != wireOK {
		t.Fatalf("GET_KEY #1: code = %d, want OK", c)
	}
	if c := get(); c != wireOK {
		t.Fatalf("GET_KEY #2: code = %d, want OK", c)
	}
	if c := get(); c != wireLimitPerSecExceeded {
		t.Fatalf("GET_KEY #3: code = %d, want LIMIT_PER_SEC_EXCEEDED", c)
	}

	clk.Advance(1)
	if c := get(); c != wireOK {
		t.Fatalf("GET_KEY after rollover: code = %d, want OK", c)
	}
}

func TestLifetimeNestingScenario(t *testing.T) {
	d, _ := newTestDispatcher()

	resp := d.Handle(packRequest(CmdGenerate, codec.Schema{codec.IntItem(10)}))
	rawID := unpackEnvelope(t, resp)[1 : 1+uuid.RawLen]

	resp = d.Handle(packRequest(CmdAddKey, codec.Schema{
		codec.FixedStringItem(rawID, uuid.RawLen),
		codec.StringWithNullItem([]byte("k")),
		codec.StringItem([]byte("v")),
		codec.IntItem(20),
	}))
	if code := unpackEnvelope(t, resp)[0]; code != wireLifetimeExceeded {
		t.Fatalf("ADD_KEY lifetime=20: code = %d, want LIFETIME_EXCEEDED", code)
	}

	resp = d.Handle(packRequest(CmdAddKey, codec.Schema{
		codec.FixedStringItem(rawID, uuid.RawLen),
		codec.StringWithNullItem([]byte("k")),
		codec.StringItem([]byte("v")),
		codec.IntItem(5),
	}))
	if code := unpackEnvelope(t, resp)[0]; code != wireOK {
		t.Fatalf("ADD_KEY lifetime=5: code = %d, want OK", code)
	}
}

func TestMalformedFrameScenario(t *testing.T) {
	d, _ := newTestDispatcher()

	// ADD_KEY (cmd 5) with only 15 trailing bytes: not enough for even
	// the fixed 16-byte id field.
	req := append([]byte{CmdAddKey}, make([]byte, 15)...)
	resp := d.Handle(req)
	inner := unpackEnvelope(t, resp)
	if inner[0] != wireWrongParams {
		t.Fatalf("malformed ADD_KEY: code = %d, want WRONG_PARAMS", inner[0])
	}
}

func TestUnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher()

	resp := d.Handle([]byte{99})
	inner := unpackEnvelope(t, resp)
	if inner[0] != wireWrongCommand {
		t.Fatalf("unknown command: code = %d, want WRONG_COMMAND", inner[0])
	}
}

func TestBulkAddScenario(t *testing.T) {
	d, _ := newTestDispatcher()

	var ids [3][]byte
	for i := range ids {
		resp := d.Handle(packRequest(CmdGenerate, codec.Schema{codec.IntItem(0)}))
		id := unpackEnvelope(t, resp)[1 : 1+uuid.RawLen]
		idCopy := make([]byte, uuid.RawLen)
		copy(idCopy, id)
		ids[i] = idCopy
	}

	resp := d.Handle(packRequest(CmdAllAddKey, codec.Schema{
		codec.StringWithNullItem([]byte("k")),
		codec.StringItem([]byte("v")),
	}))
	if code := unpackEnvelope(t, resp)[0]; code != wireOK {
		t.Fatalf("ALL_ADD_KEY: code = %d, want OK", code)
	}

	for i, id := range ids {
		resp := d.Handle(packRequest(CmdGetKey, codec.Schema{
			codec.FixedStringItem(id, uuid.RawLen),
			codec.StringWithNullItem([]byte("k")),
			codec.ShortIntItem(0),
		}))
		inner := unpackEnvelope(t, resp)
		if inner[0] != wireOK {
			t.Fatalf("GET_KEY session %d: code = %d, want OK", i, inner[0])
		}
		value := &codec.Item{Kind: codec.String}
		if err := codec.Unpack(codec.Schema{value, codec.IntItem(0), codec.IntItem(0)}, inner[1:]); err != nil {
			t.Fatalf("unpack: %v", err)
		}
		if string(value.Bytes) != "v" {
			t.Fatalf("GET_KEY session %d value = %q, want %q", i, value.Bytes, "v")
		}
	}
}

func TestExistCountsAsPassedOnSessionNone(t *testing.T) {
	d, _ := newTestDispatcher()
	fc := d.counters.(*fakeCounters)

	raw := make([]byte, uuid.RawLen)
	raw[6] = 0x40 // forces a v4-shaped text id (index 14 == '4') that is simply unknown to the store
	resp := d.Handle(packRequest(CmdExist, codec.Schema{codec.FixedStringItem(raw, uuid.RawLen)}))
	inner := unpackEnvelope(t, resp)
	if inner[0] != wireSessionNone {
		t.Fatalf("EXIST unknown id: code = %d, want SESSION_NONE", inner[0])
	}
	if fc.passed["exist"] != 1 {
		t.Fatalf("passed[exist] = %d, want 1", fc.passed["exist"])
	}
	if fc.failed["exist"] != 0 {
		t.Fatalf("failed[exist] = %d, want 0", fc.failed["exist"])
	}
}

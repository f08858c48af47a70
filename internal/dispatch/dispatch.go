// Package dispatch parses a single framed request, decodes its typed
// parameters with internal/codec, invokes one internal/store operation,
// and encodes the response, mapping store.Result to the stable wire
// codes every client understands.
//
// Grounded on original_source/src/core/cmd.hpp (the command-id table
// and per-command parameter shapes) and on original_source/src/core/
// server_controller.hpp (the outer STRING envelope and counter
// feedback rules), reworked from a giant switch over raw buffers into
// a per-command handler table, the style agilira-balios/config.go uses
// for its option-to-behavior tables.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package dispatch

import (
	"time"

	"github.com/agilira/memsess/internal/codec"
	"github.com/agilira/memsess/internal/store"
	"github.com/agilira/memsess/internal/uuid"
)

// Command byte values, canonical per the wire contract — do not renumber.
const (
	CmdGenerate      byte = 1
	CmdExist         byte = 2
	CmdRemove        byte = 3
	CmdProlong       byte = 4
	CmdAddKey        byte = 5
	CmdGetKey        byte = 6
	CmdSetKey        byte = 7
	CmdSetForceKey   byte = 8
	CmdRemoveKey     byte = 9
	CmdExistKey      byte = 10
	CmdProlongKey    byte = 11
	CmdAllAddKey     byte = 14
	CmdAllRemoveKey  byte = 15
	CmdAddSession    byte = 18
	CmdGetStatistics byte = 19
)

// Wire result codes, stable across protocol versions.
const (
	wireOK                   byte = 1
	wireWrongCommand         byte = 2
	wireWrongParams          byte = 3
	wireSessionNone          byte = 4
	wireKeyNone              byte = 5
	wireLimitExceeded        byte = 6
	wireLifetimeExceeded     byte = 7
	wireDuplicateKey         byte = 8
	wireRecordBeenChanged    byte = 9
	wireLimitPerSecExceeded  byte = 10
	wireDuplicateSession     byte = 11
)

// resultToWire maps a store.Result to its stable wire byte.
func resultToWire(r store.Result) byte {
	switch r {
	case store.OK:
		return wireOK
	case store.SessionNone:
		return wireSessionNone
	case store.DuplicateSession:
		return wireDuplicateSession
	case store.KeyNone:
		return wireKeyNone
	case store.LimitExceeded:
		return wireLimitExceeded
	case store.LifetimeExceeded:
		return wireLifetimeExceeded
	case store.DuplicateKey:
		return wireDuplicateKey
	case store.RecordBeenChanged:
		return wireRecordBeenChanged
	case store.LimitPerSecExceeded:
		return wireLimitPerSecExceeded
	default:
		return wireWrongParams
	}
}

// opName is the metrics label for each command, used for the
// passed.<op>/failed.<op> counters (§4.D).
func opName(cmd byte) string {
	switch cmd {
	case CmdGenerate:
		return "generate"
	case CmdExist:
		return "exist"
	case CmdRemove:
		return "remove"
	case CmdProlong:
		return "prolong"
	case CmdAddKey:
		return "add_key"
	case CmdGetKey:
		return "get_key"
	case CmdSetKey:
		return "set_key"
	case CmdSetForceKey:
		return "set_force_key"
	case CmdRemoveKey:
		return "remove_key"
	case CmdExistKey:
		return "exist_key"
	case CmdProlongKey:
		return "prolong_key"
	case CmdAllAddKey:
		return "all_add_key"
	case CmdAllRemoveKey:
		return "all_remove_key"
	case CmdAddSession:
		return "add_session"
	case CmdGetStatistics:
		return "get_statistics"
	default:
		return "unknown"
	}
}

// Counters is the external collaborator contract of §4.E: the
// dispatcher reports to it, it never reports back. A nil Counters is
// not accepted — callers needing a no-op should pass metrics.NoOp().
type Counters interface {
	IncPassed(op string)
	IncFailed(op string)
	IncError(reason string)
	AddReceived(n int)
	AddSent(n int)
	ObserveLatency(stage string, d time.Duration)
	Snapshot() []int64
}

// Dispatcher turns framed request payloads into framed response
// payloads, one call at a time. Safe for concurrent use; all state it
// touches (the Store) is itself concurrency-safe.
type Dispatcher struct {
	st       *store.Store
	counters Counters
	now      func() time.Time
}

// New creates a Dispatcher over st, reporting to counters.
func New(st *store.Store, counters Counters) *Dispatcher {
	return &Dispatcher{st: st, counters: counters, now: time.Now}
}

// Handle decodes one request payload (post length-prefix, i.e. exactly
// the bytes the frame announced) and returns one response payload,
// ready to be length-prefixed and written back by the transport layer.
// Handle never returns an error: every failure mode is expressed as a
// CHAR result code in the returned payload, per §7's policy that
// nothing crosses the dispatcher/transport boundary as an exception.
func (d *Dispatcher) Handle(req []byte) []byte {
	start := d.now()
	d.counters.AddReceived(len(req))

	if len(req) < 1 {
		d.counters.IncFailed("unknown")
		d.counters.IncError("wrong_command")
		return d.envelope(wireWrongCommand, nil)
	}

	cmd := req[0]
	params := req[1:]
	op := opName(cmd)

	code, payload := d.dispatch(cmd, params)
	d.record(cmd, op, code)

	resp := d.envelope(code, payload)
	d.counters.AddSent(len(resp))
	d.counters.ObserveLatency("process", d.now().Sub(start))
	return resp
}

// record applies the counter feedback policy from §4.D: a success
// increments passed.<op>; a failure increments failed.<op> and the
// specific error reason, except the two existence-probe exceptions
// that count as "passed" despite a non-OK code.
func (d *Dispatcher) record(cmd byte, op string, code byte) {
	if code == wireOK {
		d.counters.IncPassed(op)
		return
	}
	if (cmd == CmdExist && code == wireSessionNone) || (cmd == CmdExistKey && code == wireKeyNone) {
		d.counters.IncPassed(op)
		return
	}
	d.counters.IncFailed(op)
	d.counters.IncError(wireCodeName(code))
}

func wireCodeName(code byte) string {
	switch code {
	case wireWrongCommand:
		return "wrong_command"
	case wireWrongParams:
		return "wrong_params"
	case wireSessionNone:
		return "session_none"
	case wireKeyNone:
		return "key_none"
	case wireLimitExceeded:
		return "limit_exceeded"
	case wireLifetimeExceeded:
		return "lifetime_exceeded"
	case wireDuplicateKey:
		return "duplicate_key"
	case wireRecordBeenChanged:
		return "record_been_changed"
	case wireLimitPerSecExceeded:
		return "limit_per_sec_exceeded"
	case wireDuplicateSession:
		return "duplicate_session"
	default:
		return "unknown"
	}
}

// envelope wraps code and payload in the outer STRING the wire
// contract requires (§4.D, §9): redundant with the transport's own
// length prefix, but part of the protocol as specified.
func (d *Dispatcher) envelope(code byte, payload []byte) []byte {
	inner := make([]byte, 0, 1+len(payload))
	inner = append(inner, code)
	inner = append(inner, payload...)
	return codec.Pack(codec.Schema{codec.StringItem(inner)})
}

// dispatch decodes params for cmd, invokes the matching store
// operation, and returns the wire code plus any success payload bytes
// (not including the leading CHAR code, which Handle/envelope add).
func (d *Dispatcher) dispatch(cmd byte, params []byte) (byte, []byte) {
	switch cmd {
	case CmdGenerate:
		return d.doGenerate(params)
	case CmdExist:
		return d.doExist(params)
	case CmdRemove:
		return d.doRemove(params)
	case CmdProlong:
		return d.doProlong(params)
	case CmdAddKey:
		return d.doAddKey(params)
	case CmdGetKey:
		return d.doGetKey(params)
	case CmdSetKey:
		return d.doSetKey(params)
	case CmdSetForceKey:
		return d.doSetForceKey(params)
	case CmdRemoveKey:
		return d.doRemoveKey(params)
	case CmdExistKey:
		return d.doExistKey(params)
	case CmdProlongKey:
		return d.doProlongKey(params)
	case CmdAllAddKey:
		return d.doAllAddKey(params)
	case CmdAllRemoveKey:
		return d.doAllRemoveKey(params)
	case CmdAddSession:
		return d.doAddSession(params)
	case CmdGetStatistics:
		return d.doGetStatistics(params)
	default:
		return wireWrongCommand, nil
	}
}

// textID converts a 16-byte wire id to the store's internal 36-char
// text key. Returns false if the bytes are not a well-formed v4 shape,
// which the dispatcher treats as WRONG_PARAMS.
func textID(raw []byte) (string, bool) {
	text, isV4 := uuid.ToNormal(raw)
	if !isV4 {
		return "", false
	}
	return string(text), true
}

func (d *Dispatcher) doGenerate(params []byte) (byte, []byte) {
	lifetime := codec.IntItem(0)
	if err := codec.Unpack(codec.Schema{lifetime}, params); err != nil {
		return wireWrongParams, nil
	}

	id, res := d.st.Generate(lifetime.Int)
	if res != store.OK {
		return resultToWire(res), nil
	}

	bin, ok := uuid.ToBin([]byte(id))
	if !ok {
		return wireWrongParams, nil
	}
	return wireOK, codec.Pack(codec.Schema{codec.FixedStringItem(bin, uuid.RawLen)})
}

func (d *Dispatcher) doExist(params []byte) (byte, []byte) {
	idField := codec.EmptyFixedString(uuid.RawLen)
	if err := codec.Unpack(codec.Schema{idField}, params); err != nil {
		return wireWrongParams, nil
	}
	id, ok := textID(idField.Bytes)
	if !ok {
		return wireWrongParams, nil
	}
	return resultToWire(d.st.Exist(id)), nil
}

func (d *Dispatcher) doRemove(params []byte) (byte, []byte) {
	idField := codec.EmptyFixedString(uuid.RawLen)
	if err := codec.Unpack(codec.Schema{idField}, params); err != nil {
		return wireWrongParams, nil
	}
	id, ok := textID(idField.Bytes)
	if !ok {
		return wireWrongParams, nil
	}
	return resultToWire(d.st.Remove(id)), nil
}

func (d *Dispatcher) doProlong(params []byte) (byte, []byte) {
	idField := codec.EmptyFixedString(uuid.RawLen)
	lifetime := codec.IntItem(0)
	if err := codec.Unpack(codec.Schema{idField, lifetime}, params); err != nil {
		return wireWrongParams, nil
	}
	id, ok := textID(idField.Bytes)
	if !ok {
		return wireWrongParams, nil
	}
	return resultToWire(d.st.Prolong(id, lifetime.Int)), nil
}

func (d *Dispatcher) doAddKey(params []byte) (byte, []byte) {
	idField := codec.EmptyFixedString(uuid.RawLen)
	keyField := &codec.Item{Kind: codec.StringWithNull}
	valueField := &codec.Item{Kind: codec.String}
	lifetime := codec.IntItem(0)
	if err := codec.Unpack(codec.Schema{idField, keyField, valueField, lifetime}, params); err != nil {
		return wireWrongParams, nil
	}
	id, ok := textID(idField.Bytes)
	if !ok {
		return wireWrongParams, nil
	}

	counterKeys, counterRecord, res := d.st.AddKey(id, string(keyField.Bytes), valueField.Bytes, lifetime.Int)
	if res != store.OK {
		return resultToWire(res), nil
	}
	return wireOK, codec.Pack(codec.Schema{codec.IntItem(counterKeys), codec.IntItem(counterRecord)})
}

func (d *Dispatcher) doGetKey(params []byte) (byte, []byte) {
	idField := codec.EmptyFixedString(uuid.RawLen)
	keyField := &codec.Item{Kind: codec.StringWithNull}
	limitRead := codec.ShortIntItem(0)
	if err := codec.Unpack(codec.Schema{idField, keyField, limitRead}, params); err != nil {
		return wireWrongParams, nil
	}
	id, ok := textID(idField.Bytes)
	if !ok {
		return wireWrongParams, nil
	}

	value, counterKeys, counterRecord, res := d.st.GetKey(id, string(keyField.Bytes), limitRead.ShortInt)
	if res != store.OK {
		return resultToWire(res), nil
	}
	return wireOK, codec.Pack(codec.Schema{
		codec.StringItem(value),
		codec.IntItem(counterKeys),
		codec.IntItem(counterRecord),
	})
}

func (d *Dispatcher) doSetKey(params []byte) (byte, []byte) {
	idField := codec.EmptyFixedString(uuid.RawLen)
	keyField := &codec.Item{Kind: codec.StringWithNull}
	valueField := &codec.Item{Kind: codec.String}
	counterKeys := codec.IntItem(0)
	counterRecord := codec.IntItem(0)
	limitWrite := codec.ShortIntItem(0)
	schema := codec.Schema{idField, keyField, valueField, counterKeys, counterRecord, limitWrite}
	if err := codec.Unpack(schema, params); err != nil {
		return wireWrongParams, nil
	}
	id, ok := textID(idField.Bytes)
	if !ok {
		return wireWrongParams, nil
	}

	res := d.st.SetKey(id, string(keyField.Bytes), valueField.Bytes, counterKeys.Int, counterRecord.Int, limitWrite.ShortInt)
	return resultToWire(res), nil
}

func (d *Dispatcher) doSetForceKey(params []byte) (byte, []byte) {
	idField := codec.EmptyFixedString(uuid.RawLen)
	keyField := &codec.Item{Kind: codec.StringWithNull}
	valueField := &codec.Item{Kind: codec.String}
	limitWrite := codec.ShortIntItem(0)
	schema := codec.Schema{idField, keyField, valueField, limitWrite}
	if err := codec.Unpack(schema, params); err != nil {
		return wireWrongParams, nil
	}
	id, ok := textID(idField.Bytes)
	if !ok {
		return wireWrongParams, nil
	}

	res := d.st.SetForceKey(id, string(keyField.Bytes), valueField.Bytes, limitWrite.ShortInt)
	return resultToWire(res), nil
}

func (d *Dispatcher) doRemoveKey(params []byte) (byte, []byte) {
	idField := codec.EmptyFixedString(uuid.RawLen)
	keyField := &codec.Item{Kind: codec.StringWithNull}
	if err := codec.Unpack(codec.Schema{idField, keyField}, params); err != nil {
		return wireWrongParams, nil
	}
	id, ok := textID(idField.Bytes)
	if !ok {
		return wireWrongParams, nil
	}
	return resultToWire(d.st.RemoveKey(id, string(keyField.Bytes))), nil
}

func (d *Dispatcher) doExistKey(params []byte) (byte, []byte) {
	idField := codec.EmptyFixedString(uuid.RawLen)
	keyField := &codec.Item{Kind: codec.StringWithNull}
	if err := codec.Unpack(codec.Schema{idField, keyField}, params); err != nil {
		return wireWrongParams, nil
	}
	id, ok := textID(idField.Bytes)
	if !ok {
		return wireWrongParams, nil
	}
	return resultToWire(d.st.ExistKey(id, string(keyField.Bytes))), nil
}

func (d *Dispatcher) doProlongKey(params []byte) (byte, []byte) {
	idField := codec.EmptyFixedString(uuid.RawLen)
	keyField := &codec.Item{Kind: codec.StringWithNull}
	lifetime := codec.IntItem(0)
	if err := codec.Unpack(codec.Schema{idField, keyField, lifetime}, params); err != nil {
		return wireWrongParams, nil
	}
	id, ok := textID(idField.Bytes)
	if !ok {
		return wireWrongParams, nil
	}
	return resultToWire(d.st.ProlongKey(id, string(keyField.Bytes), lifetime.Int)), nil
}

func (d *Dispatcher) doAllAddKey(params []byte) (byte, []byte) {
	keyField := &codec.Item{Kind: codec.StringWithNull}
	valueField := &codec.Item{Kind: codec.String}
	if err := codec.Unpack(codec.Schema{keyField, valueField}, params); err != nil {
		return wireWrongParams, nil
	}
	return resultToWire(d.st.AddAllKey(string(keyField.Bytes), valueField.Bytes)), nil
}

func (d *Dispatcher) doAllRemoveKey(params []byte) (byte, []byte) {
	keyField := &codec.Item{Kind: codec.StringWithNull}
	if err := codec.Unpack(codec.Schema{keyField}, params); err != nil {
		return wireWrongParams, nil
	}
	return resultToWire(d.st.RemoveAllKey(string(keyField.Bytes))), nil
}

func (d *Dispatcher) doAddSession(params []byte) (byte, []byte) {
	idField := codec.EmptyFixedString(uuid.RawLen)
	lifetime := codec.IntItem(0)
	if err := codec.Unpack(codec.Schema{idField, lifetime}, params); err != nil {
		return wireWrongParams, nil
	}
	id, ok := textID(idField.Bytes)
	if !ok {
		return wireWrongParams, nil
	}
	return resultToWire(d.st.Add(id, lifetime.Int)), nil
}

// doGetStatistics has no parameters and returns the counters snapshot
// as a sequence of INT64 fields, deliberately without a consistency
// barrier across counters (§9, Open Question: GET_STATISTICS
// concurrency — kept as independent reads per SPEC_FULL.md's decision).
func (d *Dispatcher) doGetStatistics(params []byte) (byte, []byte) {
	if len(params) != 0 {
		return wireWrongParams, nil
	}

	values := d.counters.Snapshot()
	items := make(codec.Schema, 0, len(values))
	for _, v := range values {
		hi := uint32(uint64(v) >> 32)
		lo := uint32(uint64(v))
		items = append(items, codec.IntItem(hi), codec.IntItem(lo))
	}
	return wireOK, codec.Pack(items)
}

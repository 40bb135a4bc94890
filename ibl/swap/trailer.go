/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package swap implements the IBL's scratch-based sector swap engine:
// the trailer codec (magic/copy_done/image_ok/swap_size/status_log),
// the status-source table, and the reverse sector-by-sector
// swap state machine, grounded on mcuboot's loader.c / bootutil_priv.h
// swap logic and expressed against artifact/flash.Area the way
// artifact/image codes the image header and TLV block.
package swap

import (
	"bytes"
	"encoding/binary"

	"github.com/runtimeco/tfcore/artifact/flash"
	"github.com/runtimeco/tfcore/internal/tferr"
)

// TrailerMagic is the 16-byte "GOOD" pattern written last on commit.
// Any other non-erased content is BAD; an all-erased-value span is
// UNSET.
var TrailerMagic = [16]byte{
	0x77, 0xc2, 0x95, 0xf3, 0x60, 0xd2, 0xef, 0x7f,
	0x35, 0x52, 0x50, 0x0f, 0x2c, 0xb6, 0x79, 0x80,
}

const (
	ValSet   byte = 0x01
	ValUnset byte = 0xff
)

// TriVal is the three-valued trailer field type described in the
// data model: SET, UNSET, or BAD (anything else observed on flash).
type TriVal int

const (
	ValBad TriVal = iota
	ValFieldSet
	ValFieldUnset
)

// MagicVal is the three-valued trailer magic state.
type MagicVal int

const (
	MagicBad MagicVal = iota
	MagicGood
	MagicUnset
)

// numSwapStates is the number of distinct swap_state values the status
// log persists per sector (§4.2): COPY_SCRATCH, ERASE_SEC,
// ERASE_AND_COPY. Each (sector, state) pair gets its own reserved
// flash slot so a sector's three state transitions never target the
// same byte twice.
const numSwapStates = 3

// Layout computes the byte offsets of every trailer field within a
// slot/scratch area, laid out from the end of the area toward lower
// addresses per the external-interfaces bit layout: magic, image_ok,
// copy_done, swap_size, status_log. All fields occupy whole multiples
// of the area's program alignment.
type Layout struct {
	Align      int
	NumSectors int
	AreaSize   int
}

func NewLayout(area flash.Area, numSectors int) Layout {
	return Layout{
		Align:      area.Align(),
		NumSectors: numSectors,
		AreaSize:   area.Size(),
	}
}

func (l Layout) magicOff() int    { return l.AreaSize - 16 }
func (l Layout) imageOkOff() int  { return l.magicOff() - l.Align }
func (l Layout) copyDoneOff() int { return l.imageOkOff() - l.Align }
func (l Layout) swapSizeOff() int { return l.copyDoneOff() - 4*l.Align }
func (l Layout) statusLogOff() int {
	return l.swapSizeOff() - l.NumSectors*numSwapStates*l.Align
}

// statusSlotOff is the reserved offset for sector idx's state slot:
// status_off + idx*state_count*align + state*align (§4.2), so every
// (sector, state) pair owns flash bytes no other pair ever writes.
func (l Layout) statusSlotOff(idx int, state byte) int {
	return l.statusLogOff() + idx*numSwapStates*l.Align + int(state)*l.Align
}

// TrailerStart is the offset of the first trailer byte; the sector
// containing this offset must be preserved/relocated specially by the
// swap engine (the "sector being copied overlaps the trailer" case).
func (l Layout) TrailerStart() int { return l.statusLogOff() }

// Trailer is the decoded view of a slot's trailer region.
type Trailer struct {
	Magic     MagicVal
	ImageOk   TriVal
	CopyDone  TriVal
	SwapSize  uint32
	StatusLog []byte // one logical progress state per sector, derived from that sector's reserved state slots
}

func readField(area flash.Area, off, align int) (byte, error) {
	buf, err := area.Read(off, align)
	if err != nil {
		return 0, tferr.Wrap(tferr.KindFlashIo, err, "trailer field read failed")
	}
	return buf[0], nil
}

func classifyTri(b byte, erased byte) TriVal {
	switch {
	case b == ValSet:
		return ValFieldSet
	case b == erased || b == ValUnset:
		return ValFieldUnset
	default:
		return ValBad
	}
}

// ReadTrailer decodes every trailer field from area according to l.
func ReadTrailer(area flash.Area, l Layout) (Trailer, error) {
	var t Trailer

	magicBuf, err := area.Read(l.magicOff(), 16)
	if err != nil {
		return t, tferr.Wrap(tferr.KindFlashIo, err, "trailer magic read failed")
	}
	switch {
	case bytes.Equal(magicBuf, TrailerMagic[:]):
		t.Magic = MagicGood
	case isErased(magicBuf, area.ErasedValue()):
		t.Magic = MagicUnset
	default:
		t.Magic = MagicBad
	}

	okByte, err := readField(area, l.imageOkOff(), l.Align)
	if err != nil {
		return t, err
	}
	t.ImageOk = classifyTri(okByte, area.ErasedValue())

	doneByte, err := readField(area, l.copyDoneOff(), l.Align)
	if err != nil {
		return t, err
	}
	t.CopyDone = classifyTri(doneByte, area.ErasedValue())

	szBuf, err := area.Read(l.swapSizeOff(), 4*l.Align)
	if err != nil {
		return t, tferr.Wrap(tferr.KindFlashIo, err, "swap_size read failed")
	}
	if isErased(szBuf[:4], area.ErasedValue()) {
		t.SwapSize = 0
	} else {
		t.SwapSize = binary.LittleEndian.Uint32(szBuf[:4])
	}

	logSize := l.NumSectors * numSwapStates * l.Align
	log, err := area.Read(l.statusLogOff(), logSize)
	if err != nil {
		return t, tferr.Wrap(tferr.KindFlashIo, err, "status log read failed")
	}
	t.StatusLog = make([]byte, l.NumSectors)
	for i := 0; i < l.NumSectors; i++ {
		cur := area.ErasedValue()
		for state := 0; state < numSwapStates; state++ {
			if log[(i*numSwapStates+state)*l.Align] == byte(state) {
				cur = byte(state)
			}
		}
		t.StatusLog[i] = cur
	}

	return t, nil
}

func isErased(buf []byte, erased byte) bool {
	for _, b := range buf {
		if b != erased {
			return false
		}
	}
	return true
}

func fieldBuf(align int, val byte) []byte {
	buf := make([]byte, align)
	for i := range buf {
		buf[i] = val
	}
	return buf
}

// WriteSwapSize persists the swap_size record; per the component
// design this, together with the boot_status record, must land before
// State 1 of the first sector index is entered.
func WriteSwapSize(area flash.Area, l Layout, size uint32) error {
	buf := make([]byte, 4*l.Align)
	binary.LittleEndian.PutUint32(buf[:4], size)
	if err := area.Write(l.swapSizeOff(), buf); err != nil {
		return tferr.Wrap(tferr.KindFlashIo, err, "swap_size write failed")
	}
	return nil
}

// WriteStatus persists a single status_log entry recording that
// sector idx has reached state, into that (sector, state) pair's own
// reserved slot.
func WriteStatus(area flash.Area, l Layout, idx int, state byte) error {
	if idx < 0 || idx >= l.NumSectors {
		return tferr.Fmt(tferr.KindParam, "status index %d out of range", idx)
	}
	if int(state) < 0 || int(state) >= numSwapStates {
		return tferr.Fmt(tferr.KindParam, "status state %d out of range", state)
	}
	off := l.statusSlotOff(idx, state)
	if err := area.Write(off, fieldBuf(l.Align, state)); err != nil {
		return tferr.Wrap(tferr.KindFlashIo, err, "status log write failed")
	}
	return nil
}

// WriteCopyDone persists the primary-only copy_done flag.
func WriteCopyDone(area flash.Area, l Layout, set bool) error {
	v := ValUnset
	if set {
		v = ValSet
	}
	if err := area.Write(l.copyDoneOff(), fieldBuf(l.Align, v)); err != nil {
		return tferr.Wrap(tferr.KindFlashIo, err, "copy_done write failed")
	}
	return nil
}

// WriteImageOk persists the image_ok flag.
func WriteImageOk(area flash.Area, l Layout, set bool) error {
	v := ValUnset
	if set {
		v = ValSet
	}
	if err := area.Write(l.imageOkOff(), fieldBuf(l.Align, v)); err != nil {
		return tferr.Wrap(tferr.KindFlashIo, err, "image_ok write failed")
	}
	return nil
}

// WriteMagic persists the trailer magic, written last on commit so
// that a torn write during the swap leaves the trailer in the UNSET
// or BAD state rather than falsely GOOD.
func WriteMagic(area flash.Area, l Layout) error {
	pad := l.Align - (16 % l.Align)
	if pad == l.Align {
		pad = 0
	}
	buf := append(append([]byte{}, TrailerMagic[:]...), fieldBuf(pad, area.ErasedValue())...)
	if err := area.Write(l.magicOff(), buf); err != nil {
		return tferr.Wrap(tferr.KindFlashIo, err, "magic write failed")
	}
	return nil
}

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

package block

import (
	"encoding/binary"

	"github.com/runtimeco/tfcore/artifact/crypto"
	"github.com/runtimeco/tfcore/artifact/flash"
	"github.com/runtimeco/tfcore/internal/tferr"
)

// Engine implements the two-block N==2 configuration of the block
// engine, where metadata and data coexist in each of the alternating
// active/scratch blocks (§3.3, "if N == 2 metadata and data coexist
// in the two blocks"). The general N>2 discrete-data-block layout
// described in §4.3 steps 3-4 is not modeled here; every commit
// relocates the whole logical store between the two physical areas,
// which is sufficient to exercise the atomicity, compaction and
// newest-block-election invariants the spec actually tests (§8.2).
type Engine struct {
	Areas      [2]flash.Area
	Key        []byte // nil selects the unencrypted checksum fallback
	NumObjects int
}

// State is the fully decoded in-RAM working copy a mutation operates
// on: metadata plus the raw data region trailing it in the block.
type State struct {
	Meta Metadata
	Data []byte
}

func (e *Engine) dataOff() int {
	return Size(1, e.NumObjects)
}

func (e *Engine) newer(a, b uint32) bool {
	switch {
	case a == b:
		return false
	case a == 0 && b != 1:
		return true
	case b == 0 && a != 1:
		return false
	default:
		return a > b
	}
}

// decodeBlock validates and decodes one physical area, returning ok
// = false if the block fails integrity checks (torn write, bad tag,
// erased-sentinel counter).
func (e *Engine) decodeBlock(area flash.Area) (State, bool) {
	buf, err := area.Read(0, area.Size())
	if err != nil {
		return State{}, false
	}

	meta, err := Decode(buf, 1, e.NumObjects)
	if err != nil {
		return State{}, false
	}
	if meta.Header.ActiveSwapCount == ErasedSwapCount {
		return State{}, false
	}

	rest, err := meta.encodeUnauthed()
	if err != nil {
		return State{}, false
	}

	if e.Key != nil {
		if _, err := crypto.Open(e.Key, meta.Header.Iv[:], rest, nil, meta.Header.Tag[:]); err != nil {
			return State{}, false
		}
	} else {
		want := crypto.Hash(rest)
		if !bytesEqualPrefix(meta.Header.Tag[:], want, TagSize) {
			return State{}, false
		}
	}

	data := buf[e.dataOff():]
	return State{Meta: meta, Data: append([]byte{}, data...)}, true
}

func bytesEqualPrefix(a, b []byte, n int) bool {
	if len(a) < n || len(b) < n {
		return false
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Boot performs newest-block election: decode both physical areas,
// keep whichever authenticates, and if both do, prefer the higher
// active_swap_count under the rollover rule (0 beats everything but
// 1).
func (e *Engine) Boot() (activeIdx int, st State, err error) {
	s0, ok0 := e.decodeBlock(e.Areas[0])
	s1, ok1 := e.decodeBlock(e.Areas[1])

	switch {
	case ok0 && !ok1:
		return 0, s0, nil
	case ok1 && !ok0:
		return 1, s1, nil
	case ok0 && ok1:
		if e.newer(s0.Meta.Header.ActiveSwapCount, s1.Meta.Header.ActiveSwapCount) {
			return 0, s0, nil
		}
		return 1, s1, nil
	default:
		return 0, State{}, tferr.New(tferr.KindBadImage, "no valid SSE block found")
	}
}

// Commit runs the full scratch-based atomic update protocol: mutate
// operates on a copy of the active state and returns the desired new
// state, which is written to the scratch block, finalized (tag
// and swap counter), and the stale block is erased last.
func (e *Engine) Commit(mutate func(State) (State, error)) error {
	activeIdx, active, err := e.Boot()
	if err != nil {
		// No valid block yet: treat area 0 as an empty starting state.
		activeIdx = 1
		active = State{
			Meta: Metadata{
				Header:  Header{ActiveSwapCount: ErasedSwapCount},
				Blocks:  []BlockMeta{{PhysId: 0, FreeOffset: 0}},
				Objects: make([]ObjectMeta, e.NumObjects),
			},
			Data: make([]byte, e.Areas[0].Size()-e.dataOff()),
		}
	}

	next, err := mutate(active)
	if err != nil {
		return err
	}

	scratchIdx := 1 - activeIdx
	scratch := e.Areas[scratchIdx]

	nextCount := active.Meta.Header.ActiveSwapCount + 1
	if active.Meta.Header.ActiveSwapCount == ErasedSwapCount {
		nextCount = 1
	}
	if nextCount == ErasedSwapCount {
		nextCount = 0
	}
	next.Meta.Header.ActiveSwapCount = nextCount

	metaBuf, err := Encode(next.Meta)
	if err != nil {
		return err
	}
	rest := metaBuf[TagSize:]

	if err := scratch.Erase(0, scratch.Size()); err != nil {
		return tferr.Wrap(tferr.KindFlashIo, err, "scratch erase failed")
	}
	if err := scratch.Write(e.dataOff(), next.Data); err != nil {
		return tferr.Wrap(tferr.KindFlashIo, err, "scratch data write failed")
	}

	if e.Key != nil {
		iv, err := crypto.NewIv()
		if err != nil {
			return err
		}
		copy(next.Meta.Header.Iv[:], iv)
		// The IV is part of the authenticated range: re-encode with it
		// in place before sealing.
		metaBuf, err = Encode(next.Meta)
		if err != nil {
			return err
		}
		rest = metaBuf[TagSize:]
		_, tag, err := crypto.Seal(e.Key, iv, rest, nil)
		if err != nil {
			return err
		}
		copy(next.Meta.Header.Tag[:], tag)
		full, err := Encode(next.Meta)
		if err != nil {
			return err
		}
		if err := scratch.Write(0, full); err != nil {
			return tferr.Wrap(tferr.KindFlashIo, err, "scratch metadata write failed")
		}
	} else {
		tag := crypto.Hash(rest)
		copy(next.Meta.Header.Tag[:], tag[:TagSize])

		// Unencrypted path: the swap counter is written last via a
		// second, narrower write, so a torn write leaves the
		// erased-sentinel counter and the block loses election.
		counterOff := TagSize + IvSize
		withoutCounter, err := Encode(next.Meta)
		if err != nil {
			return err
		}
		eraseCounter(withoutCounter, counterOff, scratch.ErasedValue())
		if err := scratch.Write(0, withoutCounter); err != nil {
			return tferr.Wrap(tferr.KindFlashIo, err, "scratch metadata write failed")
		}
		counterBuf := withoutCounter[counterOff : counterOff+4]
		binary.LittleEndian.PutUint32(counterBuf, next.Meta.Header.ActiveSwapCount)
		if err := scratch.Write(counterOff, counterBuf); err != nil {
			return tferr.Wrap(tferr.KindFlashIo, err, "scratch counter write failed")
		}
	}

	if err := e.Areas[activeIdx].Erase(0, e.Areas[activeIdx].Size()); err != nil {
		return tferr.Wrap(tferr.KindFlashIo, err, "stale block erase failed")
	}

	return nil
}

func eraseCounter(buf []byte, off int, erased byte) {
	for i := off; i < off+4; i++ {
		buf[i] = erased
	}
}

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

// Package nvcounter implements the anti-rollback monotonic counter
// backend (§3.4, §4.6, §6.3): one uint32 per image security-counter
// index, stored in the NV_COUNTERS area, never decreasing.
package nvcounter

import (
	"encoding/binary"

	"github.com/runtimeco/tfcore/artifact/flash"
	"github.com/runtimeco/tfcore/internal/tferr"
)

// entrySize is one counter slot: a 4-byte value plus padding to the
// area's alignment is handled by the caller; the store itself always
// reads/writes whole uint32 words.
const entrySize = 4

const MaxValue = ^uint32(0)

// Store persists counters in a dedicated flash area, one slot per
// image id. Reads never decrease; see Update.
type Store struct {
	area flash.Area
}

func NewStore(area flash.Area) *Store {
	return &Store{area: area}
}

func (s *Store) offset(id uint8) int {
	return int(id) * entrySize
}

// Read returns the current counter value for id (§6.3 nv_read).
func (s *Store) Read(id uint8) (uint32, error) {
	off := s.offset(id)
	if off+entrySize > s.area.Size() {
		return 0, tferr.Fmt(tferr.KindParam, "counter id %d out of range", id)
	}
	buf, err := s.area.Read(off, entrySize)
	if err != nil {
		return 0, tferr.Wrap(tferr.KindFlashIo, err, "nv counter read failed")
	}
	return binary.LittleEndian.Uint32(buf) ^ erasedWord(s.area.ErasedValue()), nil
}

// erasedWord is the word an all-erased slot reads as. Slots hold the
// counter XORed with it, so an erased slot reads as 0 while MaxValue
// stays distinct from erased flash.
func erasedWord(erased byte) uint32 {
	return uint32(erased) * 0x01010101
}

// Update writes value for id, enforced monotone: value must be >=
// the current stored value, and MaxValue is a terminal, un-advanceable
// state (§4.6, §6.3).
func (s *Store) Update(id uint8, value uint32) error {
	cur, err := s.Read(id)
	if err != nil {
		return err
	}
	if cur == MaxValue {
		return tferr.New(tferr.KindRollbackRefused, "nv counter at max value")
	}
	if value < cur {
		return tferr.Fmt(tferr.KindRollbackRefused,
			"refusing to lower nv counter %d: %d < %d", id, value, cur)
	}
	if value == cur {
		// Idempotent: nothing to write.
		return nil
	}

	// The area is a single erase-granular block shared by every
	// counter id, so advancing one slot means re-persisting the
	// whole array: read it all, patch the slot, erase, write back.
	whole, err := s.area.Read(0, s.area.Size())
	if err != nil {
		return tferr.Wrap(tferr.KindFlashIo, err, "nv counter read failed")
	}
	off := s.offset(id)
	binary.LittleEndian.PutUint32(whole[off:off+entrySize], value^erasedWord(s.area.ErasedValue()))

	if err := s.area.Erase(0, s.area.Size()); err != nil {
		return tferr.Wrap(tferr.KindFlashIo, err, "nv counter erase failed")
	}
	if err := s.area.Write(0, whole); err != nil {
		return tferr.Wrap(tferr.KindFlashIo, err, "nv counter write failed")
	}
	return nil
}

// Increment bumps the counter for id by one (§6.3 nv_increment).
func (s *Store) Increment(id uint8) error {
	cur, err := s.Read(id)
	if err != nil {
		return err
	}
	return s.Update(id, cur+1)
}

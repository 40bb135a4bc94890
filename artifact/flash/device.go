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

package flash

import (
	"github.com/runtimeco/tfcore/internal/tferr"
)

// Area is the flash driver surface the core consumes (§6.1). Every
// named FlashArea is backed by one Area at runtime; the core never
// talks to a raw device, only to areas scoped to their geometry.
//
// Implementations must reject writes to already-programmed bytes and
// writes smaller than Align() — real NOR/NAND parts can only clear
// bits, never set them, so a non-erased destination silently
// corrupts data instead of failing loudly on real hardware. The
// in-memory Sim below enforces this so bugs surface in tests.
type Area interface {
	Read(off, size int) ([]byte, error)
	Write(off int, buf []byte) error
	Erase(off, size int) error
	Align() int
	ErasedValue() byte
	Size() int
	SectorSize() int
	NumSectors() int
	DeviceId() int
	BaseAddress() uint64
}

// Sim is an in-memory Area used by tests and by the tfboot-sim /
// tfcore CLIs in place of a real flash controller. It enforces the
// erase-before-write and alignment rules a real part would.
type Sim struct {
	area  FlashArea
	base  uint64
	bytes []byte
}

func NewSim(area FlashArea, base uint64) *Sim {
	s := &Sim{area: area, base: base}
	s.bytes = make([]byte, area.Size)
	for i := range s.bytes {
		s.bytes[i] = area.ErasedVal
	}
	return s
}

// NewSimFromBytes restores a Sim from a previously captured Snapshot,
// the CLI's way of carrying simulated flash contents across separate
// process invocations. It bypasses the erase-before-write check: the
// data is already physically present, not being programmed.
func NewSimFromBytes(area FlashArea, base uint64, data []byte) (*Sim, error) {
	if len(data) != area.Size {
		return nil, tferr.Fmt(tferr.KindParam,
			"snapshot size %d does not match area size %d", len(data), area.Size)
	}
	s := &Sim{area: area, base: base}
	s.bytes = append([]byte{}, data...)
	return s, nil
}

// Snapshot returns a copy of the area's current raw contents.
func (s *Sim) Snapshot() []byte {
	return append([]byte{}, s.bytes...)
}

func (s *Sim) Size() int            { return s.area.Size }
func (s *Sim) Align() int           { return s.area.Align }
func (s *Sim) ErasedValue() byte    { return s.area.ErasedVal }
func (s *Sim) SectorSize() int      { return s.area.SectorSize }
func (s *Sim) NumSectors() int      { return s.area.NumSectors() }
func (s *Sim) DeviceId() int        { return s.area.Device }
func (s *Sim) BaseAddress() uint64  { return s.base }

func (s *Sim) bounds(off, size int) error {
	if off < 0 || size < 0 || off+size > len(s.bytes) {
		return tferr.Fmt(tferr.KindParam,
			"flash access out of bounds: off=%d size=%d area_size=%d",
			off, size, len(s.bytes))
	}
	return nil
}

func (s *Sim) Read(off, size int) ([]byte, error) {
	if err := s.bounds(off, size); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, s.bytes[off:off+size])
	return out, nil
}

func (s *Sim) Write(off int, buf []byte) error {
	if err := s.bounds(off, len(buf)); err != nil {
		return err
	}
	if len(buf)%s.area.Align != 0 {
		return tferr.Fmt(tferr.KindFlashIo,
			"write size %d not aligned to %d", len(buf), s.area.Align)
	}
	if off%s.area.Align != 0 {
		return tferr.Fmt(tferr.KindFlashIo,
			"write offset %d not aligned to %d", off, s.area.Align)
	}
	for i, b := range buf {
		if s.bytes[off+i] != s.area.ErasedVal {
			return tferr.Fmt(tferr.KindFlashIo,
				"write to non-erased byte at offset %d", off+i)
		}
		s.bytes[off+i] = b
	}
	return nil
}

func (s *Sim) Erase(off, size int) error {
	if err := s.bounds(off, size); err != nil {
		return err
	}
	if off%s.area.SectorSize != 0 || size%s.area.SectorSize != 0 {
		return tferr.Fmt(tferr.KindFlashIo,
			"erase range [%d,%d) not sector-aligned (sector=%d)",
			off, off+size, s.area.SectorSize)
	}
	for i := off; i < off+size; i++ {
		s.bytes[i] = s.area.ErasedVal
	}
	return nil
}

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

package boot

import (
	"sort"

	"github.com/runtimeco/tfcore/artifact/flash"
	"github.com/runtimeco/tfcore/artifact/image"
	"github.com/runtimeco/tfcore/ibl/swap"
	"github.com/runtimeco/tfcore/internal/tferr"
)

// slotCandidate is one entry of slot_versions[] (§4.1.1 step 1).
type slotCandidate struct {
	area    flash.Area
	hdr     image.ImageHdr
	version uint64
}

// packedVersion packs (major,minor,revision,build) into a single
// comparable 64-bit value, most-significant field first, so a plain
// descending numeric sort gives the newest-wins order.
func packedVersion(v image.ImageVersion) uint64 {
	return uint64(v.Major)<<56 | uint64(v.Minor)<<48 | uint64(v.Rev)<<32 | uint64(v.BuildNum)
}

// RamLoadPolicy configures the no-swap, newest-image-wins variant:
// every slot is a standalone candidate, authenticated in descending
// version order until one passes.
type RamLoadPolicy struct {
	NumSectors int
	Ram        RamSink
}

// RamSink is the destination the selected image's body is copied
// into when its header requests IMAGE_F_RAM_LOAD. Implementations
// must reject offsets/writes that are not 4-byte aligned, mirroring
// the alignment requirement on the load address itself.
type RamSink interface {
	CopyIn(loadAddr uint32, data []byte) error
}

// GoRamLoad implements the §4.1.1 procedure: collect every slot whose
// trailer looks bootable, sort newest-first, authenticate in order,
// and (if requested) stage the winner into RAM before returning.
func GoRamLoad(slots []flash.Area, pol RamLoadPolicy, counters *CounterUpdater) (Response, error) {
	var candidates []slotCandidate

	for _, area := range slots {
		l := swap.NewLayout(area, pol.NumSectors)
		trailer, err := swap.ReadTrailer(area, l)
		if err != nil {
			continue
		}
		if trailer.Magic != swap.MagicGood && trailer.ImageOk != swap.ValFieldSet {
			continue
		}
		hdr, err := readHeader(area)
		if err != nil {
			continue
		}
		candidates = append(candidates, slotCandidate{
			area:    area,
			hdr:     hdr,
			version: packedVersion(hdr.Vers),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].version > candidates[j].version
	})

	for _, c := range candidates {
		if err := validateSlot(c.hdr, true); err != nil {
			continue
		}

		if c.hdr.Flags&image.IMAGE_F_RAM_LOAD != 0 {
			if pol.Ram == nil {
				return Response{}, tferr.New(tferr.KindBadImage, "RAM-load image with no RAM sink configured")
			}
			if c.hdr.LoadAddr%4 != 0 {
				return Response{}, tferr.New(tferr.KindBadImage, "load address not 4-byte aligned")
			}
			body, err := c.area.Read(int(c.hdr.HdrSz), int(c.hdr.ImgSz))
			if err != nil {
				return Response{}, tferr.Wrap(tferr.KindFlashIo, err, "image body read failed")
			}
			if err := pol.Ram.CopyIn(c.hdr.LoadAddr, body); err != nil {
				return Response{}, tferr.Wrap(tferr.KindFlashIo, err, "RAM load failed")
			}
		}

		bootImg, err := readFullImage(c.area, c.hdr)
		if err != nil {
			return Response{}, err
		}

		if counters != nil {
			if err := counters.Advance(bootImg); err != nil {
				return Response{}, err
			}
		}

		// There is no swap here, just a winning candidate among
		// independent slots, so the handoff record carries SwapNone.
		handoff, err := buildHandoff(bootImg, c.hdr, SwapNone)
		if err != nil {
			return Response{}, err
		}

		return Response{
			DeviceId: c.area.DeviceId(),
			Offset:   int(c.area.BaseAddress()),
			Header:   c.hdr,
			Handoff:  handoff,
		}, nil
	}

	return Response{}, tferr.New(tferr.KindBadImage, "no bootable slot found")
}

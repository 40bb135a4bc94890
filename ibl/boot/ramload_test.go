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
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runtimeco/tfcore/artifact/flash"
	"github.com/runtimeco/tfcore/artifact/image"
	"github.com/runtimeco/tfcore/ibl/swap"
)

const ramloadNumSectors = 2
const ramloadSectorSize = 256

type fakeRamSink struct {
	loadAddr uint32
	data     []byte
}

func (f *fakeRamSink) CopyIn(loadAddr uint32, data []byte) error {
	f.loadAddr = loadAddr
	f.data = append([]byte{}, data...)
	return nil
}

func buildSlot(t *testing.T, name string, version image.ImageVersion, body []byte, ramLoad bool, loadAddr uint32, markGood bool) flash.Area {
	t.Helper()

	ic := image.NewImageCreator()
	ic.Body = body
	ic.Version = version
	ic.RamLoad = ramLoad
	ic.LoadAddr = loadAddr

	img, err := ic.Create()
	require.NoError(t, err)

	var raw bytes.Buffer
	_, err = img.Write(&raw)
	require.NoError(t, err)

	fa := flash.FlashArea{
		Name: name, Device: 0, Offset: 0,
		Size: ramloadSectorSize * ramloadNumSectors, SectorSize: ramloadSectorSize,
		Align: 1, ErasedVal: 0xff,
	}
	area := flash.NewSim(fa, 0)
	require.NoError(t, area.Write(0, raw.Bytes()))

	if markGood {
		l := swap.NewLayout(area, ramloadNumSectors)
		require.NoError(t, swap.WriteMagic(area, l))
	}
	return area
}

func TestGoRamLoadPicksNewestBootableSlot(t *testing.T) {
	older := buildSlot(t, "slotA", image.ImageVersion{Major: 1}, []byte("older body"), false, 0, true)
	newer := buildSlot(t, "slotB", image.ImageVersion{Major: 2}, []byte("newer body"), false, 0, true)

	resp, err := GoRamLoad([]flash.Area{older, newer}, RamLoadPolicy{NumSectors: ramloadNumSectors}, nil)
	require.NoError(t, err)
	require.Equal(t, uint8(2), resp.Header.Vers.Major)
}

func TestGoRamLoadSkipsSlotsWithoutGoodTrailer(t *testing.T) {
	stale := buildSlot(t, "slotA", image.ImageVersion{Major: 1}, []byte("stale"), false, 0, false)
	good := buildSlot(t, "slotB", image.ImageVersion{Major: 1, Minor: 1}, []byte("good"), false, 0, true)

	resp, err := GoRamLoad([]flash.Area{stale, good}, RamLoadPolicy{NumSectors: ramloadNumSectors}, nil)
	require.NoError(t, err)
	require.Equal(t, uint8(1), resp.Header.Vers.Minor)
}

func TestGoRamLoadCopiesRamLoadImageIntoSink(t *testing.T) {
	area := buildSlot(t, "slotA", image.ImageVersion{Major: 1}, []byte("ram resident body"), true, 0x20000000, true)
	sink := &fakeRamSink{}

	resp, err := GoRamLoad([]flash.Area{area}, RamLoadPolicy{NumSectors: ramloadNumSectors, Ram: sink}, nil)
	require.NoError(t, err)
	require.Equal(t, uint32(0x20000000), sink.loadAddr)
	require.Equal(t, []byte("ram resident body"), sink.data)
	require.Equal(t, uint32(0x20000000), resp.Header.LoadAddr)
}

func TestGoRamLoadFailsWithNoRamSinkConfigured(t *testing.T) {
	area := buildSlot(t, "slotA", image.ImageVersion{Major: 1}, []byte("ram resident body"), true, 0x20000000, true)

	_, err := GoRamLoad([]flash.Area{area}, RamLoadPolicy{NumSectors: ramloadNumSectors}, nil)
	require.Error(t, err)
}

func TestGoRamLoadNoBootableSlotFound(t *testing.T) {
	area := buildSlot(t, "slotA", image.ImageVersion{Major: 1}, []byte("stale"), false, 0, false)

	_, err := GoRamLoad([]flash.Area{area}, RamLoadPolicy{NumSectors: ramloadNumSectors}, nil)
	require.Error(t, err)
}

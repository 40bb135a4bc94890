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

package swap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runtimeco/tfcore/artifact/flash"
	"github.com/runtimeco/tfcore/ibl/swap"
)

const (
	testSectorSize = 64
	testNumSectors = 4
	testSlotSize   = testSectorSize * testNumSectors
)

func newSlot(t *testing.T, name string) flash.Area {
	t.Helper()
	fa := flash.FlashArea{
		Name: name, Device: 0, Offset: 0,
		Size: testSlotSize, SectorSize: testSectorSize, Align: 1, ErasedVal: 0xff,
	}
	return flash.NewSim(fa, 0)
}

func newScratch(t *testing.T) flash.Area {
	t.Helper()
	fa := flash.FlashArea{
		Name: "scratch", Device: 0, Offset: 0,
		Size: testSectorSize, SectorSize: testSectorSize, Align: 1, ErasedVal: 0xff,
	}
	return flash.NewSim(fa, 0)
}

func fillSectors(t *testing.T, area flash.Area, base byte) {
	t.Helper()
	for idx := 0; idx < testNumSectors; idx++ {
		buf := make([]byte, testSectorSize)
		for i := range buf {
			buf[i] = base + byte(idx)
		}
		require.NoError(t, area.Write(idx*testSectorSize, buf))
	}
}

func TestSwapExchangesSlotContents(t *testing.T) {
	primary := newSlot(t, "primary")
	secondary := newSlot(t, "secondary")
	scratch := newScratch(t)

	fillSectors(t, primary, 0x10)
	fillSectors(t, secondary, 0x20)

	e := &swap.Engine{Primary: primary, Secondary: secondary, Scratch: scratch}
	require.NoError(t, e.Swap(testNumSectors, 0, 500))

	// Every secondary sector now holds the original primary content,
	// trailer bytes included -- the swap engine never rewrites
	// secondary's trailer region.
	for idx := 0; idx < testNumSectors; idx++ {
		buf, err := secondary.Read(idx*testSectorSize, testSectorSize)
		require.NoError(t, err)
		want := make([]byte, testSectorSize)
		for i := range want {
			want[i] = 0x10 + byte(idx)
		}
		require.Equal(t, want, buf, "secondary sector %d", idx)
	}

	// Primary sectors below the trailer-overlapping sector hold the
	// original secondary content outright.
	for idx := 0; idx < testNumSectors-1; idx++ {
		buf, err := primary.Read(idx*testSectorSize, testSectorSize)
		require.NoError(t, err)
		want := make([]byte, testSectorSize)
		for i := range want {
			want[i] = 0x20 + byte(idx)
		}
		require.Equal(t, want, buf, "primary sector %d", idx)
	}

	// The last (trailer-overlapping) sector's data portion, ahead of
	// the migrated trailer, also matches the original secondary fill.
	l := swap.NewLayout(primary, testNumSectors)
	lastSectorOff := (testNumSectors - 1) * testSectorSize
	dataLen := l.TrailerStart() - lastSectorOff
	buf, err := primary.Read(lastSectorOff, dataLen)
	require.NoError(t, err)
	want := make([]byte, dataLen)
	for i := range want {
		want[i] = 0x20 + byte(testNumSectors-1)
	}
	require.Equal(t, want, buf)

	tr, err := swap.ReadTrailer(primary, l)
	require.NoError(t, err)
	require.Equal(t, swap.MagicGood, tr.Magic)
	require.Equal(t, swap.ValFieldSet, tr.CopyDone)
	require.Equal(t, uint32(500), tr.SwapSize)
}

func TestResumeNoSwapInProgress(t *testing.T) {
	primary := newSlot(t, "primary")
	scratch := newScratch(t)

	src, idx, err := swap.Resume(primary, scratch, testNumSectors)
	require.NoError(t, err)
	require.Equal(t, swap.SourceNone, src)
	require.Equal(t, 0, idx)
}

func TestResumeAfterCompletedSwapIsNone(t *testing.T) {
	primary := newSlot(t, "primary")
	secondary := newSlot(t, "secondary")
	scratch := newScratch(t)

	fillSectors(t, primary, 0x10)
	fillSectors(t, secondary, 0x20)

	e := &swap.Engine{Primary: primary, Secondary: secondary, Scratch: scratch}
	require.NoError(t, e.Swap(testNumSectors, 0, 500))

	src, _, err := swap.Resume(primary, scratch, testNumSectors)
	require.NoError(t, err)
	require.Equal(t, swap.SourceNone, src)
}

func TestOverwriteOnlyCopiesSecondaryAndClearsHeader(t *testing.T) {
	primary := newSlot(t, "primary")
	secondary := newSlot(t, "secondary")

	fillSectors(t, primary, 0x10)
	fillSectors(t, secondary, 0x20)

	require.NoError(t, swap.OverwriteOnly(primary, secondary, testNumSectors))

	for idx := 0; idx < testNumSectors; idx++ {
		buf, err := primary.Read(idx*testSectorSize, testSectorSize)
		require.NoError(t, err)
		want := make([]byte, testSectorSize)
		for i := range want {
			want[i] = 0x20 + byte(idx)
		}
		require.Equal(t, want, buf, "primary sector %d", idx)
	}

	headerBuf, err := secondary.Read(0, testSectorSize)
	require.NoError(t, err)
	erased := make([]byte, testSectorSize)
	for i := range erased {
		erased[i] = 0xff
	}
	require.Equal(t, erased, headerBuf)

	lastOff := (testNumSectors - 1) * testSectorSize
	trailerBuf, err := secondary.Read(lastOff, testSectorSize)
	require.NoError(t, err)
	require.Equal(t, erased, trailerBuf)
}

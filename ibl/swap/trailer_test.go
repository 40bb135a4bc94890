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

func newTrailerArea(t *testing.T) flash.Area {
	t.Helper()
	fa := flash.FlashArea{
		Name: "slot", Device: 0, Offset: 0,
		Size: 256, SectorSize: 64, Align: 1, ErasedVal: 0xff,
	}
	return flash.NewSim(fa, 0)
}

func TestTrailerUnsetByDefault(t *testing.T) {
	area := newTrailerArea(t)
	l := swap.NewLayout(area, 4)

	tr, err := swap.ReadTrailer(area, l)
	require.NoError(t, err)
	require.Equal(t, swap.MagicUnset, tr.Magic)
	require.Equal(t, swap.ValFieldUnset, tr.ImageOk)
	require.Equal(t, swap.ValFieldUnset, tr.CopyDone)
	require.Equal(t, uint32(0), tr.SwapSize)
}

func TestTrailerRoundTrip(t *testing.T) {
	area := newTrailerArea(t)
	l := swap.NewLayout(area, 4)

	require.NoError(t, swap.WriteSwapSize(area, l, 12345))
	require.NoError(t, swap.WriteStatus(area, l, 0, swap.StateCopyScratch))
	require.NoError(t, swap.WriteStatus(area, l, 1, swap.StateEraseAndCopy))
	require.NoError(t, swap.WriteCopyDone(area, l, true))
	require.NoError(t, swap.WriteImageOk(area, l, true))
	require.NoError(t, swap.WriteMagic(area, l))

	tr, err := swap.ReadTrailer(area, l)
	require.NoError(t, err)
	require.Equal(t, swap.MagicGood, tr.Magic)
	require.Equal(t, swap.ValFieldSet, tr.ImageOk)
	require.Equal(t, swap.ValFieldSet, tr.CopyDone)
	require.Equal(t, uint32(12345), tr.SwapSize)
	require.Equal(t, swap.StateCopyScratch, tr.StatusLog[0])
	require.Equal(t, swap.StateEraseAndCopy, tr.StatusLog[1])
}

func TestTrailerBadMagicIsNeitherGoodNorUnset(t *testing.T) {
	area := newTrailerArea(t)
	l := swap.NewLayout(area, 4)

	buf := make([]byte, 16)
	for i := range buf {
		buf[i] = 0xaa
	}
	require.NoError(t, area.Write(area.Size()-16, buf))

	tr, err := swap.ReadTrailer(area, l)
	require.NoError(t, err)
	require.Equal(t, swap.MagicBad, tr.Magic)
}

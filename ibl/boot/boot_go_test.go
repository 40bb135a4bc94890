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

package boot_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runtimeco/tfcore/artifact/flash"
	"github.com/runtimeco/tfcore/artifact/image"
	"github.com/runtimeco/tfcore/ibl/boot"
	"github.com/runtimeco/tfcore/ibl/swap"
)

const bootNumSectors = 2
const bootSectorSize = 256

func newBootSlot(t *testing.T, name string) flash.Area {
	t.Helper()
	fa := flash.FlashArea{
		Name: name, Device: 0, Offset: 0,
		Size: bootSectorSize * bootNumSectors, SectorSize: bootSectorSize,
		Align: 1, ErasedVal: 0xff,
	}
	return flash.NewSim(fa, 0)
}

func writeImage(t *testing.T, area flash.Area, version image.ImageVersion, body string) image.Image {
	t.Helper()
	ic := image.NewImageCreator()
	ic.Body = []byte(body)
	ic.Version = version

	img, err := ic.Create()
	require.NoError(t, err)

	var raw bytes.Buffer
	_, err = img.Write(&raw)
	require.NoError(t, err)
	require.NoError(t, area.Write(0, raw.Bytes()))
	return img
}

func TestGoPlainBootWithNoUpgradeRequested(t *testing.T) {
	primary := newBootSlot(t, "primary")
	secondary := newBootSlot(t, "secondary")
	scratch := newBootSlot(t, "scratch")

	writeImage(t, primary, image.ImageVersion{Major: 1}, "current firmware")

	resp, err := boot.Go(boot.Slots{Primary: primary, Secondary: secondary, Scratch: scratch},
		boot.Policy{NumSectors: bootNumSectors}, nil)
	require.NoError(t, err)
	require.Equal(t, uint8(1), resp.Header.Vers.Major)

	l := swap.NewLayout(primary, bootNumSectors)
	tr, err := swap.ReadTrailer(primary, l)
	require.NoError(t, err)
	require.Equal(t, swap.MagicUnset, tr.Magic)
}

func TestGoSwapsInRequestedUpgrade(t *testing.T) {
	primary := newBootSlot(t, "primary")
	secondary := newBootSlot(t, "secondary")
	scratch := newBootSlot(t, "scratch")

	writeImage(t, primary, image.ImageVersion{Major: 1}, "current firmware")
	writeImage(t, secondary, image.ImageVersion{Major: 2}, "candidate firmware")

	secLayout := swap.NewLayout(secondary, bootNumSectors)
	require.NoError(t, swap.WriteMagic(secondary, secLayout))

	resp, err := boot.Go(boot.Slots{Primary: primary, Secondary: secondary, Scratch: scratch},
		boot.Policy{NumSectors: bootNumSectors}, nil)
	require.NoError(t, err)
	require.Equal(t, uint8(2), resp.Header.Vers.Major)

	primLayout := swap.NewLayout(primary, bootNumSectors)
	tr, err := swap.ReadTrailer(primary, primLayout)
	require.NoError(t, err)
	require.Equal(t, swap.MagicGood, tr.Magic)
	require.Equal(t, swap.ValFieldSet, tr.CopyDone)
}

func TestGoOverwriteOnlyUpgrade(t *testing.T) {
	primary := newBootSlot(t, "primary")
	secondary := newBootSlot(t, "secondary")
	scratch := newBootSlot(t, "scratch")

	writeImage(t, primary, image.ImageVersion{Major: 1}, "current firmware")
	writeImage(t, secondary, image.ImageVersion{Major: 2}, "candidate firmware")

	secLayout := swap.NewLayout(secondary, bootNumSectors)
	require.NoError(t, swap.WriteMagic(secondary, secLayout))

	resp, err := boot.Go(boot.Slots{Primary: primary, Secondary: secondary, Scratch: scratch},
		boot.Policy{NumSectors: bootNumSectors, Overwrite: true}, nil)
	require.NoError(t, err)
	require.Equal(t, uint8(2), resp.Header.Vers.Major)
}

func TestGoRejectsMismatchedSlotGeometry(t *testing.T) {
	primary := newBootSlot(t, "primary")
	scratch := newBootSlot(t, "scratch")
	writeImage(t, primary, image.ImageVersion{Major: 1}, "current firmware")

	smallFa := flash.FlashArea{
		Name: "secondary", Device: 0, Offset: 0,
		Size: bootSectorSize, SectorSize: bootSectorSize, Align: 1, ErasedVal: 0xff,
	}
	secondary := flash.NewSim(smallFa, 0)

	_, err := boot.Go(boot.Slots{Primary: primary, Secondary: secondary, Scratch: scratch},
		boot.Policy{NumSectors: bootNumSectors}, nil)
	require.Error(t, err)
}

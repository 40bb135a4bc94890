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
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runtimeco/tfcore/artifact/flash"
	"github.com/runtimeco/tfcore/artifact/image"
	"github.com/runtimeco/tfcore/artifact/nvcounter"
	"github.com/runtimeco/tfcore/internal/tferr"
)

func newCounterStore(t *testing.T) *nvcounter.Store {
	t.Helper()
	fa := flash.FlashArea{
		Name: "nvcounters", Device: 0, Offset: 0,
		Size: 64, SectorSize: 64, Align: 1, ErasedVal: 0xff,
	}
	return nvcounter.NewStore(flash.NewSim(fa, 0))
}

func secCntTlv(val uint32) image.ImageTlv {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, val)
	return image.ImageTlv{
		Header: image.ImageTlvHdr{Type: image.IMAGE_TLV_SEC_CNT, Len: 4},
		Data:   data,
	}
}

func TestAdvanceSkipsImagesWithoutSecCntTlv(t *testing.T) {
	c := &CounterUpdater{Store: newCounterStore(t)}
	img := image.Image{Header: image.ImageHdr{SecCntIdx: 2}}
	require.NoError(t, c.Advance(img))

	v, err := c.Store.Read(2)
	require.NoError(t, err)
	require.Equal(t, uint32(0), v)
}

func TestAdvanceUpdatesTheImagesCounterSlot(t *testing.T) {
	c := &CounterUpdater{Store: newCounterStore(t)}
	img := image.Image{
		Header: image.ImageHdr{SecCntIdx: 3},
		Tlvs:   []image.ImageTlv{secCntTlv(7)},
	}
	require.NoError(t, c.Advance(img))

	v, err := c.Store.Read(3)
	require.NoError(t, err)
	require.Equal(t, uint32(7), v)
}

func TestAdvanceRefusesRollback(t *testing.T) {
	c := &CounterUpdater{Store: newCounterStore(t)}
	require.NoError(t, c.Advance(image.Image{
		Header: image.ImageHdr{SecCntIdx: 0},
		Tlvs:   []image.ImageTlv{secCntTlv(10)},
	}))

	err := c.Advance(image.Image{
		Header: image.ImageHdr{SecCntIdx: 0},
		Tlvs:   []image.ImageTlv{secCntTlv(5)},
	})
	require.Error(t, err)
	require.Equal(t, tferr.KindRollbackRefused, tferr.KindOf(err))
}

func TestAdvanceRejectsMalformedTlv(t *testing.T) {
	c := &CounterUpdater{Store: newCounterStore(t)}
	img := image.Image{
		Header: image.ImageHdr{SecCntIdx: 0},
		Tlvs: []image.ImageTlv{{
			Header: image.ImageTlvHdr{Type: image.IMAGE_TLV_SEC_CNT, Len: 2},
			Data:   []byte{1, 2},
		}},
	}
	err := c.Advance(img)
	require.Error(t, err)
	require.Equal(t, tferr.KindBadImage, tferr.KindOf(err))
}

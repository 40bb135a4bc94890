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

package block_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runtimeco/tfcore/artifact/flash"
	"github.com/runtimeco/tfcore/internal/tferr"
	"github.com/runtimeco/tfcore/sse/block"
)

const testNumObjects = 2

func newBlockArea(t *testing.T, name string) flash.Area {
	t.Helper()
	size := block.Size(1, testNumObjects) + 128
	fa := flash.FlashArea{
		Name: name, Device: 0, Offset: 0,
		Size: size, SectorSize: size, Align: 1, ErasedVal: 0xff,
	}
	return flash.NewSim(fa, 0)
}

func newEngine(t *testing.T) *block.Engine {
	t.Helper()
	return &block.Engine{
		Areas:      [2]flash.Area{newBlockArea(t, "a"), newBlockArea(t, "b")},
		NumObjects: testNumObjects,
	}
}

func setObject(data []byte, meta *block.Metadata, idx int, payload string, version uint32) {
	copy(data, payload)
	meta.Objects[idx] = block.ObjectMeta{
		FileId:  uint32(idx),
		InUse:   true,
		Uid:     uint32(idx + 1),
		Owner:   1,
		Offset:  0,
		Size:    uint32(len(payload)),
		MaxSize: uint32(len(payload)),
		Version: version,
	}
}

func TestBootFailsOnFreshUnwrittenAreas(t *testing.T) {
	e := newEngine(t)
	_, _, err := e.Boot()
	require.Error(t, err)
	require.Equal(t, tferr.KindBadImage, tferr.KindOf(err))
}

func TestCommitThenBootRoundTrips(t *testing.T) {
	e := newEngine(t)

	err := e.Commit(func(st block.State) (block.State, error) {
		setObject(st.Data, &st.Meta, 0, "abcd", 1)
		return st, nil
	})
	require.NoError(t, err)

	idx, st, err := e.Boot()
	require.NoError(t, err)
	require.Equal(t, uint32(1), st.Meta.Header.ActiveSwapCount)
	require.True(t, st.Meta.Objects[0].InUse)
	require.Equal(t, uint32(1), st.Meta.Objects[0].Version)
	require.Equal(t, []byte("abcd"), st.Data[:4])

	// The area that lost election on this first commit was never
	// written to (Boot started from the synthetic empty state), so it
	// remains fully erased.
	stale := e.Areas[1-idx]
	buf, rerr := stale.Read(0, stale.Size())
	require.NoError(t, rerr)
	for _, b := range buf {
		require.Equal(t, byte(0xff), b)
	}
}

func TestCommitAdvancesSwapCountAndErasesStaleBlock(t *testing.T) {
	e := newEngine(t)

	require.NoError(t, e.Commit(func(st block.State) (block.State, error) {
		setObject(st.Data, &st.Meta, 0, "abcd", 1)
		return st, nil
	}))
	firstIdx, _, err := e.Boot()
	require.NoError(t, err)

	require.NoError(t, e.Commit(func(st block.State) (block.State, error) {
		setObject(st.Data, &st.Meta, 0, "wxyz", 2)
		return st, nil
	}))

	secondIdx, st, err := e.Boot()
	require.NoError(t, err)
	require.NotEqual(t, firstIdx, secondIdx)
	require.Equal(t, uint32(2), st.Meta.Header.ActiveSwapCount)
	require.Equal(t, uint32(2), st.Meta.Objects[0].Version)
	require.Equal(t, []byte("wxyz"), st.Data[:4])

	stale := e.Areas[firstIdx]
	buf, rerr := stale.Read(0, stale.Size())
	require.NoError(t, rerr)
	for _, b := range buf {
		require.Equal(t, byte(0xff), b)
	}
}

func TestCommitPropagatesMutateError(t *testing.T) {
	e := newEngine(t)
	sentinel := tferr.New(tferr.KindParam, "refuse to mutate")

	err := e.Commit(func(st block.State) (block.State, error) {
		return st, sentinel
	})
	require.Error(t, err)

	// Nothing was committed: Boot still reports no valid block.
	_, _, berr := e.Boot()
	require.Error(t, berr)
}

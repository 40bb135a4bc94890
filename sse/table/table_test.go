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

package table_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runtimeco/tfcore/artifact/crypto"
	"github.com/runtimeco/tfcore/artifact/flash"
	"github.com/runtimeco/tfcore/internal/tferr"
	"github.com/runtimeco/tfcore/sse/block"
	"github.com/runtimeco/tfcore/sse/table"
)

const tableNumObjects = 4

func newTable(t *testing.T) *table.Table {
	t.Helper()
	size := block.Size(1, tableNumObjects) + 512

	var areas [2]flash.Area
	for i := range areas {
		fa := flash.FlashArea{
			Name: "sse", Device: 0, Offset: 0,
			Size: size, SectorSize: size, Align: 1, ErasedVal: 0xff,
		}
		areas[i] = flash.NewSim(fa, 0)
	}

	return &table.Table{
		Engine: &block.Engine{Areas: areas, NumObjects: tableNumObjects},
		Root:   crypto.FixedRootKey{},
	}
}

func TestSetGetRoundTrips(t *testing.T) {
	tb := newTable(t)

	require.NoError(t, tb.Set(1, 100, []byte("hello world"), 0))

	got, err := tb.Get(1, 100, 0, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got)

	info, err := tb.Info(1, 100)
	require.NoError(t, err)
	require.Equal(t, uint32(len("hello world")), info.Size)
	require.Equal(t, uint32(1), info.Version)
}

func TestSetOverwriteBumpsVersion(t *testing.T) {
	tb := newTable(t)

	// max_size is fixed at creation, so reserve room for the longer
	// overwrite up front.
	require.NoError(t, tb.Set(1, 100, []byte("first"), 32))
	require.NoError(t, tb.Set(1, 100, []byte("second, and longer"), 0))

	got, err := tb.Get(1, 100, 0, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("second, and longer"), got)

	info, err := tb.Info(1, 100)
	require.NoError(t, err)
	require.Equal(t, uint32(2), info.Version)
}

func TestOwnerIsolation(t *testing.T) {
	tb := newTable(t)
	require.NoError(t, tb.Set(1, 100, []byte("owner 100's secret"), 0))

	_, err := tb.Get(1, 200, 0, 0)
	require.Error(t, err)
	require.Equal(t, tferr.KindNotFound, tferr.KindOf(err))

	_, err = tb.Info(1, 200)
	require.Error(t, err)
	require.Equal(t, tferr.KindNotFound, tferr.KindOf(err))

	err = tb.Remove(1, 200)
	require.Error(t, err)
	require.Equal(t, tferr.KindNotFound, tferr.KindOf(err))

	// The rightful owner still reads the original value untouched.
	got, err := tb.Get(1, 100, 0, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("owner 100's secret"), got)
}

func TestRemoveThenGetIsNotFound(t *testing.T) {
	tb := newTable(t)
	require.NoError(t, tb.Set(1, 100, []byte("temporary"), 0))
	require.NoError(t, tb.Remove(1, 100))

	_, err := tb.Get(1, 100, 0, 0)
	require.Error(t, err)
	require.Equal(t, tferr.KindNotFound, tferr.KindOf(err))
}

func TestRemoveUnknownUidIsNotFound(t *testing.T) {
	tb := newTable(t)
	err := tb.Remove(99, 100)
	require.Error(t, err)
	require.Equal(t, tferr.KindNotFound, tferr.KindOf(err))
}

func TestSetReclaimsSpaceFromRemovedObject(t *testing.T) {
	tb := newTable(t)

	require.NoError(t, tb.Set(1, 100, []byte("aaaaaaaaaa"), 0))
	require.NoError(t, tb.Set(2, 100, []byte("bbbbbbbbbb"), 0))
	require.NoError(t, tb.Remove(1, 100))

	// Without repacking on removal, a same-size write here would
	// require the freed slot's space to already be compacted away.
	require.NoError(t, tb.Set(3, 100, []byte("cccccccccc"), 0))

	got, err := tb.Get(2, 100, 0, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("bbbbbbbbbb"), got)

	got, err = tb.Get(3, 100, 0, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("cccccccccc"), got)
}

func TestSetTableFullReturnsKindFull(t *testing.T) {
	tb := newTable(t)
	for i := uint32(0); i < tableNumObjects; i++ {
		require.NoError(t, tb.Set(i+1, 100, []byte("x"), 0))
	}

	err := tb.Set(tableNumObjects+1, 100, []byte("one too many"), 0)
	require.Error(t, err)
	require.Equal(t, tferr.KindFull, tferr.KindOf(err))
}

func TestSetOversizePayloadReturnsKindFull(t *testing.T) {
	tb := newTable(t)
	huge := make([]byte, 10*1024)
	err := tb.Set(1, 100, huge, 0)
	require.Error(t, err)
	require.Equal(t, tferr.KindFull, tferr.KindOf(err))
}

func TestGetPartialReadReturnsRequestedRange(t *testing.T) {
	tb := newTable(t)
	require.NoError(t, tb.Set(1, 100, []byte("hello world"), 0))

	got, err := tb.Get(1, 100, 6, 5)
	require.NoError(t, err)
	require.Equal(t, []byte("world"), got)

	got, err = tb.Get(1, 100, 6, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("world"), got)
}

func TestGetOutOfRangeReturnsKindParam(t *testing.T) {
	tb := newTable(t)
	require.NoError(t, tb.Set(1, 100, []byte("hello world"), 0))

	_, err := tb.Get(1, 100, 6, 100)
	require.Error(t, err)
	require.Equal(t, tferr.KindParam, tferr.KindOf(err))

	_, err = tb.Get(1, 100, 100, 0)
	require.Error(t, err)
	require.Equal(t, tferr.KindParam, tferr.KindOf(err))
}

func TestSetOversizeWriteReturnsKindParamAndLeavesObjectEmpty(t *testing.T) {
	tb := newTable(t)

	// Fixes max_size=28 with an empty initial write (the component
	// design's create(max_size) step).
	require.NoError(t, tb.Set(1, 100, nil, 28))

	err := tb.Set(1, 100, make([]byte, 29), 0)
	require.Error(t, err)
	require.Equal(t, tferr.KindParam, tferr.KindOf(err))

	info, err := tb.Info(1, 100)
	require.NoError(t, err)
	require.Equal(t, uint32(0), info.Size)
}

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

package nvcounter_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runtimeco/tfcore/artifact/flash"
	"github.com/runtimeco/tfcore/artifact/nvcounter"
	"github.com/runtimeco/tfcore/internal/tferr"
)

func newArea(t *testing.T) flash.Area {
	t.Helper()
	fa := flash.FlashArea{
		Name: "nvcounters", Device: 0, Offset: 0,
		Size: 64, SectorSize: 64, Align: 1, ErasedVal: 0xff,
	}
	return flash.NewSim(fa, 0)
}

func TestReadUninitializedIsZero(t *testing.T) {
	s := nvcounter.NewStore(newArea(t))
	v, err := s.Read(3)
	require.NoError(t, err)
	require.Equal(t, uint32(0), v)
}

func TestUpdateMonotone(t *testing.T) {
	s := nvcounter.NewStore(newArea(t))

	require.NoError(t, s.Update(0, 5))
	v, err := s.Read(0)
	require.NoError(t, err)
	require.Equal(t, uint32(5), v)

	err = s.Update(0, 3)
	require.Error(t, err)
	require.Equal(t, tferr.KindRollbackRefused, tferr.KindOf(err))

	require.NoError(t, s.Update(0, 5))
	require.NoError(t, s.Update(0, 9))
	v, err = s.Read(0)
	require.NoError(t, err)
	require.Equal(t, uint32(9), v)
}

func TestIncrementPreservesOtherSlots(t *testing.T) {
	s := nvcounter.NewStore(newArea(t))

	require.NoError(t, s.Update(1, 42))
	require.NoError(t, s.Increment(0))
	require.NoError(t, s.Increment(0))

	v0, err := s.Read(0)
	require.NoError(t, err)
	require.Equal(t, uint32(2), v0)

	v1, err := s.Read(1)
	require.NoError(t, err)
	require.Equal(t, uint32(42), v1)
}

func TestMaxValueTerminal(t *testing.T) {
	s := nvcounter.NewStore(newArea(t))
	require.NoError(t, s.Update(0, nvcounter.MaxValue))

	// Once at MaxValue the slot is terminal: even rewriting the same
	// value is refused, not treated as the ordinary idempotent no-op.
	err := s.Update(0, nvcounter.MaxValue)
	require.Error(t, err)
	require.Equal(t, tferr.KindRollbackRefused, tferr.KindOf(err))

	err = s.Increment(0)
	require.Error(t, err)
	require.Equal(t, tferr.KindRollbackRefused, tferr.KindOf(err))
}

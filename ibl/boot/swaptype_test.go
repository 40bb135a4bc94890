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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runtimeco/tfcore/ibl/swap"
)

func TestRequestedSwapTypeNoneWithoutSecondaryMagic(t *testing.T) {
	primary := swap.Trailer{Magic: swap.MagicUnset}
	secondary := swap.Trailer{Magic: swap.MagicUnset}
	require.Equal(t, SwapNone, requestedSwapType(primary, secondary))

	secondary = swap.Trailer{Magic: swap.MagicBad}
	require.Equal(t, SwapNone, requestedSwapType(primary, secondary))
}

func TestRequestedSwapTypeFreshUpgradeIsTest(t *testing.T) {
	primary := swap.Trailer{Magic: swap.MagicUnset}
	secondary := swap.Trailer{Magic: swap.MagicGood}
	require.Equal(t, SwapTest, requestedSwapType(primary, secondary))
}

func TestRequestedSwapTypePermWhenImageOkSet(t *testing.T) {
	primary := swap.Trailer{Magic: swap.MagicGood, ImageOk: swap.ValFieldSet}
	secondary := swap.Trailer{Magic: swap.MagicGood}
	require.Equal(t, SwapPerm, requestedSwapType(primary, secondary))
}

func TestRequestedSwapTypeRevertWhenCopyDoneButNotConfirmed(t *testing.T) {
	primary := swap.Trailer{
		Magic:    swap.MagicGood,
		CopyDone: swap.ValFieldSet,
		ImageOk:  swap.ValFieldUnset,
	}
	secondary := swap.Trailer{Magic: swap.MagicGood}
	require.Equal(t, SwapRevert, requestedSwapType(primary, secondary))
}

func TestPreviousSwapTypeNoneWhenNoSourceResolved(t *testing.T) {
	primary := swap.Trailer{Magic: swap.MagicGood, ImageOk: swap.ValFieldSet}
	secondary := swap.Trailer{Magic: swap.MagicGood}
	require.Equal(t, SwapNone, PreviousSwapType(swap.SourceNone, primary, secondary))
}

func TestPreviousSwapTypeDelegatesWhenResumed(t *testing.T) {
	primary := swap.Trailer{Magic: swap.MagicGood, ImageOk: swap.ValFieldSet}
	secondary := swap.Trailer{Magic: swap.MagicGood}
	require.Equal(t, SwapPerm, PreviousSwapType(swap.SourcePrimary, primary, secondary))
}

func TestSwapTypeString(t *testing.T) {
	cases := map[SwapType]string{
		SwapNone:   "NONE",
		SwapTest:   "TEST",
		SwapPerm:   "PERM",
		SwapRevert: "REVERT",
		SwapFail:   "FAIL",
		SwapPanic:  "PANIC",
	}
	for st, want := range cases {
		require.Equal(t, want, st.String())
	}
}

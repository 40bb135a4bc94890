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

	"github.com/runtimeco/tfcore/ibl/swap"
)

func TestStatusSourceTable(t *testing.T) {
	cases := []struct {
		name     string
		primary  swap.Trailer
		scratch  swap.Trailer
		expected swap.Source
	}{
		{
			"primary committed, scratch stale",
			swap.Trailer{Magic: swap.MagicGood, CopyDone: swap.ValFieldSet},
			swap.Trailer{Magic: swap.MagicBad},
			swap.SourceNone,
		},
		{
			"primary committed, scratch unset",
			swap.Trailer{Magic: swap.MagicGood, CopyDone: swap.ValFieldSet},
			swap.Trailer{Magic: swap.MagicUnset},
			swap.SourceNone,
		},
		{
			"primary good, copy unfinished",
			swap.Trailer{Magic: swap.MagicGood, CopyDone: swap.ValFieldUnset},
			swap.Trailer{Magic: swap.MagicUnset},
			swap.SourcePrimary,
		},
		{
			"scratch holds the in-progress record",
			swap.Trailer{Magic: swap.MagicBad, CopyDone: swap.ValFieldUnset},
			swap.Trailer{Magic: swap.MagicGood},
			swap.SourceScratch,
		},
		{
			"fresh upgrade, nothing swapped yet",
			swap.Trailer{Magic: swap.MagicUnset, CopyDone: swap.ValFieldUnset},
			swap.Trailer{Magic: swap.MagicUnset},
			swap.SourcePrimary,
		},
		{
			"both slots stale, no swap in progress",
			swap.Trailer{Magic: swap.MagicBad, CopyDone: swap.ValFieldUnset},
			swap.Trailer{Magic: swap.MagicBad},
			swap.SourceNone,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.expected, swap.StatusSource(c.primary, c.scratch))
		})
	}
}

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
)

func TestHandoffEncodeDecodeRoundTrips(t *testing.T) {
	h := &Handoff{}
	h.AddHash([]byte("0123456789abcdef0123456789abcdef"))
	h.AddVersionBytes([]byte{1, 2, 0, 0})
	h.AddSwapType(SwapPerm)

	buf, err := h.Encode()
	require.NoError(t, err)

	got, err := DecodeHandoff(buf)
	require.NoError(t, err)
	require.Len(t, got.records, 3)

	require.Equal(t, HandoffTlvHash, got.records[0].typ)
	require.Equal(t, []byte("0123456789abcdef0123456789abcdef"), got.records[0].data)

	require.Equal(t, HandoffTlvVersion, got.records[1].typ)
	require.Equal(t, []byte{1, 2, 0, 0}, got.records[1].data)

	require.Equal(t, HandoffTlvSwapType, got.records[2].typ)
	require.Equal(t, []byte{byte(SwapPerm)}, got.records[2].data)
}

func TestDecodeHandoffRejectsBadMagic(t *testing.T) {
	buf := make([]byte, 8)
	_, err := DecodeHandoff(buf)
	require.Error(t, err)
}

func TestDecodeHandoffRejectsTruncatedBuffer(t *testing.T) {
	h := &Handoff{}
	h.AddHash([]byte("short"))
	buf, err := h.Encode()
	require.NoError(t, err)

	_, err = DecodeHandoff(buf[:len(buf)-2])
	require.Error(t, err)
}

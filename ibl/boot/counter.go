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

	"github.com/runtimeco/tfcore/artifact/image"
	"github.com/runtimeco/tfcore/artifact/nvcounter"
	"github.com/runtimeco/tfcore/internal/tferr"
)

// CounterUpdater rejects and advances the anti-rollback counter for
// whichever image is about to boot (§4.1 step 6, §4.6).
type CounterUpdater struct {
	Store *nvcounter.Store
}

// Advance enforces the booting image's embedded security counter is
// not behind the stored value for its counter index, then advances
// the store to it. Images without a SEC_CNT TLV do not participate
// in rollback protection.
func (c *CounterUpdater) Advance(img image.Image) error {
	tlv, err := img.FindUniqueTlv(image.IMAGE_TLV_SEC_CNT)
	if err != nil || tlv == nil {
		return nil
	}
	if len(tlv.Data) != 4 {
		return tferr.New(tferr.KindBadImage, "malformed security counter TLV")
	}
	secCnt := binary.LittleEndian.Uint32(tlv.Data)
	return c.Store.Update(uint8(img.Header.SecCntIdx), secCnt)
}

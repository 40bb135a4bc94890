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

// Boot handoff is a RAM-resident (magic, total_len, TLVs) record the
// boot controller leaves behind for the next-stage firmware and any
// attestation consumer, patterned on the manufacturing-meta TLV
// region codec (one leading magic+len header, then flat
// type/len/value records with no inter-record padding).
package boot

import (
	"bytes"
	"encoding/binary"

	"github.com/runtimeco/tfcore/internal/tferr"
)

const HandoffMagic = uint32(0x74666230) // "tfb0"

const (
	HandoffTlvHash    uint8 = 0x01
	HandoffTlvVersion uint8 = 0x02
	HandoffTlvSwapType uint8 = 0x03
)

type handoffTlvHdr struct {
	Type uint8
	Len  uint16
}

// Handoff accumulates image-measurement records across a boot_go
// run for later serialization into the handoff area.
type Handoff struct {
	records []handoffRecord
}

type handoffRecord struct {
	typ  uint8
	data []byte
}

func (h *Handoff) AddHash(hash []byte) {
	h.records = append(h.records, handoffRecord{HandoffTlvHash, hash})
}

func (h *Handoff) AddVersionBytes(buf []byte) {
	h.records = append(h.records, handoffRecord{HandoffTlvVersion, buf})
}

func (h *Handoff) AddSwapType(st SwapType) {
	h.records = append(h.records, handoffRecord{HandoffTlvSwapType, []byte{byte(st)}})
}

// Encode serializes the handoff record as (magic, total_len) followed
// by the flat TLV sequence.
func (h *Handoff) Encode() ([]byte, error) {
	var body bytes.Buffer
	for _, r := range h.records {
		hdr := handoffTlvHdr{Type: r.typ, Len: uint16(len(r.data))}
		if err := binary.Write(&body, binary.LittleEndian, hdr); err != nil {
			return nil, tferr.Wrap(tferr.KindBadImage, err, "handoff tlv header encode failed")
		}
		if _, err := body.Write(r.data); err != nil {
			return nil, tferr.Wrap(tferr.KindBadImage, err, "handoff tlv data encode failed")
		}
	}

	var out bytes.Buffer
	if err := binary.Write(&out, binary.LittleEndian, HandoffMagic); err != nil {
		return nil, tferr.Wrap(tferr.KindBadImage, err, "handoff magic encode failed")
	}
	if err := binary.Write(&out, binary.LittleEndian, uint32(body.Len())); err != nil {
		return nil, tferr.Wrap(tferr.KindBadImage, err, "handoff length encode failed")
	}
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// DecodeHandoff parses a previously-encoded handoff record.
func DecodeHandoff(buf []byte) (*Handoff, error) {
	if len(buf) < 8 {
		return nil, tferr.New(tferr.KindBadImage, "handoff record too short")
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != HandoffMagic {
		return nil, tferr.New(tferr.KindBadImage, "bad handoff magic")
	}
	totalLen := binary.LittleEndian.Uint32(buf[4:8])
	if 8+int(totalLen) > len(buf) {
		return nil, tferr.New(tferr.KindBadImage, "handoff total_len overruns buffer")
	}

	h := &Handoff{}
	off := 8
	end := 8 + int(totalLen)
	for off < end {
		if off+3 > end {
			return nil, tferr.New(tferr.KindBadImage, "truncated handoff tlv header")
		}
		typ := buf[off]
		length := binary.LittleEndian.Uint16(buf[off+1 : off+3])
		off += 3
		if off+int(length) > end {
			return nil, tferr.New(tferr.KindBadImage, "truncated handoff tlv data")
		}
		h.records = append(h.records, handoffRecord{typ, buf[off : off+int(length)]})
		off += int(length)
	}
	return h, nil
}

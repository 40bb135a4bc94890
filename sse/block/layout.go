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

// Package block implements the SSE block engine (§4.3): the
// metadata/data block layout, the scratch-based atomic commit
// protocol, and boot-time newest-block election. It plays the role
// of artifact/image's header/TLV codec, but for the storage engine's
// own on-flash metadata rather than a firmware image.
package block

import (
	"bytes"
	"encoding/binary"

	"github.com/runtimeco/tfcore/internal/tferr"
)

const (
	TagSize = 16
	IvSize  = 12

	// ErasedSwapCount is the all-erased-bytes sentinel: a metadata
	// block whose ActiveSwapCount field is still this value never
	// finished its finalize write and must lose newest-block
	// election to any block with a real counter value.
	ErasedSwapCount = ^uint32(0)
)

// Header is the fixed-size block-metadata header (§4.3.3): the AEAD
// tag over the rest of the metadata comes first, so it is never
// itself covered by the authenticated range it protects.
type Header struct {
	Tag                 [TagSize]byte
	Iv                  [IvSize]byte
	ActiveSwapCount     uint32
	FsVersion           uint16
	ScratchDataBlockIdx uint16
}

const HeaderSize = TagSize + IvSize + 4 + 2 + 2

// BlockMeta is one entry of the block-metadata array: the logical-
// to-physical block mapping plus the data block's free-space
// watermark.
type BlockMeta struct {
	PhysId     uint16
	FreeOffset uint32
}

const blockMetaSize = 2 + 4

// ObjectMeta is one entry of the object-metadata array: where a
// stored object's bytes live, and how large its reserved region is
// (max_size may exceed the object's current logical size). This
// engine folds the client-visible object table (§4.5: uid, owner,
// tag, version) into the same array rather than persisting the table
// as a separate object the block engine stores on its own behalf;
// every invariant the table names (owner isolation, atomic update,
// per-object tag kept out-of-band from payload bytes) still holds,
// it is just one array instead of two.
type ObjectMeta struct {
	FileId   uint32
	InUse    bool
	Uid      uint32
	Owner    uint32
	BlockIdx uint16
	Offset   uint32
	Size     uint32
	MaxSize  uint32
	Version  uint32
	Tag      [16]byte
}

const objectMetaSize = 4 + 1 + 4 + 4 + 2 + 4 + 4 + 4 + 4 + 16

// Metadata is the full decoded contents of one metadata block.
type Metadata struct {
	Header  Header
	Blocks  []BlockMeta
	Objects []ObjectMeta
}

// encodeUnauthed returns the metadata bytes covered by Header.Tag: the
// whole encoding minus the leading tag field (§4.3.3).
func (m Metadata) encodeUnauthed() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, m.Header.Iv); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, m.Header.ActiveSwapCount); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, m.Header.FsVersion); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, m.Header.ScratchDataBlockIdx); err != nil {
		return nil, err
	}
	for _, b := range m.Blocks {
		if err := binary.Write(&buf, binary.LittleEndian, b.PhysId); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, b.FreeOffset); err != nil {
			return nil, err
		}
	}
	for _, o := range m.Objects {
		if err := binary.Write(&buf, binary.LittleEndian, o.FileId); err != nil {
			return nil, err
		}
		inUse := byte(0)
		if o.InUse {
			inUse = 1
		}
		buf.WriteByte(inUse)
		if err := binary.Write(&buf, binary.LittleEndian, o.Uid); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, o.Owner); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, o.BlockIdx); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, o.Offset); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, o.Size); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, o.MaxSize); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, o.Version); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, o.Tag); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Size returns the encoded byte size of a metadata block holding
// numBlocks block-meta entries and numObjects object-meta entries.
func Size(numBlocks, numObjects int) int {
	return HeaderSize + numBlocks*blockMetaSize + numObjects*objectMetaSize
}

// Decode parses a metadata block's raw bytes. It does not verify
// Header.Tag; Engine.decodeBlock checks it (crypto.Open, or the
// checksum compare for unencrypted configurations) against the
// re-encoded authenticated range. numBlocks/numObjects are fixed by
// board configuration.
func Decode(buf []byte, numBlocks, numObjects int) (Metadata, error) {
	want := Size(numBlocks, numObjects)
	if len(buf) < want {
		return Metadata{}, tferr.New(tferr.KindBadImage, "metadata block too short")
	}

	var m Metadata
	copy(m.Header.Tag[:], buf[0:TagSize])
	copy(m.Header.Iv[:], buf[TagSize:TagSize+IvSize])
	off := TagSize + IvSize
	m.Header.ActiveSwapCount = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	m.Header.FsVersion = binary.LittleEndian.Uint16(buf[off : off+2])
	off += 2
	m.Header.ScratchDataBlockIdx = binary.LittleEndian.Uint16(buf[off : off+2])
	off += 2

	m.Blocks = make([]BlockMeta, numBlocks)
	for i := range m.Blocks {
		m.Blocks[i].PhysId = binary.LittleEndian.Uint16(buf[off : off+2])
		off += 2
		m.Blocks[i].FreeOffset = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}

	m.Objects = make([]ObjectMeta, numObjects)
	for i := range m.Objects {
		m.Objects[i].FileId = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
		m.Objects[i].InUse = buf[off] != 0
		off++
		m.Objects[i].Uid = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
		m.Objects[i].Owner = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
		m.Objects[i].BlockIdx = binary.LittleEndian.Uint16(buf[off : off+2])
		off += 2
		m.Objects[i].Offset = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
		m.Objects[i].Size = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
		m.Objects[i].MaxSize = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
		m.Objects[i].Version = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
		copy(m.Objects[i].Tag[:], buf[off:off+16])
		off += 16
	}

	return m, nil
}

// Encode serializes m, Header.Tag included. The tag covers the bytes
// that follow it, so it cannot be known before they're laid out:
// Engine.Commit encodes once to compute the tag from the bytes after
// it, then encodes again with the tag in place.
func Encode(m Metadata) ([]byte, error) {
	rest, err := m.encodeUnauthed()
	if err != nil {
		return nil, tferr.Wrap(tferr.KindBadImage, err, "metadata encode failed")
	}
	out := make([]byte, TagSize+len(rest))
	copy(out[:TagSize], m.Header.Tag[:])
	copy(out[TagSize:], rest)
	return out, nil
}

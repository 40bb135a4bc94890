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

// Package table implements the client-facing object API (§4.5):
// set/get/remove/info addressed by (uid, owner), with owner isolation
// enforced by folding a mismatch into the same not-found outcome a
// caller gets for an unknown uid, so probing never distinguishes
// "doesn't exist" from "exists but isn't yours".
package table

import (
	"fmt"

	"github.com/runtimeco/tfcore/artifact/crypto"
	"github.com/runtimeco/tfcore/internal/tferr"
	"github.com/runtimeco/tfcore/sse/block"
	"github.com/runtimeco/tfcore/sse/object"
)

// Table wires the block engine and the per-object AEAD codec into the
// uid/owner-addressed API every SSE client actually calls.
type Table struct {
	Engine *block.Engine
	Root   crypto.RootKeyProvider
}

// Info is the metadata Info() hands back without touching payload
// bytes.
type Info struct {
	Size    uint32
	Version uint32
}

func (t *Table) ownerKey(owner uint32) ([]byte, error) {
	root, err := t.Root.RootKey()
	if err != nil {
		return nil, err
	}
	key := make([]byte, crypto.KeyLen)
	if err := crypto.DeriveKey(root, fmt.Sprintf("sse-owner:%d", owner), key); err != nil {
		return nil, err
	}
	return key, nil
}

// findByUid returns the entry index for uid regardless of owner, or
// -1. Callers must still check Owner before trusting the match: the
// lookup itself must not leak whether a uid exists under a different
// owner.
func findByUid(objs []block.ObjectMeta, uid uint32) int {
	for i, o := range objs {
		if o.InUse && o.Uid == uid {
			return i
		}
	}
	return -1
}

func findFree(objs []block.ObjectMeta) int {
	for i, o := range objs {
		if !o.InUse {
			return i
		}
	}
	return -1
}

// repack rebuilds the data region from every in-use object other than
// skip, returning the new packed bytes and each entry's new offset
// (-1 for entries that are absent or being dropped). Every commit
// fully repacks, so the store never needs a separate deferred
// compaction pass (§4.3.2): space from a removed or shrunk object is
// reclaimed on the very next mutation.
func repack(objs []block.ObjectMeta, data []byte, skip int) ([]byte, []int64) {
	offsets := make([]int64, len(objs))
	out := make([]byte, 0, len(data))
	for i, o := range objs {
		if i == skip || !o.InUse {
			offsets[i] = -1
			continue
		}
		offsets[i] = int64(len(out))
		out = append(out, data[o.Offset:o.Offset+o.Size]...)
	}
	return out, offsets
}

// Set writes data under (uid, owner), creating the entry if it does
// not already exist. An existing entry under a different owner is
// left untouched and a fresh slot is allocated instead: uid here is a
// client-chosen tag, not a guarantee of global uniqueness outside its
// owner.
//
// maxSize fixes the object's growth ceiling at creation time, the way
// the component design's create/write split reserves max_size up
// front (§4.3); a zero maxSize on creation defaults the ceiling to
// len(data), the common "write the whole object in one call" case.
// An existing object's max_size, once set, cannot be raised by a
// later Set: data longer than it is rejected with KindParam before
// any mutation is applied, leaving the stored object untouched.
func (t *Table) Set(uid, owner uint32, data []byte, maxSize uint32) error {
	return t.Engine.Commit(func(st block.State) (block.State, error) {
		idx := -1
		existingMaxSize := uint32(0)
		if existing := findByUid(st.Meta.Objects, uid); existing >= 0 && st.Meta.Objects[existing].Owner == owner {
			idx = existing
			existingMaxSize = st.Meta.Objects[existing].MaxSize
		} else {
			idx = findFree(st.Meta.Objects)
			if idx < 0 {
				return st, tferr.New(tferr.KindFull, "object table full")
			}
		}

		effMaxSize := existingMaxSize
		if effMaxSize == 0 {
			effMaxSize = maxSize
		}
		if effMaxSize == 0 {
			effMaxSize = uint32(len(data))
		}
		if uint32(len(data)) > effMaxSize {
			return st, tferr.Fmt(tferr.KindParam, "payload of %d bytes exceeds object max_size %d", len(data), effMaxSize)
		}

		key, err := t.ownerKey(owner)
		if err != nil {
			return st, err
		}
		sealed, err := object.Seal(key, object.FileId(idx), nil, data)
		if err != nil {
			return st, err
		}
		payload := append(append([]byte{}, sealed.Iv...), sealed.Ciphertext...)

		newData, offsets := repack(st.Meta.Objects, st.Data, idx)
		if int64(len(newData))+int64(len(payload)) > int64(len(st.Data)) {
			return st, tferr.New(tferr.KindFull, "object store out of space")
		}
		offset := int64(len(newData))
		newData = append(newData, payload...)
		newData = append(newData, make([]byte, len(st.Data)-len(newData))...)

		newObjs := append([]block.ObjectMeta{}, st.Meta.Objects...)
		for i := range newObjs {
			if i == idx {
				continue
			}
			if offsets[i] >= 0 {
				newObjs[i].Offset = uint32(offsets[i])
			}
		}
		version := newObjs[idx].Version + 1
		newObjs[idx] = block.ObjectMeta{
			FileId:  uint32(idx),
			InUse:   true,
			Uid:     uid,
			Owner:   owner,
			Offset:  uint32(offset),
			Size:    uint32(len(payload)),
			MaxSize: effMaxSize,
			Version: version,
		}
		copy(newObjs[idx].Tag[:], sealed.Tag)

		st.Meta.Objects = newObjs
		st.Data = newData
		return st, nil
	})
}

// Remove deletes the entry under (uid, owner). Owner mismatch and
// nonexistence both surface as KindNotFound.
func (t *Table) Remove(uid, owner uint32) error {
	return t.Engine.Commit(func(st block.State) (block.State, error) {
		idx := findByUid(st.Meta.Objects, uid)
		if idx < 0 || st.Meta.Objects[idx].Owner != owner {
			return st, tferr.New(tferr.KindNotFound, "object not found")
		}

		newData, offsets := repack(st.Meta.Objects, st.Data, idx)
		newData = append(newData, make([]byte, len(st.Data)-len(newData))...)

		newObjs := append([]block.ObjectMeta{}, st.Meta.Objects...)
		for i := range newObjs {
			if i == idx {
				continue
			}
			if offsets[i] >= 0 {
				newObjs[i].Offset = uint32(offsets[i])
			}
		}
		newObjs[idx] = block.ObjectMeta{}

		st.Meta.Objects = newObjs
		st.Data = newData
		return st, nil
	})
}

// Get reads and authenticates the payload stored under (uid, owner),
// returning the length-byte slice starting at offset. AEAD decryption
// always covers the whole stored ciphertext -- partial reads slice
// the authenticated plaintext afterward, they never skip verification
// of the bytes ahead of offset. A zero length reads through to the
// end of the object; an out-of-range offset or offset+length reports
// KindParam.
func (t *Table) Get(uid, owner, offset, length uint32) ([]byte, error) {
	_, st, err := t.Engine.Boot()
	if err != nil {
		return nil, err
	}

	idx := findByUid(st.Meta.Objects, uid)
	if idx < 0 || st.Meta.Objects[idx].Owner != owner {
		return nil, tferr.New(tferr.KindNotFound, "object not found")
	}
	meta := st.Meta.Objects[idx]

	key, err := t.ownerKey(owner)
	if err != nil {
		return nil, err
	}
	sealed := object.Sealed{
		Iv:         st.Data[meta.Offset : meta.Offset+crypto.IvLen],
		Ciphertext: st.Data[meta.Offset+crypto.IvLen : meta.Offset+meta.Size],
		Tag:        meta.Tag[:],
	}
	_, payload, err := object.Open(key, object.FileId(idx), sealed, 0)
	if err != nil {
		return nil, err
	}

	plen := uint32(len(payload))
	if offset > plen {
		return nil, tferr.Fmt(tferr.KindParam, "get offset %d exceeds object size %d", offset, plen)
	}
	end := plen
	if length > 0 {
		if length > plen-offset {
			return nil, tferr.Fmt(tferr.KindParam, "get range [%d,%d) exceeds object size %d", offset, offset+length, plen)
		}
		end = offset + length
	}
	return payload[offset:end], nil
}

// Info reports size and version for (uid, owner) without decrypting
// the payload.
func (t *Table) Info(uid, owner uint32) (Info, error) {
	_, st, err := t.Engine.Boot()
	if err != nil {
		return Info{}, err
	}

	idx := findByUid(st.Meta.Objects, uid)
	if idx < 0 || st.Meta.Objects[idx].Owner != owner {
		return Info{}, tferr.New(tferr.KindNotFound, "object not found")
	}
	meta := st.Meta.Objects[idx]
	return Info{
		Size:    meta.Size - crypto.IvLen,
		Version: meta.Version,
	}, nil
}

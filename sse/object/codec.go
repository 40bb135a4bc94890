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

// Package object implements the per-object AEAD codec (§4.4): each
// payload is encrypted with AAD bound to the internal file-ID, never
// the client-visible UID, so a payload cannot be replayed under a
// different file-ID even if an attacker controls flash contents.
package object

import (
	"encoding/binary"

	"github.com/runtimeco/tfcore/artifact/crypto"
	"github.com/runtimeco/tfcore/internal/tferr"
)

// FileId is the internal identifier bound into every object's AEAD
// associated data.
type FileId uint32

func aad(fid FileId) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(fid))
	return buf
}

// Sealed is what actually lands on flash for one object: ciphertext
// and IV travel together; the tag is kept out-of-band in the object
// table entry (§4.5), binding payload integrity to table integrity.
type Sealed struct {
	Iv         []byte
	Ciphertext []byte
	Tag        []byte
}

// Seal encrypts info||payload for fid, returning the flash-resident
// IV+ciphertext and the tag the caller commits into the object table.
func Seal(key []byte, fid FileId, info, payload []byte) (Sealed, error) {
	iv, err := crypto.NewIv()
	if err != nil {
		return Sealed{}, err
	}
	pt := append(append([]byte{}, info...), payload...)
	ct, tag, err := crypto.Seal(key, iv, aad(fid), pt)
	if err != nil {
		return Sealed{}, err
	}
	return Sealed{Iv: iv, Ciphertext: ct, Tag: tag}, nil
}

// Open authenticates and decrypts a flash-resident object, returning
// the info prefix and payload separately.
func Open(key []byte, fid FileId, s Sealed, infoLen int) (info, payload []byte, err error) {
	pt, err := crypto.Open(key, s.Iv, aad(fid), s.Ciphertext, s.Tag)
	if err != nil {
		return nil, nil, err
	}
	if len(pt) < infoLen {
		return nil, nil, tferr.New(tferr.KindBadImage, "decrypted object shorter than info header")
	}
	return pt[:infoLen], pt[infoLen:], nil
}

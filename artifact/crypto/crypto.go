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

// Package crypto is the narrow cryptographic-primitives surface
// consumed by both engines (§6.2): AEAD seal/open, hash, signature
// verification and root-key/derived-key access. The engines never
// touch key material directly; they go through this interface the
// way apache-mynewt-newt/artifact/sec and artifact/image/create.go
// wrap crypto/aes, crypto/rsa and crypto/ecdsa.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/runtimeco/tfcore/internal/tferr"
)

const (
	KeyLen   = 32
	IvLen    = 12
	TagLen   = 16
	HashSize = sha256.Size
)

// RootKeyProvider returns the platform-bound AEAD root key
// (§6.2 get_root_key). In production this is backed by a hardware
// unique key derivation; in the simulator it is a fixed test key.
type RootKeyProvider interface {
	RootKey() ([]byte, error)
}

// FixedRootKey is a RootKeyProvider backed by a static key, used by
// tests and the CLI simulators.
type FixedRootKey [KeyLen]byte

func (k FixedRootKey) RootKey() ([]byte, error) {
	out := make([]byte, KeyLen)
	copy(out, k[:])
	return out, nil
}

// DeriveKey derives a per-owner or per-object subkey from the root
// key via HKDF-SHA256, the "key derivation from a root key" mandated
// by §4.5 ("there is no per-session handshake").
func DeriveKey(root []byte, label string, out []byte) error {
	r := hkdf.New(sha256.New, root, nil, []byte(label))
	_, err := io.ReadFull(r, out)
	if err != nil {
		return tferr.Wrap(tferr.KindAuthFail, err, "key derivation failed")
	}
	return nil
}

// Seal performs AEAD encrypt-and-tag (§6.2 aead_seal) using
// AES-256-GCM: iv must be IvLen bytes, and the returned tag is
// TagLen bytes, matching the trailer/object-table tag width assumed
// throughout the data model.
func Seal(key, iv, aad, pt []byte) (ct, tag []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, tferr.Wrap(tferr.KindAuthFail, err, "bad AEAD key")
	}
	gcm, err := cipher.NewGCMWithTagSize(block, TagLen)
	if err != nil {
		return nil, nil, tferr.Wrap(tferr.KindAuthFail, err, "bad AEAD cipher")
	}
	if len(iv) != gcm.NonceSize() {
		return nil, nil, tferr.Fmt(tferr.KindParam,
			"iv must be %d bytes, got %d", gcm.NonceSize(), len(iv))
	}

	sealed := gcm.Seal(nil, iv, pt, aad)
	ct = sealed[:len(pt)]
	tag = sealed[len(pt):]
	return ct, tag, nil
}

// Open performs AEAD auth-and-decrypt (§6.2 aead_open). A failed tag
// check surfaces as KindAuthFail, which engines above treat as a
// torn/corrupt block per the error-handling design.
func Open(key, iv, aad, ct, tag []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, tferr.Wrap(tferr.KindAuthFail, err, "bad AEAD key")
	}
	gcm, err := cipher.NewGCMWithTagSize(block, TagLen)
	if err != nil {
		return nil, tferr.Wrap(tferr.KindAuthFail, err, "bad AEAD cipher")
	}
	if len(iv) != gcm.NonceSize() {
		return nil, tferr.Fmt(tferr.KindParam,
			"iv must be %d bytes, got %d", gcm.NonceSize(), len(iv))
	}

	sealed := append(append([]byte{}, ct...), tag...)
	pt, err := gcm.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, tferr.Wrap(tferr.KindAuthFail, err, "AEAD authentication failed")
	}
	return pt, nil
}

// NewIv returns a fresh random IV of IvLen bytes, used for every
// write (object codec) and every metadata-block reseal.
func NewIv() ([]byte, error) {
	iv := make([]byte, IvLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, tferr.Wrap(tferr.KindFlashIo, err, "rng failure")
	}
	return iv, nil
}

// Hash is the narrow digest primitive (§6.2 hash).
func Hash(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

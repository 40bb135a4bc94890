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

package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/asn1"
	"math/big"

	"golang.org/x/crypto/ed25519"

	"github.com/runtimeco/tfcore/internal/tferr"
)

type ecdsaSig struct {
	R *big.Int
	S *big.Int
}

// VerifyRsaPss checks an RSA-PSS signature over a SHA-256 digest,
// mirroring image/create.go's generateSigRsa counterpart.
func VerifyRsaPss(pub *rsa.PublicKey, hash, sig []byte) error {
	opts := rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}
	if err := rsa.VerifyPSS(pub, crypto.SHA256, hash, sig, &opts); err != nil {
		return tferr.Wrap(tferr.KindAuthFail, err, "RSA-PSS verification failed")
	}
	return nil
}

// VerifyEcdsa checks an ASN.1-encoded ECDSA signature over a digest,
// the verification counterpart to image/create.go's generateSigEc.
func VerifyEcdsa(pub *ecdsa.PublicKey, hash, sig []byte) error {
	var s ecdsaSig
	if _, err := asn1.Unmarshal(sig, &s); err != nil {
		return tferr.Wrap(tferr.KindAuthFail, err, "malformed ECDSA signature")
	}
	if !ecdsa.Verify(pub, hash, s.R, s.S) {
		return tferr.New(tferr.KindAuthFail, "ECDSA verification failed")
	}
	return nil
}

// VerifyEd25519 checks an Ed25519 signature over a digest, the
// verification counterpart to artifact/image's generateSigEd25519.
func VerifyEd25519(pub ed25519.PublicKey, hash, sig []byte) error {
	if !ed25519.Verify(pub, hash, sig) {
		return tferr.New(tferr.KindAuthFail, "Ed25519 verification failed")
	}
	return nil
}

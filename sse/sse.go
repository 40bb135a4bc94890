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

// Package sse is the Secure Storage Engine's public entry point: it
// wires the block engine (sse/block), the per-object AEAD codec
// (sse/object) and the uid/owner table (sse/table) into the single
// Store type a client actually opens.
package sse

import (
	"github.com/runtimeco/tfcore/artifact/crypto"
	"github.com/runtimeco/tfcore/sse/block"
	"github.com/runtimeco/tfcore/sse/table"

	"github.com/runtimeco/tfcore/artifact/flash"
)

// Config describes the two physical areas and capacity a Store is
// opened against. NumObjects is fixed at format time the same way a
// board config fixes the IBL's sector layout.
type Config struct {
	Areas      [2]flash.Area
	Root       crypto.RootKeyProvider
	NumObjects int

	// MetaKey, when non-nil, selects AEAD-protected block metadata
	// instead of the unencrypted checksum fallback (§4.3.3).
	MetaKey []byte
}

// Store is the opened Secure Storage Engine: Set/Get/Remove/Info are
// the whole client surface (§4.5).
type Store struct {
	table *table.Table
}

// Open wires a Store from a Config. It does not itself touch flash:
// the first real access drives newest-block election via the block
// engine's Boot, and Commit bootstraps an empty store if neither area
// holds a valid block yet.
func Open(cfg Config) *Store {
	eng := &block.Engine{
		Areas:      cfg.Areas,
		Key:        cfg.MetaKey,
		NumObjects: cfg.NumObjects,
	}
	return &Store{
		table: &table.Table{Engine: eng, Root: cfg.Root},
	}
}

// Set stores data under (uid, owner), creating or overwriting the
// entry. maxSize fixes the object's growth ceiling on creation; 0
// defaults it to len(data).
func (s *Store) Set(uid, owner uint32, data []byte, maxSize uint32) error {
	return s.table.Set(uid, owner, data, maxSize)
}

// Get reads and authenticates length bytes starting at offset from
// the payload stored under (uid, owner); a zero length reads through
// to the end of the object.
func (s *Store) Get(uid, owner, offset, length uint32) ([]byte, error) {
	return s.table.Get(uid, owner, offset, length)
}

// Remove deletes the entry under (uid, owner).
func (s *Store) Remove(uid, owner uint32) error {
	return s.table.Remove(uid, owner)
}

// Info reports size and version for (uid, owner) without decrypting
// the payload.
func (s *Store) Info(uid, owner uint32) (table.Info, error) {
	return s.table.Info(uid, owner)
}

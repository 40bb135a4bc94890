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

package swap

// Source identifies which trailer (if either) a resumed swap should
// read its status_log/swap_size record from.
type Source int

const (
	SourceNone Source = iota
	SourcePrimary
	SourceScratch
)

// statusRow is one entry of the status table (primary.magic,
// scratch.magic, primary.copy_done) -> Source, based on loader.c's
// boot_status_tables. Its eight rows spell out the committed,
// in-progress, scratch-parked and fresh cases over concrete magic
// values; combinations it does not list report SourceNone.
type statusRow struct {
	primaryMagic MagicVal
	scratchMagic MagicVal
	copyDone     TriVal
	source       Source
}

var statusTable = []statusRow{
	// Primary fully committed: nothing to resume from.
	{MagicGood, MagicBad, ValFieldSet, SourceNone},
	{MagicGood, MagicUnset, ValFieldSet, SourceNone},
	// Primary good but copy not finished: resume reading primary's
	// own (partially written) status log.
	{MagicGood, MagicBad, ValFieldUnset, SourcePrimary},
	{MagicGood, MagicUnset, ValFieldUnset, SourcePrimary},
	// Scratch carries a valid trailer: the swap was interrupted while
	// state was parked in scratch.
	{MagicBad, MagicGood, ValFieldUnset, SourceScratch},
	{MagicUnset, MagicGood, ValFieldUnset, SourceScratch},
	// Neither slot has ever been swapped: a fresh upgrade resumes by
	// writing to primary.
	{MagicUnset, MagicUnset, ValFieldUnset, SourcePrimary},
	{MagicUnset, MagicBad, ValFieldUnset, SourcePrimary},
}

// StatusSource resolves which trailer the swap engine should resume
// status/swap_size reads from, given the decoded primary and scratch
// trailers. Unmatched combinations (both slots hold stale garbage, no
// in-progress swap) report SourceNone: there is nothing to resume.
func StatusSource(primary, scratch Trailer) Source {
	for _, row := range statusTable {
		if row.primaryMagic == primary.Magic &&
			row.scratchMagic == scratch.Magic &&
			row.copyDone == primary.CopyDone {
			return row.source
		}
	}
	return SourceNone
}

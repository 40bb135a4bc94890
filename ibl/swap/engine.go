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

import (
	"github.com/runtimeco/tfcore/artifact/flash"
	"github.com/runtimeco/tfcore/internal/tferr"
	"github.com/runtimeco/tfcore/internal/tflog"
)

// Engine runs the three-phase, scratch-bounded sector swap between a
// primary and secondary slot (loader.c's boot_swap_sectors), one
// scratch-sized sector at a time, reverse order.
//
// This implementation assumes a one-sector scratch area, the common
// mcuboot configuration; a multi-sector scratch would additionally
// need to bound how many sector indices are processed per
// "scratch-bounded run" before scratch itself must be re-erased
// mid-swap, which this engine does not model.
type Engine struct {
	Primary   flash.Area
	Secondary flash.Area
	Scratch   flash.Area
}

// statusLogState enumerates the per-sector swap phases persisted to
// the status log, so a resumed swap knows where to continue.
const (
	StateCopyScratch  byte = 0
	StateEraseSec     byte = 1
	StateEraseAndCopy byte = 2
)

// Swap performs (or resumes, given startIdx) the full sector-by-
// sector image swap, and finalizes the primary trailer's copy_done
// and magic fields on completion.
//
// status_log and swap_size always live in the primary trailer (the
// SOURCE_PRIMARY row of the recovery model): scratch is purely a
// data-staging buffer here, and for a one-sector scratch its entire
// span is overwritten by the sector being copied, so it cannot also
// hold a live trailer. The one sector whose data region overlaps
// primary's own trailer -- the highest index, numSectors-1 -- cannot
// record its state 0/1 progress until after its own state 2 rewrite,
// since that rewrite erases the trailer along with the rest of the
// sector; its three status entries and swap_size are therefore
// written together immediately after that erase-and-copy completes.
func (e *Engine) Swap(numSectors int, startIdx int, swapSize uint32) error {
	secSize := e.Primary.SectorSize()
	if e.Secondary.SectorSize() != secSize {
		return tferr.New(tferr.KindNotUpgradeable, "primary/secondary sector geometry differs")
	}

	primLayout := NewLayout(e.Primary, numSectors)

	if startIdx <= 0 || startIdx > numSectors-1 {
		startIdx = numSectors - 1
	}

	for idx := startIdx; idx >= 0; idx-- {
		off := idx * secSize
		first := idx == numSectors-1

		// State 0: erase scratch, copy secondary[idx] -> scratch.
		if err := e.Scratch.Erase(0, secSize); err != nil {
			return tferr.Wrap(tferr.KindFlashIo, err, "scratch erase failed")
		}
		secData, err := e.Secondary.Read(off, secSize)
		if err != nil {
			return tferr.Wrap(tferr.KindFlashIo, err, "secondary read failed")
		}
		if err := e.Scratch.Write(0, secData); err != nil {
			return tferr.Wrap(tferr.KindFlashIo, err, "scratch write failed")
		}
		if !first {
			if err := WriteStatus(e.Primary, primLayout, idx, StateCopyScratch); err != nil {
				return err
			}
		}

		// State 1: erase secondary[idx], copy primary[idx] -> secondary[idx].
		primData, err := e.Primary.Read(off, secSize)
		if err != nil {
			return tferr.Wrap(tferr.KindFlashIo, err, "primary read failed")
		}
		if err := e.Secondary.Erase(off, secSize); err != nil {
			return tferr.Wrap(tferr.KindFlashIo, err, "secondary erase failed")
		}
		if err := e.Secondary.Write(off, primData); err != nil {
			return tferr.Wrap(tferr.KindFlashIo, err, "secondary write failed")
		}
		if !first {
			if err := WriteStatus(e.Primary, primLayout, idx, StateEraseSec); err != nil {
				return err
			}
		}

		// State 2: erase primary[idx], copy scratch -> primary[idx].
		scratchData, err := e.Scratch.Read(0, secSize)
		if err != nil {
			return tferr.Wrap(tferr.KindFlashIo, err, "scratch read failed")
		}
		if err := e.Primary.Erase(off, secSize); err != nil {
			return tferr.Wrap(tferr.KindFlashIo, err, "primary erase failed")
		}
		// The trailer-overlapping sector gets only the data ahead of
		// primary's trailer; the trailer region stays erased for the
		// fields written below and after the loop.
		if first {
			n := primLayout.TrailerStart() - off
			if n < 0 {
				n = 0
			}
			scratchData = scratchData[:n]
		}
		if err := e.Primary.Write(off, scratchData); err != nil {
			return tferr.Wrap(tferr.KindFlashIo, err, "primary write failed")
		}
		if first {
			if err := WriteSwapSize(e.Primary, primLayout, swapSize); err != nil {
				return err
			}
			if err := WriteStatus(e.Primary, primLayout, idx, StateCopyScratch); err != nil {
				return err
			}
			if err := WriteStatus(e.Primary, primLayout, idx, StateEraseSec); err != nil {
				return err
			}
		}
		if err := WriteStatus(e.Primary, primLayout, idx, StateEraseAndCopy); err != nil {
			return err
		}

		tflog.StatusMessage(tflog.VerbosityVerbose, "swapped sector %d/%d\n", idx, numSectors-1)
	}

	if err := WriteCopyDone(e.Primary, primLayout, true); err != nil {
		return err
	}
	return WriteMagic(e.Primary, primLayout)
}

// Resume inspects the primary and scratch trailers and returns the
// sector index a partially-completed swap should resume from, along
// with the status source it must read swap_size/status_log from. A
// source of SourceNone means no swap is in progress.
func Resume(primary, scratch flash.Area, numSectors int) (Source, int, error) {
	primLayout := NewLayout(primary, numSectors)
	scratchLayout := NewLayout(scratch, numSectors)

	pt, err := ReadTrailer(primary, primLayout)
	if err != nil {
		return SourceNone, 0, err
	}
	st, err := ReadTrailer(scratch, scratchLayout)
	if err != nil {
		return SourceNone, 0, err
	}

	src := StatusSource(pt, st)
	if src == SourceNone {
		return SourceNone, 0, nil
	}

	var log []byte
	if src == SourcePrimary {
		log = pt.StatusLog
	} else {
		log = st.StatusLog
	}

	// A log with no state recorded for any sector means no swap has
	// started: there is nothing to resume.
	erased := primary.ErasedValue()
	if src == SourceScratch {
		erased = scratch.ErasedValue()
	}
	started := false
	for _, state := range log {
		if state != erased {
			started = true
			break
		}
	}
	if !started {
		return SourceNone, 0, nil
	}

	// Resume at the lowest index whose log entry hasn't reached the
	// final state.
	resumeIdx := numSectors - 1
	for i, state := range log {
		if state != StateEraseAndCopy {
			resumeIdx = i
			break
		}
	}
	return src, resumeIdx, nil
}

// OverwriteOnly implements the compact overwrite-only variant (§4.2):
// no trailer tracking, a straight sectorwise copy of secondary over
// primary, followed by erasing secondary's header and trailer sector
// so a subsequent boot does not re-trigger the upgrade.
func OverwriteOnly(primary, secondary flash.Area, numSectors int) error {
	secSize := primary.SectorSize()
	for idx := 0; idx < numSectors; idx++ {
		off := idx * secSize
		if err := primary.Erase(off, secSize); err != nil {
			return tferr.Wrap(tferr.KindFlashIo, err, "primary erase failed")
		}
		data, err := secondary.Read(off, secSize)
		if err != nil {
			return tferr.Wrap(tferr.KindFlashIo, err, "secondary read failed")
		}
		if err := primary.Write(off, data); err != nil {
			return tferr.Wrap(tferr.KindFlashIo, err, "primary write failed")
		}
	}

	headerSec := 0
	if err := secondary.Erase(headerSec*secSize, secSize); err != nil {
		return tferr.Wrap(tferr.KindFlashIo, err, "secondary header erase failed")
	}
	lastSec := numSectors - 1
	if lastSec != headerSec {
		if err := secondary.Erase(lastSec*secSize, secSize); err != nil {
			return tferr.Wrap(tferr.KindFlashIo, err, "secondary trailer erase failed")
		}
	}
	return nil
}

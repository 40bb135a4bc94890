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

package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/runtimeco/tfcore/artifact/crypto"
	"github.com/runtimeco/tfcore/artifact/flash"
	"github.com/runtimeco/tfcore/sse"
)

const sseAreaSize = 16 * 1024
const sseNumObjects = 32

// fileBacked loads (or creates) the two areas a standalone SSE CLI
// invocation needs, persisting raw area contents between runs in lieu
// of real flash that would simply retain them across a reset.
func fileBacked(dir string) ([2]flash.Area, error) {
	var areas [2]flash.Area
	for i := 0; i < 2; i++ {
		area := flash.FlashArea{
			Name:       fmt.Sprintf("SSE_%d", i),
			Device:     0,
			Offset:     i * sseAreaSize,
			Size:       sseAreaSize,
			SectorSize: sseAreaSize,
			Align:      1,
			ErasedVal:  0xff,
		}

		path := dir + "/sse_" + strconv.Itoa(i) + ".bin"
		data, err := ioutil.ReadFile(path)
		if err == nil {
			sim, err := flash.NewSimFromBytes(area, uint64(area.Offset), data)
			if err != nil {
				return areas, err
			}
			areas[i] = sim
			continue
		}
		if !os.IsNotExist(err) {
			return areas, err
		}
		areas[i] = flash.NewSim(area, uint64(area.Offset))
	}
	return areas, nil
}

func saveBacked(dir string, areas [2]flash.Area) error {
	for i, area := range areas {
		sim, ok := area.(*flash.Sim)
		if !ok {
			continue
		}
		path := dir + "/sse_" + strconv.Itoa(i) + ".bin"
		if err := ioutil.WriteFile(path, sim.Snapshot(), 0o600); err != nil {
			return err
		}
	}
	return nil
}

func openStore(dir string) (*sse.Store, [2]flash.Area, error) {
	areas, err := fileBacked(dir)
	if err != nil {
		return nil, areas, err
	}
	store := sse.Open(sse.Config{
		Areas:      areas,
		Root:       crypto.FixedRootKey{}, // CLI demo key; production wires a hardware root
		NumObjects: sseNumObjects,
	})
	return store, areas, nil
}

func newSseCmd() *cobra.Command {
	var dir string
	var owner uint32
	var maxSize uint32
	var offset uint32
	var length uint32

	parent := &cobra.Command{
		Use:   "sse",
		Short: "Drive the Secure Storage Engine against a simulated flash pair",
	}
	parent.PersistentFlags().StringVar(&dir, "dir", ".", "Directory holding the simulated flash area files")
	parent.PersistentFlags().Uint32Var(&owner, "owner", 0, "Owner ID scoping the object")

	setCmd := &cobra.Command{
		Use:   "set <uid> <file>",
		Short: "Store the contents of <file> under <uid>",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return err
			}
			data, err := ioutil.ReadFile(args[1])
			if err != nil {
				return err
			}
			store, areas, err := openStore(dir)
			if err != nil {
				return err
			}
			if err := store.Set(uint32(uid), owner, data, maxSize); err != nil {
				return err
			}
			if err := saveBacked(dir, areas); err != nil {
				return err
			}
			fmt.Printf("Stored %s under uid %d\n", humanize.Bytes(uint64(len(data))), uid)
			return nil
		},
	}
	setCmd.Flags().Uint32Var(&maxSize, "max-size", 0, "Growth ceiling to fix at creation (0 defaults to the file size)")

	getCmd := &cobra.Command{
		Use:   "get <uid>",
		Short: "Print the payload (or a byte range of it) stored under <uid> to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return err
			}
			store, _, err := openStore(dir)
			if err != nil {
				return err
			}
			data, err := store.Get(uint32(uid), owner, offset, length)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
	getCmd.Flags().Uint32Var(&offset, "offset", 0, "Byte offset to start reading from")
	getCmd.Flags().Uint32Var(&length, "length", 0, "Number of bytes to read (0 reads through to the end)")

	removeCmd := &cobra.Command{
		Use:   "remove <uid>",
		Short: "Delete the object stored under <uid>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return err
			}
			store, areas, err := openStore(dir)
			if err != nil {
				return err
			}
			if err := store.Remove(uint32(uid), owner); err != nil {
				return err
			}
			return saveBacked(dir, areas)
		},
	}

	infoCmd := &cobra.Command{
		Use:   "info <uid>",
		Short: "Print size and version for <uid> without reading the payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return err
			}
			store, _, err := openStore(dir)
			if err != nil {
				return err
			}
			info, err := store.Info(uint32(uid), owner)
			if err != nil {
				return err
			}
			fmt.Printf("size=%s version=%d\n", humanize.Bytes(uint64(info.Size)), info.Version)
			return nil
		},
	}

	parent.AddCommand(setCmd, getCmd, removeCmd, infoCmd)
	return parent
}

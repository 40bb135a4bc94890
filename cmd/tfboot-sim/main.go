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

// tfboot-sim drives the boot-loader decision engine (ibl/boot, ibl/
// swap) against a file-backed flash simulator across separate process
// invocations, the same role newt's image tooling plays against a
// real target except the "hardware" here is three files on disk.
package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/runtimeco/tfcore/artifact/flash"
	"github.com/runtimeco/tfcore/ibl/boot"
	"github.com/runtimeco/tfcore/ibl/swap"
)

const defaultSectorSize = 4096

func areaFiles(dir string, sectorSize, numSectors int) ([3]flash.Area, [3]string, error) {
	names := [3]string{"primary", "secondary", "scratch"}
	sizes := [3]int{sectorSize * numSectors, sectorSize * numSectors, sectorSize}

	var areas [3]flash.Area
	var paths [3]string
	for i, name := range names {
		fa := flash.FlashArea{
			Name:       name,
			Device:     0,
			Offset:     i * sizes[i],
			Size:       sizes[i],
			SectorSize: sectorSize,
			Align:      1,
			ErasedVal:  0xff,
		}
		path := dir + "/" + name + ".bin"
		paths[i] = path

		data, err := ioutil.ReadFile(path)
		if err == nil {
			sim, err := flash.NewSimFromBytes(fa, uint64(fa.Offset), data)
			if err != nil {
				return areas, paths, err
			}
			areas[i] = sim
			continue
		}
		if !os.IsNotExist(err) {
			return areas, paths, err
		}
		areas[i] = flash.NewSim(fa, uint64(fa.Offset))
	}
	return areas, paths, nil
}

func saveAreas(areas [3]flash.Area, paths [3]string) error {
	for i, area := range areas {
		sim, ok := area.(*flash.Sim)
		if !ok {
			continue
		}
		if err := ioutil.WriteFile(paths[i], sim.Snapshot(), 0o600); err != nil {
			return err
		}
	}
	return nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
	os.Exit(1)
}

func main() {
	var dir string
	var sectorSize int
	var numSectors int
	var overwrite bool

	root := &cobra.Command{
		Use:   "tfboot-sim",
		Short: "Simulate the boot-loader swap decision against file-backed flash",
	}
	root.PersistentFlags().StringVar(&dir, "dir", ".", "Directory holding primary.bin/secondary.bin/scratch.bin")
	root.PersistentFlags().IntVar(&sectorSize, "sector-size", defaultSectorSize, "Sector size in bytes")
	root.PersistentFlags().IntVar(&numSectors, "num-sectors", 4, "Number of sectors per slot")

	requestCmd := &cobra.Command{
		Use:   "request-upgrade",
		Short: "Mark the secondary slot pending a TEST swap on next boot",
		RunE: func(cmd *cobra.Command, args []string) error {
			areas, paths, err := areaFiles(dir, sectorSize, numSectors)
			if err != nil {
				return err
			}
			l := swap.NewLayout(areas[1], numSectors)
			if err := swap.WriteMagic(areas[1], l); err != nil {
				return err
			}
			return saveAreas(areas, paths)
		},
	}

	bootCmd := &cobra.Command{
		Use:   "boot",
		Short: "Run boot_go once and print the slot selected",
		RunE: func(cmd *cobra.Command, args []string) error {
			areas, paths, err := areaFiles(dir, sectorSize, numSectors)
			if err != nil {
				return err
			}
			resp, err := boot.Go(boot.Slots{
				Primary:   areas[0],
				Secondary: areas[1],
				Scratch:   areas[2],
			}, boot.Policy{
				NumSectors: numSectors,
				Overwrite:  overwrite,
			}, nil)
			if err != nil {
				return err
			}
			if err := saveAreas(areas, paths); err != nil {
				return err
			}
			fmt.Printf("boot device=%d offset=%d version=%s\n",
				resp.DeviceId, resp.Offset, resp.Header.Vers.String())
			return nil
		},
	}
	bootCmd.Flags().BoolVar(&overwrite, "overwrite", false, "Use overwrite-only upgrade instead of swap")

	showCmd := &cobra.Command{
		Use:   "show-trailer <primary|secondary>",
		Short: "Print the decoded trailer of a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			areas, _, err := areaFiles(dir, sectorSize, numSectors)
			if err != nil {
				return err
			}
			idx, err := strconv.Atoi(map[string]string{"primary": "0", "secondary": "1"}[args[0]])
			if err != nil {
				return fmt.Errorf("unknown slot %q", args[0])
			}
			l := swap.NewLayout(areas[idx], numSectors)
			t, err := swap.ReadTrailer(areas[idx], l)
			if err != nil {
				return err
			}
			fmt.Printf("magic=%d image_ok=%d copy_done=%d swap_size=%d\n",
				t.Magic, t.ImageOk, t.CopyDone, t.SwapSize)
			return nil
		},
	}

	root.AddCommand(requestCmd, bootCmd, showCmd)
	if err := root.Execute(); err != nil {
		fail(err)
	}
}

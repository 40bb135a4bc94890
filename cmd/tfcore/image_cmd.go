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

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/runtimeco/tfcore/artifact/image"
)

func newCreateImageCmd() *cobra.Command {
	var (
		srcBin    string
		outFile   string
		keyFile   string
		encKey    string
		loadAddr  uint32
		ramLoad   bool
		secCntIdx uint16
		secCnt    uint32
	)

	cmd := &cobra.Command{
		Use:   "create-image <version>",
		Short: "Add a header and TLV trailer to a raw binary, optionally signing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vers, err := image.ParseVersion(args[0])
			if err != nil {
				return err
			}

			opts := image.ImageCreateOpts{
				SrcBinFilename:    srcBin,
				SrcEncKeyFilename: encKey,
				Version:           vers,
				RamLoad:           ramLoad,
				LoadAddr:          loadAddr,
				SecCntIdx:         secCntIdx,
				SecCnt:            secCnt,
			}

			if keyFile != "" {
				key, err := image.ReadKey(keyFile)
				if err != nil {
					return err
				}
				opts.SigKeys = []image.ImageSigKey{key}
			}

			img, err := image.GenerateImage(opts)
			if err != nil {
				return err
			}

			if err := img.WriteToFile(outFile); err != nil {
				return err
			}

			size, err := img.TotalSize()
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s (%s)\n", outFile, humanize.Bytes(uint64(size)))
			return nil
		},
	}

	cmd.Flags().StringVar(&srcBin, "src", "", "Raw application binary")
	cmd.Flags().StringVar(&outFile, "out", "", "Output signed image file")
	cmd.Flags().StringVar(&keyFile, "key", "", "PEM/base64 signing key")
	cmd.Flags().StringVar(&encKey, "enc-key", "", "Public key to wrap a random AES image-encryption secret with")
	cmd.Flags().Uint32Var(&loadAddr, "load-addr", 0, "RAM load address (requires --ram-load)")
	cmd.Flags().BoolVar(&ramLoad, "ram-load", false, "Mark the image IMAGE_F_RAM_LOAD")
	cmd.Flags().Uint16Var(&secCntIdx, "sec-cnt-idx", 0, "Anti-rollback counter slot this image advances")
	cmd.Flags().Uint32Var(&secCnt, "sec-cnt", 0, "Anti-rollback counter value to embed")
	cmd.MarkFlagRequired("src")
	cmd.MarkFlagRequired("out")

	return cmd
}

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

// tfcore is the host-side tooling CLI: image creation/signing and a
// standalone Secure Storage Engine driver backed by a file-mapped
// flash simulator, the role apache-mynewt-newt's newt binary plays
// for image and flash-map work.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/runtimeco/tfcore/internal/tflog"
)

var verbose bool

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
	os.Exit(1)
}

func main() {
	root := &cobra.Command{
		Use:   "tfcore",
		Short: "Trusted firmware image and storage tooling",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Print verbose status output")
	cobra.OnInitialize(func() {
		if verbose {
			tflog.Verbosity = tflog.VerbosityVerbose
		}
		if err := tflog.Init(log.InfoLevel, ""); err != nil {
			fail(err)
		}
	})

	root.AddCommand(newCreateImageCmd())
	root.AddCommand(newSseCmd())

	if err := root.Execute(); err != nil {
		fail(err)
	}
}

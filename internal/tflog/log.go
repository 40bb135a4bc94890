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

// Package tflog carries the ambient logging stack: logrus, configured
// the way apache-mynewt-newt/util.Init configures it, plus the
// Silent/Quiet/Default/Verbose status-message helpers the rest of the
// tree uses for user-facing progress output.
package tflog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	VerbositySilent  = 0
	VerbosityQuiet   = 1
	VerbosityDefault = 2
	VerbosityVerbose = 3
)

// Verbosity gates StatusMessage/ErrorMessage output, mirroring
// util.Verbosity.
var Verbosity = VerbosityDefault

var logFile *os.File

type bracketFormatter struct{}

func (f *bracketFormatter) Format(entry *log.Entry) ([]byte, error) {
	b := &bytes.Buffer{}
	b.WriteString(entry.Time.Format("2006/01/02 15:04:05.000 "))
	b.WriteString("[" + strings.ToUpper(entry.Level.String()) + "] ")
	b.WriteString(entry.Message)
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// Init configures logrus the way util.initLog does: a bracketed
// timestamp+level formatter, optionally tee'd to a log file.
func Init(level log.Level, logFilename string) error {
	log.SetLevel(level)

	var writer io.Writer = os.Stderr
	if logFilename != "" {
		f, err := os.Create(logFilename)
		if err != nil {
			return err
		}
		logFile = f
		writer = io.MultiWriter(os.Stderr, f)
	}

	log.SetOutput(writer)
	log.SetFormatter(&bracketFormatter{})
	return nil
}

// WriteMessage writes a verbosity-gated status line to f, mirroring
// util.WriteMessage (and tee'ing to the active log file, if any).
func WriteMessage(f *os.File, level int, format string, args ...interface{}) {
	if Verbosity < level {
		return
	}
	str := fmt.Sprintf(format, args...)
	f.WriteString(str)
	f.Sync()
	if logFile != nil {
		logFile.WriteString(str)
	}
}

func StatusMessage(level int, format string, args ...interface{}) {
	WriteMessage(os.Stdout, level, format, args...)
}

func ErrorMessage(level int, format string, args ...interface{}) {
	WriteMessage(os.Stderr, level, format, args...)
}

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

// Package platformcfg loads a board's flash geometry and boot policy
// from a YAML descriptor, the way apache-mynewt-newt's
// newt/flashmap package loads a target's flash map out of target
// YAML (user_id/device/offset/size fields, system-area name lookup).
package platformcfg

import (
	"fmt"
	"io/ioutil"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"

	"github.com/runtimeco/tfcore/artifact/flash"
	"github.com/runtimeco/tfcore/internal/tferr"
)

// SwapPolicy selects one of the two build-time upgrade strategies
// preserved as variants per the open question in DESIGN NOTES.
type SwapPolicy int

const (
	SwapPolicyScratch SwapPolicy = iota
	SwapPolicyOverwriteOnly
	SwapPolicyRamLoad
)

// Config is the fully parsed board/policy descriptor.
type Config struct {
	Areas           map[string]flash.FlashArea
	ValidatePrimary bool
	Swap            SwapPolicy
	EncryptSse      bool
}

type yamlArea struct {
	UserId     string `yaml:"user_id"`
	Device     string `yaml:"device"`
	Offset     string `yaml:"offset"`
	Size       string `yaml:"size"`
	SectorSize string `yaml:"sector_size"`
	Align      string `yaml:"align"`
}

type yamlDoc struct {
	Areas           map[string]yamlArea `yaml:"areas"`
	ValidatePrimary bool                `yaml:"validate_primary"`
	Swap            string              `yaml:"swap_policy"`
	EncryptSse      bool                `yaml:"encrypt_sse"`
}

func parseSwapPolicy(s string) (SwapPolicy, error) {
	switch s {
	case "", "scratch":
		return SwapPolicyScratch, nil
	case "overwrite":
		return SwapPolicyOverwriteOnly, nil
	case "ram_load":
		return SwapPolicyRamLoad, nil
	default:
		return 0, tferr.Fmt(tferr.KindParam, "unknown swap_policy %q", s)
	}
}

func areaErr(name, format string, args ...interface{}) error {
	return tferr.Fmt(tferr.KindParam,
		"failure while parsing flash area %q: %s", name, fmt.Sprintf(format, args...))
}

func parseArea(name string, ya yamlArea) (flash.FlashArea, error) {
	area := flash.FlashArea{Name: name, ErasedVal: 0xff}

	var isSystem bool
	area.Id, isSystem = flash.SYSTEM_AREA_NAME_ID_MAP[name]

	if ya.UserId != "" {
		if isSystem {
			return area, areaErr(name, "system areas cannot specify a user_id")
		}
		id, err := cast.ToIntE(ya.UserId)
		if err != nil {
			return area, areaErr(name, "invalid user_id: %s", ya.UserId)
		}
		area.Id = id + flash.AREA_USER_ID_MIN
	} else if !isSystem {
		return area, areaErr(name, "required field \"user_id\" missing")
	}

	var err error
	if area.Device, err = cast.ToIntE(orDefault(ya.Device, "0")); err != nil {
		return area, areaErr(name, "invalid device: %s", ya.Device)
	}
	if area.Offset, err = cast.ToIntE(ya.Offset); err != nil {
		return area, areaErr(name, "invalid offset: %s", ya.Offset)
	}
	if area.Size, err = cast.ToIntE(ya.Size); err != nil {
		return area, areaErr(name, "invalid size: %s", ya.Size)
	}
	if area.SectorSize, err = cast.ToIntE(orDefault(ya.SectorSize, "4096")); err != nil {
		return area, areaErr(name, "invalid sector_size: %s", ya.SectorSize)
	}
	if area.Align, err = cast.ToIntE(orDefault(ya.Align, "1")); err != nil {
		return area, areaErr(name, "invalid align: %s", ya.Align)
	}

	return area, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Parse decodes a board YAML descriptor into a Config, performing the
// same overlap/ID-conflict detection apache-mynewt-newt's flashmap
// does before accepting the result.
func Parse(doc []byte) (Config, error) {
	var yd yamlDoc
	if err := yaml.Unmarshal(doc, &yd); err != nil {
		return Config{}, tferr.Wrap(tferr.KindParam, err, "invalid board yaml")
	}

	cfg := Config{Areas: map[string]flash.FlashArea{}}
	cfg.ValidatePrimary = yd.ValidatePrimary
	cfg.EncryptSse = yd.EncryptSse

	var err error
	if cfg.Swap, err = parseSwapPolicy(yd.Swap); err != nil {
		return cfg, err
	}

	var areas []flash.FlashArea
	for name, ya := range yd.Areas {
		area, err := parseArea(name, ya)
		if err != nil {
			return cfg, err
		}
		cfg.Areas[name] = area
		areas = append(areas, area)
	}

	overlaps, conflicts := flash.DetectErrors(areas)
	if len(overlaps) > 0 || len(conflicts) > 0 {
		return cfg, tferr.New(tferr.KindParam, flash.ErrorText(overlaps, conflicts))
	}

	return cfg, nil
}

// Load reads and parses a board YAML descriptor from disk.
func Load(path string) (Config, error) {
	doc, err := ioutil.ReadFile(path)
	if err != nil {
		return Config{}, tferr.Wrap(tferr.KindParam, err, "cannot read board config")
	}
	return Parse(doc)
}

// Area looks up a named area, failing with ParamError if it is absent
// from the board's flash map (§4.1 step 1, "open both image areas").
func (c Config) Area(name string) (flash.FlashArea, error) {
	a, ok := c.Areas[name]
	if !ok {
		return a, tferr.Fmt(tferr.KindParam, "board config has no area %q", name)
	}
	return a, nil
}

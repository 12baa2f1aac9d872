// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package main

import "github.com/usbarmory/cellcolor/llc"

// manualReader reports a single present, unified cache level built from
// driver-supplied geometry flags. Driver-context tooling runs on the
// management host, not at EL2, so it has no CLIDR_EL1/CCSIDR_EL1 to read
// and instead takes the last unified level's shape on the command line.
type manualReader struct {
	lineSize      uint64
	associativity int
	sets          int
}

func (r manualReader) Levels() [llc.MaxLevels]llc.Level {
	var levels [llc.MaxLevels]llc.Level

	levels[llc.MaxLevels-1] = llc.Level{
		Number:        llc.MaxLevels,
		LineSize:      r.lineSize,
		Associativity: r.associativity,
		Sets:          r.sets,
		Unified:       true,
		Present:       true,
	}

	return levels
}

func probeGeometry(g *geometryArgs) (*llc.Geometry, error) {
	reader := manualReader{lineSize: g.line, associativity: g.assoc, sets: g.sets}
	return llc.Probe(g.page, reader)
}

// ARM64 cache-identification register reader
// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build arm64

package llc

// defined in arm64reader_arm64.s
func clidr_el1() uint64
func ccsidr_el1(level uint64) uint64

// CLIDR_EL1 cache type field values
// (D17.2.21, ARM Architecture Reference Manual for A-profile architecture).
const (
	ctypeNone              = 0b000
	ctypeInstructionOnly   = 0b001
	ctypeDataOnly          = 0b010
	ctypeSeparate          = 0b011
	ctypeUnified           = 0b100
	ctypeInstructionUnused = 0b101
)

// ARM64Reader reads ARMv8-A CLIDR_EL1/CCSIDR_EL1 to discover the cache
// hierarchy on the executing core.
type ARM64Reader struct{}

// Levels implements CacheIDReader.
func (ARM64Reader) Levels() [MaxLevels]Level {
	var levels [MaxLevels]Level

	clidr := clidr_el1()

	for i := 0; i < MaxLevels; i++ {
		ctype := (clidr >> uint(i*3)) & 0x7

		if ctype == ctypeNone {
			continue
		}

		ccsidr := ccsidr_el1(uint64(i) << 1)

		levels[i] = Level{
			Number:        i + 1,
			LineSize:      1 << ((ccsidr & 0x7) + 4),
			Associativity: int((ccsidr>>3)&0x3ff) + 1,
			Sets:          int((ccsidr>>13)&0x7fff) + 1,
			Unified:       ctype == ctypeUnified,
			Present:       true,
		}
	}

	return levels
}

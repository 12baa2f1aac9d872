// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/usbarmory/cellcolor/cellconfig"
	"github.com/usbarmory/cellcolor/region"
	"github.com/usbarmory/cellcolor/validate"
)

// descriptorSize mirrors cellconfig's fixed six-u64 wire layout; kept
// local since the field is unexported there.
const descriptorSize = 48

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)

	geo := geometryFlags(fs)
	rootPath := fs.String("root", "", "path to the root colored-pool descriptor (48 bytes); omit if none declared")
	cellPath := fs.String("cell", "", "path to the cell's colored-region descriptors (one or more 48-byte records)")
	rootCell := fs.Bool("root-cell", false, "validate as the root cell itself")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *cellPath == "" {
		return fmt.Errorf("validate: -cell is required")
	}

	geometry, err := probeGeometry(geo)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	log.Print(geometry)

	var root *region.ColoredRegion
	if *rootPath != "" {
		descs, err := readDescriptors(*rootPath)
		if err != nil {
			return fmt.Errorf("validate: root: %w", err)
		}
		if len(descs) != 1 {
			return fmt.Errorf("validate: root: expected exactly one descriptor, got %d", len(descs))
		}
		root = descs[0].Region()
	}

	cellDescs, err := readDescriptors(*cellPath)
	if err != nil {
		return fmt.Errorf("validate: cell: %w", err)
	}

	failed := false

	for i, d := range cellDescs {
		r := d.Region()

		if err := validate.Validate(geometry, root, r, *rootCell); err != nil {
			log.Printf("region %d (virt=%#x size=%#x colors=%#x): %v", i, d.VirtStart, d.Size, d.Colors, err)
			failed = true
			continue
		}

		log.Printf("region %d (virt=%#x size=%#x colors=%#x): ok, phys=%#x", i, r.VirtStart, r.Size, r.Colors, r.PhysStart)
	}

	if failed {
		return fmt.Errorf("validate: one or more colored regions rejected")
	}

	return nil
}

// readDescriptors reads path as a sequence of fixed-size descriptor
// records, the on-disk counterpart of the wire format in spec.md §6.
func readDescriptors(path string) ([]cellconfig.Descriptor, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(buf)%descriptorSize != 0 {
		return nil, fmt.Errorf("%s: size %d is not a multiple of %d", path, len(buf), descriptorSize)
	}

	n := len(buf) / descriptorSize
	descs := make([]cellconfig.Descriptor, n)

	for i := 0; i < n; i++ {
		if err := descs[i].UnmarshalBinary(buf[i*descriptorSize : (i+1)*descriptorSize]); err != nil {
			return nil, fmt.Errorf("%s: record %d: %w", path, i, err)
		}
	}

	return descs, nil
}

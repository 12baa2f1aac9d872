// hvcolor: driver-context tooling for the cache-coloring subsystem
// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Command hvcolor is the driver-context half of the two-context model
// (spec.md §5): it never runs at EL2 and never touches a page table. It
// checks cell colored-region descriptors against LLC geometry before
// they are handed to the real cell loader, and optionally serves live
// diagnostics of that geometry over HTTP.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
)

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error

	switch os.Args[1] {
	case "validate":
		err = runValidate(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("hvcolor: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: hvcolor <validate|serve> [flags]")
	fmt.Fprintln(os.Stderr, "  validate  check colored-region descriptors against LLC geometry")
	fmt.Fprintln(os.Stderr, "  serve     expose live LLC geometry and cell diagnostics over HTTP")
}

// geometryFlags registers the cache-geometry flags shared by every
// subcommand onto fs and returns the values flag.Parse will fill in.
func geometryFlags(fs *flag.FlagSet) *geometryArgs {
	g := &geometryArgs{}

	fs.Uint64Var(&g.page, "page", 4096, "page size in bytes")
	fs.Uint64Var(&g.line, "line", 64, "last-level cache line size in bytes")
	fs.IntVar(&g.assoc, "assoc", 16, "last-level cache associativity")
	fs.IntVar(&g.sets, "sets", 2048, "last-level cache set count")

	return g
}

type geometryArgs struct {
	page  uint64
	line  uint64
	assoc int
	sets  int
}

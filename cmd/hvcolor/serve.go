// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"

	// Registers its own handlers (memory/GC/goroutine charts) on
	// http.DefaultServeMux, the library's documented usage pattern.
	// Never reachable from EL2/hypervisor-context code.
	_ "github.com/mkevac/debugcharts"

	"github.com/usbarmory/cellcolor/llc"
	"github.com/usbarmory/cellcolor/region"
)

// registry tracks the colored regions registered by whoever is driving
// cell creation, purely for the /cells diagnostic below. It never maps
// or unmaps anything; that is the lifecycle package's job at EL2.
type registry struct {
	mu  sync.Mutex
	geo *llc.Geometry

	cells map[string][]*region.ColoredRegion
}

func (reg *registry) register(cellID string, r *region.ColoredRegion) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.cells[cellID] = append(reg.cells[cellID], r)
}

type cellSummary struct {
	ID        string `json:"id"`
	Regions   int    `json:"regions"`
	Fragments int    `json:"fragments"`
}

func (reg *registry) summaries() []cellSummary {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	summaries := make([]cellSummary, 0, len(reg.cells))

	for id, regions := range reg.cells {
		s := cellSummary{ID: id, Regions: len(regions)}

		for _, r := range regions {
			frags := region.PlanFragments(r, reg.geo.ColorCount, reg.geo.PageSize, reg.geo.WaySize)
			s.Fragments += len(frags)
		}

		summaries = append(summaries, s)
	}

	return summaries
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)

	geo := geometryFlags(fs)
	addr := fs.String("addr", ":8080", "address to serve diagnostics on")
	cellPath := fs.String("cell", "", "optional: register a cell's colored-region descriptors (one or more 48-byte records) at startup")
	cellID := fs.String("cell-id", "cell0", "identifier to register -cell's regions under")

	if err := fs.Parse(args); err != nil {
		return err
	}

	geometry, err := probeGeometry(geo)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	reg := &registry{geo: geometry, cells: make(map[string][]*region.ColoredRegion)}

	if *cellPath != "" {
		descs, err := readDescriptors(*cellPath)
		if err != nil {
			return fmt.Errorf("serve: cell: %w", err)
		}

		for _, d := range descs {
			reg.register(*cellID, d.Region())
		}
	}

	http.HandleFunc("/geometry", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(geometry)
	})

	http.HandleFunc("/cells", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(reg.summaries())
	})

	log.Printf("hvcolor: serving %s (geometry, cells, /debug/charts/)", *addr)

	return http.ListenAndServe(*addr, nil)
}

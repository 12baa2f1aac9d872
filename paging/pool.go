// First-fit page pool for page-table node backing
// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package paging

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/usbarmory/cellcolor"
)

type pageBlock struct {
	addr  uint64
	pages int
}

// Pool is a first-fit allocator over a fixed physical page range, used
// to back the nodes a Stage2 or SMMU table allocates as it grows.
type Pool struct {
	mu sync.Mutex

	start    uint64
	pageSize uint64
	npages   int

	free *list.List
	used map[uint64]int
}

// NewPool creates a pool of npages pages of pageSize bytes starting at
// the physical address start.
func NewPool(start, pageSize uint64, npages int) *Pool {
	p := &Pool{
		start:    start,
		pageSize: pageSize,
		npages:   npages,
		free:     list.New(),
		used:     make(map[uint64]int),
	}

	p.free.PushFront(&pageBlock{addr: start, pages: npages})

	return p
}

// AllocPages reserves n contiguous pages and returns their base physical
// address.
func (p *Pool) AllocPages(n int) (uint64, error) {
	if n <= 0 {
		return 0, cellcolor.NewError(cellcolor.ConfigInvalid, "paging: alloc_pool_pages", fmt.Errorf("invalid page count %d", n))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var e *list.Element
	var block *pageBlock

	for e = p.free.Front(); e != nil; e = e.Next() {
		b := e.Value.(*pageBlock)
		if b.pages >= n {
			block = b
			break
		}
	}

	if block == nil {
		return 0, cellcolor.NewError(cellcolor.OutOfMemory, "paging: alloc_pool_pages", nil)
	}

	addr := block.addr

	if block.pages > n {
		block.addr += uint64(n) * p.pageSize
		block.pages -= n
	} else {
		p.free.Remove(e)
	}

	p.used[addr] = n

	return addr, nil
}

// FreePages returns n pages previously returned by AllocPages at addr to
// the pool, merging with adjacent free blocks.
func (p *Pool) FreePages(addr uint64, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if got, ok := p.used[addr]; !ok || got != n {
		return
	}
	delete(p.used, addr)

	inserted := false

	for e := p.free.Front(); e != nil; e = e.Next() {
		b := e.Value.(*pageBlock)
		if b.addr > addr {
			p.free.InsertBefore(&pageBlock{addr: addr, pages: n}, e)
			inserted = true
			break
		}
	}

	if !inserted {
		p.free.PushBack(&pageBlock{addr: addr, pages: n})
	}

	p.defrag()
}

func (p *Pool) defrag() {
	var prev *pageBlock

	for e := p.free.Front(); e != nil; e = e.Next() {
		b := e.Value.(*pageBlock)

		if prev != nil && prev.addr+uint64(prev.pages)*p.pageSize == b.addr {
			prev.pages += b.pages
			defer p.free.Remove(e)
			continue
		}

		prev = b
	}
}

// Available returns the total number of free pages remaining.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for e := p.free.Front(); e != nil; e = e.Next() {
		n += e.Value.(*pageBlock).pages
	}

	return n
}

// Hypervisor-context trace lines
// https://github.com/usbarmory/cellcolor
//
// Copyright (c) The cellcolor Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package hvlog provides the minimal line writer used from EL2
// hypervisor context, where interrupts are parked across CPUs and the
// code cannot allocate or block on a full logging framework. It mirrors
// the teacher's documented Printk contract: a byte sink written to
// directly, one line at a time.
package hvlog

import (
	"fmt"
	"io"
)

// Writer is a byte sink that may be written to from hypervisor context:
// typically a UART, never a buffered or allocating stream.
type Writer interface {
	io.Writer
}

// Logger formats and emits single trace lines to a Writer. It is safe
// to construct with a nil Writer, in which case every call is a no-op;
// callers that always want a Logger in hand (to avoid nil checks at
// every call site) should use Discard.
type Logger struct {
	w Writer
}

// New returns a Logger writing to w.
func New(w Writer) *Logger {
	return &Logger{w: w}
}

// Discard returns a Logger that drops every line.
func Discard() *Logger {
	return &Logger{}
}

// Printf formats and writes one line, appending a trailing newline if
// the format string does not already end with one. The line is built
// with fmt.Sprintf, so each call allocates.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.w == nil {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if len(msg) == 0 || msg[len(msg)-1] != '\n' {
		msg += "\n"
	}

	io.WriteString(l.w, msg)
}

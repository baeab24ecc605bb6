/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package reporter renders repeated poll results as compact progress text.
//
// A GroupReporter batches "still waiting on these" updates: identical
// consecutive states append a tick character to the current line instead of
// repeating it, changed states start a fresh summary line, and members of the
// designated done group are never printed.
package reporter

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// DefaultWrapWidth is the line width ticks soft-wrap at.
const DefaultWrapWidth = 80

// DefaultTick is the character appended for an unchanged state.
const DefaultTick = "."

// GroupReporter writes wait-loop progress to an output sink.
type GroupReporter struct {
	// WrapWidth is the soft wrap width for tick runs. Defaults to
	// DefaultWrapWidth when zero.
	WrapWidth int

	// Tick is the character written for an unchanged state. Defaults to
	// DefaultTick when empty.
	Tick string

	out       io.Writer
	doneGroup string

	rendered   bool
	lastRender string
	printed    bool
	lastByte   byte
	lineLen    int
	ticks      int
}

// New creates a GroupReporter writing to out. Entries grouped under
// doneGroup are considered finished and are excluded from all output.
func New(out io.Writer, doneGroup string) *GroupReporter {
	return &GroupReporter{
		out:       out,
		doneGroup: doneGroup,
	}
}

func (r *GroupReporter) wrapWidth() int {
	if r.WrapWidth <= 0 {
		return DefaultWrapWidth
	}
	return r.WrapWidth
}

func (r *GroupReporter) tick() string {
	if r.Tick == "" {
		return DefaultTick
	}
	return r.Tick
}

func (r *GroupReporter) write(s string) error {
	if s == "" {
		return nil
	}
	if _, err := io.WriteString(r.out, s); err != nil {
		return err
	}
	r.printed = true
	r.lastByte = s[len(s)-1]
	return nil
}

// render builds the summary line for the non-terminal groups, sorted by
// group name, each group's identifiers joined by comma.
func (r *GroupReporter) render(state map[string][]string) string {
	names := make([]string, 0, len(state))
	for name := range state {
		if name == r.doneGroup {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(state[name], ", ")))
	}
	return strings.Join(parts, " | ")
}

// Update renders one poll result. An unchanged state appends a tick,
// soft-wrapping once the line would exceed the wrap width; a changed state
// starts a new summary line.
func (r *GroupReporter) Update(state map[string][]string) error {
	line := r.render(state)
	if r.rendered && line == r.lastRender {
		if !r.printed {
			return nil
		}
		tick := r.tick()
		if r.ticks == 0 {
			// First tick continues the summary line after a space.
			tick = " " + tick
		}
		if r.lineLen+len(tick) > r.wrapWidth() {
			if err := r.write("\n"); err != nil {
				return err
			}
			r.lineLen = 0
			tick = r.tick()
		}
		if err := r.write(tick); err != nil {
			return err
		}
		r.lineLen += len(tick)
		r.ticks++
		return nil
	}

	if r.printed {
		if err := r.write("\n"); err != nil {
			return err
		}
	}
	if err := r.write(line); err != nil {
		return err
	}
	r.rendered = true
	r.lastRender = line
	r.lineLen = len(line)
	r.ticks = 0
	return nil
}

// Finish terminates the current line. It is idempotent and writes nothing
// if no output was produced.
func (r *GroupReporter) Finish() error {
	if !r.printed || r.lastByte == '\n' {
		return nil
	}
	return r.write("\n")
}

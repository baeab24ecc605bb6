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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCommandTimer(t *testing.T) {
	CommandsTotal.Reset()

	timer := NewCommandTimer("bootstrap")
	if timer.command != "bootstrap" {
		t.Errorf("expected command 'bootstrap', got %q", timer.command)
	}
	if timer.start.IsZero() {
		t.Error("expected start time to be set")
	}

	timer.RecordSuccess()
	if got := testutil.ToFloat64(CommandsTotal.WithLabelValues("bootstrap", ResultSuccess)); got != 1 {
		t.Errorf("expected 1 successful call, got %v", got)
	}

	timer.RecordError()
	if got := testutil.ToFloat64(CommandsTotal.WithLabelValues("bootstrap", ResultError)); got != 1 {
		t.Errorf("expected 1 failed call, got %v", got)
	}
}

func TestWaitTimer(t *testing.T) {
	WaitPollsTotal.Reset()

	timer := NewWaitTimer("started")
	timer.RecordPoll()
	timer.RecordPoll()

	if got := testutil.ToFloat64(WaitPollsTotal.WithLabelValues("started")); got != 2 {
		t.Errorf("expected 2 polls, got %v", got)
	}

	// Outcome recording must not panic even with no polls recorded.
	NewWaitTimer("ha").RecordOutcome(ResultError)
	timer.RecordOutcome(ResultSuccess)
}

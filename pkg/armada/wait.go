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

package armada

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/org/armada-harness/pkg/metrics"
	"github.com/org/armada-harness/pkg/reporter"
)

// DefaultWaitTimeout bounds the long-running wait conditions.
const DefaultWaitTimeout = 20 * time.Minute

// waitPollInterval is the pause between status polls in a wait loop.
const waitPollInterval = time.Second

// WaitTimeoutError reports a wait condition that was not satisfied
// within its countdown.
type WaitTimeoutError struct {
	Message string
	Cause   error
}

func (e *WaitTimeoutError) Error() string { return e.Message }

func (e *WaitTimeoutError) Unwrap() error { return e.Cause }

// IsWaitTimeout reports whether err is an expired wait condition.
func IsWaitTimeout(err error) bool {
	var waitErr *WaitTimeoutError
	return errors.As(err, &waitErr)
}

// countdown yields the remaining budget until a deadline. The first
// call always succeeds, even with a zero or negative budget, so every
// loop built on it evaluates its condition at least once.
type countdown struct {
	deadline time.Time
	now      func() time.Time
	yielded  bool
}

func newCountdown(budget time.Duration, now func() time.Time) *countdown {
	if now == nil {
		now = time.Now
	}
	return &countdown{deadline: now().Add(budget), now: now}
}

// Next reports the remaining budget and whether the loop may continue.
func (c *countdown) Next() (time.Duration, bool) {
	remaining := c.deadline.Sub(c.now())
	if !c.yielded {
		c.yielded = true
		return remaining, true
	}
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}

// StatusUntil feeds fn fresh status snapshots until the budget expires
// or fn returns false. fn sees at least one snapshot even with a zero
// budget.
func (c *Client) StatusUntil(ctx context.Context, budget time.Duration, fn func(*Status) (bool, error)) error {
	cd := newCountdown(budget, c.backend.now)
	for {
		if _, ok := cd.Next(); !ok {
			return nil
		}
		if err := c.backend.CheckDeadline(ctx); err != nil {
			return err
		}
		status, err := c.GetStatus(ctx)
		if err != nil {
			return err
		}
		more, err := fn(status)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		c.sleep(waitPollInterval)
	}
}

// waitForStatus polls status until translate reports the condition
// satisfied by returning a nil group map. Pending groups feed the
// progress reporter; an error from translate (such as ErroredUnit)
// aborts the wait.
func (c *Client) waitForStatus(ctx context.Context, condition string, budget time.Duration,
	timeoutMessage string, translate func(*Status) (map[string][]string, error)) (*Status, error) {

	timer := metrics.NewWaitTimer(condition)
	progress := reporter.New(c.progress, "done")
	defer progress.Finish()

	var status *Status
	cd := newCountdown(budget, c.backend.now)
	for {
		if _, ok := cd.Next(); !ok {
			break
		}
		if err := c.backend.CheckDeadline(ctx); err != nil {
			timer.RecordOutcome(metrics.ResultError)
			return nil, err
		}
		timer.RecordPoll()
		var err error
		status, err = c.GetStatus(ctx)
		if err != nil {
			timer.RecordOutcome(metrics.ResultError)
			return nil, err
		}
		states, err := translate(status)
		if err != nil {
			timer.RecordOutcome(metrics.ResultError)
			return nil, err
		}
		if states == nil {
			timer.RecordOutcome(metrics.ResultSuccess)
			return status, nil
		}
		if err := progress.Update(states); err != nil {
			return nil, err
		}
		c.sleep(waitPollInterval)
	}

	timer.RecordOutcome(metrics.ResultError)
	if status != nil {
		c.log.Error(nil, "condition not satisfied before timeout",
			"condition", condition, "status", string(status.Raw()))
	}
	return nil, &WaitTimeoutError{Message: timeoutMessage}
}

// WaitForStarted blocks until every agent in the model reports its
// terminal started state.
func (c *Client) WaitForStarted(ctx context.Context, budget time.Duration) (*Status, error) {
	message := fmt.Sprintf("Timed out waiting for agents to start in %s", c.env.Name)
	return c.waitForStatus(ctx, "agents_started", budget, message, func(s *Status) (map[string][]string, error) {
		return s.CheckAgentsStarted()
	})
}

// WaitForDeployStarted blocks until at least applicationCount
// applications appear in status.
func (c *Client) WaitForDeployStarted(ctx context.Context, applicationCount int, budget time.Duration) error {
	_, err := c.waitForStatus(ctx, "deploy_started", budget,
		"Timed out waiting for services to start.",
		func(s *Status) (map[string][]string, error) {
			if s.ApplicationCount() >= applicationCount {
				return nil, nil
			}
			return map[string][]string{"waiting for applications": {fmt.Sprint(s.ApplicationCount())}}, nil
		})
	return err
}

// WaitForHA blocks until every controller machine reports has-vote.
func (c *Client) WaitForHA(ctx context.Context, budget time.Duration) error {
	memberKey := c.variant().memberStatusKey
	_, err := c.waitForStatus(ctx, "ha", budget,
		"Timed out waiting for voting to be enabled.",
		func(s *Status) (map[string][]string, error) {
			states := map[string][]string{}
			voting := true
			for _, machine := range s.Machines(false) {
				member, _ := machine.Data[memberKey].(string)
				if member == "" {
					continue
				}
				states[member] = append(states[member], machine.Name)
				if member != "has-vote" {
					voting = false
				}
			}
			if voting && len(states["has-vote"]) >= 3 {
				return nil, nil
			}
			return states, nil
		})
	return err
}

// WaitForVersion blocks until every agent reports the given version.
func (c *Client) WaitForVersion(ctx context.Context, version string, budget time.Duration) error {
	_, err := c.waitForStatus(ctx, "version", budget,
		"Some versions did not update.",
		func(s *Status) (map[string][]string, error) {
			versions := s.GetAgentVersions()
			if len(versions) == 1 && versions[version] != nil {
				return nil, nil
			}
			states := map[string][]string{}
			for v, names := range versions {
				if v == version {
					continue
				}
				states[v] = sets.List(names)
			}
			return states, nil
		})
	return err
}

// workloadsReady are the workload states treated as settled. Unknown
// covers charms that do not set a workload status at all.
var workloadsReady = sets.New("active", "unknown")

// WaitForWorkloads blocks until every unit reporting a workload status
// has settled. Units without one are ignored.
func (c *Client) WaitForWorkloads(ctx context.Context, budget time.Duration) error {
	_, err := c.waitForStatus(ctx, "workloads", budget,
		"Timed out waiting for workloads to start.",
		func(s *Status) (map[string][]string, error) {
			states := map[string][]string{}
			ready := true
			for _, unit := range s.Units() {
				workload := asMap(unit.Data["workload-status"])
				if workload == nil {
					continue
				}
				current, _ := workload["current"].(string)
				if current == "" {
					continue
				}
				states[current] = append(states[current], unit.Name)
				if !workloadsReady.Has(current) {
					ready = false
				}
			}
			if ready {
				return nil, nil
			}
			return states, nil
		})
	return err
}

// WaitForSubordinateUnits blocks until subordinate units of unitPrefix
// exist and their agents have started.
func (c *Client) WaitForSubordinateUnits(ctx context.Context, application, unitPrefix string, budget time.Duration) error {
	message := fmt.Sprintf("Timed out waiting for agents to start in %s", c.env.Name)
	_, err := c.waitForStatus(ctx, "subordinates", budget, message,
		func(s *Status) (map[string][]string, error) {
			states := map[string][]string{}
			matched := 0
			for _, sub := range s.SubordinateUnits(application) {
				if !strings.HasPrefix(sub.Name, unitPrefix+"/") {
					continue
				}
				matched++
				class := classifyAgent(sub.Data)
				if class.Errored {
					return nil, &ErroredUnit{Unit: sub.Name, State: class.Message}
				}
				states[class.Group] = append(states[class.Group], sub.Name)
			}
			if matched == 0 {
				return map[string][]string{"waiting": {unitPrefix}}, nil
			}
			for group := range states {
				if !agentsReady.Has(group) {
					return states, nil
				}
			}
			return nil, nil
		})
	return err
}

// WaitFor blocks until predicate accepts a status snapshot. It is the
// generic hook for one-off conditions in test scripts.
func (c *Client) WaitFor(ctx context.Context, what string, budget time.Duration, predicate func(*Status) bool) (*Status, error) {
	message := fmt.Sprintf("Timed out waiting for %s", what)
	return c.waitForStatus(ctx, what, budget, message, func(s *Status) (map[string][]string, error) {
		if predicate(s) {
			return nil, nil
		}
		return map[string][]string{"waiting": {what}}, nil
	})
}

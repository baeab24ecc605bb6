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
	"fmt"
	"sort"

	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/yaml"

	harnesserrors "github.com/org/armada-harness/pkg/errors"
)

// ErroredUnit reports a machine or unit whose agent entered a fatal
// state while it was being waited on.
type ErroredUnit struct {
	Unit  string
	State string
}

func (e *ErroredUnit) Error() string {
	return fmt.Sprintf("%s is in state %s", e.Unit, e.State)
}

// Agent states accepted as "everything came up".
const (
	stateStarted = "started"
	stateIdle    = "idle"
)

var agentsReady = sets.New(stateStarted, stateIdle)

// AgentItem is one addressable entity from a status document: a
// machine, container, unit or subordinate unit.
type AgentItem struct {
	Name string
	Data map[string]interface{}
}

// Status is a parsed status document. Keys are kept verbatim so callers
// can rely on generation-specific field names.
type Status struct {
	data    map[string]interface{}
	raw     []byte
	appsKey string
}

// ParseStatus decodes a status document. appsKey names the top-level
// applications section, which differs between tool generations.
func ParseStatus(text []byte, appsKey string) (*Status, error) {
	var data map[string]interface{}
	if err := yaml.Unmarshal(text, &data); err != nil {
		return nil, harnesserrors.Wrap(err, "parse status output")
	}
	return &Status{data: data, raw: text, appsKey: appsKey}, nil
}

// Raw returns the unparsed status text.
func (s *Status) Raw() []byte { return s.raw }

// Value returns the value at a top-level key, for callers needing
// fields this type does not model.
func (s *Status) Value(key string) interface{} { return s.data[key] }

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// machines returns the top-level machines section.
func (s *Status) machines() map[string]interface{} {
	return asMap(s.data["machines"])
}

// Applications returns the applications section under the
// generation-appropriate key.
func (s *Status) Applications() map[string]interface{} {
	return asMap(s.data[s.appsKey])
}

// Machines lists machines in identifier order. With containers set,
// each machine's containers follow it immediately.
func (s *Status) Machines(containers bool) []AgentItem {
	var items []AgentItem
	machines := s.machines()
	for _, name := range sortedKeys(machines) {
		machine := asMap(machines[name])
		items = append(items, AgentItem{Name: name, Data: machine})
		if !containers {
			continue
		}
		contained := asMap(machine["containers"])
		for _, childName := range sortedKeys(contained) {
			items = append(items, AgentItem{Name: childName, Data: asMap(contained[childName])})
		}
	}
	return items
}

// Units lists every unit across every application, each unit followed
// by its subordinate units.
func (s *Status) Units() []AgentItem {
	var items []AgentItem
	apps := s.Applications()
	for _, appName := range sortedKeys(apps) {
		units := asMap(asMap(apps[appName])["units"])
		for _, unitName := range sortedKeys(units) {
			unit := asMap(units[unitName])
			items = append(items, AgentItem{Name: unitName, Data: unit})
			subordinates := asMap(unit["subordinates"])
			for _, subName := range sortedKeys(subordinates) {
				items = append(items, AgentItem{Name: subName, Data: asMap(subordinates[subName])})
			}
		}
	}
	return items
}

// AgentItems is the uniform iteration surface for wait predicates:
// machines including containers, then all units.
func (s *Status) AgentItems() []AgentItem {
	items := s.Machines(true)
	return append(items, s.Units()...)
}

// agentClassification tags one entity's classified state.
type agentClassification struct {
	Group   string
	Errored bool
	Message string
}

// classifyAgent maps one entity onto a state group. A structured
// current of "error" or a legacy agent-state-info field marks the
// entity errored; a dying lifecycle groups separately; otherwise the
// structured current field wins over the flat legacy agent-state.
func classifyAgent(item map[string]interface{}) agentClassification {
	status := asMap(item["agent-status"])
	current, _ := status["current"].(string)
	if current == "error" {
		message, _ := status["message"].(string)
		if message == "" {
			message = "error"
		}
		return agentClassification{Errored: true, Message: message}
	}
	if info, ok := item["agent-state-info"].(string); ok && info != "" {
		return agentClassification{Errored: true, Message: info}
	}
	if life, _ := item["life"].(string); life == "dying" {
		return agentClassification{Group: "dying"}
	}
	if current != "" {
		return agentClassification{Group: current}
	}
	if state, ok := item["agent-state"].(string); ok && state != "" {
		return agentClassification{Group: state}
	}
	return agentClassification{Group: "no-agent"}
}

// AgentStates groups entity identifiers by classified agent state. An
// errored entity aborts the scan with ErroredUnit.
func (s *Status) AgentStates() (map[string][]string, error) {
	states := map[string][]string{}
	for _, item := range s.AgentItems() {
		class := classifyAgent(item.Data)
		if class.Errored {
			return nil, &ErroredUnit{Unit: item.Name, State: class.Message}
		}
		states[class.Group] = append(states[class.Group], item.Name)
	}
	return states, nil
}

// UnitAgentStates groups unit identifiers by classified agent state,
// ignoring machines. An errored unit aborts the scan with ErroredUnit.
func (s *Status) UnitAgentStates() (map[string][]string, error) {
	states := map[string][]string{}
	for _, item := range s.Units() {
		class := classifyAgent(item.Data)
		if class.Errored {
			return nil, &ErroredUnit{Unit: item.Name, State: class.Message}
		}
		states[class.Group] = append(states[class.Group], item.Name)
	}
	return states, nil
}

// CheckAgentsStarted returns nil once every entity reports a terminal
// started/idle state, the pending state groups otherwise, and
// ErroredUnit when any entity reports a fatal state.
func (s *Status) CheckAgentsStarted() (map[string][]string, error) {
	states, err := s.AgentStates()
	if err != nil {
		return nil, err
	}
	for group := range states {
		if !agentsReady.Has(group) {
			return states, nil
		}
	}
	return nil, nil
}

// GetAgentVersions maps each reported agent version to the identifiers
// reporting it, with "unknown" for entities reporting none.
func (s *Status) GetAgentVersions() map[string]sets.Set[string] {
	versions := map[string]sets.Set[string]{}
	add := func(version, name string) {
		if versions[version] == nil {
			versions[version] = sets.New[string]()
		}
		versions[version].Insert(name)
	}
	for _, item := range s.AgentItems() {
		if status := asMap(item.Data["agent-status"]); status != nil {
			version, _ := status["version"].(string)
			if version == "" {
				version = "unknown"
			}
			add(version, item.Name)
			continue
		}
		version, _ := item.Data["agent-version"].(string)
		if version == "" {
			version = "unknown"
		}
		add(version, item.Name)
	}
	return versions
}

// GetUnit returns the status attributes of a unit or subordinate unit.
func (s *Status) GetUnit(name string) (map[string]interface{}, error) {
	for _, item := range s.Units() {
		if item.Name == name {
			return item.Data, nil
		}
	}
	return nil, harnesserrors.NotFound("unit", name)
}

// GetOpenPorts lists the ports a unit has opened.
func (s *Status) GetOpenPorts(unitName string) ([]string, error) {
	unit, err := s.GetUnit(unitName)
	if err != nil {
		return nil, err
	}
	raw, _ := unit["open-ports"].([]interface{})
	ports := make([]string, 0, len(raw))
	for _, p := range raw {
		ports = append(ports, fmt.Sprintf("%v", p))
	}
	return ports, nil
}

// GetInstanceID returns the provider instance identifier of a machine.
func (s *Status) GetInstanceID(machine string) (string, error) {
	m := asMap(s.machines()[machine])
	if m == nil {
		return "", harnesserrors.NotFound("machine", machine)
	}
	id, ok := m["instance-id"].(string)
	if !ok {
		return "", harnesserrors.NotFound("instance-id for machine", machine)
	}
	return id, nil
}

// GetMachineDNSName returns the DNS name of a machine.
func (s *Status) GetMachineDNSName(machine string) (string, error) {
	m := asMap(s.machines()[machine])
	if m == nil {
		return "", harnesserrors.NotFound("machine", machine)
	}
	name, _ := m["dns-name"].(string)
	return name, nil
}

// NewMachines lists machines present here but absent from old.
func (s *Status) NewMachines(old *Status) []AgentItem {
	seen := sets.New[string]()
	for _, item := range old.Machines(false) {
		seen.Insert(item.Name)
	}
	var items []AgentItem
	for _, item := range s.Machines(false) {
		if !seen.Has(item.Name) {
			items = append(items, item)
		}
	}
	return items
}

// ApplicationCount returns the number of deployed applications.
func (s *Status) ApplicationCount() int {
	return len(s.Applications())
}

// UnitCount returns the number of principal units of an application.
func (s *Status) UnitCount(application string) int {
	return len(asMap(asMap(s.Applications()[application])["units"]))
}

// SubordinateUnits lists the subordinate units nested under an
// application's principal units.
func (s *Status) SubordinateUnits(application string) []AgentItem {
	var items []AgentItem
	units := asMap(asMap(s.Applications()[application])["units"])
	for _, unitName := range sortedKeys(units) {
		subordinates := asMap(asMap(units[unitName])["subordinates"])
		for _, subName := range sortedKeys(subordinates) {
			items = append(items, AgentItem{Name: subName, Data: asMap(subordinates[subName])})
		}
	}
	return items
}

package sim

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ScenarioScript is a deterministic, script-driven spoofing timeline.
//
// Time is expressed as Go duration strings of simulated time since start.
// If Duration is zero, it is derived from the latest event time.
//
// YAML schema (v1):
//
//	version: 1
//	duration: 120s
//	events:
//	  - t: 30s
//	    prn: 5
//	    position_offset_m: 5000
//	  - t: 60s
//	    prn: 7
//	    eccentricity_bias: 0.02
//	  - t: 90s
//	    prn: 5          # all-zero event ends spoofing for PRN 5
//
// Events must be sorted by non-decreasing t. For each PRN the latest event at
// or before the sample time is in force.
type ScenarioScript struct {
	Version  int           `yaml:"version"`
	Duration time.Duration `yaml:"duration"`
	Events   []SpoofEvent  `yaml:"events"`
}

// SpoofEvent changes what one satellite broadcasts from T onwards.
type SpoofEvent struct {
	T                time.Duration `yaml:"t"`
	PRN              uint32        `yaml:"prn"`
	PositionOffsetM  float64       `yaml:"position_offset_m"`
	EccentricityBias float64       `yaml:"eccentricity_bias"`
}

// Spoof is the falsification applied to one satellite.
type Spoof struct {
	PositionOffsetM  float64
	EccentricityBias float64
}

func (s Spoof) Active() bool { return s.PositionOffsetM != 0 || s.EccentricityBias != 0 }

// Scenario is the validated, runtime representation.
type Scenario struct {
	script   ScenarioScript
	duration time.Duration
}

// LoadScenarioScript reads and unmarshals a YAML scenario script from path.
func LoadScenarioScript(path string) (ScenarioScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ScenarioScript{}, err
	}
	return ParseScenarioScriptYAML(b)
}

func ParseScenarioScriptYAML(b []byte) (ScenarioScript, error) {
	var s ScenarioScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return ScenarioScript{}, err
	}
	return s, nil
}

// NewScenario validates script and returns a runtime Scenario.
func NewScenario(script ScenarioScript) (*Scenario, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported scenario version %d", script.Version)
	}
	if len(script.Events) == 0 {
		return nil, fmt.Errorf("events is required")
	}
	for i, ev := range script.Events {
		if ev.T < 0 {
			return nil, fmt.Errorf("events[%d].t must be >= 0", i)
		}
		if ev.PRN == 0 {
			return nil, fmt.Errorf("events[%d].prn is required", i)
		}
		if i > 0 && ev.T < script.Events[i-1].T {
			return nil, fmt.Errorf("events must be sorted by t (index %d)", i)
		}
	}

	dur := script.Duration
	if dur <= 0 {
		dur = script.Events[len(script.Events)-1].T
	}
	return &Scenario{script: script, duration: dur}, nil
}

func (s *Scenario) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return s.duration
}

// SpoofAt returns the spoofing in force at elapsed for every PRN an event
// has touched so far. Inactive entries are omitted.
//
// If loop is true, elapsed wraps around Duration(). Otherwise elapsed is
// clamped to [0, Duration()].
func (s *Scenario) SpoofAt(elapsed time.Duration, loop bool) map[uint32]Spoof {
	if s == nil {
		return nil
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if s.duration > 0 {
		if loop {
			elapsed = elapsed % s.duration
		} else if elapsed > s.duration {
			elapsed = s.duration
		}
	}

	evs := s.script.Events
	n := sort.Search(len(evs), func(i int) bool { return evs[i].T > elapsed })
	out := make(map[uint32]Spoof)
	for _, ev := range evs[:n] {
		sp := Spoof{PositionOffsetM: ev.PositionOffsetM, EccentricityBias: ev.EccentricityBias}
		if sp.Active() {
			out[ev.PRN] = sp
		} else {
			delete(out, ev.PRN)
		}
	}
	return out
}

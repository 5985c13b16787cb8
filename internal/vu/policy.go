package vu

import (
	"errors"
	"fmt"

	"github.com/wesleyorama2/volley/internal/scenario"
)

// Policy decides which scenario a virtual user invokes next.
type Policy string

const (
	// SequentialCycle walks the selected scenarios in registration order
	// and wraps around.
	SequentialCycle Policy = "sequential-cycle"

	// SingleScenario invokes one scenario for the VU's whole life.
	SingleScenario Policy = "single-scenario"
)

// ErrNoScenarios is returned when a VU has nothing to invoke.
var ErrNoScenarios = errors.New("no scenarios selected")

// ParsePolicy validates a policy name. The empty string selects
// SequentialCycle.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "":
		return SequentialCycle, nil
	case SequentialCycle, SingleScenario:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown selection policy %q (want %s or %s)", s, SequentialCycle, SingleScenario)
	}
}

type selector interface {
	next() *scenario.Definition
}

func newSelector(p Policy, defs []*scenario.Definition, pinned string, id int) (selector, error) {
	if len(defs) == 0 {
		return nil, ErrNoScenarios
	}

	switch p {
	case SequentialCycle:
		return &cycle{defs: defs}, nil
	case SingleScenario:
		if pinned == "" {
			// IDs start at 1
			idx := (id - 1) % len(defs)
			if idx < 0 {
				idx += len(defs)
			}
			return single{def: defs[idx]}, nil
		}
		for _, d := range defs {
			if d.Name == pinned {
				return single{def: d}, nil
			}
		}
		return nil, fmt.Errorf("%w: pinned scenario %q", scenario.ErrNotFound, pinned)
	default:
		return nil, fmt.Errorf("unknown selection policy %q", p)
	}
}

// cycle is only used by its owning VU goroutine.
type cycle struct {
	defs []*scenario.Definition
	pos  int
}

func (c *cycle) next() *scenario.Definition {
	d := c.defs[c.pos]
	c.pos = (c.pos + 1) % len(c.defs)
	return d
}

type single struct {
	def *scenario.Definition
}

func (s single) next() *scenario.Definition {
	return s.def
}

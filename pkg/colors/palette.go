// Package colors picks the Google Calendar color of a task's event.
package colors

import (
	"fmt"

	"github.com/harrisonrobin/jarvis/pkg/model"
)

// Google Calendar event color ids.
const (
	Lavender  = "1"
	Sage      = "2"
	Grape     = "3"
	Flamingo  = "4"
	Banana    = "5"
	Tangerine = "6"
	Peacock   = "7"
	Graphite  = "8"
	Blueberry = "9"
	Basil     = "10"
	Tomato    = "11"
)

// Palette maps priorities to color ids. Completed tasks always use Done.
type Palette struct {
	ByPriority map[model.Priority]string
	Done       string
}

func Default() Palette {
	return Palette{
		ByPriority: map[model.Priority]string{
			model.PriorityLow:    Sage,
			model.PriorityMedium: Banana,
			model.PriorityHigh:   Tomato,
		},
		Done: Graphite,
	}
}

// WithOverrides returns a copy of p where the given priorities (by name) use
// other color ids. Unknown priorities or ids are rejected.
func (p Palette) WithOverrides(overrides map[string]string) (Palette, error) {
	out := Palette{ByPriority: make(map[model.Priority]string, len(p.ByPriority)), Done: p.Done}
	for k, v := range p.ByPriority {
		out.ByPriority[k] = v
	}
	for name, id := range overrides {
		if !validID(id) {
			return p, fmt.Errorf("%w: unknown calendar color id %q", model.ErrValidation, id)
		}
		if name == "completed" {
			out.Done = id
			continue
		}
		prio, err := model.ParsePriority(name)
		if err != nil {
			return p, err
		}
		out.ByPriority[prio] = id
	}
	return out, nil
}

// For returns the color id of the event mirroring t.
func (p Palette) For(t model.Task) string {
	if t.Completed && p.Done != "" {
		return p.Done
	}
	if id, ok := p.ByPriority[t.Priority]; ok {
		return id
	}
	return Lavender
}

func validID(id string) bool {
	switch id {
	case Lavender, Sage, Grape, Flamingo, Banana, Tangerine, Peacock, Graphite, Blueberry, Basil, Tomato:
		return true
	}
	return false
}

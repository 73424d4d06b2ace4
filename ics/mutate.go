package ics

import (
	"fmt"
	"time"

	"github.com/samber/mo"
)

// Change describes what to do with one field: nothing (the zero value), set
// it to Value, or clear it.
type Change[T any] struct {
	Value mo.Option[T]
	Clear bool
}

// Set returns a change assigning v.
func Set[T any](v T) Change[T] {
	return Change[T]{Value: mo.Some(v)}
}

// Clear returns a change removing the field.
func Clear[T any]() Change[T] {
	return Change[T]{Clear: true}
}

// IsZero reports whether the change leaves the field alone.
func (c Change[T]) IsZero() bool {
	return c.Value.IsAbsent() && !c.Clear
}

func (c Change[T]) conflicting() bool {
	return c.Value.IsPresent() && c.Clear
}

// Changes is a partial update of the mutable VEVENT fields.
type Changes struct {
	Summary     Change[string]
	Location    Change[string]
	Description Change[string]
	Start       Change[Date]
	End         Change[Date]
}

// IsEmpty reports whether no field is touched.
func (c Changes) IsEmpty() bool {
	return c.Summary.IsZero() && c.Location.IsZero() && c.Description.IsZero() &&
		c.Start.IsZero() && c.End.IsZero()
}

// Apply applies c to a copy of e, stamping it with the current time.
func Apply(e Event, c Changes) (Event, error) {
	return ApplyAt(e, c, time.Now())
}

// Check reports a field that is both set and cleared, or a required field
// being cleared.
func (c Changes) Check() error {
	for _, f := range []struct {
		name     string
		conflict bool
	}{
		{"SUMMARY", c.Summary.conflicting()},
		{"LOCATION", c.Location.conflicting()},
		{"DESCRIPTION", c.Description.conflicting()},
		{"DTSTART", c.Start.conflicting()},
		{"DTEND", c.End.conflicting()},
	} {
		if f.conflict {
			return fmt.Errorf("%w: %s is both set and cleared", ErrConflictingUpdate, f.name)
		}
	}
	if c.Start.Clear {
		return fmt.Errorf("%w: DTSTART cannot be cleared", ErrInvalidUpdate)
	}
	if c.End.Clear {
		return fmt.Errorf("%w: DTEND cannot be cleared", ErrInvalidUpdate)
	}
	return nil
}

// ApplyAt is Apply with an explicit DTSTAMP. The input event is never
// modified; UID and every unmodeled property pass through untouched.
func ApplyAt(e Event, c Changes, now time.Time) (Event, error) {
	if err := c.Check(); err != nil {
		return Event{}, err
	}

	out := e.Clone()
	applyText(&out.Summary, c.Summary)
	applyText(&out.Location, c.Location)
	applyText(&out.Description, c.Description)
	if v, ok := c.Start.Value.Get(); ok {
		out.Start = v
	}
	if v, ok := c.End.Value.Get(); ok {
		out.End = v
	}
	out.Stamp = now.UTC().Truncate(time.Second)

	if err := out.Validate(); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
	}
	return out, nil
}

func applyText(field *string, c Change[string]) {
	if c.Clear {
		*field = ""
		return
	}
	if v, ok := c.Value.Get(); ok {
		*field = v
	}
}

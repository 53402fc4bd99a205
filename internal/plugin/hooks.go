// File: internal/plugin/hooks.go
package plugin

import (
	"context"
	"log/slog"
)

// Hooks defines lifecycle callbacks for entity operations. They run inside the
// commit transaction; an error from a Before hook aborts the whole commit.
type Hooks interface {
	BeforeCreate(ctx context.Context, entity interface{}) error
	AfterCreate(ctx context.Context, entity interface{}) error
	BeforeUpdate(ctx context.Context, entity interface{}) error
	AfterUpdate(ctx context.Context, entity interface{}) error
	BeforeDelete(ctx context.Context, entity interface{}) error
	AfterDelete(ctx context.Context, entity interface{}) error
}

// Nop implements Hooks with no-ops; embed it to override selected events.
type Nop struct{}

func (Nop) BeforeCreate(context.Context, interface{}) error { return nil }
func (Nop) AfterCreate(context.Context, interface{}) error  { return nil }
func (Nop) BeforeUpdate(context.Context, interface{}) error { return nil }
func (Nop) AfterUpdate(context.Context, interface{}) error  { return nil }
func (Nop) BeforeDelete(context.Context, interface{}) error { return nil }
func (Nop) AfterDelete(context.Context, interface{}) error  { return nil }

// Event names a lifecycle point.
type Event int

const (
	BeforeCreate Event = iota
	AfterCreate
	BeforeUpdate
	AfterUpdate
	BeforeDelete
	AfterDelete
)

func (e Event) String() string {
	switch e {
	case BeforeCreate:
		return "before_create"
	case AfterCreate:
		return "after_create"
	case BeforeUpdate:
		return "before_update"
	case AfterUpdate:
		return "after_update"
	case BeforeDelete:
		return "before_delete"
	case AfterDelete:
		return "after_delete"
	}
	return "unknown"
}

// Dispatch calls the hook in h matching ev.
func Dispatch(ctx context.Context, h Hooks, ev Event, entity interface{}) error {
	switch ev {
	case BeforeCreate:
		return h.BeforeCreate(ctx, entity)
	case AfterCreate:
		return h.AfterCreate(ctx, entity)
	case BeforeUpdate:
		return h.BeforeUpdate(ctx, entity)
	case AfterUpdate:
		return h.AfterUpdate(ctx, entity)
	case BeforeDelete:
		return h.BeforeDelete(ctx, entity)
	case AfterDelete:
		return h.AfterDelete(ctx, entity)
	}
	return nil
}

// Chain runs several hook sets in order, stopping at the first error.
type Chain []Hooks

func (c Chain) run(ctx context.Context, ev Event, entity interface{}) error {
	for _, h := range c {
		if err := Dispatch(ctx, h, ev, entity); err != nil {
			return err
		}
	}
	return nil
}

func (c Chain) BeforeCreate(ctx context.Context, e interface{}) error {
	return c.run(ctx, BeforeCreate, e)
}
func (c Chain) AfterCreate(ctx context.Context, e interface{}) error {
	return c.run(ctx, AfterCreate, e)
}
func (c Chain) BeforeUpdate(ctx context.Context, e interface{}) error {
	return c.run(ctx, BeforeUpdate, e)
}
func (c Chain) AfterUpdate(ctx context.Context, e interface{}) error {
	return c.run(ctx, AfterUpdate, e)
}
func (c Chain) BeforeDelete(ctx context.Context, e interface{}) error {
	return c.run(ctx, BeforeDelete, e)
}
func (c Chain) AfterDelete(ctx context.Context, e interface{}) error {
	return c.run(ctx, AfterDelete, e)
}

// Logger logs every lifecycle event at debug level.
type Logger struct {
	Log *slog.Logger
}

func (l Logger) log(ctx context.Context, ev Event, entity interface{}) error {
	lg := l.Log
	if lg == nil {
		lg = slog.Default()
	}
	lg.DebugContext(ctx, "entity hook", "event", ev.String(), "entity", entity)
	return nil
}

func (l Logger) BeforeCreate(ctx context.Context, e interface{}) error {
	return l.log(ctx, BeforeCreate, e)
}
func (l Logger) AfterCreate(ctx context.Context, e interface{}) error {
	return l.log(ctx, AfterCreate, e)
}
func (l Logger) BeforeUpdate(ctx context.Context, e interface{}) error {
	return l.log(ctx, BeforeUpdate, e)
}
func (l Logger) AfterUpdate(ctx context.Context, e interface{}) error {
	return l.log(ctx, AfterUpdate, e)
}
func (l Logger) BeforeDelete(ctx context.Context, e interface{}) error {
	return l.log(ctx, BeforeDelete, e)
}
func (l Logger) AfterDelete(ctx context.Context, e interface{}) error {
	return l.log(ctx, AfterDelete, e)
}

package torm

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/TechXTT/tormsh/internal/core"
	"github.com/TechXTT/tormsh/internal/plugin"
	"github.com/TechXTT/tormsh/pkg/runtime"
)

// Op is a staged operation kind.
type Op int

const (
	OpInsert Op = iota + 1
	OpUpdate
	OpDelete
	opDeleteAll
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case opDeleteAll:
		return "delete all"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// State is the lifecycle position of an entity as seen by a session.
type State int

const (
	StateTransient State = iota
	StatePending
	StatePersisted
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateTransient:
		return "transient"
	case StatePending:
		return "pending"
	case StatePersisted:
		return "persisted"
	case StateDeleted:
		return "deleted"
	}
	return "unknown"
}

// Validator is implemented by models that check their own invariants. It is
// called when the entity is staged and again when it is flushed.
type Validator interface {
	Validate() error
}

type change struct {
	op     Op
	entity interface{}
	value  reflect.Value
	schema *core.Schema

	// bulk deletes only
	where *core.QueryBuilder
	count int64
}

// Session is a unit of work: it stages inserts, updates and deletes and
// applies them atomically on Commit. A Session is not safe for concurrent use.
type Session struct {
	id  uuid.UUID
	db  *DB
	log *slog.Logger

	pending []*change
	staged  map[interface{}]*change
	known   map[interface{}]int64 // entity -> id assigned by commit or seen when first staged
	deleted map[interface{}]bool
}

// Session starts a new, empty unit of work.
func (d *DB) Session() *Session {
	id := uuid.New()
	return &Session{
		id:      id,
		db:      d,
		log:     d.log.With("session", id.String()),
		staged:  map[interface{}]*change{},
		known:   map[interface{}]int64{},
		deleted: map[interface{}]bool{},
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) DB() *DB { return s.db }

// Pending returns the number of staged changes.
func (s *Session) Pending() int { return len(s.pending) }

func inspect(entity interface{}) (reflect.Value, *core.Schema, error) {
	if entity == nil {
		return reflect.Value{}, nil, ErrInvalidEntity
	}
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, nil, fmt.Errorf("%w: got %T", ErrInvalidEntity, entity)
	}
	schema, err := core.SchemaOf(v.Type())
	if err != nil {
		return reflect.Value{}, nil, fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}
	return v, schema, nil
}

func validate(entity interface{}, v reflect.Value, schema *core.Schema) error {
	if col, missing := schema.Missing(v); missing {
		return fmt.Errorf("%w: %s.%s", ErrMissingField, schema.Name, col.Name)
	}
	if val, ok := entity.(Validator); ok {
		if err := val.Validate(); err != nil {
			return fmt.Errorf("invalid %s: %w", schema.Name, err)
		}
	}
	return nil
}

func (s *Session) checkID(entity interface{}, schema *core.Schema, id int64) error {
	if s.deleted[entity] {
		return fmt.Errorf("%w: %s %d was deleted", ErrNotPersisted, schema.Name, id)
	}
	if known, ok := s.known[entity]; ok && known != id {
		return fmt.Errorf("%w: %s %d changed to %d", ErrIDImmutable, schema.Name, known, id)
	}
	return nil
}

// Add stages entity for insert when it has no id yet, and for update otherwise.
func (s *Session) Add(entity interface{}) error {
	v, schema, err := inspect(entity)
	if err != nil {
		return err
	}
	if schema.ID(v) == 0 {
		return s.Stage(entity, OpInsert)
	}
	return s.Stage(entity, OpUpdate)
}

// Update stages a persisted entity's current field values.
func (s *Session) Update(entity interface{}) error {
	return s.Stage(entity, OpUpdate)
}

// Delete stages removal of entity. Deleting an entity that is only pending
// insert cancels the insert.
func (s *Session) Delete(entity interface{}) error {
	return s.Stage(entity, OpDelete)
}

// Stage records the intent to apply op to entity on the next Commit. Nothing
// touches storage until then. Re-staging an entity keeps its position in the
// queue and replaces the operation.
func (s *Session) Stage(entity interface{}, op Op) error {
	v, schema, err := inspect(entity)
	if err != nil {
		return err
	}
	id := schema.ID(v)
	existing := s.staged[entity]

	switch op {
	case OpInsert:
		if id != 0 || s.deleted[entity] {
			return fmt.Errorf("%w: %s %d", ErrAlreadyPersisted, schema.Name, id)
		}
		if err := validate(entity, v, schema); err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
	case OpUpdate:
		if id == 0 {
			return fmt.Errorf("%w: %s has no id", ErrNotPersisted, schema.Name)
		}
		if existing != nil && existing.op == OpDelete {
			return fmt.Errorf("%w: %s %d", ErrPendingDelete, schema.Name, id)
		}
		if err := s.checkID(entity, schema, id); err != nil {
			return err
		}
		s.remember(entity, id)
		if err := validate(entity, v, schema); err != nil {
			return err
		}
		if existing != nil {
			existing.op = OpUpdate
			return nil
		}
	case OpDelete:
		if existing != nil && existing.op == OpInsert {
			s.unstage(existing)
			s.log.Debug("pending insert cancelled", "table", schema.Table)
			return nil
		}
		if id == 0 {
			return fmt.Errorf("%w: %s has no id", ErrNotPersisted, schema.Name)
		}
		if err := s.checkID(entity, schema, id); err != nil {
			return err
		}
		s.remember(entity, id)
		if existing != nil {
			existing.op = OpDelete
			return nil
		}
	default:
		return fmt.Errorf("cannot stage %s", op)
	}

	c := &change{op: op, entity: entity, value: v, schema: schema}
	s.pending = append(s.pending, c)
	s.staged[entity] = c
	s.log.Debug("staged", "op", op.String(), "table", schema.Table, "id", id)
	return nil
}

func (s *Session) unstage(c *change) {
	for i, p := range s.pending {
		if p == c {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	delete(s.staged, c.entity)
}

func (s *Session) stageBulkDelete(schema *core.Schema, where *core.QueryBuilder, count int64) {
	s.pending = append(s.pending, &change{op: opDeleteAll, schema: schema, where: where, count: count})
	s.log.Debug("staged", "op", opDeleteAll.String(), "table", schema.Table, "rows", count)
}

// remember pins the id an entity had when it was first staged. Rows read by
// queries are not recorded until then, so the session only holds on to
// entities it was asked to change.
func (s *Session) remember(entity interface{}, id int64) {
	if _, ok := s.known[entity]; !ok {
		s.known[entity] = id
	}
}

// Tracked returns how many entities the session holds identity for.
func (s *Session) Tracked() int { return len(s.known) }

// State reports where entity is in its lifecycle.
func (s *Session) State(entity interface{}) State {
	v, schema, err := inspect(entity)
	if err != nil {
		return StateTransient
	}
	if _, ok := s.staged[entity]; ok {
		return StatePending
	}
	if s.deleted[entity] {
		return StateDeleted
	}
	if _, ok := s.known[entity]; ok || schema.ID(v) != 0 {
		return StatePersisted
	}
	return StateTransient
}

// Rollback discards every staged change. In-memory field values are left as they are.
func (s *Session) Rollback() {
	if len(s.pending) > 0 {
		s.log.Info("session rolled back", "discarded", len(s.pending))
	}
	s.pending = nil
	s.staged = map[interface{}]*change{}
}

// Commit applies every staged change in one transaction. On success generated
// ids are written back into the inserted entities and the pending set is
// cleared. On failure the transaction is rolled back, ids assigned during the
// attempt are reset, the pending set is kept and a *CommitError is returned.
func (s *Session) Commit(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	tx, err := s.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return &CommitError{Err: fmt.Errorf("begin: %w", err)}
	}

	for _, c := range s.pending {
		if err := s.flush(ctx, tx, c); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.log.Error("rollback failed", "err", rbErr)
			}
			s.revert()
			s.log.Warn("commit failed", "op", c.op.String(), "table", c.schema.Table, "err", err)
			return &CommitError{Op: c.op, Table: c.schema.Table, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		s.revert()
		return &CommitError{Err: fmt.Errorf("commit transaction: %w", err)}
	}

	for _, c := range s.pending {
		switch c.op {
		case OpInsert, OpUpdate:
			s.known[c.entity] = c.schema.ID(c.value)
			delete(s.deleted, c.entity)
		case OpDelete:
			s.deleted[c.entity] = true
		case opDeleteAll:
			if !c.where.Filtered() && !c.where.Limited() {
				s.markDeleted(c.schema)
			}
		}
	}
	n := len(s.pending)
	s.pending = nil
	s.staged = map[interface{}]*change{}
	s.log.Info("session committed", "changes", n)
	return nil
}

// revert resets ids written into entities whose insert was rolled back.
func (s *Session) revert() {
	for _, c := range s.pending {
		if c.op == OpInsert {
			c.schema.SetID(c.value, 0)
		}
	}
}

// markDeleted marks every known entity of schema's type as deleted after an
// unfiltered bulk delete.
func (s *Session) markDeleted(schema *core.Schema) {
	for e := range s.known {
		if reflect.TypeOf(e).Elem() == schema.Type {
			s.deleted[e] = true
		}
	}
}

func (s *Session) flush(ctx context.Context, tx *sqlx.Tx, c *change) error {
	hooks := s.db.hooks
	switch c.op {
	case OpInsert:
		if err := plugin.Dispatch(ctx, hooks, plugin.BeforeCreate, c.entity); err != nil {
			return err
		}
		if err := validate(c.entity, c.value, c.schema); err != nil {
			return err
		}
		id, err := s.insert(ctx, tx, c)
		if err != nil {
			return classify(err)
		}
		c.schema.SetID(c.value, id)
		return plugin.Dispatch(ctx, hooks, plugin.AfterCreate, c.entity)

	case OpUpdate:
		if err := plugin.Dispatch(ctx, hooks, plugin.BeforeUpdate, c.entity); err != nil {
			return err
		}
		if err := validate(c.entity, c.value, c.schema); err != nil {
			return err
		}
		id := c.schema.ID(c.value)
		cols, args := c.schema.Values(c.value)
		args = append(args, id)
		res, err := tx.ExecContext(ctx, tx.Rebind(core.UpdateSQL(c.schema.Table, cols, c.schema.PK.Name)), args...)
		if err != nil {
			return classify(err)
		}
		if err := expectRow(res, c.schema, id); err != nil {
			return err
		}
		return plugin.Dispatch(ctx, hooks, plugin.AfterUpdate, c.entity)

	case OpDelete:
		if err := plugin.Dispatch(ctx, hooks, plugin.BeforeDelete, c.entity); err != nil {
			return err
		}
		id := c.schema.ID(c.value)
		res, err := tx.ExecContext(ctx, tx.Rebind(core.DeleteSQL(c.schema.Table, c.schema.PK.Name)), id)
		if err != nil {
			return err
		}
		if err := expectRow(res, c.schema, id); err != nil {
			return err
		}
		return plugin.Dispatch(ctx, hooks, plugin.AfterDelete, c.entity)

	case opDeleteAll:
		query, args := c.where.BuildDelete(c.schema.PK.Name)
		res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n != c.count {
			s.log.Debug("bulk delete row count changed since staging", "table", c.schema.Table, "staged", c.count, "deleted", n)
		}
		return nil
	}
	return fmt.Errorf("cannot flush %s", c.op)
}

func (s *Session) insert(ctx context.Context, tx *sqlx.Tx, c *change) (int64, error) {
	cols, args := c.schema.Values(c.value)
	if s.db.returning() {
		var id int64
		query := core.InsertSQL(c.schema.Table, cols, c.schema.PK.Name)
		err := tx.QueryRowxContext(ctx, tx.Rebind(query), args...).Scan(&id)
		return id, err
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(core.InsertSQL(c.schema.Table, cols, "")), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func expectRow(res rowsAffected, schema *core.Schema, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d", ErrStale, schema.Name, id)
	}
	return nil
}

func classify(err error) error {
	switch {
	case runtime.IsUniqueViolation(err):
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	case runtime.IsNotNullViolation(err):
		return fmt.Errorf("%w: %w", ErrMissingField, err)
	}
	return err
}

package plugin

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	Nop
	events []string
	fail   Event
}

func (r *recorder) BeforeCreate(ctx context.Context, e interface{}) error {
	r.events = append(r.events, "before_create")
	if r.fail == BeforeCreate {
		return errors.New("rejected")
	}
	return nil
}

func (r *recorder) AfterDelete(ctx context.Context, e interface{}) error {
	r.events = append(r.events, "after_delete")
	return nil
}

func TestChain_StopsAtFirstError(t *testing.T) {
	first := &recorder{fail: BeforeCreate}
	second := &recorder{fail: -1}
	chain := Chain{first, second}

	err := chain.BeforeCreate(context.Background(), "x")
	require.EqualError(t, err, "rejected")
	assert.Equal(t, []string{"before_create"}, first.events)
	assert.Empty(t, second.events)

	require.NoError(t, chain.AfterDelete(context.Background(), "x"))
	assert.Equal(t, []string{"after_delete"}, second.events)
}

func TestDispatch_NopNeverFails(t *testing.T) {
	for ev := BeforeCreate; ev <= AfterDelete; ev++ {
		assert.NoError(t, Dispatch(context.Background(), Nop{}, ev, nil), ev.String())
	}
	assert.Equal(t, "unknown", Event(42).String())
}

func TestLogger_WritesDebugRecords(t *testing.T) {
	var buf bytes.Buffer
	lg := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	require.NoError(t, Logger{Log: lg}.AfterUpdate(context.Background(), "pet"))
	assert.Contains(t, buf.String(), "event=after_update")
	assert.Contains(t, buf.String(), "entity=pet")
}

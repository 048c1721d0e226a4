package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskmirror/internal/target"
	"github.com/kazz187/taskmirror/internal/task"
	"github.com/kazz187/taskmirror/pkg/cerr"
)

type links map[string]string

func (l links) Lookup(id string) (string, bool) {
	v, ok := l[id]
	return v, ok
}

type fakeWriter struct {
	mu       sync.Mutex
	created  []*target.Payload
	updated  map[string]*target.Payload
	failFor  map[string]error
	panicFor string
	delay    time.Duration
	active   atomic.Int32
	peak     atomic.Int32
}

func (f *fakeWriter) enter() func() {
	n := f.active.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return func() { f.active.Add(-1) }
}

func (f *fakeWriter) CreateTask(ctx context.Context, p *target.Payload) (*target.Task, error) {
	defer f.enter()()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, cerr.WrapTransportError("create", ctx.Err())
		}
	}
	if p.Name == f.panicFor {
		panic("boom")
	}
	if err := f.failFor[p.Name]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, p)
	return &target.Task{ID: fmt.Sprintf("T-%s", p.Name)}, nil
}

func (f *fakeWriter) UpdateTask(_ context.Context, id string, p *target.Payload) error {
	defer f.enter()()
	if err := f.failFor[p.Name]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updated == nil {
		f.updated = make(map[string]*target.Payload)
	}
	f.updated[id] = p
	return nil
}

func rec(id string) *task.Normalized {
	return &task.Normalized{SourceID: id, Title: id, Description: "body of " + id}
}

func TestDispatch_CreateOnMiss(t *testing.T) {
	w := &fakeWriter{}
	d := New(links{}, w, Config{})

	outcomes := d.Dispatch(context.Background(), []*task.Normalized{rec("a")})
	require.Len(t, outcomes, 1)
	assert.Equal(t, Outcome{SourceID: "a", Kind: KindCreated, TargetID: "T-a"}, outcomes[0])
	require.Len(t, w.created, 1)
	assert.Equal(t, "[SRC:a]\n\nbody of a", w.created[0].Description)
}

func TestDispatch_UpdateOnHit(t *testing.T) {
	w := &fakeWriter{}
	d := New(links{"a": "T-1"}, w, Config{})

	outcomes := d.Dispatch(context.Background(), []*task.Normalized{rec("a")})
	require.Len(t, outcomes, 1)
	assert.Equal(t, KindUpdated, outcomes[0].Kind)
	assert.Equal(t, "T-1", outcomes[0].TargetID)
	assert.Empty(t, w.created)
	require.Contains(t, w.updated, "T-1")
	assert.Equal(t, "body of a", w.updated["T-1"].Description, "update payload keeps the undecorated description")
}

func TestDispatch_FailuresAreIsolated(t *testing.T) {
	w := &fakeWriter{
		failFor:  map[string]error{"b": cerr.NewError(cerr.Unavailable, "down", errors.New("503"))},
		panicFor: "c",
	}
	d := New(links{}, w, Config{Workers: 2})

	outcomes := d.Dispatch(context.Background(), []*task.Normalized{rec("a"), rec("b"), rec("c"), rec("d")})
	require.Len(t, outcomes, 4)

	tests := []struct {
		id   string
		kind Kind
		code cerr.Code
	}{
		{id: "a", kind: KindCreated},
		{id: "b", kind: KindFailed, code: cerr.Unavailable},
		{id: "c", kind: KindFailed, code: cerr.Internal},
		{id: "d", kind: KindCreated},
	}
	for i, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.id, outcomes[i].SourceID)
			assert.Equal(t, tt.kind, outcomes[i].Kind)
			if tt.kind == KindFailed {
				assert.True(t, cerr.IsCode(outcomes[i].Err, tt.code), "got %v", outcomes[i].Err)
			}
		})
	}
}

func TestDispatch_BoundedWorkers(t *testing.T) {
	w := &fakeWriter{delay: 20 * time.Millisecond}
	d := New(links{}, w, Config{Workers: 3})

	var records []*task.Normalized
	for i := range 12 {
		records = append(records, rec(fmt.Sprintf("r%d", i)))
	}
	outcomes := d.Dispatch(context.Background(), records)
	for _, o := range outcomes {
		assert.Equal(t, KindCreated, o.Kind)
	}
	assert.LessOrEqual(t, w.peak.Load(), int32(3))
	assert.Len(t, w.created, 12)
}

func TestDispatch_RequestTimeout(t *testing.T) {
	w := &fakeWriter{delay: time.Second}
	d := New(links{}, w, Config{RequestTimeout: 20 * time.Millisecond})

	outcomes := d.Dispatch(context.Background(), []*task.Normalized{rec("slow")})
	require.Len(t, outcomes, 1)
	assert.Equal(t, KindFailed, outcomes[0].Kind)
	assert.True(t, cerr.IsCode(outcomes[0].Err, cerr.DeadlineExceeded))
}

func TestDispatch_Empty(t *testing.T) {
	d := New(links{}, &fakeWriter{}, Config{})
	assert.Empty(t, d.Dispatch(context.Background(), nil))
}

package lifecycle

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) get() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func TestParseState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    State
		wantErr bool
	}{
		{input: "active", want: StateActive},
		{input: "background", want: StateBackground},
		{input: "inactive", want: StateInactive},
		{input: "Active", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseState(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBroadcaster_NotifiesOnlyOnChange(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(StateActive)
	rec := &recorder{}
	b.Subscribe(rec.record)

	b.Set(StateActive)
	b.Set(StateBackground)
	b.Set(StateBackground)
	b.Set(StateActive)

	assert.Equal(t, []State{StateBackground, StateActive}, rec.get())
	assert.Equal(t, StateActive, b.State())
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(StateBackground)
	first := &recorder{}
	second := &recorder{}
	sub := b.Subscribe(first.record)
	b.Subscribe(second.record)
	require.Equal(t, 2, b.Subscribers())

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	assert.Equal(t, 1, b.Subscribers())

	b.Set(StateActive)
	assert.Empty(t, first.get())
	assert.Equal(t, []State{StateActive}, second.get())
}

func TestBroadcaster_ListenerMayUnsubscribe(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(StateBackground)
	var sub Subscription
	calls := 0
	sub = b.Subscribe(func(State) {
		calls++
		b.Unsubscribe(sub)
	})

	b.Set(StateActive)
	b.Set(StateBackground)
	assert.Equal(t, 1, calls)
}

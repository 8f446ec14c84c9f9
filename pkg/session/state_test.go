package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nearbeam/nearbeam/pkg/errs"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from State
		to   State
		ok   bool
	}{
		// Happy path, sender side.
		{Idle{}, Discovering{}, true},
		{Discovering{}, DevicesFound{}, true},
		{DevicesFound{}, Connecting{}, true},
		{Connecting{}, Connected{}, true},
		{Connected{}, Transferring{}, true},
		{Transferring{}, Completed{}, true},

		// Happy path, receiver side skips the device list.
		{Discovering{}, Connected{}, true},

		// Progress updates and re-emitted device lists.
		{Transferring{}, Transferring{}, true},
		{DevicesFound{}, DevicesFound{}, true},

		// Pause is only reachable from an active transfer.
		{Transferring{}, Paused{}, true},
		{Paused{}, Transferring{}, true},
		{Connected{}, Paused{}, false},
		{Paused{}, Completed{}, false},

		// Cancel is reachable from every non-terminal state.
		{Idle{}, Cancelled{}, true},
		{Discovering{}, Cancelled{}, true},
		{Transferring{}, Cancelled{}, true},
		{Paused{}, Cancelled{}, true},
		{Completed{}, Cancelled{}, false},
		{Failed{}, Cancelled{}, false},
		{Cancelled{}, Cancelled{}, false},

		// Teardown back to Idle from any non-terminal state.
		{Connected{}, Idle{}, true},
		{Transferring{}, Idle{}, true},
		{Completed{}, Idle{}, false},

		// Terminal states only re-enter Discovering (retry).
		{Completed{}, Discovering{}, true},
		{Failed{}, Discovering{}, true},
		{Cancelled{}, Discovering{}, true},
		{Failed{}, Connected{}, false},
		{Completed{}, Transferring{}, false},

		// An inbound batch can complete without framing a single file.
		{Connected{}, Completed{}, true},

		// Assorted invalid jumps.
		{Idle{}, Transferring{}, false},
		{Idle{}, Connected{}, false},
		{Discovering{}, Connecting{}, false},
		{Connecting{}, Transferring{}, false},

		// Failure is reachable from every non-terminal state, including
		// Idle: transport selection and permission checks run before
		// discovery starts.
		{Idle{}, Failed{}, true},
		{Discovering{}, Failed{}, true},
		{DevicesFound{}, Failed{}, true},
		{Connecting{}, Failed{}, true},
		{Connected{}, Failed{}, true},
		{Transferring{}, Failed{}, true},
		{Paused{}, Failed{}, true},
		{Completed{}, Failed{}, false},

		// A lost connection attempt may fall back to the device list.
		{Connecting{}, DevicesFound{}, true},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("%s->%s", tt.from.Name(), tt.to.Name())
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.ok, canTransition(tt.from, tt.to))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, isTerminal(Completed{}))
	assert.True(t, isTerminal(Failed{Err: errs.New(errs.Timeout, "x")}))
	assert.True(t, isTerminal(Cancelled{}))

	assert.False(t, isTerminal(Idle{}))
	assert.False(t, isTerminal(Discovering{}))
	assert.False(t, isTerminal(Transferring{}))
	assert.False(t, isTerminal(Paused{}))
}

func TestStateNames(t *testing.T) {
	states := []State{
		Idle{}, Discovering{}, DevicesFound{}, Connecting{}, Connected{},
		Transferring{}, Completed{}, Failed{}, Cancelled{}, Paused{},
	}
	seen := make(map[string]bool)
	for _, s := range states {
		assert.NotEmpty(t, s.Name())
		assert.False(t, seen[s.Name()], "duplicate state name %q", s.Name())
		seen[s.Name()] = true
	}
}

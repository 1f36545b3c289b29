package orders

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
		actors   []Actor
		release  bool
	}{
		{StatusPending, StatusAccepted, true, []Actor{ActorSeller}, false},
		{StatusPending, StatusCancelled, true, []Actor{ActorBuyer, ActorSeller}, true},
		{StatusAccepted, StatusShipped, true, []Actor{ActorSeller}, false},
		{StatusShipped, StatusDelivered, true, []Actor{ActorSeller}, false},
		{StatusAccepted, StatusCancelled, false, nil, false},
		{StatusPending, StatusDelivered, false, nil, false},
		{StatusDelivered, StatusPending, false, nil, false},
		{StatusCancelled, StatusPending, false, nil, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			e, ok := Lookup(tt.from, tt.to)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to))
			if !ok {
				return
			}
			assert.ElementsMatch(t, tt.actors, e.Actors)
			assert.Equal(t, tt.release, e.ReleasesStock)
		})
	}
}

func TestEdgeAllows(t *testing.T) {
	e, ok := Lookup(StatusPending, StatusAccepted)
	require.True(t, ok)
	assert.True(t, e.Allows(ActorSeller))
	assert.False(t, e.Allows(ActorBuyer))
}

func TestTerminalAndNext(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, Status("lost").Valid())
	assert.False(t, Status("lost").Terminal())

	assert.Equal(t, []Status{StatusAccepted, StatusCancelled}, NextStates(StatusPending))
	assert.Empty(t, NextStates(StatusDelivered))
}

func TestKind(t *testing.T) {
	tests := map[string]error{
		"":                   nil,
		"validation":         Validationf("qty %d", 0),
		"not_found":          NotFoundf("book %s", "b1"),
		"insufficient_stock": fmt.Errorf("line: %w", &InsufficientStockError{BookID: "b1", Requested: 2, Available: 1}),
		"invalid_transition": &InvalidTransitionError{OrderID: "o1", Current: StatusDelivered, Target: StatusPending},
		"authorization":      ErrAuthorization,
		"conflict":           ErrConflict,
		"internal":           errors.New("boom"),
	}
	for want, err := range tests {
		assert.Equal(t, want, Kind(err), "%v", err)
	}
}

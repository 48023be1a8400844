package action

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/pagekit/pkg/backend/mock"
	"github.com/devicelab-dev/pagekit/pkg/core"
)

func TestPinchPaths(t *testing.T) {
	r := core.Bounds{X: 0, Y: 0, Width: 200, Height: 100}

	f1, f2 := PinchPaths(r, 2)
	assert.Equal(t, [2]core.Point{{X: 88, Y: 38}, {X: 50, Y: 0}}, f1)
	assert.Equal(t, [2]core.Point{{X: 112, Y: 62}, {X: 150, Y: 100}}, f2)

	f1, f2 = PinchPaths(r, 0.5)
	assert.Equal(t, [2]core.Point{{X: 50, Y: 0}, {X: 88, Y: 38}}, f1)
	assert.Equal(t, [2]core.Point{{X: 150, Y: 100}, {X: 112, Y: 62}}, f2)
}

func TestDispatch_Pinch(t *testing.T) {
	b := mock.New(mock.Config{})
	b.Add("#map", mock.NewElement("").SetBounds(core.Bounds{Width: 200, Height: 100}))

	out := newDispatcher(b).Dispatch(context.Background(), Step{Action: Pinch, Query: q("map"), Scale: 2})
	require.True(t, out.Success, "err: %v", out.Err)

	gestures := b.Gestures()
	require.Len(t, gestures, 1)
	assert.Equal(t, "pinch", gestures[0].Kind)
	assert.Equal(t, core.Point{X: 50, Y: 0}, gestures[0].To)
	assert.Equal(t, core.Point{X: 150, Y: 100}, gestures[0].To2)
	assert.Equal(t, DefaultPinch, gestures[0].Duration)
}

func TestDispatch_PinchRejectsScale(t *testing.T) {
	b := mock.New(mock.Config{})
	b.Add("#map", mock.NewElement(""))

	out := newDispatcher(b).Dispatch(context.Background(), Step{Action: Pinch, Query: q("map")})
	require.False(t, out.Success)
	assert.ErrorIs(t, out.Err, core.ErrInvalidArgument)
	assert.Empty(t, b.Gestures())
}

func TestDispatch_PinchUnsupported(t *testing.T) {
	b := mock.New(mock.Config{})
	b.Add("#map", mock.NewElement(""))

	out := newDispatcher(mock.WithoutGestures(b)).Dispatch(context.Background(), Step{Action: Pinch, Query: q("map"), Scale: 2})
	require.False(t, out.Success)
	assert.ErrorIs(t, out.Err, core.ErrUnsupportedAction)
}

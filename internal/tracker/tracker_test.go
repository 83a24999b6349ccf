package tracker

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/andresmejia3/roitrack/internal/types"
)

type stubTracker struct {
	name    Kind
	inits   int
	result  types.ROI
	ok      bool
	initErr error
}

func (s *stubTracker) Init(types.Frame, types.ROI) error { s.inits++; return s.initErr }
func (s *stubTracker) Update(types.Frame) (types.ROI, bool) {
	return s.result, s.ok
}
func (s *stubTracker) Close() error { return nil }

func ctorFor(kind Kind) Constructor {
	return func() (Tracker, error) { return &stubTracker{name: kind}, nil }
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{in: "KCF", want: KCF},
		{in: "kcf", want: KCF},
		{in: " medianflow ", want: MedianFlow},
		{in: "GoTuRn", want: GOTURN},
		{in: "boosting", want: Boosting},
		{in: "KCL", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnknownKind))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveFallsBackToDefault(t *testing.T) {
	k, fellBack := Resolve("")
	assert.Equal(t, DefaultKind, k)
	assert.False(t, fellBack)

	k, fellBack = Resolve("KCL")
	assert.Equal(t, DefaultKind, k)
	assert.True(t, fellBack)

	k, fellBack = Resolve("mil")
	assert.Equal(t, MIL, k)
	assert.False(t, fellBack)
}

func TestRegistryNew(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	reg := NewRegistry(zap.New(core).Sugar())
	reg.Register(KCF, ctorFor(KCF))
	reg.Register(MIL, ctorFor(MIL))

	_, built, err := reg.New(MIL)
	require.NoError(t, err)
	assert.Equal(t, MIL, built)
	assert.Zero(t, logs.Len())

	// Every kind maps to an engine; missing ones use the default with a warning.
	for _, k := range Kinds {
		tr, built, err := reg.New(k)
		require.NoError(t, err, k)
		require.NotNil(t, tr)
		if k != MIL && k != KCF {
			assert.Equal(t, DefaultKind, built)
		}
	}
	assert.Equal(t, len(Kinds)-2, logs.FilterMessage("tracker not available in this build, using default").Len())
	assert.Equal(t, []Kind{KCF, MIL}, reg.Available())
}

func TestRegistryWithoutDefault(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(MIL, ctorFor(MIL))

	_, _, err := reg.New(TLD)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoTracker))
}

func TestRegistryConstructorError(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(KCF, func() (Tracker, error) { return nil, errors.New("opencv missing") })

	_, _, err := reg.New(KCF)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opencv missing")
}

func TestGuardWrapsEngineInitErrors(t *testing.T) {
	roi := types.ROI{Width: 5, Height: 5}

	g := Guard(&stubTracker{initErr: errors.New("model file missing")})
	err := g.Init(types.Frame{}, roi)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInitFailed))
	assert.Contains(t, err.Error(), "model file missing")
	assert.Panics(t, func() { g.Update(types.Frame{}) }, "a failed Init leaves the tracker uninitialized")

	already := errors.Wrap(ErrInitFailed, "opencv rejected roi")
	err = Guard(&stubTracker{initErr: already}).Init(types.Frame{}, roi)
	assert.Equal(t, already, err)
}

func TestGuard(t *testing.T) {
	stub := &stubTracker{result: types.ROI{X: 1, Y: 1, Width: 5, Height: 5}, ok: true}
	g := Guard(stub)
	assert.Same(t, g, Guard(g))

	assert.Panics(t, func() { g.Update(types.Frame{}) })

	err := g.Init(types.Frame{}, types.NullROI)
	assert.True(t, errors.Is(err, ErrInitFailed))

	require.NoError(t, g.Init(types.Frame{}, types.ROI{Width: 5, Height: 5}))
	assert.Error(t, g.Init(types.Frame{}, types.ROI{Width: 5, Height: 5}))
	assert.Equal(t, 1, stub.inits)

	roi, ok := g.Update(types.Frame{Index: 1})
	assert.True(t, ok)
	assert.Equal(t, stub.result, roi)

	// A "successful" update with an empty box counts as a loss.
	stub.result = types.ROI{X: 3, Y: 3}
	roi, ok = g.Update(types.Frame{Index: 2})
	assert.False(t, ok)
	assert.True(t, roi.IsNull())

	stub.ok = false
	stub.result = types.ROI{X: 9, Y: 9, Width: 9, Height: 9}
	roi, ok = g.Update(types.Frame{Index: 3})
	assert.False(t, ok)
	assert.True(t, roi.IsNull())
}

package boundary

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/GriffinCanCode/Dashboard/backend/internal/engine/guard"
	"github.com/GriffinCanCode/Dashboard/backend/internal/engine/loader"
	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	vm := goja.New()
	_, jsErr := vm.RunString(`throw new Error("boom")`)
	require.Error(t, jsErr)

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"compile", &loader.CompileError{Message: "Unexpected token"}, KindCompile},
		{"wrapped compile", fmt.Errorf("load: %w", &loader.CompileError{Message: "x"}), KindCompile},
		{"render loop", &guard.RenderLoopError{Count: 171, Threshold: 170, Window: time.Second}, KindRenderLoop},
		{"script exception", jsErr, KindRuntime},
		{"plain", errors.New("nope"), KindRuntime},
		{"panic", &PanicError{Value: "bad"}, KindRuntime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassifyInterrupt(t *testing.T) {
	vm := goja.New()
	time.AfterFunc(20*time.Millisecond, func() { vm.Interrupt("execution timeout") })
	_, err := vm.RunString(`for (;;) {}`)
	require.Error(t, err)

	assert.Equal(t, KindTimeout, Classify(err))
	assert.Contains(t, Message(err), "execution timeout")
}

func TestMessage(t *testing.T) {
	vm := goja.New()

	_, err := vm.RunString(`throw new Error("boom")`)
	assert.Equal(t, "boom", Message(err))

	_, err = vm.RunString(`throw "plain string"`)
	assert.Equal(t, "plain string", Message(err))

	_, err = vm.RunString(`null.x`)
	assert.Contains(t, Message(err), "Cannot read property")

	assert.Equal(t, "nope", Message(errors.New("nope")))
}

func TestFailAndReset(t *testing.T) {
	var transitions []State
	b := New(OnChange(func(s State, _ Record) { transitions = append(transitions, s) }))

	assert.False(t, b.Reset(""), "same source as initial")
	assert.False(t, b.Reset("A"), "healthy reset is a no-op")
	assert.Equal(t, "A", b.Source())
	assert.Equal(t, Healthy, b.State())

	rec := b.Fail(errors.New("first"))
	assert.True(t, rec.HasError)
	assert.Equal(t, "first", rec.Message)
	assert.Equal(t, KindRuntime, rec.Kind)
	assert.True(t, b.Crashed())

	// A second failure keeps the first record.
	b.Fail(errors.New("second"))
	assert.Equal(t, "first", b.Record().Message)

	// Same source does not clear.
	assert.False(t, b.Reset("A"))
	assert.True(t, b.Crashed())

	// New source clears, and a new failure carries the new message.
	assert.True(t, b.Reset("B"))
	assert.Equal(t, Record{}, b.Record())
	b.Fail(errors.New("third"))
	assert.Equal(t, "third", b.Record().Message)

	assert.Equal(t, []State{Crashed, Healthy, Crashed}, transitions)
}

func TestGuardStep(t *testing.T) {
	b := New()
	assert.NoError(t, b.Guard(func() error { return nil }))
	assert.False(t, b.Crashed())

	err := b.Guard(func() error { panic("kaboom") })
	var perr *PanicError
	require.True(t, errors.As(err, &perr))
	assert.NotEmpty(t, perr.Stack)
	assert.True(t, b.Crashed())
	assert.Equal(t, "panic: kaboom", b.Record().Message)
}

func TestGuardStepReturnsError(t *testing.T) {
	b := New()
	err := b.Guard(func() error { return &guard.RenderLoopError{Count: 2, Threshold: 1, Window: time.Second} })
	require.Error(t, err)
	assert.Equal(t, KindRenderLoop, b.Record().Kind)
}

func TestContain(t *testing.T) {
	out := Contain(func() string { panic("fallback broke") }, "minimal")
	assert.Equal(t, "minimal", out)
	assert.Equal(t, "ok", Contain(func() string { return "ok" }, "minimal"))
}

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "compile", KindCompile.String())
	assert.Equal(t, "render_loop", KindRenderLoop.String())
	assert.Equal(t, "runtime", KindRuntime.String())
	assert.Equal(t, "timeout", KindTimeout.String())
	assert.Equal(t, "none", KindNone.String())
	assert.Equal(t, "crashed", Crashed.String())
}

package sandbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const counter = `
	const [count, setCount] = useState(0);
	return host.el('div', null,
		host.el('span', { id: 'count' }, count),
		host.el('button', { onClick: () => setCount(c => c + 1) }, '+'),
		host.el('input', { value: count, onChange: (e) => setCount(Number(e.target.value)) }));
`

func TestDispatchUpdatesState(t *testing.T) {
	inst := newInstance(t, counter)
	ctx := context.Background()

	v := inst.View()
	require.Equal(t, []string{"h0", "h1"}, v.Handlers)
	assert.Equal(t, "h0", body(t, v).Find("button").AttrOr("data-on-click", ""))
	assert.Equal(t, "h1", body(t, v).Find("input").AttrOr("data-on-change", ""))

	v, err := inst.Dispatch(ctx, "h0", nil)
	require.NoError(t, err)
	assert.Equal(t, "1", body(t, v).Find("#count").Text())

	v, err = inst.Dispatch(ctx, "h1", "41")
	require.NoError(t, err)
	assert.Equal(t, "41", body(t, v).Find("#count").Text())

	_, err = inst.Dispatch(ctx, "h99", nil)
	assert.ErrorIs(t, err, ErrUnknownHandler)
}

func TestHandlerErrorCrashes(t *testing.T) {
	inst := newInstance(t, `return host.el('button', { onClick: () => { throw new Error('clicked') } }, 'x');`)
	v, err := inst.Dispatch(context.Background(), "h0", nil)
	require.NoError(t, err)
	assert.True(t, v.Crashed)
	assert.Equal(t, "clicked", v.Error)

	_, err = inst.Dispatch(context.Background(), "h0", nil)
	assert.ErrorIs(t, err, ErrUnknownHandler, "a crashed widget has no handlers")
}

func TestSameStateSkipsRender(t *testing.T) {
	inst := newInstance(t, `
		const [v, setV] = useState('same');
		return host.el('button', { onClick: () => setV('same') }, v);`)
	before := inst.View().Renders

	v, err := inst.Dispatch(context.Background(), "h0", nil)
	require.NoError(t, err)
	assert.Equal(t, before, v.Renders)
}

func TestEffectsAndCleanup(t *testing.T) {
	inst := newInstance(t, `
		const [n, setN] = useState(0);
		useEffect(() => {
			console.log('effect', props.width);
			return () => console.log('cleanup', props.width);
		}, [props.width]);
		useEffect(() => { if (n === 0) setN(1); }, []);
		return host.text('n=' + n);`)
	ctx := context.Background()

	v := inst.View()
	assert.Equal(t, "n=1", v.Text)

	_, err := inst.Resize(ctx, 43, 10)
	require.NoError(t, err)
	_, err = inst.Resize(ctx, 43, 10)
	require.NoError(t, err)

	_, err = inst.SetCode(ctx, "return null;")
	require.NoError(t, err)

	var lines []string
	for _, e := range inst.View().Console {
		lines = append(lines, e.Message)
	}
	assert.Equal(t, []string{"effect 42", "cleanup 42", "effect 43", "cleanup 43"}, lines)
}

func TestRefAndMemo(t *testing.T) {
	inst := newInstance(t, `
		const renders = useRef(0);
		renders.current++;
		const doubled = useMemo(() => { console.log('memo'); return props.width * 2; }, [props.width]);
		const cb = useCallback(() => doubled, [doubled]);
		return host.text(renders.current + ':' + cb());`)
	ctx := context.Background()

	assert.Equal(t, "1:84", inst.View().Text)
	v, err := inst.Render(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2:84", v.Text)
	v, err = inst.Resize(ctx, 5, 5)
	require.NoError(t, err)
	assert.Equal(t, "3:10", v.Text)
	assert.Len(t, v.Console, 2, "memo recomputes only when deps change")
}

func TestConditionalHookCrashes(t *testing.T) {
	inst := newInstance(t, `
		if (props.width > 50) { useState(1); }
		const [a] = useState('a');
		return host.text(a);`)
	require.False(t, inst.View().Crashed)

	v, err := inst.Resize(context.Background(), 100, 1)
	require.NoError(t, err)
	assert.True(t, v.Crashed)
	assert.Equal(t, "runtime", v.Kind)
}

func TestHookOutsideRender(t *testing.T) {
	inst := newInstance(t, `
		useEffect(() => { useState(0); }, []);
		return null;`)
	v := inst.View()
	require.True(t, v.Crashed)
	assert.Contains(t, v.Error, "can only be called while the widget renders")
}

func TestTimersDriveRenders(t *testing.T) {
	inst := newInstance(t, `
		const [ticks, setTicks] = useState(0);
		useEffect(() => {
			const id = setInterval(() => setTicks(t => t + 1), 30);
			return () => clearInterval(id);
		}, []);
		return host.text('ticks=' + ticks);`)

	require.Eventually(t, func() bool {
		var n int
		_, _ = fmt.Sscanf(inst.View().Text, "ticks=%d", &n)
		return n >= 3
	}, 3*time.Second, 10*time.Millisecond)
}

func TestTimerErrorCrashes(t *testing.T) {
	inst := newInstance(t, `
		useEffect(() => { setTimeout(() => { throw new Error('late'); }, 1); }, []);
		return host.text('ok');`)

	require.Eventually(t, func() bool {
		return inst.View().Crashed
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "late", inst.View().Error)
}

func TestUnhandledRejectionCrashes(t *testing.T) {
	inst := newInstance(t, `
		useEffect(() => { Promise.reject(new Error('nobody caught me')); }, []);
		return host.text('ok');`)
	v, err := inst.Flush(context.Background())
	require.NoError(t, err)
	require.True(t, v.Crashed)
	assert.Equal(t, "Uncaught (in promise) nobody caught me", v.Error)
}

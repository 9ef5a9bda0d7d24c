package sandbox

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type configSink struct {
	mu    sync.Mutex
	calls []map[string]any
}

func (s *configSink) record(next map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, next)
}

func (s *configSink) all() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.calls...)
}

func TestSetCustomDataReplaces(t *testing.T) {
	sink := &configSink{}
	inst, err := New(testConfig(), Props{
		Code: `
			useEffect(() => { props.setCustomData({ b: 2 }); }, []);
			return host.text(JSON.stringify(props.customData));`,
		CustomData: map[string]any{"a": float64(1)},
	}, WithCallbacks(Callbacks{OnSetCustomData: sink.record}))
	require.NoError(t, err)
	defer inst.Close()

	v := inst.View()
	assert.Equal(t, `{"b":2}`, v.Text)
	assert.Equal(t, []map[string]any{{"b": float64(2)}}, sink.all())

	p, err := inst.Props(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": float64(2)}, p.CustomData)
}

func TestSetCustomDataRejectsNonJSON(t *testing.T) {
	tests := []struct {
		name string
		call string
	}{
		{"cycle", "const o = {}; o.self = o; props.setCustomData(o);"},
		{"number", "props.setCustomData(5);"},
		{"array", "props.setCustomData([1, 2]);"},
		{"string", "props.setCustomData('dark');"},
		{"null", "props.setCustomData(null);"},
		{"undefined", "props.setCustomData(undefined);"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &configSink{}
			inst := newInstance(t, `
				try { `+tt.call+` } catch (e) { return host.text('caught ' + e.name); }
				return host.text('accepted');`,
				WithCallbacks(Callbacks{OnSetCustomData: sink.record}))

			assert.Equal(t, "caught TypeError", inst.View().Text)
			assert.Empty(t, sink.all())
		})
	}
}

func TestCustomDataIdentityStable(t *testing.T) {
	inst := newInstance(t, `
		const [runs, setRuns] = useState(0);
		useEffect(() => { setRuns(r => r + 1); }, [props.customData]);
		return host.text('runs=' + runs);`)
	ctx := context.Background()

	_, err := inst.Resize(ctx, 1, 1)
	require.NoError(t, err)
	v, err := inst.Render(ctx)
	require.NoError(t, err)
	assert.Equal(t, "runs=1", v.Text)

	v, err = inst.SetCustomData(ctx, map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "runs=2", v.Text)
}

func TestHostSetCustomDataVisible(t *testing.T) {
	inst := newInstance(t, `return host.text(props.customData.city || 'none');`)
	assert.Equal(t, "none", inst.View().Text)

	v, err := inst.SetCustomData(context.Background(), map[string]any{"city": "Oslo"})
	require.NoError(t, err)
	assert.Equal(t, "Oslo", v.Text)
}

package widget

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnCodeFileChange(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "clock.widget.yaml")
	codeFile := filepath.Join(dir, "clock.js")
	writeFile(t, manifest, "name: Clock\ncode_file: clock.js\n")
	writeFile(t, codeFile, `throw new Error("typo");`)

	m := newManager(t, NewMemoryStore())
	seeder := NewSeeder(m, dir, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := seeder.Seed(ctx)
	require.NoError(t, err)
	rec, err := m.FindBySource(ctx, manifest)
	require.NoError(t, err)
	v, err := m.View(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, v.Crashed)

	w, err := NewWatcher(seeder, 20*time.Millisecond, nil)
	require.NoError(t, err)
	reloaded := make(chan []string, 4)
	w.reloaded = func(manifests []string) { reloaded <- manifests }
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	writeFile(t, codeFile, "return host.text('fixed');")

	select {
	case got := <-reloaded:
		assert.Equal(t, []string{manifest}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("widget not reloaded")
	}

	v, err = m.View(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, v.Crashed)
	assert.Equal(t, "fixed", v.Text)
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "a.widget.yaml")
	writeFile(t, manifest, "name: A\ncode: \"return host.text('0');\"\n")

	m := newManager(t, NewMemoryStore())
	seeder := NewSeeder(m, dir, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := seeder.Seed(ctx)
	require.NoError(t, err)

	w, err := NewWatcher(seeder, 100*time.Millisecond, nil)
	require.NoError(t, err)
	reloaded := make(chan []string, 8)
	w.reloaded = func(manifests []string) { reloaded <- manifests }
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	for _, n := range []string{"1", "2", "3"} {
		writeFile(t, manifest, "name: A\ncode: \"return host.text('"+n+"');\"\n")
	}

	select {
	case got := <-reloaded:
		assert.Equal(t, []string{manifest}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("widget not reloaded")
	}

	rec, err := m.FindBySource(ctx, manifest)
	require.NoError(t, err)
	v, err := m.View(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "3", v.Text)
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, NewMemoryStore())
	seeder := NewSeeder(m, dir, nil)

	w, err := NewWatcher(seeder, 10*time.Millisecond, nil)
	require.NoError(t, err)
	reloaded := make(chan []string, 1)
	w.reloaded = func(manifests []string) { reloaded <- manifests }
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "readme.md"), "# notes")

	select {
	case got := <-reloaded:
		t.Fatalf("unexpected reload of %v", got)
	case <-time.After(200 * time.Millisecond):
	}
}

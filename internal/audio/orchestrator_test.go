package audio

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

type fakePlayer struct {
	readyGate chan struct{} // when set, Ready blocks until closed

	mu      sync.Mutex
	loaded  []string
	plays   int
	pauses  int
	volume  float64
	loop    bool
	unlocks int
}

func (f *fakePlayer) Load(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = append(f.loaded, url)
}

func (f *fakePlayer) Ready(ctx context.Context) error {
	if f.readyGate != nil {
		select {
		case <-f.readyGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakePlayer) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays++
	return nil
}

func (f *fakePlayer) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
}

func (f *fakePlayer) SetVolume(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = v
}

func (f *fakePlayer) SetLoop(loop bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loop = loop
}

func (f *fakePlayer) Unlock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlocks++
	return nil
}

func (f *fakePlayer) Position() time.Duration { return 0 }
func (f *fakePlayer) Duration() time.Duration { return 0 }

func (f *fakePlayer) playCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plays
}

func newTestOrchestrator(opts Options) (*Orchestrator, *fakePlayer, *fakePlayer) {
	narration := &fakePlayer{}
	ambience := &fakePlayer{}
	return NewOrchestrator(narration, ambience, opts, testLogger()), narration, ambience
}

// waitForPlays blocks until the asynchronous narration start lands.
func waitForPlays(t *testing.T, p *fakePlayer, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return p.playCount() == n },
		2*time.Second, 10*time.Millisecond)
}

func TestClipSuppressedUntilUnlockThenReplayed(t *testing.T) {
	o, narration, _ := newTestOrchestrator(Options{NarrationEnabled: true})

	o.OnClipReady("http://n/clip1.wav")
	assert.Equal(t, 0, narration.playCount())
	assert.False(t, o.Unlocked())

	o.Unlock()
	require.True(t, o.Unlocked())

	// replaying the same clip-ready state now triggers playback
	o.OnClipReady("http://n/clip1.wav")
	waitForPlays(t, narration, 1)
	assert.Equal(t, []string{"http://n/clip1.wav"}, narration.loaded)
}

func TestEnableToggleCountsAsGesture(t *testing.T) {
	o, narration, _ := newTestOrchestrator(Options{NarrationEnabled: false})

	o.OnClipReady("http://n/clip1.wav")
	o.SetNarrationEnabled(true)

	assert.True(t, o.Unlocked())
	assert.Equal(t, 1, narration.playCount())
}

func TestIdenticalPlayingClipIsNotRestarted(t *testing.T) {
	o, narration, _ := newTestOrchestrator(Options{NarrationEnabled: true})
	o.Unlock()

	o.OnClipReady("http://n/clip1.wav")
	waitForPlays(t, narration, 1)
	o.OnClipReady("http://n/clip1.wav")

	assert.Equal(t, 1, narration.playCount())
	assert.Equal(t, []string{"http://n/clip1.wav"}, narration.loaded)
}

func TestNewClipSwitchesPlayback(t *testing.T) {
	o, narration, _ := newTestOrchestrator(Options{NarrationEnabled: true})
	o.Unlock()

	o.OnClipReady("http://n/clip1.wav")
	waitForPlays(t, narration, 1)
	o.OnClipReady("http://n/clip2.wav")
	waitForPlays(t, narration, 2)

	assert.Equal(t, []string{"http://n/clip1.wav", "http://n/clip2.wav"}, narration.loaded)
}

func TestDisableNarrationPausesAndEnableResumesLatest(t *testing.T) {
	o, narration, _ := newTestOrchestrator(Options{NarrationEnabled: true})
	o.Unlock()
	o.OnClipReady("http://n/clip1.wav")
	waitForPlays(t, narration, 1)

	o.SetNarrationEnabled(false)
	assert.Equal(t, 1, narration.pauses)

	o.OnClipReady("http://n/clip2.wav") // arrives while disabled
	assert.Equal(t, 1, narration.playCount())

	o.SetNarrationEnabled(true)
	assert.Equal(t, 2, narration.playCount())
	assert.Equal(t, "http://n/clip2.wav", narration.loaded[len(narration.loaded)-1])
}

func TestClipBufferingDoesNotBlockCaller(t *testing.T) {
	o, narration, _ := newTestOrchestrator(Options{NarrationEnabled: true})
	o.Unlock()
	narration.readyGate = make(chan struct{})

	done := make(chan struct{})
	go func() {
		o.OnClipReady("http://n/slow.wav")
		close(done)
	}()

	// the event loop must keep going while the clip buffers
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnClipReady blocked on the buffering wait")
	}
	assert.Equal(t, 0, narration.playCount())

	close(narration.readyGate)
	waitForPlays(t, narration, 1)
}

func TestSupersededClipIsNotPlayed(t *testing.T) {
	o, narration, _ := newTestOrchestrator(Options{NarrationEnabled: true})
	o.Unlock()
	narration.readyGate = make(chan struct{})

	o.OnClipReady("http://n/clip1.wav")
	o.OnClipReady("http://n/clip2.wav")
	close(narration.readyGate)

	waitForPlays(t, narration, 1)
	assert.Equal(t, "http://n/clip2.wav", o.Snapshot().Narration.URL)
}

func TestUnlockIsMonotonicAndIdempotent(t *testing.T) {
	o, narration, _ := newTestOrchestrator(Options{})
	o.Unlock()
	o.Unlock()
	assert.Equal(t, 1, narration.unlocks)
	assert.True(t, o.Unlocked())
}

func TestPreEnabledAmbienceStartsOnUnlock(t *testing.T) {
	o, _, ambience := newTestOrchestrator(Options{AmbienceVolume: 0.5})

	o.OnAmbienceReady("http://n/forest.wav")
	o.mu.Lock()
	o.ambienceEnabled = true // enabled by boot default, not by gesture
	o.mu.Unlock()
	assert.Equal(t, 0, ambience.playCount())

	o.Unlock()
	assert.Equal(t, 1, ambience.playCount())
	assert.True(t, ambience.loop)
}

func TestAmbienceOnlyRestartsOnChangedURL(t *testing.T) {
	o, _, ambience := newTestOrchestrator(Options{})
	o.SetAmbienceEnabled(true) // gesture, opens the gate

	o.OnAmbienceReady("http://n/forest.wav")
	o.OnAmbienceReady("http://n/forest.wav")
	assert.Equal(t, 1, ambience.playCount())

	o.OnAmbienceReady("http://n/cave.wav")
	assert.Equal(t, 2, ambience.playCount())
}

func TestAmbienceReenableResumesWithoutReload(t *testing.T) {
	o, _, ambience := newTestOrchestrator(Options{})
	o.SetAmbienceEnabled(true) // gesture, opens the gate
	o.OnAmbienceReady("http://n/forest.wav")
	assert.Equal(t, 1, ambience.playCount())

	o.SetAmbienceEnabled(false)
	assert.Equal(t, 1, ambience.pauses)

	o.SetAmbienceEnabled(true)
	assert.Equal(t, 2, ambience.playCount())
	assert.Equal(t, []string{"http://n/forest.wav"}, ambience.loaded)
}

func TestAmbienceReenableWithNewURLReloads(t *testing.T) {
	o, _, ambience := newTestOrchestrator(Options{})
	o.SetAmbienceEnabled(true)
	o.OnAmbienceReady("http://n/forest.wav")

	o.SetAmbienceEnabled(false)
	o.OnAmbienceReady("http://n/cave.wav") // retained, not started

	o.SetAmbienceEnabled(true)
	assert.Equal(t, 2, ambience.playCount())
	assert.Equal(t, []string{"http://n/forest.wav", "http://n/cave.wav"}, ambience.loaded)
}

func TestAmbienceVolumeClampsAndAppliesLive(t *testing.T) {
	o, _, ambience := newTestOrchestrator(Options{AmbienceVolume: 0.5})

	o.SetAmbienceVolume(1.7)
	assert.Equal(t, 1.0, ambience.volume)

	o.SetAmbienceVolume(-0.2)
	assert.Equal(t, 0.0, ambience.volume)

	state := o.Snapshot()
	assert.Equal(t, 0.0, state.Ambience.Volume)
}

func TestSnapshotReflectsChannelState(t *testing.T) {
	o, narration, _ := newTestOrchestrator(Options{NarrationEnabled: true, AmbienceVolume: 0.3})
	o.Unlock()
	o.OnClipReady("http://n/clip1.wav")
	waitForPlays(t, narration, 1)

	state := o.Snapshot()
	assert.True(t, state.Unlocked)
	assert.True(t, state.Narration.Enabled)
	assert.True(t, state.Narration.IsPlaying)
	assert.Equal(t, "http://n/clip1.wav", state.Narration.URL)
	assert.Equal(t, 0.3, state.Ambience.Volume)
}

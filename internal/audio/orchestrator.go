package audio

import (
	"context"
	"sync"
	"time"

	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/models"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/logger"
)

// Options configure orchestrator defaults.
type Options struct {
	// ReadyWait bounds how long a narration clip may buffer before play is
	// issued anyway.
	ReadyWait time.Duration
	// NarrationEnabled is the boot default; it is not a gesture and does not
	// open the unlock gate.
	NarrationEnabled bool
	// AmbienceVolume is the initial ambience gain.
	AmbienceVolume float64
}

// Orchestrator owns the two media channels and the shared unlock gate.
// Playback and unlock failures are swallowed; the worst case is silence, not
// a wedged session.
type Orchestrator struct {
	narration Player
	ambience  Player
	readyWait time.Duration
	log       *logger.Logger

	mu               sync.Mutex
	unlocked         bool
	narrationEnabled bool
	narrationPlaying bool
	latestClip       string
	loadedClip       string
	clipGen          uint64
	ambienceEnabled  bool
	ambienceURL      string
	ambienceLoaded   string
	ambienceVolume   float64
}

// NewOrchestrator wires the two channel players.
func NewOrchestrator(narration, ambience Player, opts Options, log *logger.Logger) *Orchestrator {
	if opts.ReadyWait <= 0 {
		opts.ReadyWait = 2 * time.Second
	}
	ambience.SetLoop(true)
	ambience.SetVolume(opts.AmbienceVolume)
	return &Orchestrator{
		narration:        narration,
		ambience:         ambience,
		readyWait:        opts.ReadyWait,
		log:              log.WithComponent("audio"),
		narrationEnabled: opts.NarrationEnabled,
		ambienceVolume:   opts.AmbienceVolume,
	}
}

// Unlock opens the autoplay gate. The transition is monotonic: once open it
// stays open for the rest of the session, and repeated calls are idempotent.
// A failing unlock primitive still opens the gate; assuming unlocked beats a
// permanently stuck gate in environments lacking the primitive.
func (o *Orchestrator) Unlock() {
	o.mu.Lock()
	if o.unlocked {
		o.mu.Unlock()
		return
	}
	o.unlocked = true
	ambienceEnabled := o.ambienceEnabled
	ambienceURL := o.ambienceURL
	o.mu.Unlock()

	if err := o.narration.Unlock(); err != nil {
		o.log.Warn("narration unlock primitive failed, assuming unlocked", "error", err.Error())
	}
	if err := o.ambience.Unlock(); err != nil {
		o.log.Warn("ambience unlock primitive failed, assuming unlocked", "error", err.Error())
	}

	// Ambience that was enabled before the gate opened starts now.
	if ambienceEnabled && ambienceURL != "" {
		o.startAmbience(ambienceURL)
	}
}

// Unlocked reports the gate state.
func (o *Orchestrator) Unlocked() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.unlocked
}

// OnClipReady records the latest narration clip and, when the channel is
// enabled and the gate is open, switches playback to it. An identical URL
// already loaded is left alone so an in-flight clip is not restarted. The
// buffering wait runs in its own goroutine, so the caller's event loop keeps
// draining while a clip warms up.
func (o *Orchestrator) OnClipReady(url string) {
	if url == "" {
		return
	}

	o.mu.Lock()
	o.latestClip = url
	if !o.narrationEnabled || !o.unlocked {
		o.mu.Unlock()
		return
	}
	if o.loadedClip == url && o.narrationPlaying {
		o.mu.Unlock()
		return
	}
	needLoad := o.loadedClip != url
	o.loadedClip = url
	o.clipGen++
	gen := o.clipGen
	o.mu.Unlock()

	go o.playNarration(url, needLoad, gen)
}

// playNarration buffers (when the source changed) and starts the clip. A
// newer clip bumps clipGen, which cancels any older wait still in flight.
func (o *Orchestrator) playNarration(url string, needLoad bool, gen uint64) {
	if needLoad {
		o.narration.Load(url)

		ctx, cancel := context.WithTimeout(context.Background(), o.readyWait)
		if err := o.narration.Ready(ctx); err != nil {
			// Buffering ceiling elapsed or probe failed: play anyway.
			o.log.Debug("narration ready wait ended early", "url", url, "error", err.Error())
		}
		cancel()
	}

	o.mu.Lock()
	superseded := gen != o.clipGen || !o.narrationEnabled
	o.mu.Unlock()
	if superseded {
		return
	}

	if err := o.narration.Play(); err != nil {
		o.log.Warn("narration playback failed", "url", url, "error", err.Error())
		return
	}
	o.mu.Lock()
	if gen == o.clipGen {
		o.narrationPlaying = true
	}
	o.mu.Unlock()
}

// SetNarrationEnabled toggles the spoken-narration channel. Disabling pauses
// without resetting position; enabling resumes from the last known clip.
// An explicit enable is a user gesture and opens the unlock gate.
func (o *Orchestrator) SetNarrationEnabled(enabled bool) {
	if enabled {
		o.Unlock()
	}

	o.mu.Lock()
	o.narrationEnabled = enabled
	latest := o.latestClip
	loaded := o.loadedClip
	o.mu.Unlock()

	if !enabled {
		o.narration.Pause()
		o.mu.Lock()
		o.narrationPlaying = false
		o.mu.Unlock()
		return
	}

	if latest == "" {
		return
	}
	needLoad := loaded != latest
	o.mu.Lock()
	o.loadedClip = latest
	o.clipGen++
	gen := o.clipGen
	o.mu.Unlock()
	o.playNarration(latest, needLoad, gen)
}

// OnAmbienceReady records the ambience track. While the channel is enabled
// (and the gate open) a changed URL reloads and restarts playback; while
// disabled the source is only retained for quick resume.
func (o *Orchestrator) OnAmbienceReady(url string) {
	if url == "" {
		return
	}

	o.mu.Lock()
	changed := o.ambienceURL != url
	o.ambienceURL = url
	enabled := o.ambienceEnabled
	unlocked := o.unlocked
	o.mu.Unlock()

	if enabled && unlocked && changed {
		o.startAmbience(url)
	}
}

// SetAmbienceEnabled toggles the looping background channel. Disabling only
// pauses; the source stays loaded, so re-enabling the same track resumes
// where it paused instead of reloading. An explicit enable is a user gesture
// and opens the unlock gate.
func (o *Orchestrator) SetAmbienceEnabled(enabled bool) {
	if enabled {
		o.Unlock()
	}

	o.mu.Lock()
	o.ambienceEnabled = enabled
	url := o.ambienceURL
	loaded := o.ambienceLoaded
	unlocked := o.unlocked
	o.mu.Unlock()

	if !enabled {
		o.ambience.Pause()
		return
	}
	if url == "" || !unlocked {
		return
	}
	if url == loaded {
		if err := o.ambience.Play(); err != nil {
			o.log.Warn("ambience resume failed", "url", url, "error", err.Error())
		}
		return
	}
	o.startAmbience(url)
}

// SetAmbienceVolume applies a [0,1] gain immediately to the live channel.
func (o *Orchestrator) SetAmbienceVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	o.mu.Lock()
	o.ambienceVolume = v
	o.mu.Unlock()
	o.ambience.SetVolume(v)
}

func (o *Orchestrator) startAmbience(url string) {
	o.mu.Lock()
	o.ambienceLoaded = url
	o.mu.Unlock()
	o.ambience.Load(url)
	o.ambience.SetLoop(true)
	if err := o.ambience.Play(); err != nil {
		o.log.Warn("ambience playback failed", "url", url, "error", err.Error())
	}
}

// Snapshot returns the composed playback state for the renderer.
func (o *Orchestrator) Snapshot() models.AudioPlaybackState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return models.AudioPlaybackState{
		Unlocked: o.unlocked,
		Narration: models.NarrationState{
			URL:       o.loadedClip,
			Enabled:   o.narrationEnabled,
			IsPlaying: o.narrationPlaying,
			Position:  o.narration.Position().Seconds(),
			Duration:  o.narration.Duration().Seconds(),
		},
		Ambience: models.AmbienceState{
			URL:     o.ambienceURL,
			Enabled: o.ambienceEnabled,
			Volume:  o.ambienceVolume,
		},
	}
}

package audio

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Romariozh/vim-deepl/internal/observe"
)

const (
	pollInterval = 50 * time.Millisecond
	playTimeout  = 10 * time.Second
	termGrace    = 500 * time.Millisecond
	pactlTimeout = 2 * time.Second

	appName = "vim-deepl"
)

// playerCmd is a playback command line; the clip path is appended as the
// final argument.
type playerCmd struct {
	bin  string
	args []string
}

// probePlayer locates the first available media player.
func probePlayer() (playerCmd, bool) {
	candidates := []playerCmd{
		{"mplayer", []string{"-really-quiet", "-nolirc", "-noconsolecontrols"}},
		{"mpv", []string{"--no-terminal"}},
		{"ffplay", []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}},
	}
	for _, c := range candidates {
		if path, err := exec.LookPath(c.bin); err == nil {
			c.bin = path
			return c, true
		}
	}
	return playerCmd{}, false
}

type playRequest struct {
	path  string
	token int64
}

// Worker plays clips sequentially on a single goroutine. A new request
// preempts whatever is playing: the current player process group is killed
// and the latest clip starts instead.
type Worker struct {
	player  playerCmd
	hasBin  bool
	gap     time.Duration
	pulse   string
	volume  string
	metrics *observe.Metrics

	token   atomic.Int64
	mu      sync.Mutex
	cond    *sync.Cond
	pending *playRequest
	stopped bool
	done    chan struct{}
}

// WorkerOption customises a Worker.
type WorkerOption func(*Worker)

// WithGap sets the pause between the two plays of a clip.
func WithGap(d time.Duration) WorkerOption {
	return func(w *Worker) { w.gap = d }
}

// WithPulseServer sets the PULSE_SERVER exported to the player process.
func WithPulseServer(server string) WorkerOption {
	return func(w *Worker) { w.pulse = server }
}

// WithVolume sets the sink-input volume applied via pactl during playback.
func WithVolume(v string) WorkerOption {
	return func(w *Worker) { w.volume = v }
}

// WithPlayer overrides player probing with an explicit command, for tests.
func WithPlayer(bin string, args ...string) WorkerOption {
	return func(w *Worker) {
		w.player = playerCmd{bin: bin, args: args}
		w.hasBin = true
	}
}

// WithWorkerMetrics attaches playback metrics.
func WithWorkerMetrics(m *observe.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// NewWorker probes for a player and starts the playback goroutine.
func NewWorker(opts ...WorkerOption) *Worker {
	w := &Worker{
		gap:   time.Second,
		pulse: "unix:/tmp/pulse-native",
		done:  make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	w.player, w.hasBin = probePlayer()
	for _, opt := range opts {
		opt(w)
	}
	if !w.hasBin {
		slog.Warn("audio: no media player found, playback disabled")
	}
	go w.loop()
	return w
}

// Available reports whether a media player was found.
func (w *Worker) Available() bool { return w.hasBin }

// SetGap updates the pause between plays; used on config reload.
func (w *Worker) SetGap(d time.Duration) {
	w.mu.Lock()
	w.gap = d
	w.mu.Unlock()
}

// PlayTwice schedules the clip at path to play twice with a gap in between.
// It returns immediately; any in-flight playback is preempted.
func (w *Worker) PlayTwice(path string) {
	if !w.hasBin {
		return
	}
	token := w.token.Add(1)
	w.mu.Lock()
	w.pending = &playRequest{path: path, token: token}
	w.cond.Signal()
	w.mu.Unlock()
}

// Stop shuts the worker down, preempting any current playback.
func (w *Worker) Stop() {
	w.token.Add(1)
	w.mu.Lock()
	w.stopped = true
	w.pending = nil
	w.cond.Broadcast()
	w.mu.Unlock()

	select {
	case <-w.done:
	case <-time.After(playTimeout):
		slog.Warn("audio: worker did not stop in time")
	}
}

func (w *Worker) loop() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for w.pending == nil && !w.stopped {
			w.cond.Wait()
		}
		if w.stopped {
			w.mu.Unlock()
			return
		}
		req := w.pending
		w.pending = nil
		gap := w.gap
		w.mu.Unlock()

		w.playTwice(req, gap)
	}
}

func (w *Worker) playTwice(req *playRequest, gap time.Duration) {
	for i := 0; i < 2; i++ {
		if w.cancelled(req.token) {
			return
		}
		if !w.playOnce(req) {
			return
		}
		if i == 0 && !w.sleepPolling(gap, req.token) {
			return
		}
	}
	w.metrics.RecordAudioPlayback(context.Background(), "played")
}

// playOnce runs the player for one pass over the clip. It returns false when
// the pass was preempted or failed.
func (w *Worker) playOnce(req *playRequest) bool {
	cmd := exec.Command(w.player.bin, append(append([]string{}, w.player.args...), req.path)...)
	cmd.Env = append(os.Environ(),
		"PULSE_SERVER="+w.pulse,
		"PULSE_PROP=application.name="+appName,
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		slog.Warn("audio: player start failed", "player", w.player.bin, "err", err)
		w.metrics.RecordAudioPlayback(context.Background(), "error")
		return false
	}
	if w.volume != "" {
		go applyVolume(w.volume)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	deadline := time.Now().Add(playTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-waitCh:
			if err != nil {
				slog.Debug("audio: player exited with error", "err", err)
			}
			return err == nil
		case <-ticker.C:
			if w.cancelled(req.token) || time.Now().After(deadline) {
				killGroup(cmd.Process.Pid, waitCh)
				return false
			}
		}
	}
}

func (w *Worker) cancelled(token int64) bool {
	return w.token.Load() != token
}

// sleepPolling waits out the gap in poll-sized slices so a preemption takes
// effect promptly. Returns false when preempted.
func (w *Worker) sleepPolling(d time.Duration, token int64) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if w.cancelled(token) {
			return false
		}
		time.Sleep(pollInterval)
	}
	return !w.cancelled(token)
}

// killGroup terminates the player's process group: SIGTERM, a short grace
// period, then SIGKILL.
func killGroup(pid int, waitCh <-chan error) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-waitCh:
		return
	case <-time.After(termGrace):
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	select {
	case <-waitCh:
	case <-time.After(termGrace):
	}
}

// applyVolume sets the volume of our sink input via pactl. Best effort: no
// pactl, no PulseAudio, or no matching sink input are all fine.
func applyVolume(volume string) {
	ctx, cancel := context.WithTimeout(context.Background(), pactlTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return
	}
	idx := findSinkInput(string(out), appName)
	if idx == "" {
		return
	}
	_ = exec.CommandContext(ctx, "pactl", "set-sink-input-volume", idx, volume).Run()
}

// findSinkInput scans `pactl list sink-inputs` output for the input whose
// application.name matches, returning its index.
func findSinkInput(out, app string) string {
	var idx string
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, "Sink Input #"); ok {
			idx = rest
			continue
		}
		if strings.HasPrefix(line, "application.name") && strings.Contains(line, `"`+app+`"`) {
			return idx
		}
	}
	return ""
}

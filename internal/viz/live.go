package viz

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/lifeviz/internal/session"
)

const (
	refreshRate     = time.Second / 30
	historyCapacity = 600
	panelWidth      = 48
	minCanvasCols   = 16
	minCanvasRows   = 6
)

type TickMsg time.Time

// Model is the bubbletea model of the live view. The session runs on its
// own goroutine; the model only polls it.
type Model struct {
	sess *session.Session
	log  *slog.Logger

	frame   session.Frame
	canvas  *Canvas
	blocks  *Blocks
	braille bool
	theme   int

	width, height int
	popHistory    []float64
	fpsHistory    []float64
	lastTick      uint64

	recorder  *Recorder
	recording bool
	gifPath   string
	flash     string
	showHelp  bool
}

type Option func(*Model)

// WithTheme selects the starting theme by name.
func WithTheme(name string) Option {
	return func(m *Model) { m.theme = ThemeIndex(name) }
}

// WithBraille starts in Braille mode.
func WithBraille() Option {
	return func(m *Model) { m.braille = true }
}

// WithGIFPath sets where recordings are written.
func WithGIFPath(path string) Option {
	return func(m *Model) { m.gifPath = path }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Model) { m.log = l }
}

func NewModel(sess *session.Session, opts ...Option) Model {
	m := Model{
		sess:       sess,
		canvas:     NewCanvas(0, 0),
		blocks:     NewBlocks(),
		width:      120,
		height:     40,
		popHistory: make([]float64, 0, historyCapacity),
		fpsHistory: make([]float64, 0, historyCapacity),
		recorder:   NewRecorder(),
		gifPath:    "lifeviz.gif",
	}
	for _, opt := range opts {
		opt(&m)
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	m.log = m.log.With("component", "viz")
	return m
}

func tick() tea.Cmd {
	return tea.Tick(refreshRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tea.KeyMsg:
		return m.handleKey(msg)
	case TickMsg:
		m.poll(time.Time(msg))
		return m, tick()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.sess
	switch msg.String() {
	case "q", "ctrl+c":
		if m.recording {
			m.stopRecording()
		}
		return m, tea.Quit
	case " ":
		if s.TogglePause() {
			m.flash = "paused"
		} else {
			m.flash = "running"
		}
	case "r":
		s.Randomize()
		m.flash = "randomized"
	case "m":
		m.flash = "mode " + s.ToggleMode().String()
	case "b":
		m.flash = "binning " + s.ToggleBinning().String()
	case "i":
		m.flash = "injection " + s.CycleInjection().String()
	case "+", "=":
		m.flash = fmt.Sprintf("%.0f fps", s.SetFPS(s.Config().Tempo.FPS+5))
	case "-", "_":
		m.flash = fmt.Sprintf("%.0f fps", s.SetFPS(s.Config().Tempo.FPS-5))
	case "[":
		s.SetDepth(s.Config().Depth - 3)
		m.flash = fmt.Sprintf("depth %d", s.Config().Depth)
	case "]":
		s.SetDepth(s.Config().Depth + 3)
		m.flash = fmt.Sprintf("depth %d", s.Config().Depth)
	case "up", "k":
		s.SetRows(s.Config().Rows + 36)
		m.flash = fmt.Sprintf("rows %d", s.Config().Rows)
	case "down", "j":
		s.SetRows(s.Config().Rows - 36)
		m.flash = fmt.Sprintf("rows %d", s.Config().Rows)
	case "o":
		m.flash = "oscillate " + onOff(s.ToggleOscillate())
	case "s":
		m.flash = "beat sync " + onOff(s.ToggleBeatSync())
	case "l":
		locked := !s.Config().Aspect.Lock
		s.SetAspectLock(locked, s.Tree().Aspect())
		m.flash = "aspect lock " + onOff(locked)
	case "v":
		m.braille = !m.braille
	case "t":
		m.theme = (m.theme + 1) % len(Themes)
		m.flash = "theme " + Themes[m.theme].Name
	case "g":
		if m.recording {
			m.stopRecording()
		} else {
			m.recording = true
			m.recorder.Reset()
			m.flash = "recording"
		}
	case "?":
		m.showHelp = !m.showHelp
	}
	return m, nil
}

func (m *Model) stopRecording() {
	m.recording = false
	frames := m.recorder.Len()
	if err := m.recorder.Save(m.gifPath); err != nil {
		m.log.Warn("failed to save recording", "path", m.gifPath, "error", err)
		m.flash = "recording failed"
		return
	}
	m.log.Info("recording saved", "path", m.gifPath, "frames", frames)
	m.flash = fmt.Sprintf("saved %d frames to %s", frames, m.gifPath)
}

// poll copies the newest frame and records statistics once per new tick.
func (m *Model) poll(now time.Time) {
	if !m.sess.CopyFrame(&m.frame) || m.frame.Tick == m.lastTick {
		return
	}
	m.lastTick = m.frame.Tick

	st := m.sess.Stats()
	m.popHistory = pushHistory(m.popHistory, float64(st.Population[0]+st.Population[1]+st.Population[2]))
	m.fpsHistory = pushHistory(m.fpsHistory, st.FPS)

	if m.recording {
		m.recorder.Add(m.frame.Pix, m.frame.W, m.frame.H, now)
	}
}

func pushHistory(h []float64, v float64) []float64 {
	h = append(h, v)
	if len(h) > historyCapacity {
		h = h[1:]
	}
	return h
}

func (m Model) View() string {
	cols := max(m.width-panelWidth-4, minCanvasCols)
	rows := max(m.height-2, minCanvasRows)

	var canvas string
	if m.braille {
		m.canvas.Resize(cols, rows)
		m.canvas.Plot(m.frame.Pix, m.frame.W, m.frame.H, 0.5)
		canvas = lipgloss.NewStyle().Foreground(Themes[m.theme].Dots).Render(m.canvas.String())
	} else {
		canvas = m.blocks.Render(m.frame.Pix, m.frame.W, m.frame.H, cols, rows)
	}
	main := lipgloss.JoinHorizontal(lipgloss.Top, canvasStyle.Render(canvas), panelStyle.Render(m.panel()))

	if m.showHelp {
		return helpOverlay + "\n\n" + main
	}
	return main
}

func (m Model) panel() string {
	st := m.sess.Stats()
	cfg := m.sess.Config()
	th := Themes[m.theme]

	var s strings.Builder
	s.WriteString(GradientText("LIFEVIZ", th.Primary, th.Secondary) + "\n")

	switch {
	case m.recording:
		s.WriteString(StatusRecording.Render(fmt.Sprintf("● REC %d", m.recorder.Len())))
	case st.Paused:
		s.WriteString(StatusPaused.Render("PAUSED"))
	case st.Driven:
		s.WriteString(StatusRunning.Render("DRIVEN"))
	default:
		s.WriteString(StatusRunning.Render("PROCEDURAL"))
	}
	s.WriteString("\n\n")

	if len(m.popHistory) > 1 {
		chart := asciigraph.Plot(m.popHistory,
			asciigraph.Height(5),
			asciigraph.Width(panelWidth-14),
			asciigraph.Caption("population"))
		s.WriteString(chart + "\n\n")
	}

	cells := max(st.Rows*st.Cols, 1)
	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}
	row("Grid", fmt.Sprintf("%d×%d", st.Cols, st.Rows))
	row("Depth", fmt.Sprintf("%d (%d/%d/%d)", st.Depth, st.Split[0], st.Split[1], st.Split[2]))
	row("Mode", st.Mode.String()+" / "+st.Binning.String())
	row("Injection", cfg.Injection.Mode)
	row("Generation", fmt.Sprintf("%d", st.Generation))
	row("Alive", fmt.Sprintf("%.1f%%", 100*float64(st.Population[0])/float64(cells)))
	s.WriteString(labelStyle.Render("") + ProgressBar(float64(st.Population[0])/float64(cells), 20) + "\n")
	row("FPS", fmt.Sprintf("%.1f / %.1f", st.FPS, st.TargetFPS))
	s.WriteString(labelStyle.Render("") + SparklineChart(m.fpsHistory, 20) + "\n")
	if st.Beat.Valid() {
		row("Beat", fmt.Sprintf("%.1f bpm", st.Beat.BPM))
	}
	row("Tempo", tempoLabel(cfg.Tempo.Oscillate, cfg.Tempo.BeatSync))
	row("Aspect", fmt.Sprintf("%.3f%s", m.sess.Tree().Aspect(), lockLabel(cfg.Aspect.Lock)))

	s.WriteString("\n" + Separator(panelWidth-6) + "\n")
	s.WriteString(fmt.Sprintf("SOURCES (%d)\n", st.Sources))
	for _, in := range m.sess.Tree().List() {
		indent := strings.Repeat("  ", in.Depth)
		line := fmt.Sprintf("%s%s %s [%s %s %.0f%%]", indent, in.Kind, in.Name,
			in.Settings.Blend, in.Settings.Fit, in.Settings.Opacity*100)
		s.WriteString(Subtle.Render(truncate(line, panelWidth-6)) + "\n")
	}

	if m.flash != "" {
		s.WriteString("\n" + valueStyle.Render(m.flash) + "\n")
	}
	s.WriteString(helpStyle.Render("SP:Pause R:Random M:Mode B:Bin I:Inject\nV:View T:Theme G:Record ?:Help Q:Quit"))
	return s.String()
}

func tempoLabel(osc, sync bool) string {
	switch {
	case sync:
		return "beat sync"
	case osc:
		return "oscillating"
	}
	return "fixed"
}

func lockLabel(locked bool) string {
	if locked {
		return " (locked)"
	}
	return ""
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:max(n-1, 0)]) + "…"
}

var helpOverlay = `
╔══════════════════════════════════════╗
║           KEYBOARD SHORTCUTS         ║
╠══════════════════════════════════════╣
║  Space    - Pause/Resume             ║
║  R        - Randomize                ║
║  M        - Grayscale/RGB            ║
║  B        - Fill/Binary binning      ║
║  I        - Cycle injection mode     ║
║  +/-      - Faster/slower            ║
║  [/]      - Less/more depth          ║
║  Up/Down  - More/fewer rows          ║
║  O        - Toggle oscillation       ║
║  S        - Toggle beat sync         ║
║  L        - Toggle aspect lock       ║
║  V        - Blocks/Braille           ║
║  T        - Cycle themes             ║
║  G        - Toggle GIF recording     ║
║  Q        - Quit                     ║
╚══════════════════════════════════════╝`

// Run starts the live view and blocks until the user quits.
func Run(sess *session.Session, opts ...Option) error {
	p := tea.NewProgram(NewModel(sess, opts...), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

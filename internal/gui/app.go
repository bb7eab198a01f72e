package gui

import (
	"fmt"
	"image/color"
	"log/slog"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/san-kum/lifeviz/internal/session"
)

// Theme Colors (Monochrome Hyper-Minimalist)
var (
	ColBg      = rl.NewColor(10, 10, 10, 255)
	ColAccent  = rl.NewColor(180, 180, 180, 255)
	ColSelect  = rl.NewColor(255, 255, 255, 255)
	ColText    = rl.NewColor(140, 140, 140, 255)
	ColTextDim = rl.NewColor(60, 60, 60, 255)
	ColFrame   = rl.NewColor(30, 30, 30, 255)
)

const (
	windowW    = 1280
	windowH    = 720
	hudHeight  = 90
	maxHistory = 400
	fontPath   = "/usr/share/fonts/liberation/LiberationMono-Regular.ttf"
)

// App shows a running session in a raylib window. The session ticks on its
// own goroutine; the window uploads the latest frame once per draw.
type App struct {
	Sess *session.Session
	Font rl.Font

	frame      session.Frame
	lastTick   uint64
	sim        texture
	native     texture
	showNative bool
	population []float64
	flash      string
	log        *slog.Logger
}

// texture is a GPU texture plus the RGBA staging buffer that feeds it.
type texture struct {
	tex    rl.Texture2D
	w, h   int
	loaded bool
	rgba   []color.RGBA
}

func initWindow() {
	rl.SetConfigFlags(rl.FlagWindowResizable)
	rl.InitWindow(windowW, windowH, "lifeviz")
	rl.SetTargetFPS(60)
	rl.SetExitKey(0)
}

// loadFont loads Liberation Mono when present and falls back to raylib's
// built-in font.
func loadFont() rl.Font {
	font := rl.LoadFontEx(fontPath, 32, nil, 0)
	if font.Texture.ID == 0 {
		return rl.GetFontDefault()
	}
	rl.SetTextureFilter(font.Texture, rl.FilterBilinear)
	return font
}

func NewApp(sess *session.Session, log *slog.Logger) *App {
	if log == nil {
		log = slog.Default()
	}
	return &App{
		Sess:       sess,
		Font:       loadFont(),
		population: make([]float64, 0, maxHistory),
		log:        log.With("component", "gui"),
	}
}

// Run opens the window and blocks until it is closed or Q is pressed.
func Run(sess *session.Session, log *slog.Logger) {
	initWindow()
	defer rl.CloseWindow()

	app := NewApp(sess, log)
	defer app.unload()
	app.RunLoop()
}

func (a *App) RunLoop() {
	for !rl.WindowShouldClose() {
		if !a.Update() {
			return
		}
		a.Draw()
	}
}

func (a *App) unload() {
	for _, t := range []*texture{&a.sim, &a.native} {
		if t.loaded {
			rl.UnloadTexture(t.tex)
			t.loaded = false
		}
	}
}

// Update handles input and uploads a new frame if one was published. It
// reports false when the user asked to quit.
func (a *App) Update() bool {
	s := a.Sess
	switch {
	case rl.IsKeyPressed(rl.KeyQ):
		return false
	case rl.IsKeyPressed(rl.KeySpace):
		if s.TogglePause() {
			a.flash = "paused"
		} else {
			a.flash = "running"
		}
	case rl.IsKeyPressed(rl.KeyR):
		s.Randomize()
		a.flash = "randomized"
	case rl.IsKeyPressed(rl.KeyM):
		a.flash = "mode " + s.ToggleMode().String()
	case rl.IsKeyPressed(rl.KeyB):
		a.flash = "binning " + s.ToggleBinning().String()
	case rl.IsKeyPressed(rl.KeyI):
		a.flash = "injection " + s.CycleInjection().String()
	case rl.IsKeyPressed(rl.KeyO):
		a.flash = fmt.Sprintf("oscillate %v", s.ToggleOscillate())
	case rl.IsKeyPressed(rl.KeyS):
		a.flash = fmt.Sprintf("beat sync %v", s.ToggleBeatSync())
	case rl.IsKeyPressed(rl.KeyN):
		a.showNative = !a.showNative
	case rl.IsKeyPressed(rl.KeyUp):
		s.SetRows(s.Config().Rows + 36)
		a.flash = fmt.Sprintf("rows %d", s.Config().Rows)
	case rl.IsKeyPressed(rl.KeyDown):
		s.SetRows(s.Config().Rows - 36)
		a.flash = fmt.Sprintf("rows %d", s.Config().Rows)
	case rl.IsKeyPressed(rl.KeyRightBracket):
		s.SetDepth(s.Config().Depth + 3)
		a.flash = fmt.Sprintf("depth %d", s.Config().Depth)
	case rl.IsKeyPressed(rl.KeyLeftBracket):
		s.SetDepth(s.Config().Depth - 3)
		a.flash = fmt.Sprintf("depth %d", s.Config().Depth)
	case rl.IsKeyPressed(rl.KeyEqual):
		a.flash = fmt.Sprintf("%.0f fps", s.SetFPS(s.Config().Tempo.FPS+5))
	case rl.IsKeyPressed(rl.KeyMinus):
		a.flash = fmt.Sprintf("%.0f fps", s.SetFPS(s.Config().Tempo.FPS-5))
	}

	if !s.CopyFrame(&a.frame) || a.frame.Tick == a.lastTick {
		return true
	}
	a.lastTick = a.frame.Tick

	a.sim.upload(a.frame.Pix, a.frame.W, a.frame.H)
	if len(a.frame.Native) > 0 {
		a.native.upload(a.frame.Native, a.frame.NativeW, a.frame.NativeH)
	}

	st := s.Stats()
	a.population = append(a.population, float64(st.Population[0]))
	if len(a.population) > maxHistory {
		a.population = a.population[1:]
	}
	return true
}

// upload converts a BGRA frame and copies it to the GPU, recreating the
// texture when the size changes.
func (t *texture) upload(pix []byte, w, h int) {
	if w <= 0 || h <= 0 || len(pix) < w*h*4 {
		return
	}
	if !t.loaded || t.w != w || t.h != h {
		if t.loaded {
			rl.UnloadTexture(t.tex)
		}
		img := rl.GenImageColor(w, h, rl.Black)
		t.tex = rl.LoadTextureFromImage(img)
		rl.UnloadImage(img)
		rl.SetTextureFilter(t.tex, rl.FilterPoint)
		t.w, t.h, t.loaded = w, h, true
	}

	if cap(t.rgba) < w*h {
		t.rgba = make([]color.RGBA, w*h)
	}
	t.rgba = t.rgba[:w*h]
	for i := range t.rgba {
		o := i * 4
		t.rgba[i] = color.RGBA{R: pix[o+2], G: pix[o+1], B: pix[o], A: 255}
	}
	rl.UpdateTexture(t.tex, t.rgba)
}

func (a *App) Draw() {
	rl.BeginDrawing()
	rl.ClearBackground(ColBg)

	area := rl.NewRectangle(0, 0, float32(rl.GetScreenWidth()), float32(rl.GetScreenHeight()-hudHeight))
	t := &a.sim
	if a.showNative && a.native.loaded && len(a.frame.Native) > 0 {
		t = &a.native
	}
	if t.loaded {
		dst := fitRect(t.w, t.h, area)
		rl.DrawRectangleLinesEx(rl.NewRectangle(dst.X-1, dst.Y-1, dst.Width+2, dst.Height+2), 1, ColFrame)
		rl.DrawTexturePro(t.tex, rl.NewRectangle(0, 0, float32(t.w), float32(t.h)), dst, rl.NewVector2(0, 0), 0, rl.White)
	}

	a.DrawHUD()
	rl.EndDrawing()
}

// fitRect centers a w×h image in area at the largest scale that fits.
func fitRect(w, h int, area rl.Rectangle) rl.Rectangle {
	scale := min(area.Width/float32(w), area.Height/float32(h))
	dw, dh := float32(w)*scale, float32(h)*scale
	return rl.NewRectangle(area.X+(area.Width-dw)/2, area.Y+(area.Height-dh)/2, dw, dh)
}

func (a *App) DrawHUD() {
	st := a.Sess.Stats()
	sh := int(rl.GetScreenHeight())
	sw := int(rl.GetScreenWidth())
	top := sh - hudHeight + 10

	a.drawText("lifeviz", 20, top, 24, ColSelect)
	a.drawText(fmt.Sprintf(":: %d×%d  depth %d  %s/%s", st.Cols, st.Rows, st.Depth, st.Mode, st.Binning), 130, top+4, 16, ColText)

	status, col := "PROCEDURAL", ColAccent
	switch {
	case st.Paused:
		status, col = "PAUSED", ColTextDim
	case st.Driven:
		status, col = "DRIVEN", ColSelect
	}
	a.drawText(status, sw-140, top, 16, col)

	line := fmt.Sprintf("gen %d  %.1f/%.1f fps  sources %d", st.Generation, st.FPS, st.TargetFPS, st.Sources)
	if st.Beat.Valid() {
		line += fmt.Sprintf("  %.0f bpm", st.Beat.BPM)
	}
	a.drawText(line, 20, top+32, 14, ColText)
	if a.flash != "" {
		a.drawText(a.flash, 20, top+52, 14, ColAccent)
	}

	a.DrawTelemetry(sw-440, top+20, 300, 50)
	a.drawText("[SPACE] PAUSE [R] RANDOM [M] MODE [B] BIN [I] INJECT [N] NATIVE [Q] QUIT", sw-760, top+58, 14, ColTextDim)
}

func (a *App) drawText(text string, x, y int, size int, color rl.Color) {
	rl.DrawTextEx(a.Font, text, rl.NewVector2(float32(x), float32(y)), float32(size), 1, color)
}

// DrawTelemetry plots the population history as a line strip.
func (a *App) DrawTelemetry(rectX, rectY, width, height int) {
	if len(a.population) < 2 {
		return
	}

	minVal, maxVal := a.population[0], a.population[0]
	for _, v := range a.population {
		minVal, maxVal = min(minVal, v), max(maxVal, v)
	}
	if maxVal == minVal {
		maxVal = minVal + 1
	}

	points := make([]rl.Vector2, len(a.population))
	for i, val := range a.population {
		px := float32(rectX) + (float32(i)/float32(len(a.population)))*float32(width)
		norm := (val - minVal) / (maxVal - minVal)
		py := float32(rectY+height) - float32(norm)*float32(height)
		points[i] = rl.NewVector2(px, py)
	}

	rl.DrawLineStrip(points, ColAccent)
	a.drawText(fmt.Sprintf("pop %.0f", a.population[len(a.population)-1]), rectX+width+10, rectY+height-10, 14, ColText)
}

// Package game implements the interactive viewer: a fly camera over the
// streaming world, rendered through the GPU arena.
package game

import (
	"context"
	"fmt"
	"time"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/voxelstream/internal/chunk"
	"github.com/Faultbox/voxelstream/internal/config"
	"github.com/Faultbox/voxelstream/internal/engine/camera"
	"github.com/Faultbox/voxelstream/internal/engine/debug"
	"github.com/Faultbox/voxelstream/internal/engine/input"
	"github.com/Faultbox/voxelstream/internal/engine/renderer"
	"github.com/Faultbox/voxelstream/internal/engine/window"
	"github.com/Faultbox/voxelstream/internal/game/world"
	"github.com/Faultbox/voxelstream/internal/logger"
)

const title = "VoxelStream"

// Game is the viewer instance.
type Game struct {
	config   *config.Config
	running  bool
	window   *window.Window
	renderer *renderer.Renderer
	input    *input.Input
	camera   *camera.FlyCamera
	world    *world.World
	reporter *world.Reporter
	shots    *debug.Screenshots

	captureNext bool
}

// New opens the window and builds the world on the GL backend. pub
// receives periodic stats and may be nil.
func New(cfg *config.Config, pub world.Publisher) (*Game, error) {
	logger.Info("initializing viewer",
		zap.Int("width", cfg.Graphics.Width),
		zap.Int("height", cfg.Graphics.Height),
		zap.Bool("fullscreen", cfg.Graphics.Fullscreen),
	)

	g := &Game{config: cfg}

	var err error
	g.window, err = window.New(window.Config{
		Title:      title,
		Width:      cfg.Graphics.Width,
		Height:     cfg.Graphics.Height,
		Fullscreen: cfg.Graphics.Fullscreen,
		VSync:      cfg.Graphics.VSync,
		GrabMouse:  true,
		Debug:      cfg.Graphics.GLDebug,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	// Renderer AFTER window, since the OpenGL context must exist.
	dw, dh := g.window.DrawableSize()
	g.renderer, err = renderer.New(renderer.Config{
		Width:  dw,
		Height: dh,
		Debug:  cfg.Graphics.GLDebug,
	})
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	g.world, err = world.New(cfg, g.renderer.Backend())
	if err != nil {
		g.Close()
		return nil, err
	}
	if err := g.renderer.Bind(g.world.Arena); err != nil {
		g.Close()
		return nil, fmt.Errorf("failed to bind renderer: %w", err)
	}

	g.input = input.New()
	g.camera = camera.NewFlyCamera(world.Spawn(cfg))
	g.camera.FOV = cfg.Graphics.FOV
	g.camera.Speed = cfg.Graphics.MoveSpeed
	g.reporter = world.NewReporter(cfg.Telemetry.Interval, pub)
	g.shots = debug.NewScreenshots("screenshots", "voxelstream")

	logger.Info("viewer initialized")
	return g, nil
}

// Run starts the main loop and returns when the window closes or ctx ends.
func (g *Game) Run(ctx context.Context) error {
	g.running = true
	g.world.Start(ctx, g.camera.Position)

	lastTime := time.Now()
	logger.Info("starting viewer loop")

	for g.running {
		if ctx.Err() != nil {
			break
		}

		now := time.Now()
		dt := float32(now.Sub(lastTime).Seconds())
		lastTime = now

		// 1. Input
		if g.input.Update() {
			break
		}
		g.handleEvents()

		// 2. Camera, then streaming centred on it
		g.updateCamera(dt)
		g.world.Frame(g.camera.Position)

		// 3. Render
		g.renderer.Begin()
		viewProj := g.camera.ViewProjection(g.renderer.Aspect())
		g.renderer.Draw(viewProj, camera.FrustumOf(viewProj))
		if g.captureNext {
			g.captureNext = false
			g.capture()
		}

		// 4. Present
		g.window.SwapBuffers()

		if rep, ok := g.reporter.Tick(now, g.world); ok {
			g.window.SetTitle(fmt.Sprintf("%s - %.0f fps, %d chunks, %d drawn slots",
				title, rep.FPS, rep.Resident, rep.LiveSlots))
		}
	}

	g.running = false
	return nil
}

func (g *Game) handleEvents() {
	for _, event := range g.input.Events() {
		switch event.Type {
		case input.EventWindowResize:
			// Event sizes are in window units; the viewport wants pixels.
			g.renderer.Resize(g.window.DrawableSize())
		case input.EventKeyDown:
			switch event.Key {
			case sdl.SCANCODE_ESCAPE:
				g.running = false
			case sdl.SCANCODE_TAB:
				g.window.SetMouseGrab(!g.window.MouseGrabbed())
			case sdl.SCANCODE_F12:
				g.captureNext = true
			case sdl.SCANCODE_EQUALS:
				g.world.AdjustRadius(1)
			case sdl.SCANCODE_MINUS:
				g.world.AdjustRadius(-1)
			}
		case input.EventMouseDown:
			if !g.window.MouseGrabbed() {
				continue
			}
			eye, dir := g.camera.Position, g.camera.Forward()
			switch event.Button {
			case sdl.BUTTON_LEFT:
				g.world.Break(eye, dir)
			case sdl.BUTTON_RIGHT:
				g.world.Place(eye, dir, chunk.Dirt)
			}
		}
	}
}

func (g *Game) capture() {
	pixels, w, h := g.renderer.ReadPixels()
	path, err := g.shots.Save(pixels, w, h)
	if err != nil {
		logger.Warn("screenshot failed", zap.Error(err))
		return
	}
	logger.Info("screenshot saved", zap.String("path", path))
}

func (g *Game) updateCamera(dt float32) {
	if g.window.MouseGrabbed() {
		dx, dy := g.input.MouseDelta()
		g.camera.Look(float32(dx), float32(dy))
	}

	speed := g.camera.Speed
	if g.input.IsKeyHeld(sdl.SCANCODE_LCTRL) {
		g.camera.Speed *= 4
	}
	g.camera.Move(
		g.input.Axis(sdl.SCANCODE_W, sdl.SCANCODE_S),
		g.input.Axis(sdl.SCANCODE_D, sdl.SCANCODE_A),
		g.input.Axis(sdl.SCANCODE_SPACE, sdl.SCANCODE_LSHIFT),
		dt,
	)
	g.camera.Speed = speed
}

// Close releases the world before the GL context it lives in.
func (g *Game) Close() {
	logger.Info("closing viewer")

	if g.world != nil {
		g.world.Close()
	}
	if g.renderer != nil {
		g.renderer.Close()
	}
	if g.window != nil {
		g.window.Close()
	}
}

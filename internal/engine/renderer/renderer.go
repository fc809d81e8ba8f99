// Package renderer draws arena-resident chunks with GPU-driven culling: a
// compute pass turns live metadata slots into indirect draw commands, and a
// single count-indirect call renders them.
package renderer

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/voxelstream/internal/engine/camera"
	"github.com/Faultbox/voxelstream/internal/engine/gpu"
	"github.com/Faultbox/voxelstream/internal/engine/gpu/glgpu"
	"github.com/Faultbox/voxelstream/internal/engine/renderer/shaders"
	"github.com/Faultbox/voxelstream/internal/engine/shader"
	"github.com/Faultbox/voxelstream/internal/logger"
)

// SSBO binding points shared with the shaders.
const (
	bindSlots     = 0
	bindCommands  = 1
	bindDrawCount = 2
	bindDrawSlots = 3
	bindQuads     = 4
)

const cullGroupSize = 64

// Config holds renderer configuration. Width and Height are the drawable
// size in pixels.
type Config struct {
	Width  int
	Height int
	// Debug routes GL debug output to the logger. The context must have
	// been created with the debug flag.
	Debug bool
}

// Geometry is the resident-chunk storage the renderer reads from.
type Geometry interface {
	ArenaBuffer() gpu.Buffer
	MetadataTable() gpu.Buffer
	SlotCount() int
}

// Renderer handles all OpenGL rendering.
type Renderer struct {
	config  Config
	backend *glgpu.Backend

	cullProgram  uint32
	voxelProgram uint32
	vao          uint32

	uSlotCount int32
	uFrustum   int32
	uViewProj  int32

	geometry  Geometry
	commands  gpu.Buffer
	drawCount gpu.Buffer
	drawSlots gpu.Buffer
}

// New initializes OpenGL and compiles the voxel programs.
// Must be called after the OpenGL context is created.
func New(cfg Config) (*Renderer, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	logger.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	r := &Renderer{config: cfg, backend: glgpu.New()}
	if cfg.Debug {
		enableDebugOutput()
	}

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.ClearColor(0.53, 0.71, 0.92, 1.0)
	gl.Viewport(0, 0, int32(cfg.Width), int32(cfg.Height))

	var err error
	r.cullProgram, err = shader.CompileCompute(shaders.CullCompute)
	if err != nil {
		return nil, fmt.Errorf("failed to compile cull program: %w", err)
	}
	r.voxelProgram, err = shader.CompileProgram(shaders.VoxelVertexShader, shaders.VoxelFragmentShader)
	if err != nil {
		gl.DeleteProgram(r.cullProgram)
		return nil, fmt.Errorf("failed to compile voxel program: %w", err)
	}

	r.uSlotCount = shader.MustGetUniform(r.cullProgram, "uSlotCount")
	r.uFrustum = shader.MustGetUniform(r.cullProgram, "uFrustum")
	r.uViewProj = shader.MustGetUniform(r.voxelProgram, "uViewProj")

	// Core profile draws need a bound VAO even without attributes.
	gl.CreateVertexArrays(1, &r.vao)

	return r, nil
}

// Backend returns the GL backend the arena should allocate through.
func (r *Renderer) Backend() *glgpu.Backend {
	return r.backend
}

// Bind allocates per-slot draw buffers for g.
func (r *Renderer) Bind(g Geometry) error {
	slots := g.SlotCount()
	var err error
	if r.commands, err = r.backend.CreateStorage(slots*glgpu.DrawCommandSize, "draw commands"); err != nil {
		return err
	}
	if r.drawCount, err = r.backend.CreateStorage(4, "draw count"); err != nil {
		return err
	}
	if r.drawSlots, err = r.backend.CreateStorage(slots*4, "draw slots"); err != nil {
		return err
	}
	r.geometry = g
	logger.Debug("renderer bound", zap.Int("slots", slots))
	return nil
}

// Close cleans up renderer resources, including every backend buffer.
func (r *Renderer) Close() {
	logger.Info("closing renderer")
	if r.vao != 0 {
		gl.DeleteVertexArrays(1, &r.vao)
	}
	if r.cullProgram != 0 {
		gl.DeleteProgram(r.cullProgram)
	}
	if r.voxelProgram != 0 {
		gl.DeleteProgram(r.voxelProgram)
	}
	r.backend.Close()
}

// Resize handles window resize.
func (r *Renderer) Resize(width, height int) {
	r.config.Width = width
	r.config.Height = height
	gl.Viewport(0, 0, int32(width), int32(height))
	logger.Debug("renderer resized",
		zap.Int("width", width),
		zap.Int("height", height),
	)
}

// Aspect returns the current viewport aspect ratio.
func (r *Renderer) Aspect() float32 {
	if r.config.Height == 0 {
		return 1
	}
	return float32(r.config.Width) / float32(r.config.Height)
}

// Begin starts a new frame.
func (r *Renderer) Begin() {
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
}

// Draw culls every slot against the frustum and renders the survivors.
func (r *Renderer) Draw(viewProj mgl32.Mat4, frustum camera.Frustum) {
	if r.geometry == nil {
		return
	}
	slots := r.geometry.SlotCount()

	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, bindSlots, uint32(r.geometry.MetadataTable()))
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, bindCommands, uint32(r.commands))
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, bindDrawCount, uint32(r.drawCount))
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, bindDrawSlots, uint32(r.drawSlots))
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, bindQuads, uint32(r.geometry.ArenaBuffer()))

	r.backend.ClearUint32(r.drawCount, 0)
	r.backend.IssueBarrier()

	gl.UseProgram(r.cullProgram)
	gl.Uniform1ui(r.uSlotCount, uint32(slots))
	gl.Uniform4fv(r.uFrustum, int32(len(frustum)), &frustum[0][0])
	gl.DispatchCompute(uint32((slots+cullGroupSize-1)/cullGroupSize), 1, 1)
	r.backend.IssueBarrier()

	gl.UseProgram(r.voxelProgram)
	gl.UniformMatrix4fv(r.uViewProj, 1, false, &viewProj[0])
	gl.BindVertexArray(r.vao)
	r.backend.DrawIndirectCount(r.commands, r.drawCount, slots)
	gl.BindVertexArray(0)
}

// ReadPixels returns the back buffer as bottom-up RGBA rows.
func (r *Renderer) ReadPixels() ([]byte, int, int) {
	w, h := r.config.Width, r.config.Height
	pixels := make([]byte, w*h*4)
	if len(pixels) == 0 {
		return pixels, w, h
	}
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(w), int32(h), gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&pixels[0]))
	return pixels, w, h
}

// Package camera provides camera implementations for 3D rendering.
package camera

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// FlyCamera is a free-flying first-person camera. Yaw 0 looks down -Z.
type FlyCamera struct {
	Position mgl32.Vec3

	Yaw   float32 // radians, positive turns toward +X
	Pitch float32 // radians, positive looks up

	FOV       float32 // vertical, degrees
	Near, Far float32

	Speed       float32 // units per second
	Sensitivity float32 // radians per mouse pixel
}

const maxPitch = gomath.Pi/2 - 0.01

// NewFlyCamera creates a camera at pos with default settings.
func NewFlyCamera(pos mgl32.Vec3) *FlyCamera {
	return &FlyCamera{
		Position:    pos,
		FOV:         70,
		Near:        0.1,
		Far:         4096,
		Speed:       40,
		Sensitivity: 0.0025,
	}
}

// Forward returns the unit view direction.
func (c *FlyCamera) Forward() mgl32.Vec3 {
	sy, cy := gomath.Sincos(float64(c.Yaw))
	sp, cp := gomath.Sincos(float64(c.Pitch))
	return mgl32.Vec3{float32(sy * cp), float32(sp), float32(-cy * cp)}
}

// Right returns the unit horizontal right vector.
func (c *FlyCamera) Right() mgl32.Vec3 {
	sy, cy := gomath.Sincos(float64(c.Yaw))
	return mgl32.Vec3{float32(cy), 0, float32(sy)}
}

// Look rotates the camera by a mouse delta in pixels.
func (c *FlyCamera) Look(dx, dy float32) {
	c.Yaw += dx * c.Sensitivity
	c.Pitch -= dy * c.Sensitivity
	c.Pitch = mgl32.Clamp(c.Pitch, -maxPitch, maxPitch)
}

// Move translates the camera. forward and right follow the view direction,
// up is world-vertical. Each axis is expected in [-1, 1].
func (c *FlyCamera) Move(forward, right, up, dt float32) {
	step := c.Speed * dt
	delta := c.Forward().Mul(forward).
		Add(c.Right().Mul(right)).
		Add(mgl32.Vec3{0, up, 0})
	if delta.Len() > 1 {
		delta = delta.Normalize()
	}
	c.Position = c.Position.Add(delta.Mul(step))
}

// ViewMatrix returns the world-to-view transform.
func (c *FlyCamera) ViewMatrix() mgl32.Mat4 {
	eye := c.Position
	return mgl32.LookAtV(eye, eye.Add(c.Forward()), mgl32.Vec3{0, 1, 0})
}

// Projection returns the perspective transform for an aspect ratio.
func (c *FlyCamera) Projection(aspect float32) mgl32.Mat4 {
	if aspect <= 0 {
		aspect = 1
	}
	return mgl32.Perspective(mgl32.DegToRad(c.FOV), aspect, c.Near, c.Far)
}

// ViewProjection returns Projection * ViewMatrix.
func (c *FlyCamera) ViewProjection(aspect float32) mgl32.Mat4 {
	return c.Projection(aspect).Mul4(c.ViewMatrix())
}

// Frustum holds six normalized planes (a,b,c,d) with the inside where
// a*x + b*y + c*z + d >= 0. Order: left, right, bottom, top, near, far.
type Frustum [6]mgl32.Vec4

// FrustumOf extracts the clip planes of a view-projection matrix.
func FrustumOf(m mgl32.Mat4) Frustum {
	r0, r1, r2, r3 := m.Row(0), m.Row(1), m.Row(2), m.Row(3)
	f := Frustum{
		r3.Add(r0),
		r3.Sub(r0),
		r3.Add(r1),
		r3.Sub(r1),
		r3.Add(r2),
		r3.Sub(r2),
	}
	for i, p := range f {
		if l := p.Vec3().Len(); l > 0 {
			f[i] = p.Mul(1 / l)
		}
	}
	return f
}

// ContainsBox reports whether the axis-aligned box touches the frustum.
// It may report true for boxes just outside a corner.
func (f Frustum) ContainsBox(lo, hi mgl32.Vec3) bool {
	for _, p := range f {
		v := lo
		if p[0] > 0 {
			v[0] = hi[0]
		}
		if p[1] > 0 {
			v[1] = hi[1]
		}
		if p[2] > 0 {
			v[2] = hi[2]
		}
		if p.Vec3().Dot(v)+p[3] < 0 {
			return false
		}
	}
	return true
}

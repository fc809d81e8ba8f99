// Package shaders provides embedded GLSL shader sources.
package shaders

import _ "embed"

// CullCompute builds one indirect draw per visible resident slot.
//
//go:embed cull.comp
var CullCompute string

// VoxelVertexShader expands packed quads into strip vertices.
//
//go:embed voxel.vert
var VoxelVertexShader string

// VoxelFragmentShader shades voxel faces by material and face direction.
//
//go:embed voxel.frag
var VoxelFragmentShader string

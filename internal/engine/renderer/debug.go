package renderer

import (
	"unsafe"

	"github.com/go-gl/gl/v4.6-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/voxelstream/internal/logger"
)

func enableDebugOutput() {
	gl.Enable(gl.DEBUG_OUTPUT)
	gl.Enable(gl.DEBUG_OUTPUT_SYNCHRONOUS)
	// Notifications are buffer placement hints; they flood the log.
	gl.DebugMessageControl(gl.DONT_CARE, gl.DONT_CARE, gl.DEBUG_SEVERITY_NOTIFICATION, 0, nil, false)
	gl.DebugMessageCallback(debugMessage, nil)
	logger.Debug("GL debug output enabled")
}

func debugMessage(source, kind, id, severity uint32, _ int32, message string, _ unsafe.Pointer) {
	fields := []zap.Field{
		zap.String("source", debugSourceName(source)),
		zap.String("type", debugTypeName(kind)),
		zap.Uint32("id", id),
	}
	switch severity {
	case gl.DEBUG_SEVERITY_HIGH:
		logger.Error(message, fields...)
	case gl.DEBUG_SEVERITY_MEDIUM:
		logger.Warn(message, fields...)
	default:
		logger.Debug(message, fields...)
	}
}

func debugSourceName(source uint32) string {
	switch source {
	case gl.DEBUG_SOURCE_API:
		return "api"
	case gl.DEBUG_SOURCE_WINDOW_SYSTEM:
		return "window"
	case gl.DEBUG_SOURCE_SHADER_COMPILER:
		return "shader"
	case gl.DEBUG_SOURCE_THIRD_PARTY:
		return "third-party"
	case gl.DEBUG_SOURCE_APPLICATION:
		return "application"
	}
	return "other"
}

func debugTypeName(kind uint32) string {
	switch kind {
	case gl.DEBUG_TYPE_ERROR:
		return "error"
	case gl.DEBUG_TYPE_DEPRECATED_BEHAVIOR:
		return "deprecated"
	case gl.DEBUG_TYPE_UNDEFINED_BEHAVIOR:
		return "undefined"
	case gl.DEBUG_TYPE_PORTABILITY:
		return "portability"
	case gl.DEBUG_TYPE_PERFORMANCE:
		return "performance"
	}
	return "other"
}

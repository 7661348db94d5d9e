// Package logx wraps zerolog behind a small Logger value type so components
// can take a logger by value, derive tagged children with With(), and pick up
// level/sink changes applied to the owning Service at runtime.
package logx

package guard

import (
	stdErrors "errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// maxFrames bounds the number of frames captured for a panic.
const maxFrames = 64

// Frame is one entry of a rendered trace.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Trace is a failure rendered for display: a message followed by the
// frames leading to it, innermost first.
type Trace struct {
	Message string
	Causes  []string
	Frames  []Frame
}

// Render formats the trace the way a Go panic is printed.
func (t Trace) Render() string {
	var b strings.Builder
	b.WriteString(t.Message)
	b.WriteString("\n")
	for _, c := range t.Causes {
		fmt.Fprintf(&b, "  caused by: %s\n", c)
	}
	if len(t.Frames) > 0 {
		b.WriteString("\n")
		for _, f := range t.Frames {
			fmt.Fprintf(&b, "%s(...)\n\t%s:%d\n", f.Function, f.File, f.Line)
		}
	}
	return b.String()
}

var (
	invokeName = runtime.FuncForPC(reflect.ValueOf(invoke).Pointer()).Name()
	guardPkg   = strings.TrimSuffix(invokeName, ".invoke")
	modulePkg  = strings.TrimSuffix(guardPkg, "/guard")

	// bridgeFrames match the frames elided from the outer end of a trace.
	bridgeFrames = []string{
		modulePkg + ".*",
		modulePkg + "/{guard,registry,output,proxy,convert}.*",
	}
)

// isBridgeFrame reports whether fn belongs to one of the bridge's own packages.
// Test packages (pkg_test) and subpackages do not match.
func isBridgeFrame(fn string) bool {
	for _, pattern := range bridgeFrames {
		if ok, _ := doublestar.Match(pattern, fn); ok {
			return true
		}
	}
	return false
}

// errorTrace renders a returned error and its wrapped causes.
func errorTrace(err error) Trace {
	t := Trace{Message: err.Error()}
	prev := t.Message
	for cause := stdErrors.Unwrap(err); cause != nil; cause = stdErrors.Unwrap(cause) {
		msg := cause.Error()
		if msg == prev || strings.HasSuffix(prev, msg) {
			prev = msg
			continue
		}
		t.Causes = append(t.Causes, msg)
		prev = msg
	}
	return t
}

// panicTrace renders a recovered panic with the program counters captured in
// the deferred recovery function.
func panicTrace(value any, pcs []uintptr) Trace {
	return Trace{
		Message: fmt.Sprintf("panic: %v", value),
		Frames:  filterFrames(framesOf(pcs)),
	}
}

func framesOf(pcs []uintptr) []Frame {
	frames := make([]Frame, 0, len(pcs))
	iter := runtime.CallersFrames(pcs)
	for {
		f, more := iter.Next()
		if f.Function != "" {
			frames = append(frames, Frame{Function: f.Function, File: f.File, Line: f.Line})
		}
		if !more {
			break
		}
	}
	return frames
}

// filterFrames removes the bridge's own frames. Frames are innermost first:
// the panic machinery is dropped from the inner end, and everything from the
// guard's invoke frame outward is dropped together with any bridge frames
// adjacent to it. When nothing would remain the input is returned unchanged.
func filterFrames(frames []Frame) []Frame {
	start := 0
	for i, f := range frames {
		if f.Function == "runtime.gopanic" {
			start = i + 1
			break
		}
	}
	for start < len(frames) && strings.HasPrefix(frames[start].Function, "runtime.") {
		start++
	}

	end := len(frames)
	for i := start; i < len(frames); i++ {
		if frames[i].Function == invokeName {
			end = i
			break
		}
	}
	for end > start && isBridgeFrame(frames[end-1].Function) {
		end--
	}

	if end <= start {
		return frames
	}
	return frames[start:end]
}

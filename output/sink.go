package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gristlabs/gristbridge/domain/entities"
)

// PrintOptions mirror the separator and terminator of a print call.
type PrintOptions struct {
	Sep string
	End string
}

// DefaultPrintOptions returns a single-space separator and a newline terminator.
func DefaultPrintOptions() PrintOptions {
	return PrintOptions{Sep: " ", End: "\n"}
}

// Sink is the capability that routes one invocation's output into a Pool.
// It is only honored while open; after Seal every call falls through.
type Sink struct {
	pool   *Pool
	owner  string
	mu     sync.RWMutex
	sealed bool

	textMu sync.Mutex
	text   *BoundedBuffer
}

// NewSink creates an open sink writing into pool on behalf of owner.
func NewSink(pool *Pool, owner string) *Sink {
	return &Sink{pool: pool, owner: owner, text: NewBoundedBuffer(DefaultMaxTextSize)}
}

// Owner returns the name of the invocation the sink belongs to.
func (s *Sink) Owner() string {
	return s.owner
}

// Seal closes the sink. Output produced through it afterwards, for example
// by goroutines that outlive the invocation, takes the fallback path.
func (s *Sink) Seal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
}

// Open reports whether the sink still captures output.
func (s *Sink) Open() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.sealed
}

// Write places a value directly into the pool, ignoring the sealed state.
// The guard uses it to render failures after the body has returned.
func (s *Sink) Write(ctx context.Context, value any, opts entities.DisplayOptions) error {
	return s.pool.Write(ctx, value, opts)
}

// Print routes a print call. A lone argument with default options keeps its
// value so rich objects survive; anything else is flattened to one string.
func (s *Sink) Print(ctx context.Context, opts PrintOptions, args ...any) error {
	if len(args) == 1 && opts == DefaultPrintOptions() {
		return s.pool.Write(ctx, args[0], entities.DisplayOptions{})
	}
	return s.pool.Write(ctx, s.flatten(opts, args), entities.DisplayOptions{Raw: true})
}

func (s *Sink) flatten(opts PrintOptions, args []any) string {
	s.textMu.Lock()
	defer s.textMu.Unlock()
	s.text.Reset()
	writeJoined(s.text, opts, args)
	return s.text.String()
}

// Display routes a rich display call.
func (s *Sink) Display(ctx context.Context, value any, opts entities.DisplayOptions) error {
	return s.pool.Write(ctx, value, opts)
}

func writeJoined(w io.Writer, opts PrintOptions, args []any) {
	for i, arg := range args {
		if i > 0 {
			fmt.Fprint(w, opts.Sep)
		}
		fmt.Fprint(w, arg)
	}
	fmt.Fprint(w, opts.End)
}

type sinkKey struct{}

type fallbackKey struct{}

// WithSink returns a context whose Print and Display calls go to s.
func WithSink(ctx context.Context, s *Sink) context.Context {
	return context.WithValue(ctx, sinkKey{}, s)
}

// SinkFrom returns the open sink carried by ctx, if any.
func SinkFrom(ctx context.Context) (*Sink, bool) {
	s, ok := ctx.Value(sinkKey{}).(*Sink)
	if !ok || s == nil || !s.Open() {
		return nil, false
	}
	return s, true
}

// WithFallback returns a context whose uncaptured output goes to w instead
// of standard output.
func WithFallback(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, fallbackKey{}, w)
}

func fallback(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(fallbackKey{}).(io.Writer); ok && w != nil {
		return w
	}
	return os.Stdout
}

// Print behaves like a standard print with default options.
func Print(ctx context.Context, args ...any) error {
	return PrintWith(ctx, DefaultPrintOptions(), args...)
}

// PrintWith behaves like a standard print with explicit separator and terminator.
func PrintWith(ctx context.Context, opts PrintOptions, args ...any) error {
	if s, ok := SinkFrom(ctx); ok {
		return s.Print(ctx, opts, args...)
	}
	writeJoined(fallback(ctx), opts, args)
	return nil
}

// Display shows a rich value. Outside a guarded invocation it prints the
// value's default text form.
func Display(ctx context.Context, value any, opts entities.DisplayOptions) error {
	if s, ok := SinkFrom(ctx); ok {
		return s.Display(ctx, value, opts)
	}
	_, err := fmt.Fprintln(fallback(ctx), value)
	return err
}

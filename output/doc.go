// Package output captures prints and rich displays produced by one guarded
// listener invocation and routes them into a fixed pool of host-visible
// output slots.
//
// Capture is scoped by context rather than by patching global routines: the
// guard places a Sink in the invocation's context, and Print and Display
// consult it. Code running with any other context, or after the invocation
// has ended, gets the ordinary behavior of writing to the fallback writer.
//
// # Basic Usage
//
//	func listener(ctx context.Context, data any) error {
//	    output.Print(ctx, "rows:", len(rows))
//	    return output.Display(ctx, chart, entities.DisplayOptions{MIMEType: "image/png"})
//	}
package output

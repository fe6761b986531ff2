// Package observe provides the tracing, metrics and logging primitives used
// around every entry point of the weather service.
//
// The centre of the package is the traced-span wrapper. Wrap and WrapAsync
// turn an ordinary function into one that opens a span, tags it with
// attributes derived from the call arguments, records the outcome and
// propagates results and errors unchanged. NewObserver builds the tracer
// provider those spans flow through.
package observe

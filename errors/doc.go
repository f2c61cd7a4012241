// Package errors provides structured error types for the HAL runtime.
//
// Errors are categorized by Phase (which setup step failed) and Kind (error
// category). The Error type carries the object path, the expected and actual
// HAL types for mismatches, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLink, errors.KindTypeMismatch).
//		Path("enc0", "count").
//		Want("s32").
//		Got("float").
//		Detail("cannot link to signal %q", "x-pos").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Duplicate(errors.PhaseExport, "pin", "enc0.count")
//	err := errors.NoMemory(errors.PhaseAlloc, 4096, 128)
//
// errors.Is matches on Phase and Kind. A target without a Phase matches any
// error of the same Kind, so callers can test for a category:
//
//	if errors.Is(err, errors.OfKind(errors.KindNotFound)) { ... }
//
// RT code never returns these errors. They are produced by setup-time calls
// only; the realtime paths report degradation through counter pins.
package errors

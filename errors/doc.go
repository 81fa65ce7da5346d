// Package errors implements the pipeline error taxonomy: validation errors
// (never retried, rejected at the boundary), transient service errors
// (retried with backoff), permanent service errors (fail fast), and
// consistency errors (invariant violations flagged for operators).
package errors

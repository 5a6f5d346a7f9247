// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package shader preprocesses shader source templates into compilable code.
//
// Templates are plain shader source carrying three directive forms:
//
//	@NAME@            numeric constant substitution
//	@include "file"   splice another template in place
//	@unroll for(...)  unroll a bounded counting loop
//
// plus ordinary // and /* */ comments, which are stripped first.
//
// Constants resolve against an ordered symbol table: user defines take
// priority over the global Registry of named constants (which includes
// platform capability flags derived from the device). An unresolved constant
// is not an error at preprocessing time; it is replaced by a placeholder
// identifier and reported through a trailing #error directive so the
// underlying shader compiler points at the precise location.
//
// Expansion runs as a bounded fixed-point loop: each pass applies constant
// substitution, include expansion, and loop unrolling until no directive
// remains or no progress is made. Include cycles are detected and rejected.
// Preprocessing is idempotent: running the preprocessor on fully resolved
// output returns it unchanged.
package shader

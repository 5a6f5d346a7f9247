// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shader

import (
	"errors"
	"strings"
	"testing"
)

// countCopies returns the positions of "i = N;" declarations in order.
func countCopies(t *testing.T, src string, n int) {
	t.Helper()
	last := -1
	for v := 0; v < n; v++ {
		idx := strings.Index(src, "i = "+itoa(v)+";")
		if idx < 0 {
			t.Fatalf("copy for i = %d missing in %q", v, src)
		}
		if idx < last {
			t.Fatalf("copy for i = %d out of order in %q", v, src)
		}
		last = idx
	}
	if strings.Contains(src, "i = "+itoa(n)+";") {
		t.Fatalf("extra copy for i = %d in %q", n, src)
	}
}

func itoa(v int) string {
	return string(rune('0' + v))
}

// TestUnrollExclusive verifies i<3 produces exactly 3 copies in order.
func TestUnrollExclusive(t *testing.T) {
	p := NewPreprocessor(NewRegistry())

	res, err := p.Process("@unroll for(int i = 0; i < 3; i++){ X(i); }")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	countCopies(t, res.Source, 3)
	if strings.Contains(res.Source, "for") {
		t.Errorf("loop survived unrolling: %q", res.Source)
	}
}

// TestUnrollInclusive verifies i<=2 also produces exactly 3 copies.
func TestUnrollInclusive(t *testing.T) {
	p := NewPreprocessor(NewRegistry())

	res, err := p.Process("@unroll for(int i = 0; i <= 2; i++){ X(i); }")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	countCopies(t, res.Source, 3)
}

// TestUnrollStep verifies i += STEP strides the counter.
func TestUnrollStep(t *testing.T) {
	p := NewPreprocessor(NewRegistry())

	res, err := p.Process("@unroll for(int i = 0; i < 6; i += 2){ X(i); }")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	for _, want := range []string{"i = 0;", "i = 2;", "i = 4;"} {
		if !strings.Contains(res.Source, want) {
			t.Errorf("missing %q in %q", want, res.Source)
		}
	}
	if strings.Contains(res.Source, "i = 6;") {
		t.Errorf("exclusive bound exceeded in %q", res.Source)
	}
}

// TestUnrollSymbolBounds verifies bounds resolve through the symbol table,
// both as bare identifiers and as constant tokens.
func TestUnrollSymbolBounds(t *testing.T) {
	p := NewPreprocessor(NewRegistry(Constant{"LEVELS", 2}))

	res, err := p.Process("@unroll for(int i = 0; i < LEVELS; i++){ X(i); }")
	if err != nil {
		t.Fatalf("ident bound: %v", err)
	}
	countCopies(t, res.Source, 2)

	res, err = p.Process("@unroll for(int i = 0; i < @LEVELS@; i++){ X(i); }")
	if err != nil {
		t.Fatalf("token bound: %v", err)
	}
	countCopies(t, res.Source, 2)
}

// TestUnrollBreakWrapped verifies bodies containing break get a one-shot
// dispatch scope so break stays legal.
func TestUnrollBreakWrapped(t *testing.T) {
	p := NewPreprocessor(NewRegistry())

	res, err := p.Process("@unroll for(int i = 0; i < 2; i++){ if (done(i)) { break; } }")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(res.Source, "switch (1) { default:") {
		t.Errorf("break expansion not wrapped: %q", res.Source)
	}
}

// TestUnrollContinueRejected verifies continue in the body is an error.
func TestUnrollContinueRejected(t *testing.T) {
	p := NewPreprocessor(NewRegistry())

	_, err := p.Process("@unroll for(int i = 0; i < 2; i++){ continue; }")
	if !errors.Is(err, ErrUnroll) {
		t.Errorf("Process = %v, want ErrUnroll", err)
	}
}

// TestUnrollUnresolvedBound verifies a bound that never resolves fails after
// the expansion passes run to quiescence.
func TestUnrollUnresolvedBound(t *testing.T) {
	p := NewPreprocessor(NewRegistry())

	_, err := p.Process("@unroll for(int i = 0; i < @NOPE@; i++){ X(i); }")
	if !errors.Is(err, ErrUnroll) {
		t.Errorf("Process = %v, want ErrUnroll", err)
	}
}

// TestUnrollMalformed verifies parse errors are immediate.
func TestUnrollMalformed(t *testing.T) {
	cases := []string{
		"@unroll while(1){ X(); }",
		"@unroll for(int i = 0; i > 3; i++){ X(i); }",
		"@unroll for(int i = 0; i < 3; i--){ X(i); }",
		"@unroll for(int i = 0; i < 3; i++) X(i);",
		"@unroll for(int i = 0; i < 3; i += 0){ X(i); }",
	}
	p := NewPreprocessor(NewRegistry())
	for _, src := range cases {
		if _, err := p.Process(src); !errors.Is(err, ErrUnroll) {
			t.Errorf("Process(%q) = %v, want ErrUnroll", src, err)
		}
	}
}

// TestUnrollNested verifies an unrolled body can itself contain an @unroll
// that expands on a later pass.
func TestUnrollNested(t *testing.T) {
	p := NewPreprocessor(NewRegistry())

	src := "@unroll for(int y = 0; y < 2; y++){ @unroll for(int x = 0; x < 2; x++){ T(x, y); } }"
	res, err := p.Process(src)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	for _, want := range []string{"T(x, y);"} {
		if strings.Count(res.Source, want) != 4 {
			t.Errorf("want 4 copies of %q, got %d in %q", want, strings.Count(res.Source, want), res.Source)
		}
	}
	if strings.Contains(res.Source, "@unroll") {
		t.Errorf("nested directive survived: %q", res.Source)
	}
}

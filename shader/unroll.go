// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shader

import (
	"fmt"
	"strconv"
	"strings"
)

// maxUnrollIterations caps the copies emitted for one @unroll directive.
const maxUnrollIterations = 1024

// unrollLoops expands each @unroll for(TYPE i = START; i <OP> END; i++|i+=STEP)
// { BODY } directive into STEP-count inlined copies of BODY, each in a fresh
// scope with the counter declared to its iteration value. Directives whose
// bounds are not yet resolvable are left for a later pass. Malformed
// directives fail immediately.
func unrollLoops(src string, values map[string]int) (string, bool, error) {
	var b strings.Builder
	b.Grow(len(src))
	changed := false
	for i := 0; i < len(src); {
		if src[i] != '@' {
			b.WriteByte(src[i])
			i++
			continue
		}
		name, j := scanIdent(src, i+1)
		if name != "unroll" {
			b.WriteByte('@')
			i++
			continue
		}
		expansion, next, ok, err := expandUnroll(src, i, j, values)
		if err != nil {
			return "", false, err
		}
		if !ok {
			// Bounds not resolvable yet; defer to a later pass.
			b.WriteByte('@')
			i++
			continue
		}
		b.WriteString(expansion)
		i = next
		changed = true
	}
	return b.String(), changed, nil
}

// expandUnroll parses and expands the directive whose '@' sits at src[at],
// with j just past the "unroll" keyword. Returns ok=false when a loop bound
// is an identifier or constant token with no value yet.
func expandUnroll(src string, at, j int, values map[string]int) (string, int, bool, error) {
	line := lineOf(src, at)
	fail := func(format string, args ...any) (string, int, bool, error) {
		return "", 0, false, fmt.Errorf("%w at line %d: %s", ErrUnroll, line, fmt.Sprintf(format, args...))
	}

	j = skipSpace(src, j)
	kw, j := scanIdent(src, j)
	if kw != "for" {
		return fail("expected 'for'")
	}
	j = skipSpace(src, j)
	if j >= len(src) || src[j] != '(' {
		return fail("expected '('")
	}
	close := strings.IndexByte(src[j:], ')')
	if close < 0 {
		return fail("unterminated loop header")
	}
	header := src[j+1 : j+close]
	j += close + 1

	j = skipSpace(src, j)
	bodyEnd := matchBrace(src, j)
	if bodyEnd < 0 {
		return fail("expected loop body")
	}
	body := src[j+1 : bodyEnd-1]

	parts := strings.Split(header, ";")
	if len(parts) != 3 {
		return fail("header needs init; condition; increment")
	}

	// init: TYPE name = START
	left, startExpr, ok := strings.Cut(parts[0], "=")
	if !ok {
		return fail("bad initializer %q", strings.TrimSpace(parts[0]))
	}
	decl := strings.Fields(left)
	if len(decl) != 2 {
		return fail("bad counter declaration %q", strings.TrimSpace(left))
	}
	typ, counter := decl[0], decl[1]

	// condition: name < END or name <= END
	cond := strings.TrimSpace(parts[1])
	condVar, endExpr, inclusive := "", "", false
	if l, r, ok := strings.Cut(cond, "<="); ok {
		condVar, endExpr, inclusive = strings.TrimSpace(l), r, true
	} else if l, r, ok := strings.Cut(cond, "<"); ok {
		condVar, endExpr = strings.TrimSpace(l), r
	} else {
		return fail("condition must use < or <=")
	}
	if condVar != counter {
		return fail("condition tests %q, counter is %q", condVar, counter)
	}

	// increment: name++ or name += STEP
	incr := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, parts[2])
	step, stepOK := 1, true
	switch {
	case incr == counter+"++":
	case strings.HasPrefix(incr, counter+"+="):
		var err error
		step, stepOK, err = resolveBound(incr[len(counter)+2:], values)
		if err != nil {
			return fail("bad step %q", incr[len(counter)+2:])
		}
	default:
		return fail("increment must be %s++ or %s+=STEP", counter, counter)
	}

	start, startOK, err := resolveBound(startExpr, values)
	if err != nil {
		return fail("bad start bound %q", strings.TrimSpace(startExpr))
	}
	end, endOK, err := resolveBound(endExpr, values)
	if err != nil {
		return fail("bad end bound %q", strings.TrimSpace(endExpr))
	}
	if !startOK || !endOK || !stepOK {
		return "", 0, false, nil
	}
	if step <= 0 {
		return fail("step must be positive, got %d", step)
	}
	if containsWord(body, "continue") {
		return fail("'continue' is not supported in unrolled bodies")
	}

	var e strings.Builder
	hasBreak := containsWord(body, "break")
	if hasBreak {
		// One-shot dispatch scope keeps 'break' legal in the copies.
		e.WriteString("switch (1) { default: ")
	}
	count := 0
	for v := start; v < end || (inclusive && v == end); v += step {
		count++
		if count > maxUnrollIterations {
			return fail("more than %d iterations", maxUnrollIterations)
		}
		fmt.Fprintf(&e, "{ %s %s = %d;", typ, counter, v)
		e.WriteString(body)
		e.WriteString("}")
	}
	if hasBreak {
		e.WriteString("}")
	}
	return e.String(), bodyEnd, true, nil
}

// resolveBound evaluates a loop bound: a decimal literal, an identifier in
// the symbol table, or a not-yet-substituted constant token (deferred).
// Returns ok=false for deferrable bounds, an error for malformed ones.
func resolveBound(expr string, values map[string]int) (int, bool, error) {
	s := strings.TrimSpace(expr)
	if v, err := strconv.Atoi(s); err == nil {
		return v, true, nil
	}
	if strings.ContainsRune(s, '@') {
		return 0, false, nil
	}
	if id, k := scanIdent(s, 0); id != "" && k == len(s) {
		if v, ok := values[id]; ok {
			return v, true, nil
		}
		return 0, false, nil
	}
	return 0, false, fmt.Errorf("malformed bound %q", s)
}

// containsWord reports whether word appears in src as a whole identifier.
func containsWord(src, word string) bool {
	for i := 0; i+len(word) <= len(src); i++ {
		if src[i:i+len(word)] != word {
			continue
		}
		if i > 0 && isIdentPart(src[i-1]) {
			continue
		}
		if j := i + len(word); j < len(src) && isIdentPart(src[j]) {
			continue
		}
		return true
	}
	return false
}

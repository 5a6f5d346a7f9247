// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shader

import (
	"errors"
	"strings"
	"testing"
)

// TestStripComments verifies both comment forms are removed.
func TestStripComments(t *testing.T) {
	src := "a /* block\ncomment */ b // line comment\nc"
	got := stripComments(src)
	want := "a   b \nc"
	if got != want {
		t.Errorf("stripComments = %q, want %q", got, want)
	}
}

// TestConstantSubstitution verifies @NAME@ tokens resolve from the registry.
func TestConstantSubstitution(t *testing.T) {
	p := NewPreprocessor(NewRegistry(Constant{"WIDTH", 640}, Constant{"HEIGHT", 480}))

	res, err := p.Process("let w = @WIDTH@; let h = @HEIGHT@;")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := "let w = 640; let h = 480;"
	if res.Source != want {
		t.Errorf("Source = %q, want %q", res.Source, want)
	}
}

// TestDefinePrecedence verifies user defines override registry constants and
// that the emitted constant table reflects the override.
func TestDefinePrecedence(t *testing.T) {
	p := NewPreprocessor(NewRegistry(Constant{"FOO", 0}))

	res, err := p.Process("x = @FOO@;", Define{Name: "FOO", Value: 1})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Source != "x = 1;" {
		t.Errorf("Source = %q, want %q", res.Source, "x = 1;")
	}
	found := false
	for _, c := range res.Constants {
		if c.Name == "FOO" {
			found = true
			if c.Value != 1 {
				t.Errorf("constant table FOO = %d, want 1", c.Value)
			}
		}
	}
	if !found {
		t.Error("FOO missing from constant table")
	}
}

// TestIdempotent verifies reprocessing fully resolved output is a no-op.
func TestIdempotent(t *testing.T) {
	p := NewPreprocessor(NewDefaultRegistry())

	src := "const bits = @FIX_BITS@;\n@unroll for(int i = 0; i < 2; i++){ f(i); }\n"
	first, err := p.Process(src)
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}
	second, err := p.Process(first.Source)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if second.Source != first.Source {
		t.Errorf("reprocessing changed output:\nfirst:  %q\nsecond: %q", first.Source, second.Source)
	}
}

// TestShaderAttributesUntouched verifies WGSL attribute syntax is not
// mistaken for constant tokens.
func TestShaderAttributesUntouched(t *testing.T) {
	p := NewPreprocessor(NewDefaultRegistry())

	src := "@group(0) @binding(0) var tex: texture_2d<f32>;\n@compute @workgroup_size(8, 8)\nfn main() {}\n"
	res, err := p.Process(src)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Source != src {
		t.Errorf("attributes rewritten:\ngot  %q\nwant %q", res.Source, src)
	}
}

// TestUnresolvedConstantDiagnostic verifies unresolved names become
// placeholders with trailing #error directives instead of failing.
func TestUnresolvedConstantDiagnostic(t *testing.T) {
	p := NewPreprocessor(NewRegistry())

	res, err := p.Process("a;\nlet v = @MISSING@;")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(res.Source, "__undef_MISSING") {
		t.Errorf("no placeholder in %q", res.Source)
	}
	if !strings.Contains(res.Source, "#error undefined constant 'MISSING' (line 2)") {
		t.Errorf("no trailing diagnostic in %q", res.Source)
	}
	if len(res.Unresolved) != 1 || res.Unresolved[0] != "MISSING" {
		t.Errorf("Unresolved = %v, want [MISSING]", res.Unresolved)
	}
}

// TestInclude verifies include splicing with nested expansion.
func TestInclude(t *testing.T) {
	resolver := MapResolver{
		"common.wgsl": "// shared helpers\nfn helper() -> i32 { return @N@; }\n",
		"outer.wgsl":  "@include \"common.wgsl\"",
	}
	p := NewPreprocessor(NewRegistry(Constant{"N", 7}), WithIncludes(resolver))

	res, err := p.Process("@include \"outer.wgsl\"\nfn main() {}")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(res.Source, "return 7;") {
		t.Errorf("nested include not expanded: %q", res.Source)
	}
	if strings.Contains(res.Source, "@include") {
		t.Errorf("include directive survived: %q", res.Source)
	}
}

// TestIncludeCycle verifies cyclic includes are rejected.
func TestIncludeCycle(t *testing.T) {
	resolver := MapResolver{
		"a.wgsl": "@include \"b.wgsl\"",
		"b.wgsl": "@include \"a.wgsl\"",
	}
	p := NewPreprocessor(NewRegistry(), WithIncludes(resolver))

	_, err := p.Process("@include \"a.wgsl\"")
	if !errors.Is(err, ErrIncludeCycle) {
		t.Errorf("Process = %v, want ErrIncludeCycle", err)
	}
}

// TestIncludeSelfCycle verifies a file including itself is rejected.
func TestIncludeSelfCycle(t *testing.T) {
	resolver := MapResolver{"self.wgsl": "@include \"self.wgsl\""}
	p := NewPreprocessor(NewRegistry(), WithIncludes(resolver))

	_, err := p.Process("@include \"self.wgsl\"")
	if !errors.Is(err, ErrIncludeCycle) {
		t.Errorf("Process = %v, want ErrIncludeCycle", err)
	}
}

// TestIncludeMissing verifies unknown files and missing resolvers fail.
func TestIncludeMissing(t *testing.T) {
	p := NewPreprocessor(NewRegistry(), WithIncludes(MapResolver{}))
	if _, err := p.Process("@include \"nope.wgsl\""); !errors.Is(err, ErrInclude) {
		t.Errorf("unknown file: Process = %v, want ErrInclude", err)
	}

	bare := NewPreprocessor(NewRegistry())
	if _, err := bare.Process("@include \"x.wgsl\""); !errors.Is(err, ErrInclude) {
		t.Errorf("no resolver: Process = %v, want ErrInclude", err)
	}
}

// TestProcessCached verifies repeat calls hit the result cache.
func TestProcessCached(t *testing.T) {
	calls := 0
	resolver := resolverFunc(func(name string) (string, error) {
		calls++
		return "fn f() {}", nil
	})
	p := NewPreprocessor(NewRegistry(), WithIncludes(resolver))

	for i := 0; i < 3; i++ {
		if _, err := p.Process("@include \"f.wgsl\""); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("resolver called %d times, want 1", calls)
	}
}

type resolverFunc func(string) (string, error)

func (f resolverFunc) Resolve(name string) (string, error) { return f(name) }

// TestRegistryOrder verifies Add preserves declaration order on update.
func TestRegistryOrder(t *testing.T) {
	r := NewRegistry(Constant{"A", 1}, Constant{"B", 2})
	r.Add("A", 10)
	r.Add("C", 3)

	got := r.Constants()
	want := []Constant{{"A", 10}, {"B", 2}, {"C", 3}}
	if len(got) != len(want) {
		t.Fatalf("Constants len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Constants[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

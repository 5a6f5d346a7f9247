// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shader

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/vision/internal/cache"
)

// Preprocessing errors.
var (
	// ErrInclude indicates an @include directive could not be resolved.
	ErrInclude = errors.New("shader: unresolved include")

	// ErrIncludeCycle indicates a cyclic @include chain.
	ErrIncludeCycle = errors.New("shader: include cycle")

	// ErrUnroll indicates a malformed or unresolvable @unroll directive.
	ErrUnroll = errors.New("shader: bad unroll")
)

// maxPasses bounds the expansion fixed-point loop. Each pass can only make
// progress by resolving a directive, so real templates converge in two or
// three passes; the cap guards against pathological self-feeding expansions.
const maxPasses = 32

// IncludeResolver maps an @include name to template text.
type IncludeResolver interface {
	Resolve(name string) (string, error)
}

// MapResolver resolves includes from an in-memory map of name to source.
type MapResolver map[string]string

// Resolve implements IncludeResolver.
func (m MapResolver) Resolve(name string) (string, error) {
	src, ok := m[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInclude, name)
	}
	return src, nil
}

// Result is the output of one preprocessing run.
type Result struct {
	// Source is the expanded shader source. If Unresolved is non-empty the
	// source carries placeholder identifiers plus trailing #error directives
	// so the downstream compiler reports precise locations.
	Source string

	// Constants is the effective symbol table in declaration order, with
	// user defines overriding registry values.
	Constants []Constant

	// Unresolved lists constant names that had no value, in order of first
	// appearance.
	Unresolved []string
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithIncludes sets the resolver consulted by @include directives.
func WithIncludes(r IncludeResolver) Option {
	return func(p *Preprocessor) { p.resolver = r }
}

// WithCacheCapacity sets the per-shard capacity of the result cache.
func WithCacheCapacity(n int) Option {
	return func(p *Preprocessor) {
		p.results = cache.NewSharded[string, Result](n, cache.StringHasher)
	}
}

// Preprocessor expands shader templates into compilable source.
// Safe for concurrent use once constructed.
type Preprocessor struct {
	registry *Registry
	resolver IncludeResolver
	results  *cache.Sharded[string, Result]
}

// NewPreprocessor creates a preprocessor resolving constants against reg.
// A nil reg means only user defines are available.
func NewPreprocessor(reg *Registry, opts ...Option) *Preprocessor {
	if reg == nil {
		reg = NewRegistry()
	}
	p := &Preprocessor{
		registry: reg,
		results:  cache.NewSharded[string, Result](cache.DefaultCapacity, cache.StringHasher),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process expands src with the given defines. Defines take priority over
// registry constants of the same name. The expansion is idempotent: running
// Process on fully resolved output returns it unchanged.
//
// Unresolved constants do not fail the run; they become placeholder
// identifiers reported via trailing #error directives in Result.Source.
// Include cycles, malformed loops, and unresolvable loop bounds fail.
func (p *Preprocessor) Process(src string, defines ...Define) (Result, error) {
	key := processKey(src, defines)
	if res, ok := p.results.Get(key); ok {
		return res, nil
	}
	res, err := p.run(src, defines)
	if err != nil {
		return Result{}, err
	}
	p.results.Set(key, res)
	return res, nil
}

func processKey(src string, defines []Define) string {
	var b strings.Builder
	b.Grow(len(src) + 16*len(defines))
	b.WriteString(src)
	for _, d := range defines {
		b.WriteByte(0)
		b.WriteString(d.Name)
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(d.Value))
	}
	return b.String()
}

// symbolTable merges defines over the registry, preserving registry order and
// appending novel defines in their given order.
func (p *Preprocessor) symbolTable(defines []Define) ([]Constant, map[string]int) {
	ordered := make([]Constant, 0, p.registry.Len()+len(defines))
	ordered = append(ordered, p.registry.Constants()...)
	table := make(map[string]int, cap(ordered))
	for i, c := range ordered {
		table[c.Name] = i
	}
	for _, d := range defines {
		if i, ok := table[d.Name]; ok {
			ordered[i].Value = d.Value
			continue
		}
		table[d.Name] = len(ordered)
		ordered = append(ordered, Constant{Name: d.Name, Value: d.Value})
	}
	values := make(map[string]int, len(ordered))
	for _, c := range ordered {
		values[c.Name] = c.Value
	}
	return ordered, values
}

func (p *Preprocessor) run(src string, defines []Define) (Result, error) {
	ordered, values := p.symbolTable(defines)

	out := stripComments(src)
	for pass := 0; pass < maxPasses; pass++ {
		changed := false

		next, c := substituteConstants(out, values)
		out, changed = next, changed || c

		next, c, err := p.expandIncludes(out, nil)
		if err != nil {
			return Result{}, err
		}
		out, changed = next, changed || c

		next, c, err = unrollLoops(out, values)
		if err != nil {
			return Result{}, err
		}
		out, changed = next, changed || c

		if !changed {
			break
		}
	}

	// Deferred loops whose bounds never resolved are a hard error; the
	// fixed-point loop above has run them to quiescence.
	if at, ok := findDirective(out, "unroll"); ok {
		return Result{}, fmt.Errorf("%w: unresolved loop bounds at line %d", ErrUnroll, lineOf(out, at))
	}

	out, unresolved := placeholderUnresolved(out)
	return Result{Source: out, Constants: ordered, Unresolved: unresolved}, nil
}

// substituteConstants replaces each resolvable @NAME@ token with its decimal
// value. Unresolvable tokens are left in place for later passes.
func substituteConstants(src string, values map[string]int) (string, bool) {
	var b strings.Builder
	b.Grow(len(src))
	changed := false
	for i := 0; i < len(src); {
		if src[i] == '@' {
			name, j := scanIdent(src, i+1)
			if name != "" && j < len(src) && src[j] == '@' {
				if v, ok := values[name]; ok {
					b.WriteString(strconv.Itoa(v))
					i = j + 1
					changed = true
					continue
				}
			}
		}
		b.WriteByte(src[i])
		i++
	}
	return b.String(), changed
}

// expandIncludes splices each @include "name" directive with the resolved
// template, recursively expanded. stack holds the active include chain for
// cycle detection.
func (p *Preprocessor) expandIncludes(src string, stack []string) (string, bool, error) {
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
		if name != "include" {
			b.WriteByte(src[i])
			i++
			continue
		}
		at := i
		j = skipSpace(src, j)
		if j >= len(src) || src[j] != '"' {
			return "", false, fmt.Errorf("%w: malformed directive at line %d", ErrInclude, lineOf(src, at))
		}
		end := strings.IndexByte(src[j+1:], '"')
		if end < 0 {
			return "", false, fmt.Errorf("%w: unterminated name at line %d", ErrInclude, lineOf(src, at))
		}
		file := src[j+1 : j+1+end]
		i = j + 1 + end + 1

		for _, active := range stack {
			if active == file {
				chain := strings.Join(append(append([]string{}, stack...), file), " -> ")
				return "", false, fmt.Errorf("%w: %s", ErrIncludeCycle, chain)
			}
		}
		if p.resolver == nil {
			return "", false, fmt.Errorf("%w: %q (no resolver configured)", ErrInclude, file)
		}
		text, err := p.resolver.Resolve(file)
		if err != nil {
			return "", false, err
		}
		sub, _, err := p.expandIncludes(stripComments(text), append(stack, file))
		if err != nil {
			return "", false, err
		}
		b.WriteString(sub)
		changed = true
	}
	return b.String(), changed, nil
}

// findDirective locates the first @name directive token, returning its byte
// offset. Only matches when name is the complete identifier after '@'.
func findDirective(src, name string) (int, bool) {
	for i := 0; i < len(src); i++ {
		if src[i] != '@' {
			continue
		}
		id, _ := scanIdent(src, i+1)
		if id == name {
			return i, true
		}
	}
	return 0, false
}

// placeholderUnresolved rewrites each remaining @NAME@ token as the
// identifier __undef_NAME and appends one trailing #error directive per
// distinct name so the shader compiler reports the failure with a location.
func placeholderUnresolved(src string) (string, []string) {
	var b strings.Builder
	b.Grow(len(src))
	var names []string
	lines := make(map[string]int)
	for i := 0; i < len(src); {
		if src[i] == '@' {
			name, j := scanIdent(src, i+1)
			if name != "" && j < len(src) && src[j] == '@' {
				b.WriteString("__undef_")
				b.WriteString(name)
				if _, seen := lines[name]; !seen {
					lines[name] = lineOf(src, i)
					names = append(names, name)
				}
				i = j + 1
				continue
			}
		}
		b.WriteByte(src[i])
		i++
	}
	if len(names) == 0 {
		return b.String(), nil
	}
	out := b.String()
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	for _, name := range names {
		out += fmt.Sprintf("#error undefined constant '%s' (line %d)\n", name, lines[name])
	}
	return out, names
}

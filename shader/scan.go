// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shader

import "strings"

// stripComments removes /* */ block comments and // line comments.
// Shader languages have no string literals, so no quoting rules apply.
// Block comments are replaced by a single space so token boundaries survive;
// line comments are removed up to (not including) the newline.
func stripComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	for i := 0; i < len(src); {
		if src[i] == '/' && i+1 < len(src) {
			switch src[i+1] {
			case '/':
				for i < len(src) && src[i] != '\n' {
					i++
				}
				continue
			case '*':
				i += 2
				for i+1 < len(src) && !(src[i] == '*' && src[i+1] == '/') {
					i++
				}
				i += 2
				if i > len(src) {
					i = len(src)
				}
				b.WriteByte(' ')
				continue
			}
		}
		b.WriteByte(src[i])
		i++
	}
	return b.String()
}

// isIdentStart reports whether c can start an identifier.
func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// isIdentPart reports whether c can continue an identifier.
func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// scanIdent returns the identifier starting at src[i] and the index just
// past it. Returns "" if src[i] cannot start an identifier.
func scanIdent(src string, i int) (string, int) {
	if i >= len(src) || !isIdentStart(src[i]) {
		return "", i
	}
	j := i + 1
	for j < len(src) && isIdentPart(src[j]) {
		j++
	}
	return src[i:j], j
}

// skipSpace returns the index of the first non-whitespace byte at or after i.
func skipSpace(src string, i int) int {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t' || src[i] == '\n' || src[i] == '\r') {
		i++
	}
	return i
}

// matchBrace returns the index just past the '}' matching the '{' at src[i].
// Returns -1 if the braces are unbalanced. Comments must already be stripped.
func matchBrace(src string, i int) int {
	if i >= len(src) || src[i] != '{' {
		return -1
	}
	depth := 0
	for ; i < len(src); i++ {
		switch src[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// lineOf returns the 1-based line number of byte offset i in src.
func lineOf(src string, i int) int {
	if i > len(src) {
		i = len(src)
	}
	return 1 + strings.Count(src[:i], "\n")
}

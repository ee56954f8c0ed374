// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package lualex

import "strings"

// numeral scans a Lua 5.1 numeric literal: decimal integers/floats with an
// optional exponent, or hexadecimal integers ("0x" prefix, no hex floats —
// those are a 5.2+ extension).
func (s *Scanner) numeral(pos Position) (Token, error) {
	var sb strings.Builder
	isHex := false
	if b, ok := s.peek(); ok && b == '0' {
		if b2, ok2 := s.peekAt(1); ok2 && (b2 == 'x' || b2 == 'X') {
			isHex = true
			sb.WriteByte(s.advance())
			sb.WriteByte(s.advance())
		}
	}
	digit := isDigit
	if isHex {
		digit = isHexDigit
	}
	for {
		b, ok := s.peek()
		if !ok {
			break
		}
		switch {
		case digit(b):
			sb.WriteByte(s.advance())
		case b == '.':
			sb.WriteByte(s.advance())
		case !isHex && (b == 'e' || b == 'E'):
			sb.WriteByte(s.advance())
			if b2, ok2 := s.peek(); ok2 && (b2 == '+' || b2 == '-') {
				sb.WriteByte(s.advance())
			}
		default:
			goto done
		}
	}
done:
	return Token{Kind: NumeralToken, Position: pos, Value: sb.String()}, nil
}

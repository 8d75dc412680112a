package workload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

// ErrSyntax is returned for source the scanner cannot tokenize.
var ErrSyntax = errors.New("workload: syntax error")

// ScanResult summarises a scanned source.
type ScanResult struct {
	Tokens    int
	Functions int
	Imports   int
	Exports   int
	Lines     int
}

// scanCheckEvery is the token interval between cancellation checks.
const scanCheckEvery = 1024

// Scan tokenizes src the way a parser front end would, counting functions
// and, for modules, import and export declarations. Import and export are
// syntax errors outside a module.
func Scan(ctx context.Context, src []byte, module bool) (*ScanResult, error) {
	res := &ScanResult{Lines: 1}
	line := 1

	for i := 0; i < len(src); {
		if res.Tokens%scanCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		r, size := utf8.DecodeRune(src[i:])
		switch {
		case r == '\n':
			line++
			i += size
			continue
		case unicode.IsSpace(r):
			i += size
			continue
		case r == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			continue
		case r == '/' && i+1 < len(src) && src[i+1] == '*':
			end := bytes.Index(src[i+2:], []byte("*/"))
			if end < 0 {
				return nil, fmt.Errorf("%w: line %d: unterminated comment", ErrSyntax, line)
			}
			end += i + 2
			line += bytes.Count(src[i:end], []byte{'\n'})
			i = end + 2
			continue
		case r == '"' || r == '\'' || r == '`':
			end, lines, ok := skipString(src, i)
			if !ok {
				return nil, fmt.Errorf("%w: line %d: unterminated string", ErrSyntax, line)
			}
			line += lines
			i = end
		case r == '_' || r == '$' || unicode.IsLetter(r):
			start := i
			for i < len(src) {
				r, size := utf8.DecodeRune(src[i:])
				if r != '_' && r != '$' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				i += size
			}
			switch word := string(src[start:i]); word {
			case "function":
				res.Functions++
			case "import", "export":
				if !module {
					return nil, fmt.Errorf("%w: line %d: %s outside a module", ErrSyntax, line, word)
				}
				if word == "import" {
					res.Imports++
				} else {
					res.Exports++
				}
			}
		case r == utf8.RuneError && size == 1:
			return nil, fmt.Errorf("%w: line %d: invalid UTF-8", ErrSyntax, line)
		default:
			i += size
		}
		res.Tokens++
	}

	res.Lines = line
	return res, nil
}

// skipString returns the index just past the string literal opening at
// src[start] and the number of newlines inside it.
func skipString(src []byte, start int) (end, lines int, ok bool) {
	quote := src[start]
	for i := start + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case '\n':
			if quote != '`' {
				return 0, 0, false
			}
			lines++
		case quote:
			return i + 1, lines, true
		}
	}
	return 0, 0, false
}

package config

import (
	"bytes"
	"unicode/utf8"
)

// byteRule is a whole-document check run before any line is interpreted.
type byteRule func([]byte) error

var byteRules = []byteRule{
	func(b []byte) error {
		if !utf8.Valid(b) {
			return newError(KindParse, "CFG-STR-001", "configuration must be valid UTF-8")
		}
		return nil
	},
	func(b []byte) error {
		if bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}) {
			return newError(KindCanonical, "CFG-CANON-002", "BOM not allowed")
		}
		return nil
	},
	func(b []byte) error {
		if bytes.IndexByte(b, '\r') >= 0 {
			return newError(KindCanonical, "CFG-CANON-001", "CR line endings not allowed")
		}
		return nil
	},
	func(b []byte) error {
		if len(b) > 0 && b[len(b)-1] == '\n' {
			return newError(KindCanonical, "CFG-CANON-003", "trailing newline not allowed")
		}
		return nil
	},
	func(b []byte) error {
		if !bytes.HasPrefix(b, []byte(Preamble+"\n")) {
			return newError(KindParse, "CFG-STR-010", "missing configuration preamble")
		}
		if !bytes.HasSuffix(b, []byte("\n"+Postamble)) {
			return newError(KindParse, "CFG-STR-010", "missing configuration postamble")
		}
		return nil
	},
	func(b []byte) error {
		for _, line := range bytes.Split(b, []byte("\n")) {
			if n := len(line); n > 0 && (line[n-1] == ' ' || line[n-1] == '\t') {
				return newError(KindCanonical, "CFG-CANON-004", "trailing whitespace not allowed")
			}
		}
		return nil
	},
}

func applyByteRules(b []byte) error {
	for _, r := range byteRules {
		if err := r(b); err != nil {
			return err
		}
	}
	return nil
}

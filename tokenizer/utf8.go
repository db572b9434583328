package tokenizer

import "unicode/utf8"

// decodeRuneAt decodes one UTF-8 codepoint starting at s[pos]. Malformed
// sequences report size 1 so callers always make progress.
func decodeRuneAt(s string, pos int) (r rune, size int) {
	r, size = utf8.DecodeRuneInString(s[pos:])
	if r == utf8.RuneError && size <= 1 {
		return utf8.RuneError, 1
	}
	return r, size
}

// isUnicodeSpace reports whether r is in the whitespace set used by the
// pretokenizer: ASCII whitespace plus the Unicode space separators the
// SentencePiece normalizer recognizes. Note U+0085 is deliberately not
// included.
func isUnicodeSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	case 0x00A0, 0x1680, 0x2028, 0x2029, 0x202F, 0x205F, 0x3000:
		return true
	}
	return r >= 0x2000 && r <= 0x200A
}

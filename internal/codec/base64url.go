package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrMalformedToken indicates a token that is not valid URL-safe base64 or
// does not decode to UTF-8 text.
var ErrMalformedToken = errors.New("malformed token")

var fromURLSafe = strings.NewReplacer("-", "+", "_", "/")

// EncodeURLSafe encodes text as base64 with '-' and '_' in place of '+' and
// '/' and without trailing '=' padding.
func EncodeURLSafe(text string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(text))
}

// DecodeURLSafe is the inverse of EncodeURLSafe. Padding is optional and
// surrounding whitespace is ignored; any other character outside the base64
// alphabets is rejected.
func DecodeURLSafe(token string) (string, error) {
	token = strings.TrimSpace(token)
	if i := strings.IndexFunc(token, notInAlphabet); i >= 0 {
		r, _ := utf8.DecodeRuneInString(token[i:])
		return "", fmt.Errorf("%w: invalid character %q at offset %d", ErrMalformedToken, r, i)
	}

	std := fromURLSafe.Replace(token)
	if rem := len(std) % 4; rem != 0 {
		std += strings.Repeat("=", 4-rem)
	}

	raw, err := base64.StdEncoding.DecodeString(std)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: decoded bytes are not valid UTF-8", ErrMalformedToken)
	}
	return string(raw), nil
}

func notInAlphabet(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return false
	case r == '-' || r == '_' || r == '+' || r == '/' || r == '=':
		return false
	}
	return true
}

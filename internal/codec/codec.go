// Package codec obscures stored key values so they are not kept as plain text.
//
// The only scheme, "xor", cycles the scheme key over the value and then
// base64-encodes the result, so stored values are always printable ASCII. This
// is obfuscation, not encryption: anyone holding the file holds the key too.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// SchemeXOR is the cyclic XOR + base64 scheme.
const SchemeXOR = "xor"

var (
	// ErrUnsupportedScheme reports a scheme other than the ones listed by Schemes.
	ErrUnsupportedScheme = errors.New("unsupported encoding scheme")

	// ErrEmptyInput reports an empty value, scheme or key.
	ErrEmptyInput = errors.New("empty input")

	// ErrMalformed reports text that is not valid encoded data.
	ErrMalformed = errors.New("malformed encoded value")
)

// Schemes returns the supported scheme names.
func Schemes() []string {
	return []string{SchemeXOR}
}

// Supported reports whether scheme can be used with EncodeKey and DecodeKey.
func Supported(scheme string) bool {
	return slices.Contains(Schemes(), scheme)
}

// XOR returns data XORed with key, cycling key from its first byte. Applying
// it twice with the same key yields the input. An empty key returns a copy of
// data.
func XOR(data, key []byte) []byte {
	out := make([]byte, len(data))
	if len(key) == 0 {
		copy(out, data)
		return out
	}
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}

// EncodeText returns the standard padded base64 encoding of data.
func EncodeText(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeText reverses EncodeText. It rejects input whose length is not a
// multiple of four and any character outside the base64 alphabet other than
// trailing padding.
func DecodeText(text string) ([]byte, error) {
	if len(text)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of 4", ErrMalformed, len(text))
	}
	// The standard decoder silently skips newlines
	if strings.ContainsAny(text, "\r\n") {
		return nil, fmt.Errorf("%w: line break in encoded text", ErrMalformed)
	}
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return data, nil
}

// EncodeKey obscures value with scheme and key.
func EncodeKey(value, scheme, key string) (string, error) {
	if err := checkArgs(value, scheme, key); err != nil {
		return "", err
	}
	return EncodeText(XOR([]byte(value), []byte(key))), nil
}

// DecodeKey reverses EncodeKey.
func DecodeKey(encoded, scheme, key string) (string, error) {
	if err := checkArgs(encoded, scheme, key); err != nil {
		return "", err
	}
	data, err := DecodeText(encoded)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: decodes to nothing", ErrMalformed)
	}
	return string(XOR(data, []byte(key))), nil
}

func checkArgs(value, scheme, key string) error {
	if value == "" || scheme == "" || key == "" {
		return ErrEmptyInput
	}
	if !Supported(scheme) {
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return nil
}

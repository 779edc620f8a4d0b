package tapedb

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tapedb/tapedb/pkg/document"
)

// EncodeFunc renders a document to its line-safe textual record, never
// producing an embedded newline (spec §4.1).
type EncodeFunc func(doc *document.Document) (string, error)

// DecodeFunc parses a textual record back into a document.
type DecodeFunc func(record string) (*document.Document, error)

// Codec is the C1 collaborator: a validated encode/decode pair.
type Codec struct {
	Encode EncodeFunc
	Decode DecodeFunc
}

// defaultEncode/defaultDecode are the collaborator-provided document text
// codec used when the caller supplies neither hook (spec §4.1): plain JSON,
// one object per line, via [document.Document]'s order-preserving
// (Un)MarshalJSON.
func defaultEncode(doc *document.Document) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("default codec: marshal: %w", err)
	}

	if strings.ContainsRune(string(data), '\n') {
		return "", fmt.Errorf("default codec: encoded record contains a newline")
	}

	return string(data), nil
}

func defaultDecode(record string) (*document.Document, error) {
	doc := document.New()

	err := json.Unmarshal([]byte(record), doc)
	if err != nil {
		return nil, fmt.Errorf("default codec: unmarshal: %w", err)
	}

	return doc, nil
}

// DefaultCodec returns the collaborator-provided JSON text codec.
func DefaultCodec() Codec {
	return Codec{Encode: defaultEncode, Decode: defaultDecode}
}

// newCodec validates and returns the effective codec for cfg, per spec
// §4.1: both hooks or neither; if both are supplied, verify invertibility
// against the synthetic sample before accepting them.
func newCodec(cfg Config) (Codec, error) {
	hasEncode := cfg.AfterSerialization != nil
	hasDecode := cfg.BeforeDeserialization != nil

	if hasEncode != hasDecode {
		return Codec{}, fmt.Errorf("%w: afterSerialization and beforeDeserialization must both be set or both be nil", ErrConfigurationInconsistent)
	}

	if !hasEncode {
		return DefaultCodec(), nil
	}

	codec := Codec{Encode: cfg.AfterSerialization, Decode: cfg.BeforeDeserialization}

	err := verifyInvertible(codec)
	if err != nil {
		return Codec{}, err
	}

	return codec, nil
}

// verifyInvertible checks decode(encode(x)) == x for every string x in the
// synthetic sample (spec §3 invariants, §4.1).
//
// Each sample string is embedded as the "data" field of a throwaway
// document so the caller's hooks are exercised the same way they will be
// in production (they operate on documents, not bare strings): the
// synthetic document round-trips through Encode then Decode, and the
// "data" field of the result must compare equal to the original string.
func verifyInvertible(codec Codec) error {
	for _, sample := range invertibilitySamples() {
		doc := document.New()
		doc.Set(document.FieldID, "~~verify")
		doc.Set("data", sample)

		encoded, err := codec.Encode(doc)
		if err != nil {
			return fmt.Errorf("%w: encode failed on verification sample: %w", ErrCodecNotInvertible, err)
		}

		if strings.ContainsRune(encoded, '\n') {
			return fmt.Errorf("%w: encoded record contains a newline", ErrCodecNotInvertible)
		}

		decoded, err := codec.Decode(encoded)
		if err != nil {
			return fmt.Errorf("%w: decode failed on verification sample: %w", ErrCodecNotInvertible, err)
		}

		got, ok := decoded.Get("data")
		if !ok || got != sample {
			return fmt.Errorf("%w: round trip of %q produced %v", ErrCodecNotInvertible, sample, got)
		}
	}

	return nil
}

// invertibilitySamples returns roughly 300 synthetic strings spanning
// length classes: empty, short, medium, long, and strings exercising
// characters that are easy to mishandle in a text codec (quotes,
// backslashes, control characters, unicode, surrogate-pair emoji).
func invertibilitySamples() []string {
	var samples []string

	samples = append(samples,
		"",
		"a",
		"ab",
		`"`,
		`\`,
		"\t",
		"\r",
		"line\\nwithout\\nactual\\nnewlines",
		"unicode: héllo wörld ☺ 日本語",
		"emoji: 😀🚀🎉",
		"null-ish: null true false 0 -1 3.14",
		`quote:"inside"string`,
		"backslash:\\\\double",
	)

	lengthClasses := []int{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 4096}
	alphabets := []string{
		"a",
		"ab",
		"The quick brown fox jumps over the lazy dog. ",
		"日本語のテスト文字列です。",
		`special!@#$%^&*()_+-=[]{}|;':",./<>?`,
	}

	for _, n := range lengthClasses {
		for _, alphabet := range alphabets {
			samples = append(samples, repeatTo(alphabet, n))
		}
	}

	// Pad out to ~300 samples with deterministic variations so the
	// verification exercises a broad length/character spread without
	// depending on randomness (construction must be deterministic).
	for i := len(samples); i < 300; i++ {
		samples = append(samples, fmt.Sprintf("sample-%d-%s", i, repeatTo("x", i%97)))
	}

	return samples
}

// repeatTo returns alphabet repeated until it reaches at least n runes,
// then truncated to exactly n runes.
func repeatTo(alphabet string, n int) string {
	if n <= 0 {
		return ""
	}

	runes := []rune(alphabet)
	if len(runes) == 0 {
		return ""
	}

	out := make([]rune, 0, n)
	for len(out) < n {
		out = append(out, runes...)
	}

	return string(out[:n])
}

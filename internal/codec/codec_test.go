package codec

import (
	"encoding/base64"
	"errors"
	"net/url"
	"reflect"
	"strings"
	"testing"
)

type sample struct {
	Size     int               `json:"size"`
	Sections []map[string]any  `json:"sections"`
	BgColor  string            `json:"bgColor"`
	Nickname string            `json:"nickname,omitempty"`
	Images   map[string]string `json:"images,omitempty"`
}

func newSample() sample {
	return sample{
		Size: 2,
		Sections: []map[string]any{
			{"title": "犬"}, {"title": "猫"}, {"title": "鳥"}, {"title": "🐟 fish"},
		},
		BgColor:  "#FF8B25",
		Nickname: "テスト太郎",
		Images:   map[string]string{"0": "data:image/jpeg;base64,/9j/4AAQSkZJRg=="},
	}
}

func TestRoundTrip(t *testing.T) {
	in := newSample()
	encoded, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var out sample
	if err := Decode(encoded, &out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in=%#v\nout=%#v", in, out)
	}
}

func TestEncodeIsASCII(t *testing.T) {
	encoded, err := Encode(newSample())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for i := 0; i < len(encoded); i++ {
		if encoded[i] > 0x7f {
			t.Fatalf("non-ASCII byte at %d", i)
		}
	}
}

func TestDecodeToleratesEscapingLayers(t *testing.T) {
	in := newSample()
	encoded, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	variants := map[string]string{
		"raw":                encoded,
		"query escaped":      url.QueryEscape(encoded),
		"path escaped":       url.PathEscape(encoded),
		"form decoded twice": strings.ReplaceAll(encoded, "+", " "),
	}
	if unescaped, err := url.QueryUnescape(url.QueryEscape(encoded)); err == nil {
		variants["query unescaped"] = unescaped
	}

	for name, payload := range variants {
		t.Run(name, func(t *testing.T) {
			var out sample
			if err := Decode(payload, &out); err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !reflect.DeepEqual(in, out) {
				t.Fatalf("mismatch: %#v", out)
			}
		})
	}
}

func TestDecodeWithoutPadding(t *testing.T) {
	encoded := base64.RawStdEncoding.EncodeToString([]byte(`{"size":3}`))
	var out sample
	if err := Decode(encoded, &out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.Size != 3 {
		t.Fatalf("expected size 3, got %d", out.Size)
	}
}

func TestDecodeLegacyPlainJSON(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		nickname string
	}{
		{name: "escaped", payload: url.PathEscape(`{"size":2,"nickname":"a b"}`), nickname: "a b"},
		{name: "escaped percent", payload: url.PathEscape(`{"size":2,"nickname":"100%"}`), nickname: "100%"},
		{name: "bare percent", payload: `{"size":2,"nickname":"100%"}`, nickname: "100%"},
		{name: "bare escape-like text", payload: `{"size":2,"nickname":"a%41b"}`, nickname: "a%41b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out sample
			if err := Decode(tt.payload, &out); err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if out.Nickname != tt.nickname {
				t.Fatalf("expected nickname %q, got %q", tt.nickname, out.Nickname)
			}
		})
	}
}

func TestEncodeKeepsHTMLCharacters(t *testing.T) {
	encoded, err := Encode(sample{Size: 2, Nickname: "<a&b>"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("payload is not base64: %v", err)
	}
	if want := `{"size":2,"sections":null,"bgColor":"","nickname":"<a&b>"}`; string(raw) != want {
		t.Fatalf("expected %s, got %s", want, raw)
	}
}

func TestDecodeFailures(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		stage   Stage
	}{
		{name: "empty", payload: "", stage: StageInput},
		{name: "blank", payload: "   ", stage: StageInput},
		{name: "bad base64", payload: "!!!not-base64!!!", stage: StageBase64},
		{name: "bad escape", payload: "abc%zz", stage: StageUnescape},
		{name: "not json", payload: base64.StdEncoding.EncodeToString([]byte("hello world")), stage: StageJSON},
		{name: "invalid utf8", payload: base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe, 0xfd}), stage: StageUTF8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out sample
			err := Decode(tt.payload, &out)
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
			if decodeErr.Stage != tt.stage {
				t.Fatalf("expected stage %s, got %s", tt.stage, decodeErr.Stage)
			}
		})
	}
}

func TestDecodeEmptyUnwrapsCause(t *testing.T) {
	err := Decode("", &sample{})
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestEncodeRejectsUnsupportedValues(t *testing.T) {
	_, err := Encode(map[string]any{"fn": func() {}})
	if !errors.Is(err, ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got %v", err)
	}
}

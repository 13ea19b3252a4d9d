package share

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"gridshare/api/internal/codec"
	"gridshare/api/internal/grid"
	"gridshare/api/internal/sharestore"
)

const baseURL = "https://example.com/shared.html"

func smallDoc() grid.Document {
	return grid.Document{
		Size:     2,
		Sections: []grid.Section{{Title: "犬"}, {Title: "猫"}, {Title: "鳥"}, {Title: "魚"}},
		BgColor:  "#FF8B25",
		Nickname: "テスト太郎",
	}
}

func photoDoc() grid.Document {
	doc := smallDoc()
	photo := "data:image/jpeg;base64," + strings.Repeat("A", 50_000)
	for i := range 3 {
		if err := doc.SetImage(i, photo); err != nil {
			panic(err)
		}
	}
	return doc
}

func newResolver() (*Resolver, *sharestore.Store) {
	links := sharestore.New(sharestore.NewMemoryBackend("gridshare"), nil, sharestore.Options{})
	return NewResolver(links, Options{}), links
}

type failingLinks struct{}

func (failingLinks) Save(context.Context, any) (string, error) {
	return "", &sharestore.StorageUnavailableError{Primary: errors.New("db down"), Fallback: errors.New("kv down")}
}

func (failingLinks) Get(context.Context, string) (json.RawMessage, error) {
	return nil, sharestore.ErrNotFound
}

func TestSmallGridIsInlined(t *testing.T) {
	r, _ := newResolver()
	link, err := r.ShortShareURL(context.Background(), baseURL, smallDoc())
	if err != nil {
		t.Fatalf("ShortShareURL failed: %v", err)
	}
	if link.Transport != TransportInline || link.Degraded {
		t.Fatalf("expected plain inline link, got %+v", link)
	}
	if !strings.HasPrefix(link.URL, baseURL+"?data=") || strings.Contains(link.URL, "id=") {
		t.Fatalf("unexpected url %s", link.URL)
	}
	if len(link.URL) >= 300 {
		t.Fatalf("expected url under 300 characters, got %d", len(link.URL))
	}
}

func TestPhotoGridIsStored(t *testing.T) {
	ctx := context.Background()
	r, _ := newResolver()
	doc := photoDoc()

	link, err := r.ShortShareURL(ctx, baseURL, doc)
	if err != nil {
		t.Fatalf("ShortShareURL failed: %v", err)
	}
	if link.Transport != TransportStored || link.URL != baseURL+"?id="+link.ID {
		t.Fatalf("unexpected link %+v", link)
	}
	if strings.Contains(link.URL, "data=") || len(link.URL) >= 100 {
		t.Fatalf("unexpected url %s", link.URL)
	}

	got, err := r.ResolveURL(ctx, link.URL)
	if err != nil {
		t.Fatalf("ResolveURL failed: %v", err)
	}
	if got.Nickname != doc.Nickname {
		t.Fatalf("expected nickname %q, got %q", doc.Nickname, got.Nickname)
	}
	if !reflect.DeepEqual(got.Images, doc.Images) {
		t.Fatal("images did not survive the round trip")
	}
}

func TestThreshold(t *testing.T) {
	r := NewResolver(nil, Options{InlineLimit: 200})

	small := smallDoc()
	if large, err := r.NeedsStorage(small); err != nil || large {
		t.Fatalf("expected small doc inline, large=%v err=%v", large, err)
	}

	long := smallDoc()
	long.Sections[0].Title = strings.Repeat("長", 100)
	if large, _ := r.NeedsStorage(long); !large {
		t.Fatal("expected long doc to need storage")
	}

	// '&' counts as one byte, not as the six of "\u0026".
	amp := smallDoc()
	amp.Sections[0].Title = strings.Repeat("&", 40)
	if large, _ := r.NeedsStorage(amp); large {
		t.Fatal("expected '&' titles to stay inline")
	}

	tiny := smallDoc()
	_ = tiny.SetImage(0, "data:image/png;base64,AA")
	if large, _ := r.NeedsStorage(tiny); !large {
		t.Fatal("any photo should force storage")
	}
}

func TestDefaultThresholdIsOneThousandBytes(t *testing.T) {
	r, _ := newResolver()
	doc := smallDoc()
	doc.Sections[0].Title = strings.Repeat("a", 1000)

	link, err := r.ShortShareURL(context.Background(), baseURL, doc)
	if err != nil {
		t.Fatalf("ShortShareURL failed: %v", err)
	}
	if link.Transport != TransportStored || strings.Contains(link.URL, "data=") {
		t.Fatalf("expected stored transport, got %+v", link)
	}
}

func TestStorageFailureDegradesToInline(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(failingLinks{}, Options{})
	doc := photoDoc()

	link, err := r.ShortShareURL(ctx, baseURL, doc)
	if err != nil {
		t.Fatalf("ShortShareURL should not fail on storage errors: %v", err)
	}
	if link.Transport != TransportInline || !link.Degraded {
		t.Fatalf("expected degraded inline link, got %+v", link)
	}
	got, err := r.ResolveURL(ctx, link.URL)
	if err != nil {
		t.Fatalf("ResolveURL failed: %v", err)
	}
	if !reflect.DeepEqual(got.Images, doc.Images) {
		t.Fatal("inline fallback lost the images")
	}
}

func TestShareURLAppendsToExistingQuery(t *testing.T) {
	link, err := ShareURL(baseURL+"?lang=ja", smallDoc())
	if err != nil {
		t.Fatalf("ShareURL failed: %v", err)
	}
	if !strings.HasPrefix(link, baseURL+"?lang=ja&data=") {
		t.Fatalf("unexpected url %s", link)
	}
}

func TestResolveInlineToleratesExtraDecoding(t *testing.T) {
	ctx := context.Background()
	r, _ := newResolver()
	want := smallDoc()

	link, err := ShareURL(baseURL, want)
	if err != nil {
		t.Fatalf("ShareURL failed: %v", err)
	}
	u, _ := url.Parse(link)
	once := u.Query().Get("data")
	twice, err := url.QueryUnescape(once)
	if err != nil {
		t.Fatalf("QueryUnescape failed: %v", err)
	}

	for name, payload := range map[string]string{"raw": u.RawQuery[len("data="):], "once": once, "twice": twice} {
		got, err := r.Resolve(ctx, url.Values{"data": {payload}})
		if err != nil {
			t.Fatalf("%s: Resolve failed: %v", name, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("%s: got %+v, want %+v", name, got, want)
		}
	}
}

func TestResolveErrors(t *testing.T) {
	ctx := context.Background()
	r, _ := newResolver()

	invalid, _ := codec.Encode(grid.Document{Size: 1, Sections: []grid.Section{{Title: "x"}}})

	tests := []struct {
		name   string
		params url.Values
		check  func(error) bool
	}{
		{name: "no payload", params: url.Values{}, check: func(err error) bool { return errors.Is(err, ErrNoPayload) }},
		{name: "blank id", params: url.Values{"id": {"  "}}, check: func(err error) bool { return errors.Is(err, ErrNoPayload) }},
		{name: "unknown id", params: url.Values{"id": {"zzzzzzzz"}}, check: func(err error) bool { return errors.Is(err, sharestore.ErrNotFound) }},
		{name: "bad data", params: url.Values{"data": {"!!!"}}, check: func(err error) bool {
			var decodeErr *codec.DecodeError
			return errors.As(err, &decodeErr)
		}},
		{name: "invalid grid", params: url.Values{"data": {invalid}}, check: func(err error) bool { return errors.Is(err, ErrInvalidDocument) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(ctx, tt.params)
			if err == nil || !tt.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestResolvePrefersID(t *testing.T) {
	ctx := context.Background()
	r, links := newResolver()
	stored := smallDoc()
	stored.Nickname = "stored"

	id, err := links.Save(ctx, stored)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	inline, _ := codec.Encode(smallDoc())

	got, err := r.Resolve(ctx, url.Values{"id": {id}, "data": {inline}})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.Nickname != "stored" {
		t.Fatalf("expected the stored document, got nickname %q", got.Nickname)
	}
}

package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sharedrop/sharedrop/internal/config"
)

func TestBuildSASURL(t *testing.T) {
	tests := []struct {
		cfg     config.AzureConfig
		want    string
		wantErr error
	}{
		{config.AzureConfig{AccountURL: "https://acct.blob.core.windows.net", SASToken: "sv=1&sig=x"}, "https://acct.blob.core.windows.net/?sv=1&sig=x", nil},
		{config.AzureConfig{AccountURL: "https://acct.blob.core.windows.net/", SASToken: "?sv=1"}, "https://acct.blob.core.windows.net/?sv=1", nil},
		{config.AzureConfig{AccountURL: "https://public.blob.core.windows.net"}, "https://public.blob.core.windows.net/", nil},
		{config.AzureConfig{SASToken: "sv=1"}, "", ErrMissingAccountURL},
	}
	for _, tt := range tests {
		got, err := buildSASURL(tt.cfg)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("buildSASURL(%+v) error = %v, want %v", tt.cfg, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("buildSASURL(%+v) = %q, want %q", tt.cfg, got, tt.want)
		}
	}
}

// fakeBlob serves hierarchical listings, properties and downloads for container "drops".
func fakeBlob(t *testing.T, blobs map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		q := r.URL.Query()
		if got := q.Get("sig"); got != "secret" {
			t.Errorf("SAS token missing from request, sig=%q", got)
		}
		name := strings.TrimPrefix(r.URL.Path, "/drops")
		name = strings.TrimPrefix(name, "/")

		if name == "" && q.Get("comp") == "list" {
			if q.Get("delimiter") != "/" {
				t.Errorf("expected a / delimiter, got %q", q.Get("delimiter"))
			}
			w.Header().Set("Content-Type", "application/xml")
			next := ""
			body := `<Blob><Name>inbox/b.bin</Name><Properties><Content-Length>1024</Content-Length></Properties></Blob>`
			if q.Get("marker") == "" {
				next = "m2"
				body = `<BlobPrefix><Name>inbox/photos/</Name></BlobPrefix>` +
					`<Blob><Name>inbox/a.txt</Name><Properties><Content-Length>3</Content-Length></Properties></Blob>`
			}
			fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?>`+
				`<EnumerationResults ServiceEndpoint="%s/" ContainerName="drops">`+
				`<Prefix>%s</Prefix><MaxResults>256</MaxResults><Delimiter>/</Delimiter>`+
				`<Blobs>%s</Blobs><NextMarker>%s</NextMarker></EnumerationResults>`,
				"http://"+r.Host, q.Get("prefix"), body, next)
			return
		}

		data, ok := blobs[name]
		if !ok {
			w.Header().Set("x-ms-error-code", "BlobNotFound")
			w.WriteHeader(nethttp.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.Header().Set("x-ms-blob-type", "BlockBlob")
		if r.Method == nethttp.MethodHead {
			return
		}
		io.WriteString(w, data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestStore(t *testing.T, srv *httptest.Server) *Store {
	t.Helper()
	store, err := NewStore("drops",
		config.AzureConfig{AccountURL: srv.URL, SASToken: "sv=2024&sig=secret"},
		Options{HTTPClient: srv.Client(), MaxRetries: -1})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func TestList(t *testing.T) {
	store := newTestStore(t, fakeBlob(t, nil))
	ctx := context.Background()

	page, err := store.List(ctx, "inbox/", "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Objects) != 1 || page.Objects[0].Key != "inbox/a.txt" || page.Objects[0].Size != 3 {
		t.Errorf("unexpected objects %+v", page.Objects)
	}
	if len(page.Prefixes) != 1 || page.Prefixes[0] != "inbox/photos/" {
		t.Errorf("unexpected prefixes %v", page.Prefixes)
	}
	if page.Next != "m2" {
		t.Errorf("Next = %q, want m2", page.Next)
	}

	page, err = store.List(ctx, "inbox/", page.Next)
	if err != nil {
		t.Fatalf("List page 2 failed: %v", err)
	}
	if page.Next != "" || len(page.Objects) != 1 || page.Objects[0].Size != 1024 {
		t.Errorf("unexpected last page %+v", page)
	}
}

func TestStatAndGet(t *testing.T) {
	store := newTestStore(t, fakeBlob(t, map[string]string{"inbox/a.txt": "abc"}))
	ctx := context.Background()

	size, found, err := store.Stat(ctx, "inbox/a.txt")
	if err != nil || !found || size != 3 {
		t.Errorf("Stat() = %d, %v, %v", size, found, err)
	}

	if _, found, err := store.Stat(ctx, "inbox/missing"); err != nil || found {
		t.Errorf("missing blob should be not found without error, got %v, %v", found, err)
	}

	rc, err := store.Get(ctx, "inbox/a.txt")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "abc" {
		t.Errorf("Get() = %q", data)
	}
}

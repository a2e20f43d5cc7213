package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is a path-style S3 subset (Put, Get, Delete, ListObjectsV2) kept
// in memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFake() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	respond := func(code int, body string, hdr http.Header) *http.Response {
		if hdr == nil {
			hdr = http.Header{}
		}
		return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(body)), Header: hdr, Request: req}
	}

	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2026-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k]))
		}
		b.WriteString(`</ListBucketResult>`)
		return respond(http.StatusOK, b.String(), http.Header{"Content-Type": {"application/xml"}}), nil

	case req.Method == http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		f.objects[key] = body
		return respond(http.StatusOK, "", http.Header{"ETag": {`"etag"`}}), nil

	case req.Method == http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			return respond(http.StatusNotFound, `<Error><Code>NoSuchKey</Code></Error>`, http.Header{"Content-Type": {"application/xml"}}), nil
		}
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(body)), Request: req, Header: http.Header{
			"Content-Length": {strconv.Itoa(len(body))},
		}}, nil

	case req.Method == http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, "", nil), nil
	}
	return respond(http.StatusNotImplemented, "", nil), nil
}

func newTestStore(t *testing.T, fake *fakeS3) *Store {
	t.Helper()
	s, err := New(context.Background(), Config{
		Bucket:          "backups",
		Endpoint:        "https://s3.test.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: fake},
	})
	require.NoError(t, err)
	return s
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrBucketRequired)
}

func TestStore_PutGetListDelete(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	s := newTestStore(t, fake)
	assert.Equal(t, "backups", s.Bucket())

	require.NoError(t, s.Put(ctx, "ledger/b.json", []byte(`{"users":{}}`), "application/json"))
	require.NoError(t, s.Put(ctx, "ledger/a.json", []byte(`{}`), "application/json"))
	require.NoError(t, s.Put(ctx, "other/x.json", []byte(`{}`), ""))

	data, err := s.Get(ctx, "ledger/b.json")
	require.NoError(t, err)
	assert.Equal(t, `{"users":{}}`, string(data))

	objs, err := s.List(ctx, "ledger/")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "ledger/a.json", objs[0].Key)
	assert.Equal(t, int64(12), objs[1].Size)

	require.NoError(t, s.Delete(ctx, "ledger/a.json"))
	objs, err = s.List(ctx, "ledger/")
	require.NoError(t, err)
	assert.Len(t, objs, 1)
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t, newFake())
	_, err := s.Get(context.Background(), "nope")
	assert.Error(t, err)
}

package fetch

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/ntrack/internal/tracker"
)

func TestLookup(t *testing.T) {
	doc, err := decodeJSON([]byte(`{"data":{"name":"Widget","tags":["a","b"],"count":12345678901234567890,"nil":null}}`))
	require.NoError(t, err)

	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"data.name", "Widget", true},
		{"data.tags.1", "b", true},
		{"data.count", "12345678901234567890", true},
		{"data.missing", "", false},
		{"data.name.deeper", "", false},
		{"data.tags.9", "", false},
		{"data.tags.x", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			v, ok := Lookup(doc, tt.path)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				s, rendered := render(v)
				assert.True(t, rendered)
				assert.Equal(t, tt.want, s)
			}
		})
	}

	v, ok := Lookup(doc, "data.nil")
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, NoData, resolve(doc, "data.nil"))
}

func TestFetchJSON(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"name":"Widget","status":{"state":"green"}}}`))
	})
	f, srv := newTestFetchers(t, mux)

	tr := &tracker.Tracker{
		Type:        tracker.TypeJSON,
		Source:      srv.URL + "/status.json",
		APIEndpoint: srv.URL + "/status.json",
		Config:      tracker.Config{TitleKey: "data.name", FeedKey: "data.status.state"},
	}
	res, err := f.fetchJSON(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, "Widget", res.FeedTitle)
	assert.Equal(t, "green", res.Content.DisplayedContent)
	assert.Equal(t, fixedNow, res.Content.PubDate)

	// a wrong key is not a failure
	tr.Config = tracker.Config{TitleKey: "data.missing", FeedKey: "data.missing"}
	res, err = f.fetchJSON(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, NoData, res.FeedTitle)
	assert.Equal(t, NoData, res.Content.DisplayedContent)
}

func TestFlatten(t *testing.T) {
	doc, err := decodeJSON([]byte(`{"b":{"y":true,"x":[1,2]},"a":"hello"}`))
	require.NoError(t, err)

	keys := Flatten(doc)
	require.Len(t, keys, 4)

	assert.Equal(t, KeyInfo{Path: "a", Kind: "string", Preview: "hello"}, keys[0])
	assert.Equal(t, "b", keys[1].Path)
	assert.Equal(t, "object", keys[1].Kind)
	assert.Equal(t, KeyInfo{Path: "b.x", Kind: "array", Preview: "[1,2]"}, keys[2])
	assert.Equal(t, KeyInfo{Path: "b.y", Kind: "boolean", Preview: "true"}, keys[3])
}

func TestDescribeJSON(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"name":"Widget"}}`))
	})
	mux.HandleFunc("/list.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[1,2,3]`))
	})
	f, srv := newTestFetchers(t, mux)

	keys, err := f.DescribeJSON(context.Background(), srv.URL+"/api.json")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "data.name", keys[1].Path)
	assert.Equal(t, "Widget", keys[1].Preview)

	_, err = f.DescribeJSON(context.Background(), srv.URL+"/list.json")
	assert.Error(t, err)
}

package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pders01/ntrack/internal/tracker"
)

// NoData is shown when a configured key does not resolve.
const NoData = "No data"

func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}
	return doc, nil
}

// Lookup walks a dot separated path through decoded JSON. Numeric segments
// index arrays. ok is false as soon as a segment does not resolve.
func Lookup(doc any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// render turns a resolved value into display text. Null and empty strings
// count as unresolved.
func render(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		if strings.TrimSpace(x) == "" {
			return "", false
		}
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

func resolve(doc any, path string) string {
	v, ok := Lookup(doc, path)
	if !ok {
		return NoData
	}
	s, ok := render(v)
	if !ok {
		return NoData
	}
	return s
}

func (f *Fetchers) fetchJSON(ctx context.Context, t *tracker.Tracker) (*Result, error) {
	body, err := f.client.Get(ctx, t.APIEndpoint, "application/json")
	if err != nil {
		return nil, err
	}
	doc, err := decodeJSON(body)
	if err != nil {
		return nil, err
	}

	favicon := t.FaviconURL
	if favicon == "" {
		favicon = f.favicon(t.Source)
	}

	return &Result{
		FeedTitle:  resolve(doc, t.Config.TitleKey),
		FaviconURL: favicon,
		Content: tracker.FeedContent{
			DisplayedContent: resolve(doc, t.Config.FeedKey),
			PubDate:          f.now(),
		},
	}, nil
}

// KeyInfo describes one addressable path in a JSON document.
type KeyInfo struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Preview string `json:"preview"`
}

const previewLength = 60

// Flatten lists every object key path in doc, depth first in key order.
// Arrays are listed but not descended into.
func Flatten(doc any) []KeyInfo {
	var out []KeyInfo
	flatten(doc, "", &out)
	return out
}

func flatten(node any, prefix string, out *[]KeyInfo) {
	obj, ok := node.(map[string]any)
	if !ok {
		return
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		v := obj[k]
		preview, _ := render(v)
		*out = append(*out, KeyInfo{
			Path:    path,
			Kind:    kindOf(v),
			Preview: truncate(preview, previewLength),
		})
		flatten(v, path, out)
	}
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return "unknown"
}

// DescribeJSON fetches url and lists its key paths so a caller can pick the
// title and feed keys of a json tracker.
func (f *Fetchers) DescribeJSON(ctx context.Context, url string) ([]KeyInfo, error) {
	body, err := f.client.Get(ctx, url, "application/json")
	if err != nil {
		return nil, err
	}
	doc, err := decodeJSON(body)
	if err != nil {
		return nil, err
	}
	keys := Flatten(doc)
	if len(keys) == 0 {
		return nil, fmt.Errorf("document at %s has no object keys", url)
	}
	return keys, nil
}

package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/atlasgrowth23/lapermits/internal/normalize"
)

// Feed pages through a Socrata-style JSON endpoint using $limit, $offset and
// a deterministic $order. An empty page ends the feed.
type Feed struct {
	BaseURL  string
	SortKey  string
	Where    string
	PageSize int
	AppToken string
	Client   *http.Client
}

// NewFeed creates a feed source; a sort key is required so offsets are stable
func NewFeed(baseURL, sortKey string, pageSize int, timeout time.Duration) (*Feed, error) {
	if sortKey == "" {
		return nil, fmt.Errorf("feed %s needs a sort key for stable pagination", baseURL)
	}
	if pageSize <= 0 {
		pageSize = 1000
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Feed{
		BaseURL:  baseURL,
		SortKey:  sortKey,
		PageSize: pageSize,
		Client:   &http.Client{Timeout: timeout},
	}, nil
}

// Since restricts the feed to rows whose field is on or after t
func (f *Feed) Since(field string, t time.Time) {
	f.Where = fmt.Sprintf("%s >= '%s'", field, t.UTC().Format("2006-01-02T15:04:05.000"))
}

// Name returns the feed URL
func (f *Feed) Name() string { return f.BaseURL }

// Rows starts reading at the given record offset
func (f *Feed) Rows(ctx context.Context, offset int) (RowReader, error) {
	rows := &feedRows{feed: f, offset: offset}
	// fetch the first page now so an unreachable feed fails before any batch
	if err := rows.fill(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (f *Feed) pageURL(offset int) (string, error) {
	u, err := url.Parse(f.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid feed url %q: %w", f.BaseURL, err)
	}
	q := u.Query()
	q.Set("$limit", strconv.Itoa(f.PageSize))
	q.Set("$offset", strconv.Itoa(offset))
	q.Set("$order", f.SortKey+" ASC")
	if f.Where != "" {
		q.Set("$where", f.Where)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *Feed) fetch(ctx context.Context, offset int) ([]map[string]json.RawMessage, error) {
	pageURL, err := f.pageURL(offset)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if f.AppToken != "" {
		req.Header.Set("X-App-Token", f.AppToken)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch offset %d: %w", offset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed returned %s at offset %d: %s", resp.Status, offset, bytes.TrimSpace(body))
	}

	var page []map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode page at offset %d: %w", offset, err)
	}
	return page, nil
}

type feedRows struct {
	feed   *Feed
	offset int
	buf    []Row
	done   bool
}

func (r *feedRows) fill(ctx context.Context) error {
	page, err := r.feed.fetch(ctx, r.offset)
	if err != nil {
		return err
	}
	if len(page) < r.feed.PageSize {
		r.done = true
	}
	for _, obj := range page {
		r.buf = append(r.buf, Row{Offset: r.offset, Values: rawValues(obj)})
		r.offset++
	}
	return nil
}

// rawValues keeps strings as-is, drops nulls and keeps any other JSON
// value (numbers, objects such as location) as its JSON text.
func rawValues(obj map[string]json.RawMessage) normalize.RawRow {
	row := make(normalize.RawRow, len(obj))
	for k, raw := range obj {
		var s string
		switch {
		case bytes.Equal(raw, []byte("null")):
			row[k] = ""
		case json.Unmarshal(raw, &s) == nil:
			row[k] = s
		default:
			row[k] = string(raw)
		}
	}
	return row
}

func (r *feedRows) Next(ctx context.Context) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	if len(r.buf) == 0 {
		if r.done {
			return Row{}, io.EOF
		}
		if err := r.fill(ctx); err != nil {
			return Row{}, err
		}
		if len(r.buf) == 0 {
			return Row{}, io.EOF
		}
	}
	row := r.buf[0]
	r.buf = r.buf[1:]
	return row, nil
}

func (r *feedRows) Close() error { return nil }

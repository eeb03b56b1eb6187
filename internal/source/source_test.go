package source

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, rr RowReader) []Row {
	t.Helper()
	defer rr.Close()
	var rows []Row
	for {
		row, err := rr.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
}

func TestCSVRows(t *testing.T) {
	data := "\ufeffpermitnum, status ,cost\nA-1,Issued,10\nA-2,\"Void, Expired\",20\nA-3\nA-4,x,1,extra\n"
	src := NewCSV("permits.csv", BytesOpener(data), 0)

	rr, err := src.Rows(context.Background(), 0)
	require.NoError(t, err)
	rows := readAll(t, rr)

	require.Len(t, rows, 4)
	assert.Equal(t, "A-1", rows[0].Values["permitnum"], "BOM stripped from first header")
	assert.Equal(t, "Void, Expired", rows[1].Values["status"])
	assert.Equal(t, "", rows[2].Values["cost"], "short rows are padded")
	assert.Equal(t, 2, rows[2].Offset)
	assert.True(t, errors.Is(rows[3].Err, ErrMalformedRow))
	assert.Nil(t, rows[3].Values)
}

func TestCSVRowsFromOffset(t *testing.T) {
	data := "a|b\n1|x\n2|y\n3|z\n"
	src := NewCSV("pipe.csv", BytesOpener(data), '|')

	rr, err := src.Rows(context.Background(), 2)
	require.NoError(t, err)
	rows := readAll(t, rr)

	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Offset)
	assert.Equal(t, "3", rows[0].Values["a"])

	rr, err = src.Rows(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, readAll(t, rr))
}

func TestCSVMissingFile(t *testing.T) {
	src := NewCSV("/does/not/exist.csv", FileOpener{}, ',')
	_, err := src.Rows(context.Background(), 0)
	assert.Error(t, err)
}

func TestParseS3Path(t *testing.T) {
	bucket, key, err := ParseS3Path("s3://permits/exports/nola1.csv")
	require.NoError(t, err)
	assert.Equal(t, "permits", bucket)
	assert.Equal(t, "exports/nola1.csv", key)

	for _, bad := range []string{"permits.csv", "s3://bucket", "s3:///key"} {
		_, _, err := ParseS3Path(bad)
		assert.Error(t, err, bad)
	}
	assert.True(t, IsS3Path("s3://b/k"))
	assert.False(t, IsS3Path("/tmp/k"))
}

func feedServer(t *testing.T, total int) (*httptest.Server, *[]string) {
	t.Helper()
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		seen = append(seen, q.Get("$offset"))
		assert.Equal(t, "applieddate ASC", q.Get("$order"))
		assert.Equal(t, "token", r.Header.Get("X-App-Token"))

		limit, _ := strconv.Atoi(q.Get("$limit"))
		offset, _ := strconv.Atoi(q.Get("$offset"))
		page := []map[string]any{}
		for i := offset; i < total && i < offset+limit; i++ {
			page = append(page, map[string]any{
				"permitnum": "P-" + strconv.Itoa(i),
				"fee":       12.5,
				"location":  map[string]any{"latitude": "29.9"},
				"pin":       nil,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(page)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestFeedPaginates(t *testing.T) {
	srv, seen := feedServer(t, 5)
	feed, err := NewFeed(srv.URL, "applieddate", 2, time.Second)
	require.NoError(t, err)
	feed.AppToken = "token"

	rr, err := feed.Rows(context.Background(), 0)
	require.NoError(t, err)
	rows := readAll(t, rr)

	require.Len(t, rows, 5)
	assert.Equal(t, "P-4", rows[4].Values["permitnum"])
	assert.Equal(t, 4, rows[4].Offset)
	assert.Equal(t, "12.5", rows[0].Values["fee"])
	assert.JSONEq(t, `{"latitude":"29.9"}`, rows[0].Values["location"])
	assert.Equal(t, "", rows[0].Values["pin"])
	assert.Equal(t, []string{"0", "2", "4"}, *seen, "short page ends the feed")
}

func TestFeedResumesAtOffset(t *testing.T) {
	srv, _ := feedServer(t, 4)
	feed, err := NewFeed(srv.URL, "applieddate", 2, time.Second)
	require.NoError(t, err)
	feed.AppToken = "token"

	rr, err := feed.Rows(context.Background(), 3)
	require.NoError(t, err)
	rows := readAll(t, rr)

	require.Len(t, rows, 1)
	assert.Equal(t, "P-3", rows[0].Values["permitnum"])
}

func TestFeedUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	feed, err := NewFeed(srv.URL, "applieddate", 10, time.Second)
	require.NoError(t, err)

	_, err = feed.Rows(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestFeedRequiresSortKey(t *testing.T) {
	_, err := NewFeed("http://example.invalid", "", 10, 0)
	assert.Error(t, err)
}

func TestFeedSince(t *testing.T) {
	feed, err := NewFeed("http://example.invalid/resource.json", "applieddate", 10, 0)
	require.NoError(t, err)
	feed.Since("applieddate", time.Date(2020, 10, 19, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "applieddate >= '2020-10-19T00:00:00.000'", feed.Where)
}

package main

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, 202, map[string]string{"status": "accepted"})

	assert.Equal(t, 202, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"accepted"}`, rec.Body.String())
}

func TestIntParam(t *testing.T) {
	assert.Equal(t, 50, intParam("", 50))
	assert.Equal(t, 7, intParam("7", 50))
	assert.Equal(t, 50, intParam("abc", 50))
	assert.Equal(t, 50, intParam("-3", 50))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))

	long := "a query that keeps going well past the column width"
	got := truncate(long, 20)
	require.Less(t, len([]rune(got)), len(long))
	assert.Equal(t, "a query that keeps ", got[:19])
}

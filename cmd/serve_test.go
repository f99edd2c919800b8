package main

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/terralens/forestmap/internal/analysis"
	"github.com/terralens/forestmap/internal/store"
)

func TestStatusForRunError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrapped: %w", analysis.ErrMalformedInput), http.StatusBadRequest},
		{analysis.ErrNoImagery, http.StatusUnprocessableEntity},
		{analysis.ErrTooCloudy, http.StatusUnprocessableEntity},
		{analysis.ErrNoTilesMerged, http.StatusUnprocessableEntity},
		{analysis.ErrProviderUnavailable, http.StatusBadGateway},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusForRunError(tc.err), tc.err.Error())
	}
}

func TestRunFilterFromQuery(t *testing.T) {
	cases := []struct {
		query string
		want  store.RunFilter
	}{
		{"", store.RunFilter{}},
		{"status=failed", store.RunFilter{Status: store.RunStatusFailed}},
		{"limit=25&offset=50", store.RunFilter{Limit: 25, Offset: 50}},
		{"status=complete&limit=5", store.RunFilter{Status: store.RunStatusComplete, Limit: 5}},
		{"limit=-3&offset=abc", store.RunFilter{}},
	}
	for _, tc := range cases {
		q, err := url.ParseQuery(tc.query)
		assert.NoError(t, err, tc.query)
		assert.Equal(t, tc.want, runFilterFromQuery(q), tc.query)
	}
}

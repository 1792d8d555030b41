package mapslink

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildURL(t *testing.T) {
	assert.Equal(t,
		"https://www.google.com/maps/dir/?api=1&origin=37.7749,-122.4194&destination=40.7128,-74.006&travelmode=driving",
		BuildURL(37.7749, -122.4194, 40.7128, -74.0060, Driving),
	)
}

func TestBuildURLDefaultsToDriving(t *testing.T) {
	assert.Equal(t, BuildURL(1, 2, 3, 4, Driving), BuildURL(1, 2, 3, 4, ""))
}

func TestBuildURLEscapesMode(t *testing.T) {
	got := BuildURL(1, 2, 3, 4, Mode("two wheeler&x=1"))
	assert.Contains(t, got, "travelmode=two+wheeler%26x%3D1")

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "two wheeler&x=1", u.Query().Get("travelmode"))
	assert.Equal(t, "1,2", u.Query().Get("origin"))
}

func TestParseMode(t *testing.T) {
	cases := map[string]struct {
		in   string
		mode Mode
		ok   bool
	}{
		"empty":   {in: "", mode: Driving, ok: true},
		"walking": {in: "Walking", mode: Walking, ok: true},
		"transit": {in: " transit ", mode: Transit, ok: true},
		"unknown": {in: "flying"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			m, ok := ParseMode(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.mode, m)
		})
	}
}

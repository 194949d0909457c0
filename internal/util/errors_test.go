package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToUserError(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ERROR: [youtube] abc: Video unavailable", "This video is unavailable or has been removed"},
		{"ERROR: Sign in to confirm your age", "This video is age-restricted"},
		{"HTTP Error 429: Too Many Requests", "Rate limited, try again in a minute"},
		{"ERROR: Unsupported URL: https://foo", "This website isn't supported"},
		{"context deadline exceeded", "Connection timed out, try again"},
		{"exit status 1", "Download failed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToUserError(tt.in), tt.in)
	}
}

package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Chanzhaoyu/nest-blog-api/internal/server/oauth"
)

func TestUsernameBase(t *testing.T) {
	tests := []struct {
		name string
		p    oauth.Profile
		want string
	}{
		{"given name", oauth.Profile{GivenName: "Grace", DisplayName: "Grace Hopper"}, "grace"},
		{"display name fallback", oauth.Profile{DisplayName: "Ada Lovelace"}, "ada_lovelace"},
		{"accents folded", oauth.Profile{GivenName: "Zoë"}, "zoe"},
		{"nothing usable", oauth.Profile{GivenName: "   ", DisplayName: "!!!"}, "user"},
		{"truncated", oauth.Profile{GivenName: "Maximilianus Augustus"}, "maximilianus"},
		{"no trailing separator", oauth.Profile{GivenName: "Abcdefghijk Lm"}, "abcdefghijk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := usernameBase(&tt.p)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got)+1+usernameSuffixChars, maxUsernameLength)
		})
	}
}

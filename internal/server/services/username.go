package services

import (
	"context"
	"errors"
	"strings"

	"github.com/gosimple/slug"

	"github.com/Chanzhaoyu/nest-blog-api/internal/common"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/oauth"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/repositories/users"
)

const (
	maxUsernameLength   = 20
	usernameSuffixChars = 7
	usernameAttempts    = 5
)

// randomSuffix is swapped in tests.
var randomSuffix = func() (string, error) {
	return common.RandomAlnum(usernameSuffixChars)
}

// usernameBase derives a slug from the profile's names that leaves room for
// "_" plus the random suffix.
func usernameBase(p *oauth.Profile) string {
	name := p.GivenName
	if strings.TrimSpace(name) == "" {
		name = p.DisplayName
	}
	base := strings.ReplaceAll(slug.Make(name), "-", "_")
	if base == "" {
		base = "user"
	}
	limit := maxUsernameLength - usernameSuffixChars - 1
	if len(base) > limit {
		base = strings.TrimRight(base[:limit], "_")
	}
	return base
}

// freeUsername returns a generated username not yet present in repo.
func (s *AuthService) freeUsername(ctx context.Context, repo users.Repository, p *oauth.Profile) (string, error) {
	base := usernameBase(p)
	for i := 0; i < usernameAttempts; i++ {
		suffix, err := randomSuffix()
		if err != nil {
			return "", err
		}
		candidate := base + "_" + suffix

		_, err = repo.FindByUsername(ctx, candidate)
		if errors.Is(err, common.ErrorNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		s.logger.Debug(ctx, "generated username taken", "username", candidate)
	}
	return "", common.Conflict("could not generate a free username")
}

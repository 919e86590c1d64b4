package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/library-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil)
	var dest map[string]int

	assert.ErrorIs(t, repo.Get(context.Background(), "library:stats", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "library:stats", map[string]int{"open": 1}, time.Minute))
	assert.NoError(t, repo.Delete(context.Background(), "library:stats"))
	assert.NoError(t, repo.Ping(context.Background()))
}

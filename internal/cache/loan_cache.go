package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/segyhp/lending-engine/internal/domain"
	customError "github.com/segyhp/lending-engine/pkg/errors"
)

const (
	listingsKey   = "lending:loans:approved"
	generationKey = "lending:loans:approved:gen"
)

// setIfCurrent writes the list only while the generation still matches the one the
// caller read before loading from storage.
var setIfCurrent = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then cur = '0' end
if cur ~= ARGV[1] then return 0 end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[2], ARGV[2])
end
return 1
`)

// LoanCache keeps the browse list of approved loans in Redis as one JSON value.
type LoanCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLoanCache(client *redis.Client, ttl time.Duration) *LoanCache {
	return &LoanCache{client: client, ttl: ttl}
}

// GetListings returns found=false on a miss.
func (c *LoanCache) GetListings(ctx context.Context) ([]*domain.LoanListing, bool, error) {
	raw, err := c.client.Get(ctx, listingsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, customError.WrapCacheError(err)
	}

	var listings []*domain.LoanListing
	if err := json.Unmarshal(raw, &listings); err != nil {
		// drop the unreadable entry so the next read repopulates it
		_ = c.client.Del(ctx, listingsKey).Err()
		return nil, false, customError.WrapCacheError(err)
	}
	return listings, true, nil
}

// Generation returns the invalidation counter, 0 before the first invalidation.
func (c *LoanCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, customError.WrapCacheError(err)
	}
	return gen, nil
}

// SetListings stores listings read under generation. A list read before a later
// invalidation is discarded.
func (c *LoanCache) SetListings(ctx context.Context, generation int64, listings []*domain.LoanListing) error {
	payload, err := json.Marshal(listings)
	if err != nil {
		return customError.WrapCacheError(err)
	}
	err = setIfCurrent.Run(ctx, c.client, []string{generationKey, listingsKey},
		strconv.FormatInt(generation, 10), payload, c.ttl.Milliseconds()).Err()
	if err != nil {
		return customError.WrapCacheError(err)
	}
	return nil
}

// Invalidate bumps the generation and drops the stored list in one transaction.
func (c *LoanCache) Invalidate(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey)
		pipe.Del(ctx, listingsKey)
		return nil
	})
	if err != nil {
		return customError.WrapCacheError(err)
	}
	return nil
}

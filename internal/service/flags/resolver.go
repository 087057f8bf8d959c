// Package flags implements deterministic percentage rollouts. The same basis
// identity always lands in the same bucket for a given flag, so staged
// rollouts need no server-side session state.
package flags

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/emberplay/economy-core/internal/cache"
	"github.com/emberplay/economy-core/internal/errs"
	"github.com/emberplay/economy-core/internal/metrics"
	"github.com/emberplay/economy-core/internal/models"
	"github.com/emberplay/economy-core/internal/repository"
	"github.com/emberplay/economy-core/pkg/logger"
)

const cacheKeyPrefix = "flags:"

// EvalContext carries the request identity evaluated against a flag.
type EvalContext struct {
	UserID      string
	SessionID   string
	IP          string
	Region      string
	Environment string
}

// basisID picks the identity the rollout bucket is computed from.
func (c EvalContext) basisID() string {
	switch {
	case c.UserID != "":
		return c.UserID
	case c.SessionID != "":
		return c.SessionID
	case c.IP != "":
		return c.IP
	default:
		return "anonymous"
	}
}

// Repository is the flag store the resolver reads through its cache.
type Repository interface {
	GetByKey(key string) (*models.FeatureFlag, error)
	GetAll() ([]models.FeatureFlag, error)
	Upsert(flag *models.FeatureFlag) error
	Delete(key string) error
}

// Resolver evaluates feature flags with a short-TTL cache in front of the
// store. Staleness is bounded by the TTL; writes invalidate immediately.
type Resolver struct {
	repo  Repository
	cache cache.Cache
	ttl   time.Duration
	log   *logger.Logger
}

// NewResolver creates a flag resolver.
func NewResolver(repo *repository.FlagRepository, c cache.Cache, ttl time.Duration, log *logger.Logger) *Resolver {
	return NewResolverWithInterfaces(repo, c, ttl, log)
}

// NewResolverWithInterfaces creates a resolver with explicit dependencies;
// used by tests.
func NewResolverWithInterfaces(repo Repository, c cache.Cache, ttl time.Duration, log *logger.Logger) *Resolver {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Resolver{repo: repo, cache: c, ttl: ttl, log: log}
}

// IsEnabled evaluates one flag against the context. Unknown flags evaluate to
// false rather than failing the caller.
func (r *Resolver) IsEnabled(ctx context.Context, key string, ec EvalContext) bool {
	flag, err := r.load(ctx, key)
	if err != nil {
		r.log.Warn().Err(err).Str("flag", key).Msg("Flag lookup failed, evaluating to false")
		metrics.RecordFlagEvaluation(key, "error")
		return false
	}
	if flag == nil {
		metrics.RecordFlagEvaluation(key, "unknown")
		return false
	}

	enabled := Evaluate(flag, ec)
	if enabled {
		metrics.RecordFlagEvaluation(key, "enabled")
	} else {
		metrics.RecordFlagEvaluation(key, "disabled")
	}
	return enabled
}

// Evaluate applies the flag's rules and percentage rollout to the context.
// Pure: identical inputs always produce the same answer.
func Evaluate(flag *models.FeatureFlag, ec EvalContext) bool {
	if !flag.Enabled {
		return false
	}

	rules, err := flag.ParseRules()
	if err != nil {
		return false
	}
	if !matchList(rules.UserIDs, ec.UserID) {
		return false
	}
	if !matchList(rules.Regions, ec.Region) {
		return false
	}
	if !matchList(rules.Environments, ec.Environment) {
		return false
	}

	return Bucket(flag.Key, ec.basisID()) <= flag.RolloutPercentage
}

// Bucket computes the deterministic 1..100 rollout bucket for a basis
// identity.
func Bucket(flagKey, basisID string) int {
	h := fnv.New32a()
	h.Write([]byte(flagKey + ":" + basisID))
	return int(h.Sum32()%100) + 1
}

// matchList reports whether value passes an allow-list. An empty list matches
// everything.
func matchList(list []string, value string) bool {
	if len(list) == 0 {
		return true
	}
	for _, entry := range list {
		if entry == value {
			return true
		}
	}
	return false
}

// Get returns a flag's configuration, bypassing the cache.
func (r *Resolver) Get(ctx context.Context, key string) (*models.FeatureFlag, error) {
	flag, err := r.repo.GetByKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to look up flag: %w", err)
	}
	if flag == nil {
		return nil, errs.NotFound(errs.CodeFlagNotFound, "flag %q does not exist", key)
	}
	return flag, nil
}

// List returns every flag's configuration.
func (r *Resolver) List(ctx context.Context) ([]models.FeatureFlag, error) {
	return r.repo.GetAll()
}

// Save upserts a flag and invalidates its cache entry so the change takes
// effect immediately rather than after the TTL.
func (r *Resolver) Save(ctx context.Context, flag *models.FeatureFlag) error {
	if flag.Key == "" {
		return errs.Invalid(errs.CodeInvalidArgument, "flag key is required")
	}
	if flag.RolloutPercentage < 0 || flag.RolloutPercentage > 100 {
		return errs.Invalid(errs.CodeInvalidArgument, "rollout percentage must be 0-100")
	}
	if len(flag.Rules) > 0 {
		if _, err := flag.ParseRules(); err != nil {
			return errs.Invalid(errs.CodeInvalidArgument, "flag rules are not valid JSON: %v", err)
		}
	}

	if err := r.repo.Upsert(flag); err != nil {
		return fmt.Errorf("failed to save flag: %w", err)
	}
	r.invalidate(ctx, flag.Key)
	return nil
}

// Remove deletes a flag and invalidates its cache entry.
func (r *Resolver) Remove(ctx context.Context, key string) error {
	if err := r.repo.Delete(key); err != nil {
		return fmt.Errorf("failed to delete flag: %w", err)
	}
	r.invalidate(ctx, key)
	return nil
}

// load reads a flag through the cache. A cached "null" marks a known-missing
// flag so repeated lookups of unknown keys do not hammer the store.
func (r *Resolver) load(ctx context.Context, key string) (*models.FeatureFlag, error) {
	cacheKey := cacheKeyPrefix + key

	if r.cache != nil {
		cached, err := r.cache.Get(ctx, cacheKey)
		if err != nil {
			r.log.Warn().Err(err).Str("flag", key).Msg("Flag cache read failed")
		} else if cached != "" {
			metrics.RecordFlagCacheLookup("hit")
			if cached == "null" {
				return nil, nil
			}
			flag := &models.FeatureFlag{}
			if err := json.Unmarshal([]byte(cached), flag); err == nil {
				return flag, nil
			}
		}
	}
	metrics.RecordFlagCacheLookup("miss")

	flag, err := r.repo.GetByKey(key)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		payload := "null"
		if flag != nil {
			if data, err := json.Marshal(flag); err == nil {
				payload = string(data)
			}
		}
		if err := r.cache.Set(ctx, cacheKey, payload, r.ttl); err != nil {
			r.log.Warn().Err(err).Str("flag", key).Msg("Flag cache write failed")
		}
	}
	return flag, nil
}

func (r *Resolver) invalidate(ctx context.Context, key string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, cacheKeyPrefix+key); err != nil {
		r.log.Warn().Err(err).Str("flag", key).Msg("Flag cache invalidation failed")
	}
}

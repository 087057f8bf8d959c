package flags

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/emberplay/economy-core/internal/cache"
	"github.com/emberplay/economy-core/internal/errs"
	"github.com/emberplay/economy-core/internal/models"
	"github.com/emberplay/economy-core/pkg/logger"
	"github.com/emberplay/economy-core/test/mocks"
)

// flagRepoStub is an in-memory flag store counting reads, so tests can tell
// cache hits from store round trips.
type flagRepoStub struct {
	flags map[string]*models.FeatureFlag
	reads int
}

func newFlagRepoStub(flags ...*models.FeatureFlag) *flagRepoStub {
	s := &flagRepoStub{flags: make(map[string]*models.FeatureFlag)}
	for _, f := range flags {
		s.flags[f.Key] = f
	}
	return s
}

func (s *flagRepoStub) GetByKey(key string) (*models.FeatureFlag, error) {
	s.reads++
	return s.flags[key], nil
}

func (s *flagRepoStub) GetAll() ([]models.FeatureFlag, error) {
	all := make([]models.FeatureFlag, 0, len(s.flags))
	for _, f := range s.flags {
		all = append(all, *f)
	}
	return all, nil
}

func (s *flagRepoStub) Upsert(flag *models.FeatureFlag) error {
	s.flags[flag.Key] = flag
	return nil
}

func (s *flagRepoStub) Delete(key string) error {
	delete(s.flags, key)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New("error", "json", "stdout")
}

func fullyOn(key string) *models.FeatureFlag {
	return &models.FeatureFlag{Key: key, Enabled: true, RolloutPercentage: 100}
}

func TestEvaluate_Deterministic(t *testing.T) {
	flag := &models.FeatureFlag{Key: "new_checkout", Enabled: true, RolloutPercentage: 40}

	for _, user := range []string{"u1", "u2", "u3", "u4", "u5"} {
		ec := EvalContext{UserID: user}
		first := Evaluate(flag, ec)
		for i := 0; i < 10; i++ {
			if Evaluate(flag, ec) != first {
				t.Fatalf("Evaluate() flipped for user %s", user)
			}
		}
	}
}

func TestEvaluate_DisabledAndBounds(t *testing.T) {
	off := &models.FeatureFlag{Key: "k", Enabled: false, RolloutPercentage: 100}
	if Evaluate(off, EvalContext{UserID: "u1"}) {
		t.Error("disabled flag evaluated true")
	}

	zero := &models.FeatureFlag{Key: "k", Enabled: true, RolloutPercentage: 0}
	for _, user := range []string{"a", "b", "c", "d"} {
		if Evaluate(zero, EvalContext{UserID: user}) {
			t.Errorf("0%% rollout enabled user %s", user)
		}
	}

	full := fullyOn("k")
	for _, user := range []string{"a", "b", "c", "d"} {
		if !Evaluate(full, EvalContext{UserID: user}) {
			t.Errorf("100%% rollout disabled user %s", user)
		}
	}
}

func TestEvaluate_AllowLists(t *testing.T) {
	rules, _ := json.Marshal(models.FlagRules{
		UserIDs: []string{"vip"},
		Regions: []string{"eu", "na"},
	})
	flag := &models.FeatureFlag{Key: "k", Enabled: true, RolloutPercentage: 100, Rules: rules}

	if !Evaluate(flag, EvalContext{UserID: "vip", Region: "eu"}) {
		t.Error("allow-listed context evaluated false")
	}
	if Evaluate(flag, EvalContext{UserID: "other", Region: "eu"}) {
		t.Error("non-listed user evaluated true")
	}
	if Evaluate(flag, EvalContext{UserID: "vip", Region: "apac"}) {
		t.Error("non-listed region evaluated true")
	}
	// Environments list is empty, so any environment passes.
	if !Evaluate(flag, EvalContext{UserID: "vip", Region: "na", Environment: "staging"}) {
		t.Error("empty environment list rejected a context")
	}
}

func TestEvaluate_BasisFallback(t *testing.T) {
	flag := fullyOn("k")

	// Different identity tiers all resolve to some basis; with a 100%
	// rollout each must pass, including the anonymous fallback.
	contexts := []EvalContext{
		{UserID: "u1"},
		{SessionID: "sess-9"},
		{IP: "10.0.0.1"},
		{},
	}
	for i, ec := range contexts {
		if !Evaluate(flag, ec) {
			t.Errorf("context %d evaluated false at 100%%", i)
		}
	}
}

func TestBucket(t *testing.T) {
	seen := make(map[int]bool)
	for i := 0; i < 500; i++ {
		b := Bucket("flag", string(rune('a'+i%26))+string(rune('0'+i%10)))
		if b < 1 || b > 100 {
			t.Fatalf("Bucket() = %d, want 1..100", b)
		}
		seen[b] = true
	}
	// FNV over 500 inputs must land in well more than a handful of buckets.
	if len(seen) < 20 {
		t.Errorf("Bucket() hit only %d distinct buckets", len(seen))
	}

	if Bucket("flag", "user-1") != Bucket("flag", "user-1") {
		t.Error("Bucket() not stable")
	}
	// Different flags with the same basis hash independently.
	same := 0
	for _, user := range []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"} {
		if Bucket("flag_a", user) == Bucket("flag_b", user) {
			same++
		}
	}
	if same == 8 {
		t.Error("buckets identical across flags; key not mixed into the hash")
	}
}

func TestResolver_CacheHitAndInvalidation(t *testing.T) {
	repo := newFlagRepoStub(fullyOn("k"))
	c := mocks.NewMockCache()
	r := NewResolverWithInterfaces(repo, c, time.Minute, testLogger())
	ctx := context.Background()

	if !r.IsEnabled(ctx, "k", EvalContext{UserID: "u1"}) {
		t.Fatal("IsEnabled() = false, want true")
	}
	if repo.reads != 1 {
		t.Fatalf("store reads = %d, want 1", repo.reads)
	}

	// Second evaluation is served from cache.
	r.IsEnabled(ctx, "k", EvalContext{UserID: "u1"})
	if repo.reads != 1 {
		t.Errorf("store reads = %d after cached lookup, want 1", repo.reads)
	}

	// Save invalidates, so the next read goes back to the store and sees
	// the new percentage.
	if err := r.Save(ctx, &models.FeatureFlag{Key: "k", Enabled: true, RolloutPercentage: 0}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if c.Has(cacheKeyPrefix + "k") {
		t.Error("cache entry survived Save()")
	}
	if r.IsEnabled(ctx, "k", EvalContext{UserID: "u1"}) {
		t.Error("IsEnabled() = true after rollout dropped to 0")
	}
	if repo.reads != 2 {
		t.Errorf("store reads = %d, want 2", repo.reads)
	}
}

func TestResolver_UnknownFlagNegativeCache(t *testing.T) {
	repo := newFlagRepoStub()
	c := mocks.NewMockCache()
	r := NewResolverWithInterfaces(repo, c, time.Minute, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if r.IsEnabled(ctx, "ghost", EvalContext{UserID: "u1"}) {
			t.Fatal("unknown flag evaluated true")
		}
	}
	// The miss is cached; only the first lookup hits the store.
	if repo.reads != 1 {
		t.Errorf("store reads = %d, want 1 (negative caching)", repo.reads)
	}
}

func TestResolver_CacheOutageFallsThrough(t *testing.T) {
	repo := newFlagRepoStub(fullyOn("k"))
	c := mocks.NewMockCache()
	c.FailReads = true
	c.ReadErr = errors.New("connection refused")
	r := NewResolverWithInterfaces(repo, c, time.Minute, testLogger())

	if !r.IsEnabled(context.Background(), "k", EvalContext{UserID: "u1"}) {
		t.Error("IsEnabled() = false during cache outage, want store fallback")
	}
}

func TestResolver_SaveValidation(t *testing.T) {
	r := NewResolverWithInterfaces(newFlagRepoStub(), mocks.NewMockCache(), time.Minute, testLogger())
	ctx := context.Background()

	if err := r.Save(ctx, &models.FeatureFlag{Key: "", RolloutPercentage: 10}); !errs.HasCode(err, errs.CodeInvalidArgument) {
		t.Errorf("Save() empty key error = %v", err)
	}
	if err := r.Save(ctx, &models.FeatureFlag{Key: "k", RolloutPercentage: 101}); !errs.HasCode(err, errs.CodeInvalidArgument) {
		t.Errorf("Save() percentage 101 error = %v", err)
	}
	if err := r.Save(ctx, &models.FeatureFlag{Key: "k", RolloutPercentage: 50, Rules: []byte("{not json")}); !errs.HasCode(err, errs.CodeInvalidArgument) {
		t.Errorf("Save() bad rules error = %v", err)
	}
}

func TestResolver_GetAndRemove(t *testing.T) {
	repo := newFlagRepoStub(fullyOn("k"))
	r := NewResolverWithInterfaces(repo, mocks.NewMockCache(), time.Minute, testLogger())
	ctx := context.Background()

	flag, err := r.Get(ctx, "k")
	if err != nil || flag.Key != "k" {
		t.Fatalf("Get() = %v, %v", flag, err)
	}
	if _, err := r.Get(ctx, "missing"); !errs.HasCode(err, errs.CodeFlagNotFound) {
		t.Errorf("Get() missing error = %v, want FLAG_NOT_FOUND", err)
	}

	if err := r.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := r.Get(ctx, "k"); !errs.HasCode(err, errs.CodeFlagNotFound) {
		t.Errorf("Get() after Remove error = %v, want FLAG_NOT_FOUND", err)
	}
}

func TestResolver_RedisBackedCache(t *testing.T) {
	srv := miniredis.RunT(t)
	c := cache.NewRedisCacheFromAddr(srv.Addr())
	defer c.Close()

	repo := newFlagRepoStub(fullyOn("k"))
	r := NewResolverWithInterfaces(repo, c, time.Minute, testLogger())
	ctx := context.Background()

	if !r.IsEnabled(ctx, "k", EvalContext{UserID: "u1"}) {
		t.Fatal("IsEnabled() = false, want true")
	}
	if !srv.Exists(cacheKeyPrefix + "k") {
		t.Error("flag not written to redis cache")
	}

	r.IsEnabled(ctx, "k", EvalContext{UserID: "u1"})
	if repo.reads != 1 {
		t.Errorf("store reads = %d with warm redis cache, want 1", repo.reads)
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/d60-Lab/clearstack/internal/flagcache"
	"github.com/d60-Lab/clearstack/internal/model"
	"github.com/d60-Lab/clearstack/internal/repository"
	"github.com/d60-Lab/clearstack/pkg/logger"
)

const (
	FlagProspectSync    = "prospect_sync"
	FlagPeerReviews     = "peer_reviews"
	FlagPurchaseVoting  = "purchase_voting"
	FlagReferrals       = "referrals"
	FlagEconomyInsights = "economy_insights"
)

type DefaultFlag struct {
	Key         string
	Enabled     bool
	Description string
}

// DefaultFlags are seeded by InitializeFlags. Only prospect_sync starts enabled.
var DefaultFlags = []DefaultFlag{
	{Key: FlagProspectSync, Enabled: true, Description: "Send business events to the prospection tool"},
	{Key: FlagPeerReviews, Enabled: false, Description: "Peer reviews with anti-bias gating"},
	{Key: FlagPurchaseVoting, Enabled: false, Description: "Voting on purchase requests"},
	{Key: FlagReferrals, Enabled: false, Description: "Referral and growth programme"},
	{Key: FlagEconomyInsights, Enabled: false, Description: "Economy opportunity detection"},
}

const (
	SourceGlobal  = "global"
	SourceCompany = "company"
)

// FlagView is one row of the merged listing.
type FlagView struct {
	Key         string `json:"key"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

// FlagResolver answers tenant-aware flag lookups.
type FlagResolver interface {
	IsEnabled(ctx context.Context, key, companyID string) (bool, error)
}

type FeatureFlagService struct {
	repo  repository.FlagRepository
	cache *flagcache.Cache
}

var _ FlagResolver = (*FeatureFlagService)(nil)

// NewFeatureFlagService wires the resolver; cache may be nil.
func NewFeatureFlagService(repo repository.FlagRepository, cache *flagcache.Cache) *FeatureFlagService {
	return &FeatureFlagService{repo: repo, cache: cache}
}

// IsEnabled resolves key for a tenant: the tenant row wins, then the global
// row, then false.
func (s *FeatureFlagService) IsEnabled(ctx context.Context, key, companyID string) (bool, error) {
	if v, hit := s.cache.Get(ctx, companyID, key); hit {
		return v, nil
	}

	v, err := s.resolve(ctx, key, companyID)
	if err != nil {
		return false, err
	}
	if err := s.cache.Set(ctx, companyID, key, v); err != nil {
		logger.Warn("flag cache set failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

func (s *FeatureFlagService) resolve(ctx context.Context, key, companyID string) (bool, error) {
	if companyID != "" {
		f, err := s.repo.Find(ctx, key, &companyID)
		switch {
		case err == nil:
			return f.Enabled, nil
		case !errors.Is(err, repository.ErrNotFound):
			return false, fmt.Errorf("lookup company flag %s: %w", key, err)
		}
	}
	f, err := s.repo.Find(ctx, key, nil)
	switch {
	case err == nil:
		return f.Enabled, nil
	case errors.Is(err, repository.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("lookup global flag %s: %w", key, err)
	}
}

// InitializeFlags seeds the default keys that are missing in the scope;
// nil companyID seeds the global defaults. It returns how many rows were created.
func (s *FeatureFlagService) InitializeFlags(ctx context.Context, companyID *string) (int, error) {
	created := 0
	for _, d := range DefaultFlags {
		ok, err := s.repo.CreateIfMissing(ctx, &model.FeatureFlag{
			Key:         d.Key,
			CompanyID:   companyID,
			Enabled:     d.Enabled,
			Description: d.Description,
		})
		if err != nil {
			return created, fmt.Errorf("seed flag %s: %w", d.Key, err)
		}
		if ok {
			created++
		}
	}
	if created > 0 {
		s.invalidate(ctx, "", companyID)
	}
	return created, nil
}

// List merges global and company rows; a company row shadows the global row of
// the same key.
func (s *FeatureFlagService) List(ctx context.Context, companyID string) ([]FlagView, error) {
	globals, err := s.repo.ListGlobal(ctx)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]FlagView, len(globals))
	for _, f := range globals {
		merged[f.Key] = FlagView{Key: f.Key, Enabled: f.Enabled, Description: f.Description, Source: SourceGlobal}
	}
	if companyID != "" {
		own, err := s.repo.ListByCompany(ctx, companyID)
		if err != nil {
			return nil, err
		}
		for _, f := range own {
			desc := f.Description
			if desc == "" {
				desc = merged[f.Key].Description
			}
			merged[f.Key] = FlagView{Key: f.Key, Enabled: f.Enabled, Description: desc, Source: SourceCompany}
		}
	}

	out := make([]FlagView, 0, len(merged))
	for _, v := range merged {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Set writes a flag value for a tenant, or for the global scope when companyID is nil.
func (s *FeatureFlagService) Set(ctx context.Context, key string, companyID *string, enabled bool) (*model.FeatureFlag, error) {
	key = strings.TrimSpace(key)
	if !isKnownFlag(key) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlag, key)
	}
	f, err := s.repo.Upsert(ctx, key, companyID, enabled)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, key, companyID)
	return f, nil
}

func (s *FeatureFlagService) invalidate(ctx context.Context, key string, companyID *string) {
	var err error
	switch {
	case companyID == nil && key == "":
		for _, d := range DefaultFlags {
			if err = s.cache.InvalidateKey(ctx, d.Key); err != nil {
				break
			}
		}
	case companyID == nil:
		err = s.cache.InvalidateKey(ctx, key)
	case key == "":
		err = s.cache.InvalidateCompany(ctx, *companyID)
	default:
		err = s.cache.Invalidate(ctx, *companyID, key)
	}
	if err != nil {
		logger.Warn("flag cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}

func isKnownFlag(key string) bool {
	for _, d := range DefaultFlags {
		if d.Key == key {
			return true
		}
	}
	return false
}

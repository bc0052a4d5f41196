package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"whispr-service/internal/graph"
	"whispr-service/internal/ledger"
	"whispr-service/internal/model"
	"whispr-service/internal/search"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrSearchOff    = errors.New("profile search is not configured")
)

const maxSearchResults = 25

// UserSummary is a user as shown in follower listings.
type UserSummary struct {
	Number string `json:"number"`
	Name   string `json:"name"`
}

// ProfileView is the public profile of a user.
type ProfileView struct {
	*model.UserProfile
	Followers      int    `json:"followers"`
	Following      int    `json:"following"`
	FollowPriceMOB string `json:"follow_price_mob,omitempty"`
}

// UserService answers read-only questions about users and the follow graph.
type UserService struct {
	store  *graph.Store
	engine *Engine
	index  search.Index
	logger *zap.Logger
}

func NewUserService(store *graph.Store, engine *Engine, index search.Index, logger *zap.Logger) *UserService {
	return &UserService{store: store, engine: engine, index: index, logger: logger}
}

// resolve accepts a display name or an international number.
func (s *UserService) resolve(ctx context.Context, ref string) (string, error) {
	res, err := s.engine.resolver.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return "", fmt.Errorf("%w: %s", ErrInvalidInput, res.Invalid)
	}
	known, err := s.store.Known(ctx, res.Number)
	if err != nil {
		return "", err
	}
	if !known {
		return "", ErrUserNotFound
	}
	return res.Number, nil
}

func (s *UserService) GetProfile(ctx context.Context, ref string) (*ProfileView, error) {
	number, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	profile, ok, err := s.store.GetProfile(ctx, number)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}

	followers, err := s.store.ListFollowers(ctx, number)
	if err != nil {
		return nil, err
	}
	following, err := s.store.Following(ctx, number)
	if err != nil {
		return nil, err
	}
	view := &ProfileView{UserProfile: profile, Followers: len(followers), Following: len(following)}
	if profile.FollowPrice > 0 {
		view.FollowPriceMOB = ledger.FormatMOB(profile.FollowPrice)
	}
	return view, nil
}

func (s *UserService) Followers(ctx context.Context, ref string) ([]UserSummary, error) {
	number, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	followers, err := s.store.ListFollowers(ctx, number)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, followers), nil
}

func (s *UserService) Following(ctx context.Context, ref string) ([]UserSummary, error) {
	number, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	following, err := s.store.Following(ctx, number)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, following), nil
}

func (s *UserService) Recommendations(ctx context.Context, ref string) ([]Recommendation, error) {
	number, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.engine.Recommend(ctx, number)
}

func (s *UserService) Search(ctx context.Context, query string, limit int) ([]search.Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidInput)
	}
	if s.index == nil {
		return nil, ErrSearchOff
	}
	if limit <= 0 || limit > maxSearchResults {
		limit = maxSearchResults
	}
	return s.index.Search(ctx, query, limit)
}

func (s *UserService) summarize(ctx context.Context, numbers []string) []UserSummary {
	out := make([]UserSummary, len(numbers))
	for i, n := range numbers {
		out[i] = UserSummary{Number: n, Name: s.engine.nameOf(ctx, n, "")}
	}
	return out
}

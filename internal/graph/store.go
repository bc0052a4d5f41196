// Package graph holds user profiles and the follow graph on top of the generic table store.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"whispr-service/internal/model"
	"whispr-service/internal/repository"
)

// Table names.
const (
	TableUserNames      = "user_names"
	TableNameNumbers    = "name_numbers"
	TableFollowers      = "followers"
	TableBlocked        = "blocked"
	TableClaimedAirdrop = "claimed_airdrop"
	TableFollowPrice    = "follow_price"
	TableLocked         = "locked"
)

var (
	ErrSelfFollow = errors.New("a user cannot follow themselves")
	ErrNameTaken  = errors.New("display name already taken")
	ErrEmptyName  = errors.New("display name is empty")
)

type Store struct {
	userNames      repository.Dict
	nameNumbers    repository.Dict
	locked         repository.Dict
	followPrice    repository.Dict
	claimedAirdrop repository.Dict
	followers      repository.ListDict
	blocklist      *Blocklist

	// serializes name claims so two users cannot take the same name at once
	nameMu sync.Mutex
}

func NewStore(backend repository.Backend) *Store {
	return &Store{
		userNames:      backend.Dict(TableUserNames),
		nameNumbers:    backend.Dict(TableNameNumbers),
		locked:         backend.Dict(TableLocked),
		followPrice:    backend.Dict(TableFollowPrice),
		claimedAirdrop: backend.Dict(TableClaimedAirdrop),
		followers:      backend.ListDict(TableFollowers),
		blocklist:      NewBlocklist(backend.Dict(TableBlocked)),
	}
}

func (s *Store) Blocklist() *Blocklist { return s.blocklist }

// Known reports whether number has been onboarded.
func (s *Store) Known(ctx context.Context, number string) (bool, error) {
	_, ok, err := s.userNames.Get(ctx, number)
	return ok, err
}

// GetProfile assembles the profile for number. ok is false for users never seen.
func (s *Store) GetProfile(ctx context.Context, number string) (*model.UserProfile, bool, error) {
	name, ok, err := s.userNames.Get(ctx, number)
	if err != nil || !ok {
		return nil, false, err
	}
	profile := &model.UserProfile{Number: number, DisplayName: name}
	if profile.Locked, err = s.IsLocked(ctx, number); err != nil {
		return nil, false, err
	}
	if profile.FollowPrice, err = s.FollowPrice(ctx, number); err != nil {
		return nil, false, err
	}
	if profile.Blocked, err = s.blocklist.IsBlocked(ctx, number); err != nil {
		return nil, false, err
	}
	if profile.ClaimedAirdrop, err = s.ClaimedAirdrop(ctx, number); err != nil {
		return nil, false, err
	}
	return profile, true, nil
}

// SetProfile writes every attribute of profile. The display name goes through
// the same uniqueness check as SetDisplayName.
func (s *Store) SetProfile(ctx context.Context, profile *model.UserProfile) error {
	if profile.DisplayName != "" {
		if _, err := s.SetDisplayName(ctx, profile.Number, profile.DisplayName); err != nil {
			return err
		}
	}
	if err := s.setBool(ctx, s.locked, profile.Number, profile.Locked); err != nil {
		return err
	}
	if err := s.SetFollowPrice(ctx, profile.Number, profile.FollowPrice); err != nil {
		return err
	}
	if err := s.setBool(ctx, s.claimedAirdrop, profile.Number, profile.ClaimedAirdrop); err != nil {
		return err
	}
	if profile.Blocked {
		_, err := s.blocklist.Block(ctx, profile.Number)
		return err
	}
	_, err := s.blocklist.Unblock(ctx, profile.Number)
	return err
}

// DisplayName returns the name shown for number, or number itself if it has none.
func (s *Store) DisplayName(ctx context.Context, number string) (string, error) {
	name, ok, err := s.userNames.Get(ctx, number)
	if err != nil {
		return "", err
	}
	if !ok || name == "" {
		return number, nil
	}
	return name, nil
}

// LookupDisplayName returns the stored name for number.
func (s *Store) LookupDisplayName(ctx context.Context, number string) (string, bool, error) {
	return s.userNames.Get(ctx, number)
}

// Reserve records a provisional profile whose name is the number itself.
func (s *Store) Reserve(ctx context.Context, number string) error {
	s.nameMu.Lock()
	defer s.nameMu.Unlock()
	if err := s.userNames.Set(ctx, number, number); err != nil {
		return err
	}
	return s.nameNumbers.Set(ctx, number, number)
}

// LookupName resolves a display name, exact match first and then case-insensitively.
func (s *Store) LookupName(ctx context.Context, name string) (string, bool, error) {
	number, ok, err := s.nameNumbers.Get(ctx, name)
	if err != nil || ok {
		return number, ok, err
	}
	items, err := s.nameNumbers.Items(ctx)
	if err != nil {
		return "", false, err
	}
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.EqualFold(k, name) {
			return items[k], true, nil
		}
	}
	return "", false, nil
}

// NameTaken reports whether name is held by someone other than number, either as a
// display name or as a number already in use.
func (s *Store) NameTaken(ctx context.Context, name, number string) (bool, error) {
	holder, ok, err := s.LookupName(ctx, name)
	if err != nil {
		return false, err
	}
	if ok && holder != number {
		return true, nil
	}
	if name != number {
		if _, inUse, err := s.userNames.Get(ctx, name); err != nil || inUse {
			return inUse, err
		}
	}
	return false, nil
}

// SetDisplayName claims name for number and releases the previous name.
// It returns the previous name.
func (s *Store) SetDisplayName(ctx context.Context, number, name string) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}
	s.nameMu.Lock()
	defer s.nameMu.Unlock()

	taken, err := s.NameTaken(ctx, name, number)
	if err != nil {
		return "", err
	}
	if taken {
		return "", ErrNameTaken
	}

	old, _, err := s.userNames.Get(ctx, number)
	if err != nil {
		return "", err
	}
	if err := s.userNames.Set(ctx, number, name); err != nil {
		return "", err
	}
	if err := s.nameNumbers.Set(ctx, name, number); err != nil {
		return "", err
	}
	if old != "" && old != name && old != number {
		if _, _, err := s.nameNumbers.Pop(ctx, old); err != nil {
			return old, fmt.Errorf("release old name: %w", err)
		}
	}
	return old, nil
}

// Numbers lists every onboarded user.
func (s *Store) Numbers(ctx context.Context) ([]string, error) {
	return s.userNames.Keys(ctx)
}

func (s *Store) IsLocked(ctx context.Context, number string) (bool, error) {
	return s.getBool(ctx, s.locked, number)
}

func (s *Store) SetLocked(ctx context.Context, number string, locked bool) error {
	return s.setBool(ctx, s.locked, number, locked)
}

func (s *Store) ClaimedAirdrop(ctx context.Context, number string) (bool, error) {
	return s.getBool(ctx, s.claimedAirdrop, number)
}

// FollowPrice is the pmob cost to follow number; zero means free.
func (s *Store) FollowPrice(ctx context.Context, number string) (int64, error) {
	raw, ok, err := s.followPrice.Get(ctx, number)
	if err != nil || !ok {
		return 0, err
	}
	price, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("follow price for %s: %w", number, err)
	}
	return price, nil
}

func (s *Store) SetFollowPrice(ctx context.Context, number string, pmob int64) error {
	if pmob <= 0 {
		_, _, err := s.followPrice.Pop(ctx, number)
		return err
	}
	return s.followPrice.Set(ctx, number, strconv.FormatInt(pmob, 10))
}

// ListFollowers returns the followers of number in the order they followed.
func (s *Store) ListFollowers(ctx context.Context, of string) ([]string, error) {
	return s.followers.Get(ctx, of)
}

// AddFollower records who -> of. Adding an existing follower is a no-op.
func (s *Store) AddFollower(ctx context.Context, of, who string) error {
	if of == who {
		return ErrSelfFollow
	}
	return s.followers.Extend(ctx, of, who)
}

func (s *Store) RemoveFollower(ctx context.Context, of, who string) error {
	return s.followers.RemoveFrom(ctx, of, who)
}

func (s *Store) IsFollowing(ctx context.Context, who, of string) (bool, error) {
	if who == of {
		return false, nil
	}
	followers, err := s.followers.Get(ctx, of)
	if err != nil {
		return false, err
	}
	for _, f := range followers {
		if f == who {
			return true, nil
		}
	}
	return false, nil
}

// Following lists everyone who is followed by who, sorted by number.
func (s *Store) Following(ctx context.Context, who string) ([]string, error) {
	edges, err := s.AllEdges(ctx)
	if err != nil {
		return nil, err
	}
	return followedBy(edges, who), nil
}

// AllEdges maps every followee to its followers.
func (s *Store) AllEdges(ctx context.Context) (map[string][]string, error) {
	return s.followers.Items(ctx)
}

func followedBy(edges map[string][]string, who string) []string {
	var out []string
	for followee, followers := range edges {
		for _, f := range followers {
			if f == who {
				out = append(out, followee)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

func (s *Store) getBool(ctx context.Context, d repository.Dict, key string) (bool, error) {
	raw, ok, err := d.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return raw == "true", nil
}

func (s *Store) setBool(ctx context.Context, d repository.Dict, key string, v bool) error {
	if !v {
		_, _, err := d.Pop(ctx, key)
		return err
	}
	return d.Set(ctx, key, "true")
}

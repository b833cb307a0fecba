package recipient

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/LeventeLantos/health-assistant/internal/model"
)

var ErrInvalidFilter = errors.New("invalid target filter")

// Directory is the part of the user store the selector reads.
type Directory interface {
	ListActiveUsers(ctx context.Context) ([]model.User, error)
	ListActiveUsersByRegion(ctx context.Context, region string) ([]model.User, error)
}

func ExplicitList(ids ...string) model.TargetFilter {
	return model.TargetFilter{Kind: model.FilterExplicit, Recipients: slices.Clone(ids)}
}

func ByRegions(regions ...string) model.TargetFilter {
	return model.TargetFilter{Kind: model.FilterRegions, Regions: slices.Clone(regions)}
}

func AllActive() model.TargetFilter {
	return model.TargetFilter{Kind: model.FilterAll}
}

type Selector struct {
	dir Directory
}

func NewSelector(dir Directory) *Selector {
	return &Selector{dir: dir}
}

// Resolve returns the recipient ids a filter addresses, each id once, in
// first-seen order. Explicit ids are not checked against the directory.
// An empty result is not an error.
func (s *Selector) Resolve(ctx context.Context, f model.TargetFilter) ([]string, error) {
	switch f.Kind {
	case model.FilterExplicit:
		return dedupe(f.Recipients), nil

	case model.FilterRegions:
		var ids []string
		for _, region := range f.Regions {
			users, err := s.dir.ListActiveUsersByRegion(ctx, region)
			if err != nil {
				return nil, fmt.Errorf("list users in region %q: %w", region, err)
			}
			ids = appendRecipients(ids, users)
		}
		return dedupe(ids), nil

	case model.FilterAll:
		users, err := s.dir.ListActiveUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active users: %w", err)
		}
		return dedupe(appendRecipients(nil, users)), nil

	default:
		return nil, fmt.Errorf("%w: kind %q", ErrInvalidFilter, f.Kind)
	}
}

func appendRecipients(ids []string, users []model.User) []string {
	for _, u := range users {
		ids = append(ids, u.Recipient)
	}
	return ids
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

package cache

import (
	"context"
	"fmt"

	"github.com/dkarpov/syncbox/internal/models"
)

// Domain convenience wrappers: fixed key-naming conventions over Set/Get,
// with the TTL taken from the store's configured per-priority expiry.
// Policy only, no new mechanism.

// MaxRecentMessages bounds the per-user message cache.
const MaxRecentMessages = 50

func profileKey(userID string) string     { return fmt.Sprintf("user:%s:profile", userID) }
func messagesKey(userID string) string    { return fmt.Sprintf("user:%s:messages", userID) }
func communitiesKey(userID string) string { return fmt.Sprintf("user:%s:communities", userID) }
func resourcesKey(subject string) string  { return fmt.Sprintf("resources:%s", subject) }
func officialKey() string                 { return "official:all" }
func officialSourceKey(source string) string {
	return fmt.Sprintf("official:source:%s", source)
}

func (s *Store) setWithPriority(ctx context.Context, key string, value any, priority models.Priority) error {
	return s.Set(ctx, key, value, priority, s.ttls.For(priority))
}

// SetUserProfile caches a user's profile (high priority).
func (s *Store) SetUserProfile(ctx context.Context, userID string, profile any) error {
	return s.setWithPriority(ctx, profileKey(userID), profile, models.PriorityHigh)
}

func (s *Store) UserProfile(ctx context.Context, userID string, dest any) (bool, error) {
	return s.Get(ctx, profileKey(userID), dest)
}

// SetRecentMessages caches a user's most recent messages (high priority).
// Only the first MaxRecentMessages entries are kept; callers pass messages
// newest first.
func SetRecentMessages[T any](ctx context.Context, s *Store, userID string, messages []T) error {
	if len(messages) > MaxRecentMessages {
		messages = messages[:MaxRecentMessages]
	}
	return s.setWithPriority(ctx, messagesKey(userID), messages, models.PriorityHigh)
}

func (s *Store) RecentMessages(ctx context.Context, userID string, dest any) (bool, error) {
	return s.Get(ctx, messagesKey(userID), dest)
}

// SetUserCommunities caches a user's communities (medium priority).
func (s *Store) SetUserCommunities(ctx context.Context, userID string, communities any) error {
	return s.setWithPriority(ctx, communitiesKey(userID), communities, models.PriorityMedium)
}

func (s *Store) UserCommunities(ctx context.Context, userID string, dest any) (bool, error) {
	return s.Get(ctx, communitiesKey(userID), dest)
}

// SetSubjectResources caches a per-subject resource listing (medium
// priority).
func (s *Store) SetSubjectResources(ctx context.Context, subject string, resources any) error {
	return s.setWithPriority(ctx, resourcesKey(subject), resources, models.PriorityMedium)
}

func (s *Store) SubjectResources(ctx context.Context, subject string, dest any) (bool, error) {
	return s.Get(ctx, resourcesKey(subject), dest)
}

// SetOfficialContent caches the full shared "official" collection (high
// priority).
func (s *Store) SetOfficialContent(ctx context.Context, content any) error {
	return s.setWithPriority(ctx, officialKey(), content, models.PriorityHigh)
}

func (s *Store) OfficialContent(ctx context.Context, dest any) (bool, error) {
	return s.Get(ctx, officialKey(), dest)
}

// SetOfficialContentBySource caches the per-source subset of the official
// collection (high priority).
func (s *Store) SetOfficialContentBySource(ctx context.Context, source string, content any) error {
	return s.setWithPriority(ctx, officialSourceKey(source), content, models.PriorityHigh)
}

func (s *Store) OfficialContentBySource(ctx context.Context, source string, dest any) (bool, error) {
	return s.Get(ctx, officialSourceKey(source), dest)
}

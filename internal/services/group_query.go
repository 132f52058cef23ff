package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Gopher0727/StudyGroup/internal/clock"
	"github.com/Gopher0727/StudyGroup/internal/models"
	"github.com/Gopher0727/StudyGroup/internal/repositories"
	logger "github.com/Gopher0727/StudyGroup/middleware/log"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// GroupCache 小组详情的读缓存，只用于展示
// Load 返回的版本号交给 Store，期间被 Invalidate 过的写入会被丢弃
type GroupCache interface {
	Load(ctx context.Context, groupUUID string, dst any) (version int64, hit bool, err error)
	Store(ctx context.Context, groupUUID string, version int64, v any) error
	Invalidate(ctx context.Context, groupUUID string) error
}

// GroupQueryService 只读查询
type GroupQueryService struct {
	store repositories.Store
	clock clock.Clock
	guard AuthorizationGuard
	cache GroupCache
	log   *logger.Logger
}

func NewGroupQueryService(store repositories.Store, clk clock.Clock, guard AuthorizationGuard, cache GroupCache, log *logger.Logger) *GroupQueryService {
	if log == nil {
		log = logger.NewNop()
	}
	return &GroupQueryService{store: store, clock: clk, guard: guard, cache: cache, log: log.Named("query")}
}

// GetGroup 小组详情，先读缓存，缓存故障时直接读库
func (s *GroupQueryService) GetGroup(ctx context.Context, groupUUID string) (*GroupDetail, error) {
	today := s.clock.Today()

	var cached cachedGroup
	version, hit, err := s.cache.Load(ctx, groupUUID, &cached)
	cacheOK := err == nil
	if err != nil {
		s.log.WarnContext(ctx, "load group cache failed", zap.String("group_uuid", groupUUID), zap.Error(err))
	}
	if hit {
		d := cached.view(today)
		return &d, nil
	}

	group, err := s.store.GetGroupByUUID(ctx, groupUUID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	members, err := s.store.ListMembers(ctx, group.ID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	d := newGroupDetail(group, members, today)
	// 版本号未知时不回填
	if cacheOK {
		entry := cachedGroup{Detail: d, Deadline: group.Deadline, Filled: group.FilledAt != nil}
		if err := s.cache.Store(ctx, groupUUID, version, entry); err != nil {
			s.log.WarnContext(ctx, "store group cache failed", zap.String("group_uuid", groupUUID), zap.Error(err))
		}
	}
	return &d, nil
}

// ListGroups 公开列表，按创建时间倒序
func (s *GroupQueryService) ListGroups(ctx context.Context, q ListGroupsQuery) ([]GroupSummary, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if q.Offset < 0 {
		return nil, fieldError("offset", "不能为负数")
	}

	groups, err := s.store.ListGroups(ctx, repositories.GroupFilter{
		Search:   q.Search,
		Category: q.Category,
		Tag:      q.Tag,
		Limit:    limit,
		Offset:   q.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return s.summaries(ctx, groups)
}

// ListMembers 仅小组成员可见
func (s *GroupQueryService) ListMembers(ctx context.Context, actorID uint, groupUUID string) ([]MemberView, error) {
	group, err := s.store.GetGroupByUUID(ctx, groupUUID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	ok, err := s.guard.IsMember(ctx, s.store, actorID, group.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}

	members, err := s.store.ListMembers(ctx, group.ID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	views := make([]MemberView, 0, len(members))
	for _, m := range members {
		views = append(views, newMemberView(m))
	}
	return views, nil
}

// ListMyGroups 当前用户加入的小组
func (s *GroupQueryService) ListMyGroups(ctx context.Context, userID uint) ([]GroupSummary, error) {
	groups, err := s.store.ListGroupsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups by user: %w", err)
	}
	return s.summaries(ctx, groups)
}

func (s *GroupQueryService) ListCategories(ctx context.Context) ([]string, error) {
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, c.Name)
	}
	return names, nil
}

func (s *GroupQueryService) summaries(ctx context.Context, groups []models.StudyGroup) ([]GroupSummary, error) {
	ids := make([]uint, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	counts, err := s.store.CountMembersByGroups(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}

	today := s.clock.Today()
	out := make([]GroupSummary, 0, len(groups))
	for i := range groups {
		out = append(out, newGroupSummary(&groups[i], counts[groups[i].ID], today))
	}
	return out, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, repositories.ErrNotFound)
}

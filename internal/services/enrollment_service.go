package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gopher0727/StudyGroup/internal/clock"
	"github.com/Gopher0727/StudyGroup/internal/events"
	"github.com/Gopher0727/StudyGroup/internal/metrics"
	"github.com/Gopher0727/StudyGroup/internal/models"
	"github.com/Gopher0727/StudyGroup/internal/policy"
	"github.com/Gopher0727/StudyGroup/internal/repositories"
	logger "github.com/Gopher0727/StudyGroup/middleware/log"
)

// EnrollmentService 小组招募的写操作
// 每个操作在一个事务内完成，事件在提交后发布
type EnrollmentService struct {
	store     repositories.Store
	clock     clock.Clock
	guard     AuthorizationGuard
	ledger    *Ledger
	publisher events.Publisher
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// NewEnrollmentService 创建招募服务实例，publisher/m/log 可以为 nil
func NewEnrollmentService(
	store repositories.Store,
	clk clock.Clock,
	guard AuthorizationGuard,
	ledger *Ledger,
	publisher events.Publisher,
	m *metrics.Metrics,
	log *logger.Logger,
) *EnrollmentService {
	if publisher == nil {
		publisher = events.NewDirectPublisher(nil)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &EnrollmentService{
		store:     store,
		clock:     clk,
		guard:     guard,
		ledger:    ledger,
		publisher: publisher,
		metrics:   m,
		log:       log.Named("enrollment"),
	}
}

// CreateGroup 创建小组，创建者成为唯一的组长
func (s *EnrollmentService) CreateGroup(ctx context.Context, ownerID uint, req *CreateGroupRequest) (detail *GroupDetail, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "create_group", start, err) }()

	today := s.clock.Today()
	group, categories, tags, err := s.buildGroup(req, today)
	if err != nil {
		return nil, err
	}

	var leader models.Member
	err = s.store.Transaction(ctx, func(tx repositories.Store) error {
		cats, err := s.resolveCategories(ctx, tx, categories)
		if err != nil {
			return err
		}
		tagRows, err := tx.FirstOrCreateTags(ctx, tags)
		if err != nil {
			return fmt.Errorf("create tags: %w", err)
		}
		group.Categories = cats
		group.Tags = tagRows

		if err := tx.CreateGroup(ctx, group); err != nil {
			return fmt.Errorf("create group: %w", err)
		}
		leader = models.Member{StudyGroupID: group.ID, UserID: ownerID, IsLeader: true}
		if err := tx.CreateMember(ctx, &leader); err != nil {
			return fmt.Errorf("create leader: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "study group created",
		zap.String("group_uuid", group.UUID),
		zap.Uint("owner_id", ownerID),
		zap.Int("member_limit", group.MemberLimit),
	)
	s.publish(ctx, events.New(events.GroupCreated, group.UUID, ownerID))

	d := newGroupDetail(group, []models.Member{leader}, today)
	return &d, nil
}

func (s *EnrollmentService) buildGroup(req *CreateGroupRequest, today time.Time) (*models.StudyGroup, []string, []string, error) {
	name, err := plainText("name", req.Name, maxNameLen)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := policy.ValidateCapacity(req.MemberLimit); err != nil {
		return nil, nil, nil, err
	}
	deadline, err := parseDate("deadline", req.Deadline)
	if err != nil {
		return nil, nil, nil, err
	}
	startDate, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return nil, nil, nil, err
	}
	endDate, err := parseDate("end_date", req.EndDate)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := policy.ValidateDates(deadline, startDate, endDate, today); err != nil {
		return nil, nil, nil, err
	}
	title, err := plainText("title", req.Title, maxTitleLen)
	if err != nil {
		return nil, nil, nil, err
	}
	content, err := richText("content", req.Content, maxContentLen)
	if err != nil {
		return nil, nil, nil, err
	}
	image, err := headImage(req.HeadImage)
	if err != nil {
		return nil, nil, nil, err
	}
	categories, err := labels("categories", req.Categories, 0)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(categories) == 0 {
		return nil, nil, nil, fieldError("categories", "至少选择一个分类")
	}
	tags, err := labels("tags", req.Tags, maxTags)
	if err != nil {
		return nil, nil, nil, err
	}

	group := &models.StudyGroup{
		UUID:        uuid.NewString(),
		Name:        name,
		MemberLimit: req.MemberLimit,
		Deadline:    deadline,
		StartDate:   startDate,
		EndDate:     endDate,
		Title:       title,
		Content:     content,
		HeadImage:   image,
	}
	return group, categories, tags, nil
}

// resolveCategories 分类只能引用已存在的记录
func (s *EnrollmentService) resolveCategories(ctx context.Context, tx repositories.Store, names []string) ([]models.Category, error) {
	found, err := tx.FindCategories(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("find categories: %w", err)
	}
	byName := make(map[string]models.Category, len(found))
	for _, c := range found {
		byName[c.Name] = c
	}
	cats := make([]models.Category, 0, len(names))
	for _, n := range names {
		c, ok := byName[n]
		if !ok {
			return nil, fieldError("categories", "分类 %q 不存在", n)
		}
		cats = append(cats, c)
	}
	return cats, nil
}

// RequestJoin 提交入组申请
func (s *EnrollmentService) RequestJoin(ctx context.Context, userID uint, groupUUID, message string) (view *RequestView, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "request_join", start, err) }()

	msg, err := plainText("request_message", message, maxMessageLen)
	if err != nil {
		return nil, err
	}

	var req *models.MembershipRequest
	err = s.store.Transaction(ctx, func(tx repositories.Store) error {
		group, err := s.lockGroup(ctx, tx, groupUUID)
		if err != nil {
			return err
		}
		count, err := tx.CountMembers(ctx, group.ID)
		if err != nil {
			return fmt.Errorf("count members: %w", err)
		}
		req, err = s.ledger.Submit(ctx, tx, userID, group.ID, snapshotOf(group, count), msg)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "join request submitted",
		zap.String("group_uuid", groupUUID),
		zap.Uint("applicant_id", userID),
		zap.Int64("request_id", req.ID),
	)
	e := events.New(events.JoinRequested, groupUUID, userID)
	e.UserID = userID
	e.RequestID = req.ID
	s.publish(ctx, e)

	v := newRequestView(req)
	return &v, nil
}

// ListPending 组长查看未处理的申请，按提交时间升序
func (s *EnrollmentService) ListPending(ctx context.Context, actorID uint, groupUUID string) ([]RequestView, error) {
	group, err := s.findGroup(ctx, s.store, groupUUID)
	if err != nil {
		return nil, err
	}
	if err := s.requireLeader(ctx, s.store, actorID, group.ID); err != nil {
		return nil, err
	}
	reqs, err := s.ledger.ListPending(ctx, s.store, group.ID)
	if err != nil {
		return nil, err
	}
	views := make([]RequestView, 0, len(reqs))
	for i := range reqs {
		views = append(views, newRequestView(&reqs[i]))
	}
	return views, nil
}

// DecideRequest 组长批准或拒绝申请
// 批准时在同一事务内按最新成员数重新判断是否仍在招募，已关闭则整体回滚，申请保持未处理
func (s *EnrollmentService) DecideRequest(ctx context.Context, actorID uint, groupUUID string, requestID int64, d Decision) (view *RequestView, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, d.String()+"_request", start, err) }()

	if d != Approve && d != Reject {
		return nil, fieldError("decision", "未知的处理结果")
	}

	var (
		decided *models.MembershipRequest
		member  models.Member
		filled  bool
	)
	err = s.store.Transaction(ctx, func(tx repositories.Store) error {
		group, err := s.findGroup(ctx, tx, groupUUID)
		if err != nil {
			return err
		}
		req, err := tx.GetRequest(ctx, requestID)
		if errors.Is(err, repositories.ErrNotFound) || (err == nil && req.StudyGroupID != group.ID) {
			return ErrRequestNotFound
		}
		if err != nil {
			return fmt.Errorf("get request: %w", err)
		}

		locked, err := lockByID(ctx, tx, group.ID)
		if err != nil {
			return err
		}
		if err := s.requireLeader(ctx, tx, actorID, group.ID); err != nil {
			return err
		}

		decided, err = s.ledger.Decide(ctx, tx, actorID, requestID, d)
		if err != nil {
			return err
		}
		if d == Reject {
			return nil
		}

		count, err := tx.CountMembers(ctx, group.ID)
		if err != nil {
			return fmt.Errorf("count members: %w", err)
		}
		if !policy.IsOpen(snapshotOf(locked, count), s.clock.Today()) {
			return ErrGroupClosed
		}
		member = models.Member{StudyGroupID: group.ID, UserID: decided.UserID}
		if err := tx.CreateMember(ctx, &member); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return ErrAlreadyMember
			}
			return fmt.Errorf("create member: %w", err)
		}
		if count+1 >= locked.MemberLimit {
			if err := tx.MarkGroupFilled(ctx, group.ID, time.Now()); err != nil {
				return fmt.Errorf("mark group filled: %w", err)
			}
			filled = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "join request decided",
		zap.String("group_uuid", groupUUID),
		zap.Int64("request_id", requestID),
		zap.Stringer("decision", d),
		zap.Uint("actor_id", actorID),
		zap.Bool("filled", filled),
	)

	typ := events.RequestRejected
	if d == Approve {
		typ = events.RequestApproved
	}
	e := events.New(typ, groupUUID, actorID)
	e.UserID = decided.UserID
	e.RequestID = decided.ID
	e.MemberID = member.ID
	s.publish(ctx, e)
	if filled {
		s.publish(ctx, events.New(events.GroupCapacityMet, groupUUID, actorID))
	}

	v := newRequestView(decided)
	return &v, nil
}

// RemoveMember 组长移除成员，不能移除最后一名组长
// 移除成员不会重新开放已满员的小组
func (s *EnrollmentService) RemoveMember(ctx context.Context, actorID uint, groupUUID string, memberID uint) (err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "remove_member", start, err) }()

	var removed *models.Member
	err = s.store.Transaction(ctx, func(tx repositories.Store) error {
		group, err := s.lockGroup(ctx, tx, groupUUID)
		if err != nil {
			return err
		}
		if err := s.requireLeader(ctx, tx, actorID, group.ID); err != nil {
			return err
		}
		removed, err = tx.GetMember(ctx, group.ID, memberID)
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrMemberNotFound
		}
		if err != nil {
			return fmt.Errorf("get member: %w", err)
		}
		if removed.IsLeader {
			leaders, err := tx.CountLeaders(ctx, group.ID)
			if err != nil {
				return fmt.Errorf("count leaders: %w", err)
			}
			if leaders <= 1 {
				return ErrLastLeader
			}
		}
		if err := tx.DeleteMember(ctx, removed.ID); err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.InfoContext(ctx, "member removed",
		zap.String("group_uuid", groupUUID),
		zap.Uint("member_id", memberID),
		zap.Uint("actor_id", actorID),
	)
	e := events.New(events.MemberRemoved, groupUUID, actorID)
	e.UserID = removed.UserID
	e.MemberID = removed.ID
	s.publish(ctx, e)
	return nil
}

// UpdateGroup 组长修改招募中的小组
// 修改任一日期时重新校验 today < deadline < start < end
func (s *EnrollmentService) UpdateGroup(ctx context.Context, actorID uint, groupUUID string, patch *UpdateGroupRequest) (detail *GroupDetail, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "update_group", start, err) }()

	today := s.clock.Today()
	var (
		updated *models.StudyGroup
		members []models.Member
	)
	err = s.store.Transaction(ctx, func(tx repositories.Store) error {
		group, err := s.findGroup(ctx, tx, groupUUID)
		if err != nil {
			return err
		}
		locked, err := lockByID(ctx, tx, group.ID)
		if err != nil {
			return err
		}
		if err := s.requireLeader(ctx, tx, actorID, group.ID); err != nil {
			return err
		}
		count, err := tx.CountMembers(ctx, group.ID)
		if err != nil {
			return fmt.Errorf("count members: %w", err)
		}
		if !policy.IsOpen(snapshotOf(locked, count), today) {
			return ErrGroupClosed
		}

		locked.Categories = group.Categories
		locked.Tags = group.Tags
		if err := s.applyPatch(ctx, tx, locked, patch, today); err != nil {
			return err
		}
		if err := tx.SaveGroup(ctx, locked); err != nil {
			return fmt.Errorf("save group: %w", err)
		}
		updated = locked
		members, err = tx.ListMembers(ctx, group.ID)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "study group updated",
		zap.String("group_uuid", groupUUID),
		zap.Uint("actor_id", actorID),
	)
	s.publish(ctx, events.New(events.GroupUpdated, groupUUID, actorID))

	d := newGroupDetail(updated, members, today)
	return &d, nil
}

func (s *EnrollmentService) applyPatch(ctx context.Context, tx repositories.Store, g *models.StudyGroup, p *UpdateGroupRequest, today time.Time) error {
	if p.Name != nil {
		name, err := plainText("name", *p.Name, maxNameLen)
		if err != nil {
			return err
		}
		g.Name = name
	}
	// 人数上限创建后固定，原样回传可以接受
	if p.MemberLimit != nil && *p.MemberLimit != g.MemberLimit {
		return fieldError("member_limit", "创建后不能修改人数上限")
	}

	datesChanged := false
	for _, f := range []struct {
		field string
		raw   *string
		dst   *time.Time
	}{
		{"deadline", p.Deadline, &g.Deadline},
		{"start_date", p.StartDate, &g.StartDate},
		{"end_date", p.EndDate, &g.EndDate},
	} {
		if f.raw == nil {
			continue
		}
		t, err := parseDate(f.field, *f.raw)
		if err != nil {
			return err
		}
		*f.dst = t
		datesChanged = true
	}
	if datesChanged {
		if err := policy.ValidateDates(g.Deadline, g.StartDate, g.EndDate, today); err != nil {
			return err
		}
	}

	if p.Title != nil {
		title, err := plainText("title", *p.Title, maxTitleLen)
		if err != nil {
			return err
		}
		g.Title = title
	}
	if p.Content != nil {
		content, err := richText("content", *p.Content, maxContentLen)
		if err != nil {
			return err
		}
		g.Content = content
	}
	if p.HeadImage != nil {
		image, err := headImage(*p.HeadImage)
		if err != nil {
			return err
		}
		g.HeadImage = image
	}
	if p.Categories != nil {
		names, err := labels("categories", *p.Categories, 0)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return fieldError("categories", "至少选择一个分类")
		}
		cats, err := s.resolveCategories(ctx, tx, names)
		if err != nil {
			return err
		}
		g.Categories = cats
	}
	if p.Tags != nil {
		names, err := labels("tags", *p.Tags, maxTags)
		if err != nil {
			return err
		}
		tags, err := tx.FirstOrCreateTags(ctx, names)
		if err != nil {
			return fmt.Errorf("create tags: %w", err)
		}
		g.Tags = tags
	}
	return nil
}

// DeleteGroup 组长删除小组，依次删除申请、成员、分类标签关联和小组本身
func (s *EnrollmentService) DeleteGroup(ctx context.Context, actorID uint, groupUUID string) (err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "delete_group", start, err) }()

	err = s.store.Transaction(ctx, func(tx repositories.Store) error {
		group, err := s.lockGroup(ctx, tx, groupUUID)
		if err != nil {
			return err
		}
		if err := s.requireLeader(ctx, tx, actorID, group.ID); err != nil {
			return err
		}
		if err := tx.DeleteRequestsByGroup(ctx, group.ID); err != nil {
			return fmt.Errorf("delete requests: %w", err)
		}
		if err := tx.DeleteMembersByGroup(ctx, group.ID); err != nil {
			return fmt.Errorf("delete members: %w", err)
		}
		if err := tx.DeleteGroup(ctx, group.ID); err != nil {
			return fmt.Errorf("delete group: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.InfoContext(ctx, "study group deleted",
		zap.String("group_uuid", groupUUID),
		zap.Uint("actor_id", actorID),
	)
	s.publish(ctx, events.New(events.GroupDeleted, groupUUID, actorID))
	return nil
}

func (s *EnrollmentService) findGroup(ctx context.Context, store repositories.Store, groupUUID string) (*models.StudyGroup, error) {
	group, err := store.GetGroupByUUID(ctx, groupUUID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return group, nil
}

// lockGroup 按 uuid 查找并锁定小组行
func (s *EnrollmentService) lockGroup(ctx context.Context, tx repositories.Store, groupUUID string) (*models.StudyGroup, error) {
	group, err := s.findGroup(ctx, tx, groupUUID)
	if err != nil {
		return nil, err
	}
	return lockByID(ctx, tx, group.ID)
}

// lockByID 锁定小组行，查找之后被并发删除时返回 ErrGroupNotFound
func lockByID(ctx context.Context, tx repositories.Store, groupID uint) (*models.StudyGroup, error) {
	locked, err := tx.LockGroup(ctx, groupID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock group: %w", err)
	}
	return locked, nil
}

func (s *EnrollmentService) requireLeader(ctx context.Context, store repositories.Store, userID, groupID uint) error {
	ok, err := s.guard.IsLeader(ctx, store, userID, groupID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func (s *EnrollmentService) observe(ctx context.Context, op string, start time.Time, err error) {
	s.metrics.ObserveOperation(op, Outcome(err), time.Since(start))
	switch {
	case err == nil:
	case IsDomainError(err):
		s.log.DebugContext(ctx, "enrollment operation rejected", zap.String("operation", op), zap.Error(err))
	default:
		s.log.ErrorContext(ctx, "enrollment operation failed", zap.String("operation", op), zap.Error(err))
	}
}

// publish 状态已提交，发布失败只记录日志和指标
func (s *EnrollmentService) publish(ctx context.Context, e events.Event) {
	e.TraceID = logger.GetTraceID(ctx)
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.metrics.PublishFailed(string(e.Type))
		s.log.WarnContext(ctx, "publish enrollment event failed",
			zap.String("event_type", string(e.Type)),
			zap.String("group_uuid", e.GroupUUID),
			zap.Error(err),
		)
	}
}

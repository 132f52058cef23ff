package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Gopher0727/StudyGroup/internal/models"
)

// MemoryStore 单进程内存实现 (storage.driver = memory)
// 事务持有全局互斥锁直到结束，失败时恢复事务开始时的快照，因此事务之间完全串行
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

type memData struct {
	groups     map[uint]models.StudyGroup
	members    map[uint]models.Member
	requests   map[int64]models.MembershipRequest
	categories map[uint]models.Category
	tags       map[uint]models.Tag

	nextGroupID    uint
	nextMemberID   uint
	nextCategoryID uint
	nextTagID      uint
	nextRequestID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: &memData{
		groups:     make(map[uint]models.StudyGroup),
		members:    make(map[uint]models.Member),
		requests:   make(map[int64]models.MembershipRequest),
		categories: make(map[uint]models.Category),
		tags:       make(map[uint]models.Tag),
	}}
}

func (d *memData) clone() *memData {
	c := *d
	c.groups = make(map[uint]models.StudyGroup, len(d.groups))
	for k, v := range d.groups {
		c.groups[k] = v
	}
	c.members = make(map[uint]models.Member, len(d.members))
	for k, v := range d.members {
		c.members[k] = v
	}
	c.requests = make(map[int64]models.MembershipRequest, len(d.requests))
	for k, v := range d.requests {
		c.requests[k] = v
	}
	c.categories = make(map[uint]models.Category, len(d.categories))
	for k, v := range d.categories {
		c.categories[k] = v
	}
	c.tags = make(map[uint]models.Tag, len(d.tags))
	for k, v := range d.tags {
		c.tags[k] = v
	}
	return &c
}

// Transaction 串行执行 fn，返回错误时整体回滚
func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{d: s.data}).Transaction(ctx, fn)
}

func locked[T any](s *MemoryStore, fn func(tx *memTx) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{d: s.data})
}

func lockedErr(s *MemoryStore, fn func(tx *memTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{d: s.data})
}

func (s *MemoryStore) CreateGroup(ctx context.Context, group *models.StudyGroup) error {
	return lockedErr(s, func(tx *memTx) error { return tx.CreateGroup(ctx, group) })
}

func (s *MemoryStore) GetGroupByUUID(ctx context.Context, uuid string) (*models.StudyGroup, error) {
	return locked(s, func(tx *memTx) (*models.StudyGroup, error) { return tx.GetGroupByUUID(ctx, uuid) })
}

func (s *MemoryStore) GetGroupByID(ctx context.Context, id uint) (*models.StudyGroup, error) {
	return locked(s, func(tx *memTx) (*models.StudyGroup, error) { return tx.GetGroupByID(ctx, id) })
}

func (s *MemoryStore) LockGroup(ctx context.Context, id uint) (*models.StudyGroup, error) {
	return locked(s, func(tx *memTx) (*models.StudyGroup, error) { return tx.LockGroup(ctx, id) })
}

func (s *MemoryStore) SaveGroup(ctx context.Context, group *models.StudyGroup) error {
	return lockedErr(s, func(tx *memTx) error { return tx.SaveGroup(ctx, group) })
}

func (s *MemoryStore) MarkGroupFilled(ctx context.Context, id uint, at time.Time) error {
	return lockedErr(s, func(tx *memTx) error { return tx.MarkGroupFilled(ctx, id, at) })
}

func (s *MemoryStore) DeleteGroup(ctx context.Context, id uint) error {
	return lockedErr(s, func(tx *memTx) error { return tx.DeleteGroup(ctx, id) })
}

func (s *MemoryStore) ListGroups(ctx context.Context, filter GroupFilter) ([]models.StudyGroup, error) {
	return locked(s, func(tx *memTx) ([]models.StudyGroup, error) { return tx.ListGroups(ctx, filter) })
}

func (s *MemoryStore) ListGroupsByUser(ctx context.Context, userID uint) ([]models.StudyGroup, error) {
	return locked(s, func(tx *memTx) ([]models.StudyGroup, error) { return tx.ListGroupsByUser(ctx, userID) })
}

func (s *MemoryStore) CreateMember(ctx context.Context, member *models.Member) error {
	return lockedErr(s, func(tx *memTx) error { return tx.CreateMember(ctx, member) })
}

func (s *MemoryStore) GetMember(ctx context.Context, groupID, memberID uint) (*models.Member, error) {
	return locked(s, func(tx *memTx) (*models.Member, error) { return tx.GetMember(ctx, groupID, memberID) })
}

func (s *MemoryStore) FindMember(ctx context.Context, groupID, userID uint) (*models.Member, error) {
	return locked(s, func(tx *memTx) (*models.Member, error) { return tx.FindMember(ctx, groupID, userID) })
}

func (s *MemoryStore) ListMembers(ctx context.Context, groupID uint) ([]models.Member, error) {
	return locked(s, func(tx *memTx) ([]models.Member, error) { return tx.ListMembers(ctx, groupID) })
}

func (s *MemoryStore) CountMembers(ctx context.Context, groupID uint) (int, error) {
	return locked(s, func(tx *memTx) (int, error) { return tx.CountMembers(ctx, groupID) })
}

func (s *MemoryStore) CountMembersByGroups(ctx context.Context, groupIDs []uint) (map[uint]int, error) {
	return locked(s, func(tx *memTx) (map[uint]int, error) { return tx.CountMembersByGroups(ctx, groupIDs) })
}

func (s *MemoryStore) CountLeaders(ctx context.Context, groupID uint) (int, error) {
	return locked(s, func(tx *memTx) (int, error) { return tx.CountLeaders(ctx, groupID) })
}

func (s *MemoryStore) DeleteMember(ctx context.Context, id uint) error {
	return lockedErr(s, func(tx *memTx) error { return tx.DeleteMember(ctx, id) })
}

func (s *MemoryStore) DeleteMembersByGroup(ctx context.Context, groupID uint) error {
	return lockedErr(s, func(tx *memTx) error { return tx.DeleteMembersByGroup(ctx, groupID) })
}

func (s *MemoryStore) CreateRequest(ctx context.Context, req *models.MembershipRequest) error {
	return lockedErr(s, func(tx *memTx) error { return tx.CreateRequest(ctx, req) })
}

func (s *MemoryStore) GetRequest(ctx context.Context, id int64) (*models.MembershipRequest, error) {
	return locked(s, func(tx *memTx) (*models.MembershipRequest, error) { return tx.GetRequest(ctx, id) })
}

func (s *MemoryStore) LockRequest(ctx context.Context, id int64) (*models.MembershipRequest, error) {
	return locked(s, func(tx *memTx) (*models.MembershipRequest, error) { return tx.LockRequest(ctx, id) })
}

func (s *MemoryStore) SaveRequest(ctx context.Context, req *models.MembershipRequest) error {
	return lockedErr(s, func(tx *memTx) error { return tx.SaveRequest(ctx, req) })
}

func (s *MemoryStore) HasPendingRequest(ctx context.Context, groupID, userID uint) (bool, error) {
	return locked(s, func(tx *memTx) (bool, error) { return tx.HasPendingRequest(ctx, groupID, userID) })
}

func (s *MemoryStore) ListPendingRequests(ctx context.Context, groupID uint) ([]models.MembershipRequest, error) {
	return locked(s, func(tx *memTx) ([]models.MembershipRequest, error) { return tx.ListPendingRequests(ctx, groupID) })
}

func (s *MemoryStore) DeleteRequestsByGroup(ctx context.Context, groupID uint) error {
	return lockedErr(s, func(tx *memTx) error { return tx.DeleteRequestsByGroup(ctx, groupID) })
}

func (s *MemoryStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	return locked(s, func(tx *memTx) ([]models.Category, error) { return tx.ListCategories(ctx) })
}

func (s *MemoryStore) FindCategories(ctx context.Context, names []string) ([]models.Category, error) {
	return locked(s, func(tx *memTx) ([]models.Category, error) { return tx.FindCategories(ctx, names) })
}

func (s *MemoryStore) EnsureCategories(ctx context.Context, names []string) error {
	return lockedErr(s, func(tx *memTx) error { return tx.EnsureCategories(ctx, names) })
}

func (s *MemoryStore) FirstOrCreateTags(ctx context.Context, names []string) ([]models.Tag, error) {
	return locked(s, func(tx *memTx) ([]models.Tag, error) { return tx.FirstOrCreateTags(ctx, names) })
}

// memTx 在已持有 MemoryStore.mu 的前提下直接操作数据
type memTx struct {
	d *memData
}

// Transaction 嵌套事务，失败时只回滚本层的修改
func (t *memTx) Transaction(ctx context.Context, fn func(tx Store) error) error {
	snapshot := t.d.clone()
	if err := fn(t); err != nil {
		*t.d = *snapshot
		return err
	}
	return nil
}

func copyGroup(g models.StudyGroup) *models.StudyGroup {
	g.Categories = append([]models.Category(nil), g.Categories...)
	g.Tags = append([]models.Tag(nil), g.Tags...)
	if g.FilledAt != nil {
		at := *g.FilledAt
		g.FilledAt = &at
	}
	return &g
}

func (t *memTx) CreateGroup(_ context.Context, group *models.StudyGroup) error {
	for _, g := range t.d.groups {
		if g.UUID == group.UUID {
			return ErrDuplicate
		}
	}
	t.d.nextGroupID++
	now := time.Now()
	group.ID = t.d.nextGroupID
	group.CreatedAt = now
	group.UpdatedAt = now
	t.d.groups[group.ID] = *copyGroup(*group)
	return nil
}

func (t *memTx) GetGroupByUUID(_ context.Context, uuid string) (*models.StudyGroup, error) {
	for _, g := range t.d.groups {
		if g.UUID == uuid {
			return copyGroup(g), nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) GetGroupByID(_ context.Context, id uint) (*models.StudyGroup, error) {
	g, ok := t.d.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyGroup(g), nil
}

func (t *memTx) LockGroup(ctx context.Context, id uint) (*models.StudyGroup, error) {
	return t.GetGroupByID(ctx, id)
}

func (t *memTx) SaveGroup(_ context.Context, group *models.StudyGroup) error {
	stored, ok := t.d.groups[group.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Name = group.Name
	stored.MemberLimit = group.MemberLimit
	stored.Deadline = group.Deadline
	stored.StartDate = group.StartDate
	stored.EndDate = group.EndDate
	stored.Title = group.Title
	stored.Content = group.Content
	stored.HeadImage = group.HeadImage
	stored.Categories = append([]models.Category(nil), group.Categories...)
	stored.Tags = append([]models.Tag(nil), group.Tags...)
	stored.UpdatedAt = time.Now()
	t.d.groups[group.ID] = stored
	return nil
}

func (t *memTx) MarkGroupFilled(_ context.Context, id uint, at time.Time) error {
	stored, ok := t.d.groups[id]
	if !ok {
		return ErrNotFound
	}
	if stored.FilledAt == nil {
		stored.FilledAt = &at
		t.d.groups[id] = stored
	}
	return nil
}

func (t *memTx) DeleteGroup(_ context.Context, id uint) error {
	if _, ok := t.d.groups[id]; !ok {
		return ErrNotFound
	}
	delete(t.d.groups, id)
	return nil
}

func hasCategory(g models.StudyGroup, name string) bool {
	for _, c := range g.Categories {
		if c.Name == name {
			return true
		}
	}
	return false
}

func hasTag(g models.StudyGroup, name string) bool {
	for _, tag := range g.Tags {
		if tag.Name == name {
			return true
		}
	}
	return false
}

// sortNewestFirst 与 GormStore 的 created_at DESC, id DESC 一致
func sortNewestFirst(groups []models.StudyGroup) {
	sort.Slice(groups, func(i, j int) bool {
		if !groups[i].CreatedAt.Equal(groups[j].CreatedAt) {
			return groups[i].CreatedAt.After(groups[j].CreatedAt)
		}
		return groups[i].ID > groups[j].ID
	})
}

func (t *memTx) ListGroups(_ context.Context, filter GroupFilter) ([]models.StudyGroup, error) {
	search := strings.ToLower(filter.Search)
	groups := make([]models.StudyGroup, 0)
	for _, g := range t.d.groups {
		if search != "" &&
			!strings.Contains(strings.ToLower(g.Title), search) &&
			!strings.Contains(strings.ToLower(g.Name), search) {
			continue
		}
		if filter.Category != "" && !hasCategory(g, filter.Category) {
			continue
		}
		if filter.Tag != "" && !hasTag(g, filter.Tag) {
			continue
		}
		groups = append(groups, *copyGroup(g))
	}
	sortNewestFirst(groups)

	if filter.Offset > 0 {
		if filter.Offset >= len(groups) {
			return []models.StudyGroup{}, nil
		}
		groups = groups[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(groups) {
		groups = groups[:filter.Limit]
	}
	return groups, nil
}

func (t *memTx) ListGroupsByUser(_ context.Context, userID uint) ([]models.StudyGroup, error) {
	groups := make([]models.StudyGroup, 0)
	for _, m := range t.d.members {
		if m.UserID != userID {
			continue
		}
		if g, ok := t.d.groups[m.StudyGroupID]; ok {
			groups = append(groups, *copyGroup(g))
		}
	}
	sortNewestFirst(groups)
	return groups, nil
}

func (t *memTx) CreateMember(_ context.Context, member *models.Member) error {
	for _, m := range t.d.members {
		if m.StudyGroupID == member.StudyGroupID && m.UserID == member.UserID {
			return ErrDuplicate
		}
	}
	t.d.nextMemberID++
	now := time.Now()
	member.ID = t.d.nextMemberID
	member.CreatedAt = now
	member.UpdatedAt = now
	t.d.members[member.ID] = *member
	return nil
}

func (t *memTx) GetMember(_ context.Context, groupID, memberID uint) (*models.Member, error) {
	m, ok := t.d.members[memberID]
	if !ok || m.StudyGroupID != groupID {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (t *memTx) FindMember(_ context.Context, groupID, userID uint) (*models.Member, error) {
	for _, m := range t.d.members {
		if m.StudyGroupID == groupID && m.UserID == userID {
			return &m, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) ListMembers(_ context.Context, groupID uint) ([]models.Member, error) {
	members := make([]models.Member, 0)
	for _, m := range t.d.members {
		if m.StudyGroupID == groupID {
			members = append(members, m)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].IsLeader != members[j].IsLeader {
			return members[i].IsLeader
		}
		return members[i].ID < members[j].ID
	})
	return members, nil
}

func (t *memTx) CountMembers(_ context.Context, groupID uint) (int, error) {
	n := 0
	for _, m := range t.d.members {
		if m.StudyGroupID == groupID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) CountMembersByGroups(_ context.Context, groupIDs []uint) (map[uint]int, error) {
	counts := make(map[uint]int, len(groupIDs))
	wanted := make(map[uint]bool, len(groupIDs))
	for _, id := range groupIDs {
		wanted[id] = true
	}
	for _, m := range t.d.members {
		if wanted[m.StudyGroupID] {
			counts[m.StudyGroupID]++
		}
	}
	return counts, nil
}

func (t *memTx) CountLeaders(_ context.Context, groupID uint) (int, error) {
	n := 0
	for _, m := range t.d.members {
		if m.StudyGroupID == groupID && m.IsLeader {
			n++
		}
	}
	return n, nil
}

func (t *memTx) DeleteMember(_ context.Context, id uint) error {
	if _, ok := t.d.members[id]; !ok {
		return ErrNotFound
	}
	delete(t.d.members, id)
	return nil
}

func (t *memTx) DeleteMembersByGroup(_ context.Context, groupID uint) error {
	for id, m := range t.d.members {
		if m.StudyGroupID == groupID {
			delete(t.d.members, id)
		}
	}
	return nil
}

func (t *memTx) CreateRequest(_ context.Context, req *models.MembershipRequest) error {
	if err := req.CheckState(); err != nil {
		return err
	}
	if req.ID == 0 {
		t.d.nextRequestID++
		req.ID = t.d.nextRequestID
	}
	if _, ok := t.d.requests[req.ID]; ok {
		return ErrDuplicate
	}
	if !req.Processed {
		for _, r := range t.d.requests {
			if !r.Processed && r.StudyGroupID == req.StudyGroupID && r.UserID == req.UserID {
				return ErrDuplicate
			}
		}
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	t.d.requests[req.ID] = *req
	return nil
}

func (t *memTx) GetRequest(_ context.Context, id int64) (*models.MembershipRequest, error) {
	r, ok := t.d.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (t *memTx) LockRequest(ctx context.Context, id int64) (*models.MembershipRequest, error) {
	return t.GetRequest(ctx, id)
}

func (t *memTx) SaveRequest(_ context.Context, req *models.MembershipRequest) error {
	if err := req.CheckState(); err != nil {
		return err
	}
	if _, ok := t.d.requests[req.ID]; !ok {
		return ErrNotFound
	}
	t.d.requests[req.ID] = *req
	return nil
}

func (t *memTx) HasPendingRequest(_ context.Context, groupID, userID uint) (bool, error) {
	for _, r := range t.d.requests {
		if !r.Processed && r.StudyGroupID == groupID && r.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) ListPendingRequests(_ context.Context, groupID uint) ([]models.MembershipRequest, error) {
	reqs := make([]models.MembershipRequest, 0)
	for _, r := range t.d.requests {
		if r.StudyGroupID == groupID && !r.Processed {
			reqs = append(reqs, r)
		}
	}
	sort.Slice(reqs, func(i, j int) bool {
		if !reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
		}
		return reqs[i].ID < reqs[j].ID
	})
	return reqs, nil
}

func (t *memTx) DeleteRequestsByGroup(_ context.Context, groupID uint) error {
	for id, r := range t.d.requests {
		if r.StudyGroupID == groupID {
			delete(t.d.requests, id)
		}
	}
	return nil
}

func (t *memTx) ListCategories(_ context.Context) ([]models.Category, error) {
	categories := make([]models.Category, 0, len(t.d.categories))
	for _, c := range t.d.categories {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].ID < categories[j].ID })
	return categories, nil
}

func (t *memTx) FindCategories(ctx context.Context, names []string) ([]models.Category, error) {
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	all, _ := t.ListCategories(ctx)
	categories := make([]models.Category, 0, len(names))
	for _, c := range all {
		if wanted[c.Name] {
			categories = append(categories, c)
		}
	}
	return categories, nil
}

func (t *memTx) EnsureCategories(_ context.Context, names []string) error {
	existing := make(map[string]bool, len(t.d.categories))
	for _, c := range t.d.categories {
		existing[c.Name] = true
	}
	for _, name := range names {
		if existing[name] {
			continue
		}
		t.d.nextCategoryID++
		t.d.categories[t.d.nextCategoryID] = models.Category{ID: t.d.nextCategoryID, Name: name}
		existing[name] = true
	}
	return nil
}

func (t *memTx) FirstOrCreateTags(_ context.Context, names []string) ([]models.Tag, error) {
	byName := make(map[string]models.Tag, len(t.d.tags))
	for _, tag := range t.d.tags {
		byName[tag.Name] = tag
	}
	tags := make([]models.Tag, 0, len(names))
	for _, name := range names {
		tag, ok := byName[name]
		if !ok {
			t.d.nextTagID++
			tag = models.Tag{ID: t.d.nextTagID, Name: name}
			t.d.tags[tag.ID] = tag
			byName[name] = tag
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

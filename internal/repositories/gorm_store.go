package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/StudyGroup/internal/models"
)

// GormStore 基于 gorm 的 PostgreSQL 实现
// db 需以 TranslateError: true 打开，唯一约束冲突才能被识别为 ErrDuplicate
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// translate 将 gorm 错误转为仓储层错误
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// CreateGroup 创建小组，同时写入分类和标签关联
// 分类和标签需已存在 (带 ID)
func (s *GormStore) CreateGroup(ctx context.Context, group *models.StudyGroup) error {
	err := s.db.WithContext(ctx).
		Omit("Categories.*", "Tags.*").
		Create(group).Error
	return translate(err)
}

func (s *GormStore) GetGroupByUUID(ctx context.Context, uuid string) (*models.StudyGroup, error) {
	var group models.StudyGroup
	err := s.db.WithContext(ctx).
		Preload("Categories").
		Preload("Tags").
		Where("uuid = ?", uuid).
		First(&group).Error
	if err != nil {
		return nil, translate(err)
	}
	return &group, nil
}

func (s *GormStore) GetGroupByID(ctx context.Context, id uint) (*models.StudyGroup, error) {
	var group models.StudyGroup
	err := s.db.WithContext(ctx).
		Preload("Categories").
		Preload("Tags").
		First(&group, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &group, nil
}

func (s *GormStore) LockGroup(ctx context.Context, id uint) (*models.StudyGroup, error) {
	var group models.StudyGroup
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&group, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &group, nil
}

func (s *GormStore) SaveGroup(ctx context.Context, group *models.StudyGroup) error {
	db := s.db.WithContext(ctx)
	err := db.Model(&models.StudyGroup{ID: group.ID}).
		Updates(map[string]any{
			"name":         group.Name,
			"member_limit": group.MemberLimit,
			"deadline":     group.Deadline,
			"start_date":   group.StartDate,
			"end_date":     group.EndDate,
			"title":        group.Title,
			"content":      group.Content,
			"head_image":   group.HeadImage,
		}).Error
	if err != nil {
		return translate(err)
	}

	target := &models.StudyGroup{ID: group.ID}
	if err := db.Model(target).Association("Categories").Replace(group.Categories); err != nil {
		return translate(err)
	}
	if err := db.Model(target).Association("Tags").Replace(group.Tags); err != nil {
		return translate(err)
	}
	return nil
}

func (s *GormStore) MarkGroupFilled(ctx context.Context, id uint, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&models.StudyGroup{ID: id}).
		Where("filled_at IS NULL").
		Update("filled_at", at).Error
	return translate(err)
}

func (s *GormStore) DeleteGroup(ctx context.Context, id uint) error {
	db := s.db.WithContext(ctx)
	target := &models.StudyGroup{ID: id}
	if err := db.Model(target).Association("Categories").Clear(); err != nil {
		return translate(err)
	}
	if err := db.Model(target).Association("Tags").Clear(); err != nil {
		return translate(err)
	}
	res := db.Delete(&models.StudyGroup{}, id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGroups 公开列表，按创建时间倒序
func (s *GormStore) ListGroups(ctx context.Context, filter GroupFilter) ([]models.StudyGroup, error) {
	db := s.db.WithContext(ctx)
	query := db.Model(&models.StudyGroup{}).Preload("Categories").Preload("Tags")

	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("title ILIKE ? OR name ILIKE ?", like, like)
	}
	if filter.Category != "" {
		sub := db.Table("study_group_categories").
			Select("study_group_categories.study_group_id").
			Joins("JOIN categories ON categories.id = study_group_categories.category_id").
			Where("categories.name = ?", filter.Category)
		query = query.Where("id IN (?)", sub)
	}
	if filter.Tag != "" {
		sub := db.Table("study_group_tags").
			Select("study_group_tags.study_group_id").
			Joins("JOIN tags ON tags.id = study_group_tags.tag_id").
			Where("tags.name = ?", filter.Tag)
		query = query.Where("id IN (?)", sub)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var groups []models.StudyGroup
	if err := query.Order("created_at DESC").Order("id DESC").Find(&groups).Error; err != nil {
		return nil, translate(err)
	}
	return groups, nil
}

func (s *GormStore) ListGroupsByUser(ctx context.Context, userID uint) ([]models.StudyGroup, error) {
	var groups []models.StudyGroup
	err := s.db.WithContext(ctx).
		Preload("Categories").
		Preload("Tags").
		Joins("JOIN study_group_members ON study_group_members.study_group_id = study_groups.id").
		Where("study_group_members.user_id = ?", userID).
		Order("study_groups.created_at DESC").
		Find(&groups).Error
	if err != nil {
		return nil, translate(err)
	}
	return groups, nil
}

func (s *GormStore) CreateMember(ctx context.Context, member *models.Member) error {
	return translate(s.db.WithContext(ctx).Create(member).Error)
}

func (s *GormStore) GetMember(ctx context.Context, groupID, memberID uint) (*models.Member, error) {
	var member models.Member
	err := s.db.WithContext(ctx).
		Where("study_group_id = ? AND id = ?", groupID, memberID).
		First(&member).Error
	if err != nil {
		return nil, translate(err)
	}
	return &member, nil
}

func (s *GormStore) FindMember(ctx context.Context, groupID, userID uint) (*models.Member, error) {
	var member models.Member
	err := s.db.WithContext(ctx).
		Where("study_group_id = ? AND user_id = ?", groupID, userID).
		First(&member).Error
	if err != nil {
		return nil, translate(err)
	}
	return &member, nil
}

func (s *GormStore) ListMembers(ctx context.Context, groupID uint) ([]models.Member, error) {
	var members []models.Member
	err := s.db.WithContext(ctx).
		Where("study_group_id = ?", groupID).
		Order("is_leader DESC").Order("id ASC").
		Find(&members).Error
	return members, translate(err)
}

func (s *GormStore) CountMembers(ctx context.Context, groupID uint) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("study_group_id = ?", groupID).
		Count(&count).Error
	return int(count), translate(err)
}

func (s *GormStore) CountMembersByGroups(ctx context.Context, groupIDs []uint) (map[uint]int, error) {
	counts := make(map[uint]int, len(groupIDs))
	if len(groupIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		StudyGroupID uint
		N            int
	}
	err := s.db.WithContext(ctx).
		Model(&models.Member{}).
		Select("study_group_id, count(*) AS n").
		Where("study_group_id IN ?", groupIDs).
		Group("study_group_id").
		Scan(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	for _, row := range rows {
		counts[row.StudyGroupID] = row.N
	}
	return counts, nil
}

func (s *GormStore) CountLeaders(ctx context.Context, groupID uint) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("study_group_id = ? AND is_leader = ?", groupID, true).
		Count(&count).Error
	return int(count), translate(err)
}

func (s *GormStore) DeleteMember(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Member{}, id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeleteMembersByGroup(ctx context.Context, groupID uint) error {
	err := s.db.WithContext(ctx).
		Where("study_group_id = ?", groupID).
		Delete(&models.Member{}).Error
	return translate(err)
}

func (s *GormStore) CreateRequest(ctx context.Context, req *models.MembershipRequest) error {
	return translate(s.db.WithContext(ctx).Create(req).Error)
}

func (s *GormStore) GetRequest(ctx context.Context, id int64) (*models.MembershipRequest, error) {
	var req models.MembershipRequest
	if err := s.db.WithContext(ctx).First(&req, id).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

func (s *GormStore) LockRequest(ctx context.Context, id int64) (*models.MembershipRequest, error) {
	var req models.MembershipRequest
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&req, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

// SaveRequest 走 Save 以触发 BeforeSave 状态校验
func (s *GormStore) SaveRequest(ctx context.Context, req *models.MembershipRequest) error {
	return translate(s.db.WithContext(ctx).Save(req).Error)
}

func (s *GormStore) HasPendingRequest(ctx context.Context, groupID, userID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.MembershipRequest{}).
		Where("study_group_id = ? AND user_id = ? AND processed = ?", groupID, userID, false).
		Count(&count).Error
	return count > 0, translate(err)
}

func (s *GormStore) ListPendingRequests(ctx context.Context, groupID uint) ([]models.MembershipRequest, error) {
	var reqs []models.MembershipRequest
	err := s.db.WithContext(ctx).
		Where("study_group_id = ? AND processed = ?", groupID, false).
		Order("created_at ASC").Order("id ASC").
		Find(&reqs).Error
	return reqs, translate(err)
}

func (s *GormStore) DeleteRequestsByGroup(ctx context.Context, groupID uint) error {
	err := s.db.WithContext(ctx).
		Where("study_group_id = ?", groupID).
		Delete(&models.MembershipRequest{}).Error
	return translate(err)
}

func (s *GormStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := s.db.WithContext(ctx).Order("id ASC").Find(&categories).Error
	return categories, translate(err)
}

func (s *GormStore) FindCategories(ctx context.Context, names []string) ([]models.Category, error) {
	var categories []models.Category
	if len(names) == 0 {
		return categories, nil
	}
	err := s.db.WithContext(ctx).Where("name IN ?", names).Order("id ASC").Find(&categories).Error
	return categories, translate(err)
}

func (s *GormStore) EnsureCategories(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	categories := make([]models.Category, 0, len(names))
	for _, name := range names {
		categories = append(categories, models.Category{Name: name})
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&categories).Error
	return translate(err)
}

func (s *GormStore) FirstOrCreateTags(ctx context.Context, names []string) ([]models.Tag, error) {
	tags := make([]models.Tag, 0, len(names))
	for _, name := range names {
		tag := models.Tag{Name: name}
		if err := s.db.WithContext(ctx).Where(models.Tag{Name: name}).FirstOrCreate(&tag).Error; err != nil {
			return nil, translate(err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

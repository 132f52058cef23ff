package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/Gopher0727/StudyGroup/internal/models"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate 违反唯一约束
	ErrDuplicate = errors.New("duplicate record")
)

// GroupFilter 公开列表的查询条件
type GroupFilter struct {
	Search   string // 匹配 title 或 name
	Category string
	Tag      string
	Limit    int
	Offset   int
}

// Store 小组、成员、入组申请的持久化接口
// 所有写操作应在 Transaction 内进行，Lock* 方法只在事务内有意义
type Store interface {
	// Transaction 以一个原子单元执行 fn，fn 返回错误时全部回滚
	Transaction(ctx context.Context, fn func(tx Store) error) error

	CreateGroup(ctx context.Context, group *models.StudyGroup) error
	GetGroupByUUID(ctx context.Context, uuid string) (*models.StudyGroup, error)
	GetGroupByID(ctx context.Context, id uint) (*models.StudyGroup, error)
	// LockGroup 对小组行加排他锁 (SELECT ... FOR UPDATE)，不加载分类和标签
	LockGroup(ctx context.Context, id uint) (*models.StudyGroup, error)
	// SaveGroup 保存标量字段并替换分类和标签
	SaveGroup(ctx context.Context, group *models.StudyGroup) error
	MarkGroupFilled(ctx context.Context, id uint, at time.Time) error
	// DeleteGroup 删除分类/标签关联和小组本身，成员与申请需调用方先删除
	DeleteGroup(ctx context.Context, id uint) error
	ListGroups(ctx context.Context, filter GroupFilter) ([]models.StudyGroup, error)
	ListGroupsByUser(ctx context.Context, userID uint) ([]models.StudyGroup, error)

	CreateMember(ctx context.Context, member *models.Member) error
	GetMember(ctx context.Context, groupID, memberID uint) (*models.Member, error)
	FindMember(ctx context.Context, groupID, userID uint) (*models.Member, error)
	ListMembers(ctx context.Context, groupID uint) ([]models.Member, error)
	CountMembers(ctx context.Context, groupID uint) (int, error)
	CountMembersByGroups(ctx context.Context, groupIDs []uint) (map[uint]int, error)
	CountLeaders(ctx context.Context, groupID uint) (int, error)
	DeleteMember(ctx context.Context, id uint) error
	DeleteMembersByGroup(ctx context.Context, groupID uint) error

	CreateRequest(ctx context.Context, req *models.MembershipRequest) error
	GetRequest(ctx context.Context, id int64) (*models.MembershipRequest, error)
	// LockRequest 对申请行加排他锁，调用前必须已锁住所属小组
	LockRequest(ctx context.Context, id int64) (*models.MembershipRequest, error)
	SaveRequest(ctx context.Context, req *models.MembershipRequest) error
	HasPendingRequest(ctx context.Context, groupID, userID uint) (bool, error)
	// ListPendingRequests 按 created_at, id 升序返回未处理申请
	ListPendingRequests(ctx context.Context, groupID uint) ([]models.MembershipRequest, error)
	DeleteRequestsByGroup(ctx context.Context, groupID uint) error

	ListCategories(ctx context.Context) ([]models.Category, error)
	FindCategories(ctx context.Context, names []string) ([]models.Category, error)
	// EnsureCategories 插入缺失的分类，已存在的忽略
	EnsureCategories(ctx context.Context, names []string) error
	// FirstOrCreateTags 返回与 names 顺序一致的标签，不存在的新建
	FirstOrCreateTags(ctx context.Context, names []string) ([]models.Tag, error)
}

var (
	_ Store = (*GormStore)(nil)
	_ Store = (*MemoryStore)(nil)
	_ Store = (*memTx)(nil)
)

package services

import (
	"time"

	"github.com/Gopher0727/StudyGroup/internal/models"
	"github.com/Gopher0727/StudyGroup/internal/policy"
)

const (
	// DateLayout 截止/开始/结束日期的格式
	DateLayout = "2006-01-02"
	// TimeLayout 创建时间等时间戳的格式
	TimeLayout = "2006-01-02 15:04:05"
)

type CreateGroupRequest struct {
	Name        string   `json:"name"`
	MemberLimit int      `json:"member_limit"`
	Deadline    string   `json:"deadline"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	HeadImage   string   `json:"head_image"`
	Categories  []string `json:"categories"`
	Tags        []string `json:"tags"`
}

// UpdateGroupRequest 只更新非 nil 字段
// MemberLimit 仅用于识别并拒绝修改人数上限的请求
type UpdateGroupRequest struct {
	Name        *string   `json:"name"`
	MemberLimit *int      `json:"member_limit"`
	Deadline    *string   `json:"deadline"`
	StartDate   *string   `json:"start_date"`
	EndDate     *string   `json:"end_date"`
	Title       *string   `json:"title"`
	Content     *string   `json:"content"`
	HeadImage   *string   `json:"head_image"`
	Categories  *[]string `json:"categories"`
	Tags        *[]string `json:"tags"`
}

type JoinRequest struct {
	RequestMessage string `json:"request_message"`
}

// ListGroupsQuery 公开列表查询参数
type ListGroupsQuery struct {
	Search   string `form:"search"`
	Category string `form:"category"`
	Tag      string `form:"tag"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

type MemberView struct {
	ID       uint   `json:"id"`
	UserID   uint   `json:"user_id"`
	IsLeader bool   `json:"is_leader"`
	JoinedAt string `json:"joined_at"`
}

func newMemberView(m models.Member) MemberView {
	return MemberView{
		ID:       m.ID,
		UserID:   m.UserID,
		IsLeader: m.IsLeader,
		JoinedAt: m.CreatedAt.Format(TimeLayout),
	}
}

type RequestView struct {
	ID             int64  `json:"id,string"`
	UserID         uint   `json:"user_id"`
	RequestMessage string `json:"request_message"`
	Processed      bool   `json:"processed"`
	IsApproved     bool   `json:"is_approved"`
	CreatedAt      string `json:"created_at"`
	ProcessedAt    string `json:"processed_at,omitempty"`
}

func newRequestView(r *models.MembershipRequest) RequestView {
	v := RequestView{
		ID:             r.ID,
		UserID:         r.UserID,
		RequestMessage: r.RequestMessage,
		Processed:      r.Processed,
		IsApproved:     r.IsApproved,
		CreatedAt:      r.CreatedAt.Format(TimeLayout),
	}
	if r.ProcessedAt != nil {
		v.ProcessedAt = r.ProcessedAt.Format(TimeLayout)
	}
	return v
}

// GroupDetail 小组详情
// IsClosed 和 UntilDeadline 在每次读取时按当天日期计算
type GroupDetail struct {
	UUID          string   `json:"uuid"`
	Name          string   `json:"name"`
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	HeadImage     string   `json:"head_image"`
	MemberLimit   int      `json:"member_limit"`
	MemberCount   int      `json:"member_count"`
	Leaders       []uint   `json:"leaders"`
	Deadline      string   `json:"deadline"`
	StartDate     string   `json:"start_date"`
	EndDate       string   `json:"end_date"`
	Categories    []string `json:"categories"`
	Tags          []string `json:"tags"`
	IsClosed      bool     `json:"is_closed"`
	UntilDeadline int      `json:"until_deadline"`
	CreatedAt     string   `json:"created_at"`
}

// GroupSummary 列表项
type GroupSummary struct {
	UUID          string   `json:"uuid"`
	Name          string   `json:"name"`
	Title         string   `json:"title"`
	HeadImage     string   `json:"head_image"`
	MemberLimit   int      `json:"member_limit"`
	MemberCount   int      `json:"member_count"`
	Deadline      string   `json:"deadline"`
	Categories    []string `json:"categories"`
	Tags          []string `json:"tags"`
	IsClosed      bool     `json:"is_closed"`
	UntilDeadline int      `json:"until_deadline"`
	CreatedAt     string   `json:"created_at"`
}

func snapshotOf(g *models.StudyGroup, memberCount int) policy.Snapshot {
	return policy.Snapshot{
		Deadline:    g.Deadline,
		Capacity:    g.MemberLimit,
		MemberCount: memberCount,
		Filled:      g.FilledAt != nil,
	}
}

func newGroupSummary(g *models.StudyGroup, memberCount int, today time.Time) GroupSummary {
	return GroupSummary{
		UUID:          g.UUID,
		Name:          g.Name,
		Title:         g.Title,
		HeadImage:     headImageOf(g),
		MemberLimit:   g.MemberLimit,
		MemberCount:   memberCount,
		Deadline:      g.Deadline.Format(DateLayout),
		Categories:    g.CategoryNames(),
		Tags:          g.TagNames(),
		IsClosed:      !policy.IsOpen(snapshotOf(g, memberCount), today),
		UntilDeadline: policy.UntilDeadline(g.Deadline, today),
		CreatedAt:     g.CreatedAt.Format(TimeLayout),
	}
}

// headImageOf 未设置封面时按 uuid 生成固定的默认图片
func headImageOf(g *models.StudyGroup) string {
	if g.HeadImage != "" {
		return g.HeadImage
	}
	return "https://picsum.photos/seed/" + g.UUID + "/1080"
}

func newGroupDetail(g *models.StudyGroup, members []models.Member, today time.Time) GroupDetail {
	leaders := make([]uint, 0, 1)
	for _, m := range members {
		if m.IsLeader {
			leaders = append(leaders, m.UserID)
		}
	}
	return GroupDetail{
		UUID:          g.UUID,
		Name:          g.Name,
		Title:         g.Title,
		Content:       g.Content,
		HeadImage:     headImageOf(g),
		MemberLimit:   g.MemberLimit,
		MemberCount:   len(members),
		Leaders:       leaders,
		Deadline:      g.Deadline.Format(DateLayout),
		StartDate:     g.StartDate.Format(DateLayout),
		EndDate:       g.EndDate.Format(DateLayout),
		Categories:    g.CategoryNames(),
		Tags:          g.TagNames(),
		IsClosed:      !policy.IsOpen(snapshotOf(g, len(members)), today),
		UntilDeadline: policy.UntilDeadline(g.Deadline, today),
		CreatedAt:     g.CreatedAt.Format(TimeLayout),
	}
}

// cachedGroup 缓存中保存的小组详情
// 与日期相关的字段在读取时按当天重新计算
type cachedGroup struct {
	Detail   GroupDetail `json:"detail"`
	Deadline time.Time   `json:"deadline"`
	Filled   bool        `json:"filled"`
}

func (c cachedGroup) view(today time.Time) GroupDetail {
	d := c.Detail
	snap := policy.Snapshot{
		Deadline:    c.Deadline,
		Capacity:    d.MemberLimit,
		MemberCount: d.MemberCount,
		Filled:      c.Filled,
	}
	d.IsClosed = !policy.IsOpen(snap, today)
	d.UntilDeadline = policy.UntilDeadline(c.Deadline, today)
	return d
}

package resume

import (
	"context"
	"errors"
)

// Store 是简历文档的持久化接口。
//
// Save 以整份文档为单位写入：ID 为 0 时创建，否则按 Revision 做乐观并发检查，
// 存储中的版本已前进时返回 ErrConflict。成功后会回填 ID、Revision 与时间戳。
type Store interface {
	FindOwned(ctx context.Context, resumeID, ownerID uint) (*Resume, error)
	Exists(ctx context.Context, resumeID uint) (bool, error)
	ListOwned(ctx context.Context, ownerID uint) ([]Resume, error)
	Save(ctx context.Context, r *Resume) (*Resume, error)
	DeleteOwned(ctx context.Context, resumeID, ownerID uint) error
}

// Guard 在每次操作前确认简历归属于请求用户。
type Guard struct {
	store Store
}

func NewGuard(store Store) Guard {
	return Guard{store: store}
}

// Load 读取属于 ownerID 的简历。简历存在但属于他人时返回 ErrNotAuthorized，
// 完全不存在时返回 ErrNotFound。
func (g Guard) Load(ctx context.Context, resumeID, ownerID uint) (*Resume, error) {
	doc, err := g.store.FindOwned(ctx, resumeID, ownerID)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	exists, err := g.store.Exists(ctx, resumeID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &Error{Kind: KindNotAuthorized, Message: "Not authorized to access this resume"}
	}
	return nil, notFound("Resume not found")
}

// ConflictError 在并发写入导致版本不一致时由 Store 返回。
func ConflictError() error {
	return &Error{Kind: KindConflict, Message: "Resume was modified by another request"}
}

// NotFoundError 供 Store 实现在记录不存在时返回。
func NotFoundError() error {
	return notFound("Resume not found")
}

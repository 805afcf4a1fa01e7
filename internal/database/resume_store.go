package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Anumulaashok/resume-builder-backend/internal/resume"
)

// ResumeStore 基于 GORM 实现 resume.Store，整份内容存放在 jsonb 列中。
type ResumeStore struct {
	db *gorm.DB
}

func NewResumeStore(db *gorm.DB) *ResumeStore {
	return &ResumeStore{db: db}
}

var _ resume.Store = (*ResumeStore)(nil)

func (s *ResumeStore) FindOwned(ctx context.Context, resumeID, ownerID uint) (*resume.Resume, error) {
	var row Resume
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", resumeID, ownerID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, resume.NotFoundError()
	}
	if err != nil {
		return nil, fmt.Errorf("query resume %d: %w", resumeID, err)
	}
	return toDomain(row)
}

func (s *ResumeStore) Exists(ctx context.Context, resumeID uint) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Resume{}).Where("id = ?", resumeID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count resume %d: %w", resumeID, err)
	}
	return count > 0, nil
}

func (s *ResumeStore) ListOwned(ctx context.Context, ownerID uint) ([]resume.Resume, error) {
	var rows []Resume
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("updated_at DESC").
		Order("id DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list resumes: %w", err)
	}

	out := make([]resume.Resume, 0, len(rows))
	for _, row := range rows {
		doc, err := toDomain(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, nil
}

// Save 新建或更新简历。更新以 revision 作为条件，
// 影响行数为 0 时区分记录不存在与版本冲突。
func (s *ResumeStore) Save(ctx context.Context, r *resume.Resume) (*resume.Resume, error) {
	content, err := json.Marshal(r.Content)
	if err != nil {
		return nil, fmt.Errorf("encode resume content: %w", err)
	}

	if r.ID == 0 {
		row := Resume{
			Title:    r.Title,
			Content:  datatypes.JSON(content),
			Revision: 1,
			UserID:   r.OwnerID,
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return nil, fmt.Errorf("create resume: %w", err)
		}
		r.ID = row.ID
		r.Revision = row.Revision
		r.CreatedAt = row.CreatedAt
		r.UpdatedAt = row.UpdatedAt
		return r, nil
	}

	now := time.Now()
	result := s.db.WithContext(ctx).Model(&Resume{}).
		Where("id = ? AND user_id = ? AND revision = ?", r.ID, r.OwnerID, r.Revision).
		Updates(map[string]any{
			"title":      r.Title,
			"content":    datatypes.JSON(content),
			"revision":   gorm.Expr("revision + 1"),
			"updated_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("update resume %d: %w", r.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&Resume{}).
			Where("id = ? AND user_id = ?", r.ID, r.OwnerID).
			Count(&count).Error; err != nil {
			return nil, fmt.Errorf("check resume %d: %w", r.ID, err)
		}
		if count == 0 {
			return nil, resume.NotFoundError()
		}
		return nil, resume.ConflictError()
	}

	r.Revision++
	r.UpdatedAt = now
	return r, nil
}

func (s *ResumeStore) DeleteOwned(ctx context.Context, resumeID, ownerID uint) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", resumeID, ownerID).
		Delete(&Resume{})
	if result.Error != nil {
		return fmt.Errorf("delete resume %d: %w", resumeID, result.Error)
	}
	if result.RowsAffected == 0 {
		return resume.NotFoundError()
	}
	return nil
}

// ExportState 描述简历 PDF 导出的当前状态。
type ExportState struct {
	Status    string
	ObjectKey string
}

// GetExportState 读取属于 ownerID 的简历导出状态。
func (s *ResumeStore) GetExportState(ctx context.Context, resumeID, ownerID uint) (ExportState, error) {
	var row Resume
	err := s.db.WithContext(ctx).
		Select("id", "status", "pdf_object_key").
		Where("id = ? AND user_id = ?", resumeID, ownerID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ExportState{}, resume.NotFoundError()
	}
	if err != nil {
		return ExportState{}, fmt.Errorf("query export state %d: %w", resumeID, err)
	}
	return ExportState{Status: row.Status, ObjectKey: row.PdfObjectKey}, nil
}

// SetExportState 更新导出状态，不改变 revision。
func (s *ResumeStore) SetExportState(ctx context.Context, resumeID uint, state ExportState) error {
	result := s.db.WithContext(ctx).Model(&Resume{}).
		Where("id = ?", resumeID).
		UpdateColumns(map[string]any{
			"status":         state.Status,
			"pdf_object_key": state.ObjectKey,
		})
	if result.Error != nil {
		return fmt.Errorf("update export state %d: %w", resumeID, result.Error)
	}
	if result.RowsAffected == 0 {
		return resume.NotFoundError()
	}
	return nil
}

func toDomain(row Resume) (*resume.Resume, error) {
	doc := &resume.Resume{
		ID:        row.ID,
		OwnerID:   row.UserID,
		Title:     row.Title,
		Revision:  row.Revision,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if len(row.Content) > 0 {
		if err := json.Unmarshal(row.Content, &doc.Content); err != nil {
			return nil, fmt.Errorf("decode resume %d content: %w", row.ID, err)
		}
	}
	if doc.Content.Sections == nil {
		doc.Content.Sections = []resume.Section{}
	}
	if doc.Content.SectionOrder == nil {
		doc.Content.SectionOrder = []string{}
	}
	return doc, nil
}

package resume

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// GeneratedResumeTitle 是 AI 生成简历的默认标题。
const GeneratedResumeTitle = "AI Generated Resume"

// Summarizer 根据提示词生成简历摘要。
type Summarizer interface {
	AnalyzePrompt(ctx context.Context, prompt string) (string, error)
}

// Service 提供简历整体层面的操作：创建、整份替换、基本信息与摘要生成。
// 分区与条目的细粒度修改由 Engine 负责。
type Service struct {
	store      Store
	guard      Guard
	engine     *Engine
	documents  *DocumentValidator
	summarizer Summarizer
}

func NewService(store Store, engine *Engine, documents *DocumentValidator, summarizer Summarizer) *Service {
	return &Service{
		store:      store,
		guard:      NewGuard(store),
		engine:     engine,
		documents:  documents,
		summarizer: summarizer,
	}
}

type documentInput struct {
	Title        string             `json:"title"`
	Basics       Basics             `json:"basics"`
	Sections     []SectionCandidate `json:"sections"`
	SectionOrder []string           `json:"sectionOrder"`
}

// Create 校验并保存一份新简历。未提供 sectionOrder 时按分区顺序生成。
func (s *Service) Create(ctx context.Context, ownerID uint, raw []byte) (*Resume, error) {
	title, content, err := s.decodeDocument(raw)
	if err != nil {
		return nil, err
	}
	doc := &Resume{OwnerID: ownerID, Title: title, Content: content}
	return s.store.Save(ctx, doc)
}

func (s *Service) List(ctx context.Context, ownerID uint) ([]Resume, error) {
	return s.store.ListOwned(ctx, ownerID)
}

func (s *Service) Get(ctx context.Context, resumeID, ownerID uint) (*Resume, error) {
	return s.guard.Load(ctx, resumeID, ownerID)
}

// Replace 用提交的整份文档覆盖简历内容，校验规则与 Create 相同。
func (s *Service) Replace(ctx context.Context, resumeID, ownerID uint, raw []byte) (*Resume, error) {
	doc, err := s.guard.Load(ctx, resumeID, ownerID)
	if err != nil {
		return nil, err
	}
	title, content, err := s.decodeDocument(raw)
	if err != nil {
		return nil, err
	}
	doc.Title = title
	doc.Content = content
	return s.store.Save(ctx, doc)
}

func (s *Service) Delete(ctx context.Context, resumeID, ownerID uint) error {
	if _, err := s.guard.Load(ctx, resumeID, ownerID); err != nil {
		return err
	}
	return s.store.DeleteOwned(ctx, resumeID, ownerID)
}

func (s *Service) Basics(ctx context.Context, resumeID, ownerID uint) (*Basics, error) {
	doc, err := s.guard.Load(ctx, resumeID, ownerID)
	if err != nil {
		return nil, err
	}
	return &doc.Content.Basics, nil
}

func (s *Service) UpdateBasics(ctx context.Context, resumeID, ownerID uint, basics Basics) (*Basics, error) {
	if strings.TrimSpace(basics.Name) == "" {
		return nil, validationError("basics.name", "is required")
	}
	doc, err := s.guard.Load(ctx, resumeID, ownerID)
	if err != nil {
		return nil, err
	}
	doc.Content.Basics = basics
	if _, err := s.store.Save(ctx, doc); err != nil {
		return nil, err
	}
	return &doc.Content.Basics, nil
}

// SectionsView 是按展示顺序排列的分区列表。
type SectionsView struct {
	Sections     []Section `json:"sections"`
	SectionOrder []string  `json:"sectionOrder"`
}

func (s *Service) Sections(ctx context.Context, resumeID, ownerID uint) (*SectionsView, error) {
	doc, err := s.guard.Load(ctx, resumeID, ownerID)
	if err != nil {
		return nil, err
	}
	order := doc.Content.SectionOrder
	if order == nil {
		order = []string{}
	}
	return &SectionsView{Sections: doc.Content.OrderedSections(), SectionOrder: order}, nil
}

// ErrSummarizerUnavailable 表示未配置 AI 摘要服务。
var ErrSummarizerUnavailable = errors.New("ai summarizer is not configured")

// GenerateFromPrompt 调用 AI 生成摘要，并以此创建一份新简历。
func (s *Service) GenerateFromPrompt(ctx context.Context, ownerID uint, prompt string) (*Resume, error) {
	summary, err := s.summarize(ctx, prompt)
	if err != nil {
		return nil, err
	}
	doc := &Resume{
		OwnerID: ownerID,
		Title:   GeneratedResumeTitle,
		Content: Content{
			Basics:       Basics{Summary: summary},
			Sections:     []Section{},
			SectionOrder: []string{},
		},
	}
	return s.store.Save(ctx, doc)
}

// RegenerateSummary 为已有简历重新生成摘要，只改写 basics.summary。
func (s *Service) RegenerateSummary(ctx context.Context, resumeID, ownerID uint, prompt string) (*Resume, error) {
	if _, err := s.guard.Load(ctx, resumeID, ownerID); err != nil {
		return nil, err
	}
	summary, err := s.summarize(ctx, prompt)
	if err != nil {
		return nil, err
	}
	// AI 调用耗时较长，重新读取以缩小与其他写入冲突的窗口。
	doc, err := s.guard.Load(ctx, resumeID, ownerID)
	if err != nil {
		return nil, err
	}
	doc.Content.Basics.Summary = summary
	return s.store.Save(ctx, doc)
}

func (s *Service) summarize(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", missingField("prompt", "Prompt is required")
	}
	if s.summarizer == nil {
		return "", ErrSummarizerUnavailable
	}
	return s.summarizer.AnalyzePrompt(ctx, prompt)
}

func (s *Service) decodeDocument(raw []byte) (string, Content, error) {
	if err := s.documents.Validate(raw); err != nil {
		return "", Content{}, err
	}
	var in documentInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return "", Content{}, validationError("body", "must be a valid JSON object")
	}

	content := Content{
		Basics:   in.Basics,
		Sections: make([]Section, 0, len(in.Sections)),
	}
	seen := make(map[string]struct{}, len(in.Sections))
	for _, candidate := range in.Sections {
		if candidate.ID == "" {
			candidate.ID = s.engine.newID()
		}
		section, err := s.engine.registry.ValidateSection(candidate)
		if err != nil {
			return "", Content{}, err
		}
		if _, dup := seen[section.ID]; dup {
			return "", Content{}, duplicateID("Section with this ID already exists")
		}
		seen[section.ID] = struct{}{}

		items, err := s.engine.buildContent(section.Type, candidate.Content)
		if err != nil {
			return "", Content{}, err
		}
		section.Content = items
		content.Sections = append(content.Sections, section)
	}

	if in.SectionOrder == nil {
		content.SectionOrder = make([]string, 0, len(content.Sections))
		for _, section := range content.Sections {
			content.SectionOrder = append(content.SectionOrder, section.ID)
		}
	} else {
		if err := checkPermutation(content.Sections, in.SectionOrder); err != nil {
			return "", Content{}, err
		}
		content.SectionOrder = in.SectionOrder
	}
	return in.Title, content, nil
}

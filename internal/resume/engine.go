package resume

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Engine 对简历中的分区与条目执行原子修改。
//
// 每个操作都遵循同一流程：经 Guard 读取简历，在读取得到的副本上修改并校验，
// 最后整份文档保存一次。任一步失败时副本被丢弃，存储不受影响。
type Engine struct {
	registry *Registry
	store    Store
	guard    Guard
	newID    func() string
}

// Option 调整 Engine 的可选行为。
type Option func(*Engine)

// WithIDGenerator 替换分区与条目 id 的生成方式，默认使用 UUID。
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

func NewEngine(store Store, registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		store:    store,
		guard:    NewGuard(store),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SectionTypes 返回可供选择的内置分区类型。
func (e *Engine) SectionTypes() []TypeConfig {
	return e.registry.List()
}

func (e *Engine) GetSection(ctx context.Context, resumeID, ownerID uint, sectionID string) (*Section, error) {
	doc, err := e.guard.Load(ctx, resumeID, ownerID)
	if err != nil {
		return nil, err
	}
	idx := doc.sectionIndex(sectionID)
	if idx < 0 {
		return nil, notFound("Section not found")
	}
	return &doc.Content.Sections[idx], nil
}

// AddSection 追加分区并把它的 id 加到排序末尾。未提供 id 时自动生成。
func (e *Engine) AddSection(ctx context.Context, resumeID, ownerID uint, in SectionCandidate) (*Section, error) {
	doc, err := e.guard.Load(ctx, resumeID, ownerID)
	if err != nil {
		return nil, err
	}

	if in.ID == "" {
		in.ID = e.newID()
	}
	section, err := e.registry.ValidateSection(in)
	if err != nil {
		return nil, err
	}
	if doc.sectionIndex(section.ID) >= 0 {
		return nil, duplicateID("Section with this ID already exists")
	}

	items, err := e.buildContent(section.Type, in.Content)
	if err != nil {
		return nil, err
	}
	section.Content = items

	doc.Content.Sections = append(doc.Content.Sections, section)
	doc.Content.SectionOrder = append(doc.Content.SectionOrder, section.ID)

	if _, err := e.store.Save(ctx, doc); err != nil {
		return nil, err
	}
	return &section, nil
}

// SectionPatch 描述分区的部分更新，nil 字段保持原值。
// Content 非空时整体替换分区条目。
type SectionPatch struct {
	Title   *string            `json:"title"`
	Enabled *bool              `json:"enabled"`
	Content *[]json.RawMessage `json:"content"`
}

func (e *Engine) UpdateSection(ctx context.Context, resumeID, ownerID uint, sectionID string, patch SectionPatch) (*Section, error) {
	doc, err := e.guard.Load(ctx, resumeID, ownerID)
	if err != nil {
		return nil, err
	}
	idx := doc.sectionIndex(sectionID)
	if idx < 0 {
		return nil, notFound("Section not found")
	}
	section := &doc.Content.Sections[idx]

	if patch.Title != nil {
		section.Title = *patch.Title
	}
	if patch.Enabled != nil {
		section.Enabled = *patch.Enabled
	}
	if _, err := e.registry.ValidateSection(SectionCandidate{
		ID:    section.ID,
		Type:  section.Type,
		Title: section.Title,
	}); err != nil {
		return nil, err
	}
	if patch.Content != nil {
		items, err := e.buildContent(section.Type, *patch.Content)
		if err != nil {
			return nil, err
		}
		section.Content = items
	}

	if _, err := e.store.Save(ctx, doc); err != nil {
		return nil, err
	}
	return section, nil
}

// DeleteSection 删除分区，并从排序中移除它的 id。
func (e *Engine) DeleteSection(ctx context.Context, resumeID, ownerID uint, sectionID string) error {
	doc, err := e.guard.Load(ctx, resumeID, ownerID)
	if err != nil {
		return err
	}
	idx := doc.sectionIndex(sectionID)
	if idx < 0 {
		return notFound("Section not found")
	}

	sections := doc.Content.Sections
	doc.Content.Sections = append(sections[:idx:idx], sections[idx+1:]...)

	order := make([]string, 0, len(doc.Content.SectionOrder))
	for _, id := range doc.Content.SectionOrder {
		if id != sectionID {
			order = append(order, id)
		}
	}
	doc.Content.SectionOrder = order

	_, err = e.store.Save(ctx, doc)
	return err
}

// AddSectionItem 校验条目后追加到分区末尾，未提供 id 时自动生成。
func (e *Engine) AddSectionItem(ctx context.Context, resumeID, ownerID uint, sectionID string, raw json.RawMessage) (Item, error) {
	doc, err := e.guard.Load(ctx, resumeID, ownerID)
	if err != nil {
		return nil, err
	}
	idx := doc.sectionIndex(sectionID)
	if idx < 0 {
		return nil, notFound("Section not found")
	}
	section := &doc.Content.Sections[idx]

	item, err := e.registry.ValidateItem(section.Type, raw)
	if err != nil {
		return nil, err
	}
	base := item.Base()
	if base.ID == "" {
		base.ID = e.newID()
	} else if section.itemIndex(base.ID) >= 0 {
		return nil, duplicateID("Item with this ID already exists")
	}
	section.Content = append(section.Content, item)

	if _, err := e.store.Save(ctx, doc); err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateSectionItem 用新内容整体替换条目。条目 id 不可修改，
// 请求体中的 id 会被路径中的 itemID 覆盖。
func (e *Engine) UpdateSectionItem(ctx context.Context, resumeID, ownerID uint, sectionID, itemID string, raw json.RawMessage) (Item, error) {
	doc, section, pos, err := e.loadItem(ctx, resumeID, ownerID, sectionID, itemID)
	if err != nil {
		return nil, err
	}

	patched, err := withItemID(raw, itemID)
	if err != nil {
		return nil, err
	}
	item, err := e.registry.ValidateItem(section.Type, patched)
	if err != nil {
		return nil, err
	}
	section.Content[pos] = item

	if _, err := e.store.Save(ctx, doc); err != nil {
		return nil, err
	}
	return item, nil
}

func (e *Engine) DeleteSectionItem(ctx context.Context, resumeID, ownerID uint, sectionID, itemID string) error {
	doc, section, pos, err := e.loadItem(ctx, resumeID, ownerID, sectionID, itemID)
	if err != nil {
		return err
	}
	section.Content = append(section.Content[:pos:pos], section.Content[pos+1:]...)

	_, err = e.store.Save(ctx, doc)
	return err
}

// ToggleItemStatus 设置条目的 enabled 标记。enabled 必须显式提供。
func (e *Engine) ToggleItemStatus(ctx context.Context, resumeID, ownerID uint, sectionID, itemID string, enabled *bool) (Item, error) {
	if enabled == nil {
		return nil, missingField("enabled", "Enabled status is required")
	}
	doc, section, pos, err := e.loadItem(ctx, resumeID, ownerID, sectionID, itemID)
	if err != nil {
		return nil, err
	}
	item := section.Content[pos]
	item.Base().Enabled = *enabled

	if _, err := e.store.Save(ctx, doc); err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateSectionOrder 替换分区排序。新排序必须恰好包含每个现有分区 id 一次。
func (e *Engine) UpdateSectionOrder(ctx context.Context, resumeID, ownerID uint, order []string) ([]string, error) {
	if order == nil {
		return nil, missingField("sectionOrder", "Section order must be an array of section IDs")
	}
	doc, err := e.guard.Load(ctx, resumeID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := checkPermutation(doc.Content.Sections, order); err != nil {
		return nil, err
	}

	doc.Content.SectionOrder = append([]string(nil), order...)
	if _, err := e.store.Save(ctx, doc); err != nil {
		return nil, err
	}
	return doc.Content.SectionOrder, nil
}

func (e *Engine) loadItem(ctx context.Context, resumeID, ownerID uint, sectionID, itemID string) (*Resume, *Section, int, error) {
	doc, err := e.guard.Load(ctx, resumeID, ownerID)
	if err != nil {
		return nil, nil, 0, err
	}
	idx := doc.sectionIndex(sectionID)
	if idx < 0 {
		return nil, nil, 0, notFound("Section not found")
	}
	section := &doc.Content.Sections[idx]
	pos := section.itemIndex(itemID)
	if pos < 0 {
		return nil, nil, 0, notFound("Item not found")
	}
	return doc, section, pos, nil
}

// buildContent 逐个校验条目，补齐缺失的 id，并拒绝分区内重复的 id。
func (e *Engine) buildContent(t SectionType, raws []json.RawMessage) ([]Item, error) {
	items := make([]Item, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	for _, raw := range raws {
		item, err := e.registry.ValidateItem(t, raw)
		if err != nil {
			return nil, err
		}
		base := item.Base()
		if base.ID == "" {
			base.ID = e.newID()
		}
		if _, dup := seen[base.ID]; dup {
			return nil, duplicateID("Item with this ID already exists")
		}
		seen[base.ID] = struct{}{}
		items = append(items, item)
	}
	return items, nil
}

func checkPermutation(sections []Section, order []string) error {
	known := make(map[string]bool, len(sections))
	for _, s := range sections {
		known[s.ID] = false
	}
	for _, id := range order {
		used, ok := known[id]
		if !ok {
			return &Error{Kind: KindInvalidOrder, Message: "Section order contains invalid section IDs"}
		}
		if used {
			return &Error{Kind: KindInvalidOrder, Message: "Section order contains duplicate section IDs"}
		}
		known[id] = true
	}
	if len(order) != len(sections) {
		return &Error{Kind: KindInvalidOrder, Message: "Section order must include every section exactly once"}
	}
	return nil
}

func withItemID(raw json.RawMessage, itemID string) (json.RawMessage, error) {
	if !isJSONObject(raw) {
		return nil, validationError("item", "must be an object")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, validationError("item", "must be a valid JSON object")
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	id, err := json.Marshal(itemID)
	if err != nil {
		return nil, err
	}
	fields["id"] = id
	return json.Marshal(fields)
}

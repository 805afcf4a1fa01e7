package resume

import (
	"encoding/json"
	"time"
)

// Resume 是归属于单个用户的简历文档。
type Resume struct {
	ID        uint      `json:"id"`
	OwnerID   uint      `json:"userId"`
	Title     string    `json:"title"`
	Content   Content   `json:"content"`
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Content 是持久化在 JSONB 列中的简历正文。
// SectionOrder 必须恰好是 Sections 中 id 的一个排列。
type Content struct {
	Basics       Basics    `json:"basics"`
	Sections     []Section `json:"sections"`
	SectionOrder []string  `json:"sectionOrder"`
}

// Basics 是简历的个人基本信息。
type Basics struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone"`
	Summary  string   `json:"summary"`
	Location Location `json:"location"`
}

type Location struct {
	Address     string `json:"address"`
	City        string `json:"city"`
	CountryCode string `json:"countryCode"`
	PostalCode  string `json:"postalCode"`
}

// Section 是一组同类型条目，例如工作经历。
type Section struct {
	ID       string      `json:"id"`
	Type     SectionType `json:"type"`
	Title    string      `json:"title"`
	Content  []Item      `json:"content"`
	Enabled  bool        `json:"enabled"`
	IsCustom bool        `json:"isCustom"`
}

func (c Content) MarshalJSON() ([]byte, error) {
	type plain Content
	out := plain(c)
	if out.Sections == nil {
		out.Sections = []Section{}
	}
	if out.SectionOrder == nil {
		out.SectionOrder = []string{}
	}
	return json.Marshal(out)
}

func (s Section) MarshalJSON() ([]byte, error) {
	type plain Section
	out := plain(s)
	if out.Content == nil {
		out.Content = []Item{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON 按分区类型解码已存储的条目。存储数据不做严格校验，
// 无法按类型解码的条目以开放结构保留，避免整份简历无法读取。
func (s *Section) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       string            `json:"id"`
		Type     SectionType       `json:"type"`
		Title    string            `json:"title"`
		Content  []json.RawMessage `json:"content"`
		Enabled  *bool             `json:"enabled"`
		IsCustom bool              `json:"isCustom"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.ID = raw.ID
	s.Type = raw.Type
	s.Title = raw.Title
	s.Enabled = raw.Enabled == nil || *raw.Enabled
	s.IsCustom = raw.IsCustom
	s.Content = make([]Item, 0, len(raw.Content))
	for _, rc := range raw.Content {
		s.Content = append(s.Content, decodeStoredItem(raw.Type, rc))
	}
	return nil
}

func (r *Resume) sectionIndex(id string) int {
	for i := range r.Content.Sections {
		if r.Content.Sections[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Section) itemIndex(id string) int {
	for i, item := range s.Content {
		if item.Base().ID == id {
			return i
		}
	}
	return -1
}

// OrderedSections 按 SectionOrder 返回分区。
func (c Content) OrderedSections() []Section {
	byID := make(map[string]Section, len(c.Sections))
	for _, s := range c.Sections {
		byID[s.ID] = s
	}
	out := make([]Section, 0, len(c.Sections))
	for _, id := range c.SectionOrder {
		if s, ok := byID[id]; ok {
			out = append(out, s)
			delete(byID, id)
		}
	}
	// 不在排序中的分区保持存储顺序追加在末尾。
	for _, s := range c.Sections {
		if _, ok := byID[s.ID]; ok {
			out = append(out, s)
		}
	}
	return out
}

package resume

import (
	"encoding/json"
	"log/slog"
)

// Item 是分区中的一个条目，具体结构由所属分区的类型决定：
// work 分区的条目是 *WorkItem，custom 分区的条目是 *CustomItem，以此类推。
type Item interface {
	Base() *ItemBase
}

// ItemBase 是所有条目共有的字段。
type ItemBase struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
}

func (b *ItemBase) Base() *ItemBase { return b }

type WorkItem struct {
	ItemBase
	Company     string `json:"company" validate:"required"`
	Position    string `json:"position" validate:"required"`
	StartDate   string `json:"startDate" validate:"required"`
	EndDate     string `json:"endDate,omitempty"`
	Current     bool   `json:"current,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
}

type EducationItem struct {
	ItemBase
	Institution string `json:"institution" validate:"required"`
	Degree      string `json:"degree" validate:"required"`
	Field       string `json:"field" validate:"required"`
	StartDate   string `json:"startDate" validate:"required"`
	EndDate     string `json:"endDate,omitempty"`
	Current     bool   `json:"current,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
}

type SkillItem struct {
	ItemBase
	Name      string   `json:"name" validate:"required"`
	Level     *float64 `json:"level,omitempty" validate:"omitempty,min=0,max=5"`
	SubSkills []string `json:"subSkills,omitempty"`
}

type LanguageItem struct {
	ItemBase
	Name        string   `json:"name" validate:"required"`
	Level       string   `json:"level,omitempty"`
	Proficiency *float64 `json:"proficiency,omitempty" validate:"omitempty,min=0,max=5"`
}

type CertificateItem struct {
	ItemBase
	Name   string `json:"name" validate:"required"`
	Issuer string `json:"issuer,omitempty"`
	Date   string `json:"date,omitempty"`
	URL    string `json:"url,omitempty"`
}

type InterestItem struct {
	ItemBase
	Name        string `json:"name" validate:"required"`
	Description string `json:"description,omitempty"`
}

type ProjectItem struct {
	ItemBase
	Name         string   `json:"name" validate:"required"`
	Description  string   `json:"description,omitempty"`
	StartDate    string   `json:"startDate,omitempty"`
	EndDate      string   `json:"endDate,omitempty"`
	URL          string   `json:"url,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
}

type CourseItem struct {
	ItemBase
	Name        string `json:"name" validate:"required"`
	Institution string `json:"institution,omitempty"`
	Date        string `json:"date,omitempty"`
	Description string `json:"description,omitempty"`
}

type AwardItem struct {
	ItemBase
	Name        string `json:"name" validate:"required"`
	Issuer      string `json:"issuer,omitempty"`
	Date        string `json:"date,omitempty"`
	Description string `json:"description,omitempty"`
}

type OrganizationItem struct {
	ItemBase
	Name        string `json:"name" validate:"required"`
	Position    string `json:"position,omitempty"`
	StartDate   string `json:"startDate,omitempty"`
	EndDate     string `json:"endDate,omitempty"`
	Current     bool   `json:"current,omitempty"`
	Description string `json:"description,omitempty"`
}

type PublicationItem struct {
	ItemBase
	Title       string `json:"title" validate:"required"`
	Publisher   string `json:"publisher,omitempty"`
	Date        string `json:"date,omitempty"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
}

type ReferenceItem struct {
	ItemBase
	Name        string `json:"name" validate:"required"`
	Company     string `json:"company,omitempty"`
	Position    string `json:"position,omitempty"`
	Contact     string `json:"contact,omitempty"`
	Description string `json:"description,omitempty"`
}

type SoftSkillItem struct {
	ItemBase
	Name  string   `json:"name" validate:"required"`
	Level *float64 `json:"level,omitempty" validate:"omitempty,min=0,max=5"`
}

type AchievementItem struct {
	ItemBase
	Name        string `json:"name" validate:"required"`
	Date        string `json:"date,omitempty"`
	Description string `json:"description,omitempty"`
}

type TechnicalSkillItem struct {
	ItemBase
	Name         string   `json:"name" validate:"required"`
	Level        *float64 `json:"level,omitempty" validate:"omitempty,min=0,max=5"`
	Technologies []string `json:"technologies,omitempty"`
}

// CustomItem 是 custom 分区的条目，除 id 与 enabled 外的键值原样保存。
type CustomItem struct {
	ItemBase
	Fields map[string]any
}

func (c *CustomItem) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Fields)+2)
	for k, v := range c.Fields {
		out[k] = v
	}
	out["id"] = c.ID
	out["enabled"] = c.Enabled
	return json.Marshal(out)
}

func (c *CustomItem) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	if id, ok := fields["id"].(string); ok {
		c.ID = id
	}
	if enabled, ok := fields["enabled"].(bool); ok {
		c.Enabled = enabled
	}
	delete(fields, "id")
	delete(fields, "enabled")
	c.Fields = fields
	return nil
}

// itemKind 构造某一类型的空条目，enabled 默认为 true。
type itemKind func() Item

func newBase() ItemBase { return ItemBase{Enabled: true} }

// itemKinds 是类型到条目结构的分派表，只读。
var itemKinds = map[SectionType]itemKind{
	TypeEducation:       func() Item { return &EducationItem{ItemBase: newBase()} },
	TypeWork:            func() Item { return &WorkItem{ItemBase: newBase()} },
	TypeSkills:          func() Item { return &SkillItem{ItemBase: newBase()} },
	TypeLanguages:       func() Item { return &LanguageItem{ItemBase: newBase()} },
	TypeCertificates:    func() Item { return &CertificateItem{ItemBase: newBase()} },
	TypeInterests:       func() Item { return &InterestItem{ItemBase: newBase()} },
	TypeProjects:        func() Item { return &ProjectItem{ItemBase: newBase()} },
	TypeCourses:         func() Item { return &CourseItem{ItemBase: newBase()} },
	TypeAwards:          func() Item { return &AwardItem{ItemBase: newBase()} },
	TypeOrganizations:   func() Item { return &OrganizationItem{ItemBase: newBase()} },
	TypePublications:    func() Item { return &PublicationItem{ItemBase: newBase()} },
	TypeReferences:      func() Item { return &ReferenceItem{ItemBase: newBase()} },
	TypeSoftSkills:      func() Item { return &SoftSkillItem{ItemBase: newBase()} },
	TypeAchievements:    func() Item { return &AchievementItem{ItemBase: newBase()} },
	TypeTechnicalSkills: func() Item { return &TechnicalSkillItem{ItemBase: newBase()} },
}

func newCustomItem() *CustomItem {
	return &CustomItem{ItemBase: newBase(), Fields: map[string]any{}}
}

// storedRawKey 保存无法解析为对象的存储条目原文。
const storedRawKey = "raw"

// decodeStoredItem 宽松解码已存储的条目：与类型结构不符时退回开放结构，
// 连对象都不是时把原文放在 raw 键下，两种情况都会记录告警。
func decodeStoredItem(t SectionType, raw json.RawMessage) Item {
	if kind, ok := itemKinds[t]; ok {
		item := kind()
		err := json.Unmarshal(raw, item)
		if err == nil {
			return item
		}
		slog.Warn("stored item does not match its section type",
			slog.String("section_type", string(t)),
			slog.Any("error", err),
		)
	}
	item := newCustomItem()
	if err := json.Unmarshal(raw, item); err != nil {
		slog.Warn("stored item is not a JSON object, keeping raw value",
			slog.String("section_type", string(t)),
			slog.Any("error", err),
		)
		item.Fields[storedRawKey] = raw
	}
	return item
}

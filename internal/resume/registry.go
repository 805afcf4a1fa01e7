package resume

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SectionType 标识分区类型，同时决定条目的结构。
type SectionType string

const (
	TypeEducation       SectionType = "education"
	TypeWork            SectionType = "work"
	TypeSkills          SectionType = "skills"
	TypeLanguages       SectionType = "languages"
	TypeCertificates    SectionType = "certificates"
	TypeInterests       SectionType = "interests"
	TypeProjects        SectionType = "projects"
	TypeCourses         SectionType = "courses"
	TypeAwards          SectionType = "awards"
	TypeOrganizations   SectionType = "organizations"
	TypePublications    SectionType = "publications"
	TypeReferences      SectionType = "references"
	TypeSoftSkills      SectionType = "softSkills"
	TypeAchievements    SectionType = "achievements"
	TypeTechnicalSkills SectionType = "technicalSkills"

	// TypeCustom 接受任意结构的条目，不出现在类型列表中。
	TypeCustom SectionType = "custom"
)

// TypeConfig 描述一种内置分区类型，供前端类型选择器展示。
type TypeConfig struct {
	ID          string      `json:"id"`
	SectionType SectionType `json:"sectionType"`
	Title       string      `json:"title"`
	Description string      `json:"description"`

	kind   itemKind
	fields map[string]struct{}
}

// Registry 是只读的分区类型目录，构造后不再变化，可在多个 goroutine 间共享。
type Registry struct {
	configs  []TypeConfig
	byType   map[SectionType]TypeConfig
	validate *validator.Validate
}

// NewRegistry 按给定顺序构建目录。每个配置的条目结构取自内置的类型表，
// 没有内置结构的类型按 custom 处理。
func NewRegistry(configs ...TypeConfig) *Registry {
	r := &Registry{
		configs: make([]TypeConfig, 0, len(configs)),
		byType:  make(map[SectionType]TypeConfig, len(configs)),
	}
	for _, cfg := range configs {
		if cfg.ID == "" {
			cfg.ID = string(cfg.SectionType)
		}
		if kind, ok := itemKinds[cfg.SectionType]; ok {
			cfg.kind = kind
			cfg.fields = jsonFieldNames(reflect.TypeOf(kind()))
		}
		r.configs = append(r.configs, cfg)
		r.byType[cfg.SectionType] = cfg
	}
	r.validate = newValidator(r)
	return r
}

// DefaultRegistry 返回产品内置的 15 种分区类型。
func DefaultRegistry() *Registry {
	return NewRegistry(
		TypeConfig{SectionType: TypeEducation, Title: "Education",
			Description: "Show off your primary education, college degrees & exchange semesters."},
		TypeConfig{SectionType: TypeWork, Title: "Professional Experience",
			Description: "A place to highlight your professional experience - including internships."},
		TypeConfig{SectionType: TypeSkills, Title: "Skills",
			Description: "List your technical, managerial or soft skills in this section."},
		TypeConfig{SectionType: TypeLanguages, Title: "Languages",
			Description: "You speak more than one language? Make sure to list them here."},
		TypeConfig{SectionType: TypeCertificates, Title: "Certificates",
			Description: "Drivers licenses and other industry-specific certificates you have belong here."},
		TypeConfig{SectionType: TypeInterests, Title: "Interests",
			Description: "Do you have interests that align with your career aspiration?"},
		TypeConfig{SectionType: TypeProjects, Title: "Projects",
			Description: "Worked on a particular challenging project in the past? Mention it here."},
		TypeConfig{SectionType: TypeCourses, Title: "Courses",
			Description: "Did you complete MOOCs or an evening course? Show them off in this section."},
		TypeConfig{SectionType: TypeAwards, Title: "Awards",
			Description: "Awards like student competitions or industry accolades belong here."},
		TypeConfig{SectionType: TypeOrganizations, Title: "Organisations",
			Description: "If you volunteer or participate in a good cause, why not state it?"},
		TypeConfig{SectionType: TypePublications, Title: "Publications",
			Description: "Academic publications or book releases have a dedicated place here."},
		TypeConfig{SectionType: TypeReferences, Title: "References",
			Description: "If you have former colleagues or bosses that vouch for you, list them."},
		TypeConfig{SectionType: TypeSoftSkills, Title: "Soft Skills",
			Description: "Highlight your interpersonal and communication abilities."},
		TypeConfig{SectionType: TypeAchievements, Title: "Achievements",
			Description: "Showcase your notable accomplishments and milestones."},
		TypeConfig{SectionType: TypeTechnicalSkills, Title: "Technical Skills",
			Description: "List your programming languages, tools, and technical expertise."},
	)
}

// List 以声明顺序返回全部类型配置的副本。
func (r *Registry) List() []TypeConfig {
	out := make([]TypeConfig, len(r.configs))
	copy(out, r.configs)
	return out
}

// Lookup 查找内置类型配置。custom 与未知类型返回 false。
func (r *Registry) Lookup(t SectionType) (TypeConfig, bool) {
	cfg, ok := r.byType[t]
	return cfg, ok
}

// Allowed 判断分区能否使用该类型：内置类型或 custom。
func (r *Registry) Allowed(t SectionType) bool {
	if t == TypeCustom {
		return true
	}
	_, ok := r.byType[t]
	return ok
}

// kindFor 返回类型对应的条目结构及其允许的键；custom 与未登记类型回落到开放结构。
func (r *Registry) kindFor(t SectionType) (itemKind, map[string]struct{}) {
	if cfg, ok := r.byType[t]; ok && cfg.kind != nil {
		return cfg.kind, cfg.fields
	}
	return nil, nil
}

// jsonFieldNames 收集结构体（含匿名嵌入字段）的 JSON 键名。
func jsonFieldNames(t reflect.Type) map[string]struct{} {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	names := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if f.Anonymous && name == "" {
			for embedded := range jsonFieldNames(f.Type) {
				names[embedded] = struct{}{}
			}
			continue
		}
		if !f.IsExported() || name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		names[name] = struct{}{}
	}
	return names
}

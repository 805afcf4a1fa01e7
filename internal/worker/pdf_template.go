package worker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"github.com/Anumulaashok/resume-builder-backend/internal/resume"
)

// resumeTemplateString 是导出 PDF 使用的 HTML 模板，按 A4 打印排版。
const resumeTemplateString = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        @page { size: A4; margin: 18mm 16mm; }
        body { font-family: 'Helvetica Neue', Arial, sans-serif; font-size: 10.5pt; color: #222; margin: 0; }
        header { border-bottom: 2px solid #2b4c7e; padding-bottom: 8px; margin-bottom: 12px; }
        header h1 { margin: 0; font-size: 22pt; }
        header .label { color: #2b4c7e; font-size: 12pt; }
        header .contact { color: #555; font-size: 9.5pt; margin-top: 4px; }
        .summary { margin-bottom: 12px; }
        section { margin-bottom: 12px; page-break-inside: avoid; }
        section h2 { font-size: 12pt; text-transform: uppercase; color: #2b4c7e; border-bottom: 1px solid #ccc; margin: 0 0 6px; }
        .entry { margin-bottom: 6px; }
        .entry .heading { font-weight: bold; }
        .entry .sub { font-style: italic; }
        .entry .period { float: right; color: #666; font-size: 9.5pt; }
        .entry .tags { color: #555; font-size: 9.5pt; }
        .entry .extra { color: #555; font-size: 9.5pt; }
    </style>
</head>
<body>
    <header>
        <h1>{{.Basics.Name}}</h1>
        {{if .Basics.Label}}<div class="label">{{.Basics.Label}}</div>{{end}}
        <div class="contact">{{join .Contact " · "}}</div>
    </header>
    {{if .Basics.Summary}}<div class="summary">{{.Basics.Summary}}</div>{{end}}
    {{range .Sections}}
    <section>
        <h2>{{.Title}}</h2>
        {{range .Entries}}
        <div class="entry">
            {{if .Period}}<span class="period">{{.Period}}</span>{{end}}
            {{if .Heading}}<div class="heading">{{.Heading}}</div>{{end}}
            {{if .Subheading}}<div class="sub">{{.Subheading}}</div>{{end}}
            {{if .Description}}<div class="description">{{.Description}}</div>{{end}}
            {{if .Tags}}<div class="tags">{{join .Tags ", "}}</div>{{end}}
            {{range .Extra}}<div class="extra">{{.}}</div>{{end}}
        </div>
        {{end}}
    </section>
    {{end}}
</body>
</html>
`

var resumeTemplate = template.Must(template.New("resume").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(resumeTemplateString))

type resumeView struct {
	Title    string
	Basics   resume.Basics
	Contact  []string
	Sections []sectionView
}

type sectionView struct {
	Title   string
	Entries []entryView
}

type entryView struct {
	Heading     string
	Subheading  string
	Period      string
	Description string
	Tags        []string
	Extra       []string
}

var (
	headingKeys    = []string{"name", "title", "company", "institution"}
	subheadingKeys = []string{"position", "degree", "field", "issuer", "publisher", "institution", "contact", "level"}
	tagKeys        = []string{"technologies", "subSkills"}
	consumedKeys   = map[string]bool{
		"id": true, "enabled": true, "description": true,
		"startDate": true, "endDate": true, "current": true, "date": true,
	}
)

// RenderResumeHTML 按 sectionOrder 渲染启用的分区与条目。
func RenderResumeHTML(doc *resume.Resume) (string, error) {
	view := resumeView{
		Title:  doc.Title,
		Basics: doc.Content.Basics,
	}
	for _, part := range []string{doc.Content.Basics.Email, doc.Content.Basics.Phone, doc.Content.Basics.Location.City} {
		if strings.TrimSpace(part) != "" {
			view.Contact = append(view.Contact, part)
		}
	}

	for _, section := range doc.Content.OrderedSections() {
		if !section.Enabled {
			continue
		}
		sv := sectionView{Title: section.Title}
		for _, item := range section.Content {
			if !item.Base().Enabled {
				continue
			}
			entry, err := buildEntry(item)
			if err != nil {
				return "", err
			}
			sv.Entries = append(sv.Entries, entry)
		}
		view.Sections = append(view.Sections, sv)
	}

	var buf bytes.Buffer
	if err := resumeTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render resume template: %w", err)
	}
	return buf.String(), nil
}

func buildEntry(item resume.Item) (entryView, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return entryView{}, fmt.Errorf("encode item: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return entryView{}, fmt.Errorf("decode item: %w", err)
	}

	used := make(map[string]bool)
	pick := func(keys []string) string {
		for _, k := range keys {
			if used[k] {
				continue
			}
			if v := fieldText(fields[k]); v != "" {
				used[k] = true
				return v
			}
		}
		return ""
	}

	entry := entryView{
		Heading:     pick(headingKeys),
		Subheading:  pick(subheadingKeys),
		Period:      period(fields),
		Description: fieldText(fields["description"]),
	}
	for _, k := range tagKeys {
		if list, ok := fields[k].([]any); ok {
			used[k] = true
			for _, v := range list {
				if s := fieldText(v); s != "" {
					entry.Tags = append(entry.Tags, s)
				}
			}
		}
	}

	// custom 条目的其余字段按键名排序后逐行输出。
	if _, ok := item.(*resume.CustomItem); ok {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			if !used[k] && !consumedKeys[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			if v := fieldText(fields[k]); v != "" {
				entry.Extra = append(entry.Extra, k+": "+v)
			}
		}
	}
	return entry, nil
}

func period(fields map[string]any) string {
	start := fieldText(fields["startDate"])
	end := fieldText(fields["endDate"])
	if current, _ := fields["current"].(bool); current {
		end = "Present"
	}
	switch {
	case start != "" && end != "":
		return start + " – " + end
	case start != "":
		return start
	default:
		return fieldText(fields["date"])
	}
}

func fieldText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return fmt.Sprintf("%g", val)
	case bool:
		return ""
	case []any, map[string]any:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}

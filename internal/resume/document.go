package resume

import (
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// documentSchema 约束整份简历提交时的外层结构；分区与条目再由注册表逐个校验。
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["title", "basics"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "basics": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "label": {"type": "string"},
        "email": {"type": "string", "format": "email"},
        "phone": {"type": "string"},
        "summary": {"type": "string"},
        "location": {
          "type": "object",
          "properties": {
            "address": {"type": "string"},
            "city": {"type": "string"},
            "countryCode": {"type": "string"},
            "postalCode": {"type": "string"}
          }
        }
      }
    },
    "sections": {"type": "array", "items": {"type": "object"}},
    "sectionOrder": {"type": "array", "items": {"type": "string"}}
  }
}`

// DocumentValidator 用 JSON Schema 校验整份简历的提交内容。
type DocumentValidator struct {
	schema *gojsonschema.Schema
}

func NewDocumentValidator() (*DocumentValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
	if err != nil {
		return nil, fmt.Errorf("compile resume schema: %w", err)
	}
	return &DocumentValidator{schema: schema}, nil
}

// Validate 返回按字段名排序后的第一处违规。
func (v *DocumentValidator) Validate(raw []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return validationError("body", "must be a valid JSON object")
	}
	if result.Valid() {
		return nil
	}

	errs := result.Errors()
	sort.SliceStable(errs, func(i, j int) bool {
		return schemaField(errs[i]) < schemaField(errs[j])
	})
	first := errs[0]
	if first.Type() == "required" {
		return validationError(schemaField(first), "is required")
	}
	return validationError(schemaField(first), first.Description())
}

func schemaField(desc gojsonschema.ResultError) string {
	field := desc.Field()
	if desc.Type() != "required" {
		return field
	}
	prop := fmt.Sprint(desc.Details()["property"])
	if field == "" || field == gojsonschema.STRING_CONTEXT_ROOT {
		return prop
	}
	return field + "." + prop
}

package resume

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// stringListFields 是只能包含字符串的数组字段。
var stringListFields = map[string]bool{
	"subSkills":    true,
	"technologies": true,
}

func newValidator(r *Registry) *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("section_type", func(fl validator.FieldLevel) bool {
		return r.Allowed(SectionType(fl.Field().String()))
	})
	return v
}

// ValidateItem 按分区类型校验条目并返回解码后的条目。
// custom 与未登记的类型只要求条目是 JSON 对象。出错时只返回第一处问题。
func (r *Registry) ValidateItem(t SectionType, raw json.RawMessage) (Item, error) {
	if !isJSONObject(raw) {
		return nil, validationError("item", "must be an object")
	}

	kind, allowed := r.kindFor(t)
	if kind == nil {
		item := newCustomItem()
		if err := json.Unmarshal(raw, item); err != nil {
			return nil, validationError("item", "must be an object")
		}
		return item, nil
	}

	// encoding/json 匹配字段名时不区分大小写，先按原样核对键名。
	if err := checkItemKeys(raw, allowed); err != nil {
		return nil, err
	}

	item := kind()
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(item); err != nil {
		return nil, decodeFailure(err)
	}
	if err := r.validate.Struct(item); err != nil {
		return nil, firstFieldFailure(err)
	}
	return item, nil
}

// SectionCandidate 是新增分区的输入。Enabled 与 IsCustom 为空表示未提供。
type SectionCandidate struct {
	ID       string            `json:"id" validate:"required,ne=order"`
	Type     SectionType       `json:"type" validate:"required,section_type"`
	Title    string            `json:"title" validate:"required"`
	Content  []json.RawMessage `json:"content"`
	Enabled  *bool             `json:"enabled"`
	IsCustom *bool             `json:"isCustom"`
}

// ValidateSection 校验分区元数据并填充默认值。返回的分区内容为空，
// 条目需由调用方逐个经 ValidateItem 校验。
func (r *Registry) ValidateSection(c SectionCandidate) (Section, error) {
	if err := r.validate.Struct(c); err != nil {
		return Section{}, firstFieldFailure(err)
	}
	section := Section{
		ID:      c.ID,
		Type:    c.Type,
		Title:   c.Title,
		Content: []Item{},
		Enabled: true,
	}
	if c.Enabled != nil {
		section.Enabled = *c.Enabled
	}
	if c.IsCustom != nil {
		section.IsCustom = *c.IsCustom
	}
	return section, nil
}

// checkItemKeys 要求每个键与条目结构的 JSON 标签完全一致且只出现一次。
func checkItemKeys(raw json.RawMessage, allowed map[string]struct{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return validationError("item", "must be a valid JSON object")
	}
	seen := make(map[string]struct{}, len(allowed))
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return validationError("item", "must be a valid JSON object")
		}
		key, _ := tok.(string)
		if _, ok := allowed[key]; !ok {
			return validationError(key, "is not allowed")
		}
		if _, dup := seen[key]; dup {
			return validationError(key, "must not be repeated")
		}
		seen[key] = struct{}{}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return validationError("item", "must be a valid JSON object")
		}
	}
	return nil
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func decodeFailure(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if i := strings.LastIndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		if field == "" {
			return validationError("item", "must be an object")
		}
		if stringListFields[field] {
			return validationError(field, "must be an array of strings")
		}
		return validationError(field, "must be "+kindName(typeErr.Type))
	}

	const unknownPrefix = "json: unknown field "
	if msg := err.Error(); strings.HasPrefix(msg, unknownPrefix) {
		return validationError(strings.Trim(strings.TrimPrefix(msg, unknownPrefix), `"`), "is not allowed")
	}
	return validationError("item", "must be a valid JSON object")
}

func kindName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Float32, reflect.Float64, reflect.Int, reflect.Int64:
		return "a number"
	case reflect.Slice:
		return "an array"
	default:
		return "of type " + t.String()
	}
}

func firstFieldFailure(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return validationError("item", err.Error())
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return validationError(fe.Field(), "is required")
	case "min":
		return validationError(fe.Field(), "must be greater than or equal to "+fe.Param())
	case "max":
		return validationError(fe.Field(), "must be less than or equal to "+fe.Param())
	case "ne":
		return validationError(fe.Field(), "must not be "+strconv.Quote(fe.Param()))
	case "section_type":
		return validationError(fe.Field(), "must be one of the supported section types")
	default:
		return validationError(fe.Field(), "is invalid")
	}
}

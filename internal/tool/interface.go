package tool

import (
	"context"
	"sort"

	"github.com/cloudwego/eino/schema"
)

// 工具来源
const (
	SourceBuiltin = "builtin"
	SourceRemote  = "remote"
)

// Executor 工具执行函数；input 已剥离凭证类字段
type Executor func(ctx context.Context, input map[string]any) (any, error)

// Definition 工具定义。
// Execute 非空表示自动执行；为空表示需要人工确认，确认后执行 OnApprove。
type Definition struct {
	Name        string
	Description string
	Schema      Schema
	Execute     Executor
	OnApprove   Executor
	Source      string
}

// RequiresConfirmation 是否需要人工确认
func (d *Definition) RequiresConfirmation() bool {
	return d.Execute == nil
}

// ApprovedExecutor 人工确认后应调用的执行器：优先 OnApprove，其次 Execute
func (d *Definition) ApprovedExecutor() Executor {
	if d.OnApprove != nil {
		return d.OnApprove
	}
	return d.Execute
}

// ToolInfo 转为 eino 的工具描述，供模型 function calling
func (d *Definition) ToolInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        d.Name,
		Desc:        d.Description,
		ParamsOneOf: d.Schema.ParamsOneOf(),
	}
}

// Schema 工具入参的 JSON Schema 子集
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// Object 便捷构造 object schema
func Object(props map[string]*Schema, required ...string) Schema {
	return Schema{Type: "object", Properties: props, Required: required}
}

// String 便捷构造 string 属性
func String(desc string, enum ...string) *Schema {
	return &Schema{Type: "string", Description: desc, Enum: enum}
}

// ParamsOneOf 将 object schema 转为 eino 参数描述；无属性时返回 nil
func (s Schema) ParamsOneOf() *schema.ParamsOneOf {
	if len(s.Properties) == 0 {
		return nil
	}
	return schema.NewParamsOneOfByParams(paramsOf(s))
}

func paramsOf(s Schema) map[string]*schema.ParameterInfo {
	req := make(map[string]bool, len(s.Required))
	for _, r := range s.Required {
		req[r] = true
	}
	out := make(map[string]*schema.ParameterInfo, len(s.Properties))
	for name, p := range s.Properties {
		if p == nil {
			continue
		}
		info := p.paramInfo()
		info.Required = req[name]
		out[name] = info
	}
	return out
}

func (s *Schema) paramInfo() *schema.ParameterInfo {
	info := &schema.ParameterInfo{
		Type: dataType(s.Type),
		Desc: s.Description,
		Enum: s.Enum,
	}
	switch info.Type {
	case schema.Object:
		if len(s.Properties) > 0 {
			info.SubParams = paramsOf(*s)
		}
	case schema.Array:
		if s.Items != nil {
			info.ElemInfo = s.Items.paramInfo()
		} else {
			info.ElemInfo = &schema.ParameterInfo{Type: schema.String}
		}
	}
	return info
}

func dataType(t string) schema.DataType {
	switch t {
	case "object":
		return schema.Object
	case "number":
		return schema.Number
	case "integer":
		return schema.Integer
	case "boolean":
		return schema.Boolean
	case "array":
		return schema.Array
	case "null":
		return schema.Null
	}
	return schema.String
}

// SchemaFromMap 把远端工具的 JSON Schema（通用 map）转为 Schema；type 为数组时取第一个非 null 类型
func SchemaFromMap(m map[string]any) *Schema {
	if m == nil {
		return nil
	}
	s := &Schema{}
	switch t := m["type"].(type) {
	case string:
		s.Type = t
	case []any:
		for _, v := range t {
			if str, ok := v.(string); ok && str != "null" {
				s.Type = str
				break
			}
		}
	}
	if s.Type == "" {
		if _, ok := m["properties"]; ok {
			s.Type = "object"
		} else {
			s.Type = "string"
		}
	}
	s.Description, _ = m["description"].(string)
	if enum, ok := m["enum"].([]any); ok {
		for _, v := range enum {
			if str, ok := v.(string); ok {
				s.Enum = append(s.Enum, str)
			}
		}
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*Schema, len(props))
		for name, v := range props {
			if pm, ok := v.(map[string]any); ok {
				s.Properties[name] = SchemaFromMap(pm)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = SchemaFromMap(items)
	}
	s.Required = stringList(m["required"])
	return s
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if str, ok := x.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// SortedNames 工具名升序
func SortedNames(defs []*Definition) []string {
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}

package schema

import "encoding/json"

const URL = "http://json-schema.org/draft-07/schema#"

type Type string

const (
	String  Type = "string"
	Integer Type = "integer"
	Number  Type = "number"
	Boolean Type = "boolean"
	Array   Type = "array"
	Object  Type = "object"
)

// JSON is a way to describe a JSON Schema
type JSON struct {
	Type                 interface{}      `json:"type,omitzero"` // Can be Type or []interface{} for union types like ["string", "null"]
	Description          string           `json:"description,omitzero"`
	Properties           map[string]*JSON `json:"properties,omitzero"`
	Items                *JSON            `json:"items,omitzero"`
	Enum                 []string         `json:"enum,omitzero"`
	Default              any              `json:"default,omitzero"`
	Required             []string         `json:"required,omitzero"`
	AdditionalProperties *bool            `json:"additionalProperties,omitzero"`
	Schema               string           `json:"$schema,omitzero"`
	OneOf                []*JSON          `json:"oneOf,omitzero"`
	AnyOf                []*JSON          `json:"anyOf,omitzero"`
	AllOf                []*JSON          `json:"allOf,omitzero"`
}

// Property describes one named argument of an object schema.
type Property struct {
	Name     string
	Schema   *JSON
	Required bool
}

// StringProp returns a string property.
func StringProp(name, description string, required bool) Property {
	return Property{
		Name:     name,
		Schema:   &JSON{Type: String, Description: description},
		Required: required,
	}
}

// EnumProp returns a string property restricted to values, with def as the default.
func EnumProp(name, description string, values []string, def string) Property {
	p := StringProp(name, description, false)
	p.Schema.Enum = values
	if def != "" {
		p.Schema.Default = def
	}
	return p
}

// NewObject builds an object schema from props. Required properties are
// listed in the order given.
func NewObject(props ...Property) *JSON {
	obj := &JSON{
		Type:       Object,
		Properties: make(map[string]*JSON, len(props)),
	}
	for _, p := range props {
		obj.Properties[p.Name] = p.Schema
		if p.Required {
			obj.Required = append(obj.Required, p.Name)
		}
	}
	return obj
}

// MustMarshal encodes s, panicking on failure. Schemas are static values
// built at init time, so a failure is a programming error.
func MustMarshal(s *JSON) json.RawMessage {
	b, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	return b
}

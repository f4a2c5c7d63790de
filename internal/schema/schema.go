package schema

import (
	language "github.com/hanpama/gqlplug/internal/language"
)

// Schema represents the complete executable GraphQL schema
type Schema struct {
	QueryType        string
	MutationType     string
	SubscriptionType string
	Types            map[string]*Type // All named types keyed by name
	Directives       map[string]*Directive
	Description      string

	// AST is the validated definition the schema was built from. Query
	// documents are validated against it. Nil for hand-built schemas.
	AST *language.SchemaDefinition `json:"-"`
}

func NewSchema(description string) *Schema {
	s := &Schema{
		Types:       make(map[string]*Type),
		Directives:  make(map[string]*Directive),
		Description: description,
	}
	s.AddType(stringType).
		AddType(intType).
		AddType(floatType).
		AddType(booleanType).
		AddType(idType)
	s.AddDirective(includeDirective).
		AddDirective(skipDirective)
	return s
}

func (s *Schema) SetQueryType(name string) *Schema        { s.QueryType = name; return s }
func (s *Schema) SetMutationType(name string) *Schema     { s.MutationType = name; return s }
func (s *Schema) SetSubscriptionType(name string) *Schema { s.SubscriptionType = name; return s }

func (s *Schema) AddType(t *Type) *Schema {
	s.Types[t.Name] = t
	return s
}

func (s *Schema) AddDirective(d *Directive) *Schema {
	s.Directives[d.Name] = d
	return s
}

// GetQueryType returns the root query type (may be nil if absent)
func (s *Schema) GetQueryType() *Type { return s.Types[s.QueryType] }

// GetMutationType returns the root mutation type (may be nil if absent)
func (s *Schema) GetMutationType() *Type { return s.Types[s.MutationType] }

// GetSubscriptionType returns the root subscription type (may be nil if absent)
func (s *Schema) GetSubscriptionType() *Type { return s.Types[s.SubscriptionType] }

// IsRootType reports whether name is one of the operation root types.
func (s *Schema) IsRootType(name string) bool {
	return name != "" && (name == s.QueryType || name == s.MutationType || name == s.SubscriptionType)
}

// Type is a named GraphQL type (object, interface, union, scalar, enum, input)
type Type struct {
	Name           string
	Kind           TypeKind
	Description    string
	Fields         []*Field      // For OBJECT and INTERFACE
	Interfaces     []string      // For OBJECT and INTERFACE (implemented/extended)
	PossibleTypes  []string      // For INTERFACE and UNION
	EnumValues     []*EnumValue  // For ENUM
	InputFields    []*InputValue // For INPUT_OBJECT
	SpecifiedByURL *string
	OneOf          bool

	// Directives applied to the type definition.
	Directives language.DirectiveList `json:"-"`
	// ResolveType picks the concrete object type for INTERFACE and UNION values.
	ResolveType ResolveTypeFn `json:"-"`
	BuiltIn     bool          `json:"-"`
}

func NewType(name string, kind TypeKind, description string) *Type {
	return &Type{Name: name, Kind: kind, Description: description}
}

func (t *Type) AddField(f *Field) *Type            { t.Fields = append(t.Fields, f); return t }
func (t *Type) AddInterface(name string) *Type     { t.Interfaces = append(t.Interfaces, name); return t }
func (t *Type) AddPossibleType(name string) *Type  { t.PossibleTypes = append(t.PossibleTypes, name); return t }
func (t *Type) AddEnumValue(v *EnumValue) *Type    { t.EnumValues = append(t.EnumValues, v); return t }
func (t *Type) AddInputField(v *InputValue) *Type  { t.InputFields = append(t.InputFields, v); return t }
func (t *Type) SetOneOf(oneOf bool) *Type          { t.OneOf = oneOf; return t }
func (t *Type) SetResolveType(fn ResolveTypeFn) *Type { t.ResolveType = fn; return t }

// Field returns the field with the given name, or nil.
func (t *Type) Field(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// GetOrderedFields returns fields in declaration order.
func (t *Type) GetOrderedFields() []*Field { return t.Fields }

// GetOrderedInputFields returns input fields in declaration order.
func (t *Type) GetOrderedInputFields() []*InputValue { return t.InputFields }

// IsComposite reports whether values of the type carry a selection set.
func (t *Type) IsComposite() bool {
	return t.Kind == TypeKindObject || t.Kind == TypeKindInterface || t.Kind == TypeKindUnion
}

// Field represents a field on an object or interface
type Field struct {
	Name              string
	Description       string
	Type              *TypeRef
	Arguments         []*InputValue
	Async             bool
	IsDeprecated      bool
	DeprecationReason string

	// Directives applied to the field definition.
	Directives language.DirectiveList `json:"-"`
	// Resolve produces the field value. Nil means DefaultResolve.
	Resolve FieldResolveFn `json:"-"`
}

func NewField(name, description string, typ *TypeRef) *Field {
	return &Field{Name: name, Description: description, Type: typ}
}

func (f *Field) SetAsync(async bool) *Field            { f.Async = async; return f }
func (f *Field) SetResolve(fn FieldResolveFn) *Field   { f.Resolve = fn; return f }
func (f *Field) AddArgument(arg *InputValue) *Field    { f.Arguments = append(f.Arguments, arg); return f }
func (f *Field) Deprecate(reason string) *Field {
	f.IsDeprecated = true
	f.DeprecationReason = reason
	return f
}

// GetOrderedArguments returns arguments in declaration order.
func (f *Field) GetOrderedArguments() []*InputValue { return f.Arguments }

// TypeKind represents the kind of GraphQL type
type TypeKind string

const (
	TypeKindScalar      TypeKind = "SCALAR"
	TypeKindObject      TypeKind = "OBJECT"
	TypeKindInterface   TypeKind = "INTERFACE"
	TypeKindUnion       TypeKind = "UNION"
	TypeKindEnum        TypeKind = "ENUM"
	TypeKindInputObject TypeKind = "INPUT_OBJECT"
)

// TypeRef represents a reference to a type (can be wrapped)
type TypeRef struct {
	Kind   TypeRefKind
	OfType *TypeRef // For List and NonNull
	Named  string   // For named types
}

type TypeRefKind string

const (
	TypeRefKindNamed   TypeRefKind = "NAMED"
	TypeRefKindList    TypeRefKind = "LIST"
	TypeRefKindNonNull TypeRefKind = "NON_NULL"
)

// Helper functions for TypeRef
func (t *TypeRef) IsNonNull() bool {
	return t != nil && t.Kind == TypeRefKindNonNull
}

func (t *TypeRef) IsList() bool {
	if t.Kind == TypeRefKindList {
		return true
	}
	if t.Kind == TypeRefKindNonNull && t.OfType != nil {
		return t.OfType.Kind == TypeRefKindList
	}
	return false
}

func (t *TypeRef) Unwrap() *TypeRef {
	if t.Kind == TypeRefKindNonNull || t.Kind == TypeRefKindList {
		return t.OfType
	}
	return t
}

func (t *TypeRef) GetNamedType() string {
	current := t
	for current != nil {
		if current.Named != "" {
			return current.Named
		}
		current = current.OfType
	}
	return ""
}

// String renders the reference in SDL notation, e.g. "[String!]!".
func (t *TypeRef) String() string { return renderTypeRef(t) }

type EnumValue struct {
	Name              string
	Description       string
	IsDeprecated      bool
	DeprecationReason string
}

func NewEnumValue(name, description string) *EnumValue {
	return &EnumValue{Name: name, Description: description}
}

func (e *EnumValue) Deprecate(reason string) *EnumValue {
	e.IsDeprecated = true
	e.DeprecationReason = reason
	return e
}

type InputValue struct {
	Name              string
	Description       string
	Type              *TypeRef
	DefaultValue      any
	IsDeprecated      bool
	DeprecationReason string
}

func NewInputValue(name, description string, typ *TypeRef) *InputValue {
	return &InputValue{Name: name, Description: description, Type: typ}
}

func (v *InputValue) SetDefault(value any) *InputValue { v.DefaultValue = value; return v }
func (v *InputValue) Deprecate(reason string) *InputValue {
	v.IsDeprecated = true
	v.DeprecationReason = reason
	return v
}

type Directive struct {
	Name         string
	Description  string
	Locations    []string
	Arguments    []*InputValue
	IsRepeatable bool
	BuiltIn      bool `json:"-"`
}

func NewDirective(name, description string) *Directive {
	return &Directive{Name: name, Description: description}
}

func (d *Directive) SetRepeatable(repeatable bool) *Directive { d.IsRepeatable = repeatable; return d }
func (d *Directive) AddArgument(arg *InputValue) *Directive  { d.Arguments = append(d.Arguments, arg); return d }
func (d *Directive) AddLocation(loc string) *Directive       { d.Locations = append(d.Locations, loc); return d }

func NonNullType(t *TypeRef) *TypeRef { return &TypeRef{Kind: TypeRefKindNonNull, OfType: t} }
func ListType(t *TypeRef) *TypeRef    { return &TypeRef{Kind: TypeRefKindList, OfType: t} }
func NamedType(name string) *TypeRef  { return &TypeRef{Kind: TypeRefKindNamed, Named: name} }

// IsNonNull reports whether the type is wrapped with Non-Null.
func IsNonNull(t *TypeRef) bool { return t != nil && t.IsNonNull() }

// IsList reports whether the type is (or is wrapped by) a list type.
func IsList(t *TypeRef) bool { return t != nil && t.IsList() }

// Unwrap removes one layer of Non-Null or List wrapping and returns the inner type.
func Unwrap(t *TypeRef) *TypeRef { return t.Unwrap() }

// GetNamedType returns the innermost named type for the given reference.
func GetNamedType(t *TypeRef) string { return t.GetNamedType() }

package language

import (
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
)

func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func ParseSchema(name, source string) (*SchemaDocument, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadSchema parses and validates the given SDL sources into a single schema
// definition. Built-in scalars and directives are included.
func LoadSchema(sources ...*Source) (*SchemaDefinition, error) {
	s, err := gqlparser.LoadSchema(sources...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ValidateQuery checks doc against the schema definition. The returned list
// is empty when the document is valid.
func ValidateQuery(s *SchemaDefinition, doc *QueryDocument) ErrorList {
	return validator.Validate(s, doc)
}

// ParseAndValidateQuery parses source and validates it against s.
func ParseAndValidateQuery(s *SchemaDefinition, source string) (*QueryDocument, ErrorList) {
	doc, err := ParseQuery(source)
	if err != nil {
		return nil, gqlerror.List{asError(err)}
	}
	if errs := validator.Validate(s, doc); len(errs) > 0 {
		return nil, errs
	}
	return doc, nil
}

func asError(err error) *Error {
	if ge, ok := err.(*Error); ok {
		return ge
	}
	return gqlerror.Errorf("%s", err.Error())
}

// FormatQuery prints doc in the formatter's normalized layout. Documents that
// differing only in layout print identically.
func FormatQuery(doc *QueryDocument) string {
	var b strings.Builder
	formatter.NewFormatter(&b).FormatQueryDocument(doc)
	return b.String()
}

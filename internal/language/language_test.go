package language

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAndValidateQuery(t *testing.T) {
	s, err := LoadSchema(&Source{Name: "test.graphql", Input: `
		directive @noCache on QUERY
		type Query { hello: String }
	`})
	require.NoError(t, err)

	doc, errs := ParseAndValidateQuery(s, `query @noCache { hello }`)
	require.Empty(t, errs)
	require.Len(t, doc.Operations, 1)

	_, errs = ParseAndValidateQuery(s, `{ nope }`)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Message, "nope")

	_, errs = ParseAndValidateQuery(s, `{ hello `)
	require.Len(t, errs, 1)
}

func TestFormatQuery(t *testing.T) {
	a, err := ParseQuery("query Q($id: ID) { user(id: $id) { name } }")
	require.NoError(t, err)
	b, err := ParseQuery("query Q($id: ID) {\n  user(id: $id) {\n    name,\n  }\n}")
	require.NoError(t, err)
	require.Equal(t, FormatQuery(a), FormatQuery(b))
	require.Contains(t, FormatQuery(a), "user(id: $id)")
}

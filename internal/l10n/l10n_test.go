package l10n

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierr "github.com/hanpama/gqlplug/internal/apierr"
	plugin "github.com/hanpama/gqlplug/internal/plugin"
	schema "github.com/hanpama/gqlplug/internal/schema"
)

const typeDefs = `
type Query {
	greeting: String @localized
	greetings: [String] @localized
	plain: String @localized
	locale: String
}
`

var messages = map[string]string{"en": "hello", "sv": "hej"}

func build(t *testing.T, opts Options) *plugin.Pipeline {
	t.Helper()
	p, err := plugin.Build(plugin.Config{
		TypeDefs: []string{typeDefs},
		Resolvers: schema.Resolvers{"Query": {
			"greeting": {Resolve: func(ctx context.Context, _ schema.ResolveParams) (any, error) {
				l := LocaleFromContext(ctx)
				return Localized(messages[l], l), nil
			}},
			"greetings": {Resolve: func(ctx context.Context, _ schema.ResolveParams) (any, error) {
				return []LocalizedString{Localized("a", "en"), Localized("b", "en")}, nil
			}},
			"plain": {Resolve: func(context.Context, schema.ResolveParams) (any, error) {
				return "untagged", nil
			}},
			"locale": {Resolve: func(ctx context.Context, _ schema.ResolveParams) (any, error) {
				return LocaleFromContext(ctx), nil
			}},
		}},
		Plugins: []plugin.Plugin{New(opts)},
	})
	require.NoError(t, err)
	return p
}

func TestLocaleSelection(t *testing.T) {
	extract := func(context.Context) (string, error) { return "fi", nil }
	tests := []struct {
		name  string
		opts  Options
		query string
		vars  map[string]any
		want  string
	}{
		{"default", Options{DefaultLocale: "en"}, `{ locale }`, nil, "en"},
		{"extractor", Options{DefaultLocale: "en", Extract: extract}, `{ locale }`, nil, "fi"},
		{"directive wins", Options{DefaultLocale: "en", Extract: extract}, `query @locale(code: "sv") { locale }`, nil, "sv"},
		{"variable", Options{DefaultLocale: "en"}, `query Q($c: String!) @locale(code: $c) { locale }`, map[string]any{"c": "de"}, "de"},
		{"variable default", Options{DefaultLocale: "en"}, `query Q($c: String = "nl") @locale(code: $c) { locale }`, nil, "nl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := build(t, tt.opts).Do(context.Background(), tt.query, "", tt.vars)
			require.NoError(t, err)
			require.Empty(t, res.Errors)
			assert.Equal(t, tt.want, res.Data.(map[string]any)["locale"])
		})
	}
}

func TestLocalizedFields(t *testing.T) {
	p := build(t, Options{DefaultLocale: "en"})
	res, err := p.Do(context.Background(), `query @locale(code: "sv") { greeting greetings plain }`, "", nil)
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	assert.Equal(t, map[string]any{
		"greeting":  "hej",
		"greetings": []any{"a", "b"},
		"plain":     "untagged",
	}, res.Data)
}

func TestVerifyRejectsUntaggedText(t *testing.T) {
	p := build(t, Options{DefaultLocale: "en", Verify: true})
	res, err := p.Do(context.Background(), `{ greeting plain }`, "", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"greeting": "hello", "plain": nil}, res.Data)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, `Field "plain" is not localized`, res.Errors[0].Message)
	assert.True(t, apierr.IsExposed(res.Errors[0].Err))
}

func TestLocalizedMustBeString(t *testing.T) {
	_, err := plugin.Build(plugin.Config{
		TypeDefs: []string{`type Query { n: [Int] @localized }`},
		Plugins:  []plugin.Plugin{New(Options{})},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Query.n: localized fields must be strings, got Int")
}

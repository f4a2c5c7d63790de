package main

import (
	"context"

	l10n "github.com/hanpama/gqlplug/internal/l10n"
	schema "github.com/hanpama/gqlplug/internal/schema"
)

const demoTypeDefs = `
type Query {
	version: String! @cache(ttl: SHORT) @a11n(level: PUBLIC)
	localizedString: String! @localized
}
`

const demoVersion = "1.2.3"

func demoResolvers() schema.Resolvers {
	return schema.Resolvers{
		"Query": {
			"version": {Resolve: func(context.Context, schema.ResolveParams) (any, error) {
				return demoVersion, nil
			}},
			"localizedString": {Resolve: func(ctx context.Context, _ schema.ResolveParams) (any, error) {
				switch l10n.LocaleFromContext(ctx) {
				case "sv":
					return l10n.Localized("Tjena!", "sv"), nil
				case "debug":
					return "Not a localized string", nil
				default:
					return l10n.Localized("Hi there!", "en"), nil
				}
			}},
		},
	}
}

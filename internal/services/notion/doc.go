// Package notion implements the source-database collaborator: a thin client
// over the Notion HTTP API that returns pages as opaque property-bag
// documents, paginated transparently. Only internal/project interprets the
// bag; this package knows nothing about the project schema.
package notion

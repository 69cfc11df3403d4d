package mcpserver

// LinkFormatContract describes the link definition format that LLM
// consumers should follow when linking a collection to a search view.
const LinkFormatContract = `# Beacon Link Definition Contract

A link binds one collection to one search view. It is created from, and
serialized back into, a JSON definition with this shape.

## Structure

` + "```" + `json
{
  "view": 3,
  "analyzers": ["text"],
  "fields": {
    "title": {},
    "body": { "analyzers": ["text", "delimiter:,"] }
  },
  "includeAllFields": false,
  "trackListPositions": false
}
` + "```" + `

## Rules

1. **` + "`" + `view` + "`" + ` is required on create.** It is the numeric id of an existing
   view (list views first). Serialized definitions echo it back.
2. **` + "`" + `fields` + "`" + ` selects what gets indexed.** Keys are top-level document
   fields; the value may override the analyzer chain for that field.
   An empty object inherits the definition's ` + "`" + `analyzers` + "`" + `.
3. **` + "`" + `includeAllFields` + "`" + ` indexes every field** instead of the listed ones.
   Nested objects flatten to dotted names (` + "`" + `author.name` + "`" + `).
4. **` + "`" + `trackListPositions` + "`" + ` expands arrays** into one entry per element,
   named with the position (` + "`" + `tags[0]` + "`" + `, ` + "`" + `tags[1]` + "`" + `).
5. **Analyzers are named pipeline stages.** ` + "`" + `"text"` + "`" + ` lowercases and
   splits on non-letters; ` + "`" + `"identity"` + "`" + ` keeps the value whole;
   ` + "`" + `"delimiter:<sep>"` + "`" + ` splits on a literal separator.
6. **Serialized definitions carry extras.** ` + "`" + `id` + "`" + ` (string-encoded) and
   ` + "`" + `type` + "`" + ` are set by the engine; do not send them on create.

## Example

Create a link that indexes title and tags of every document in the
collection, splitting comma-separated tags:

` + "```" + `json
{
  "view": 3,
  "analyzers": ["text"],
  "fields": {
    "title": {},
    "tags": { "analyzers": ["delimiter:,", "text"] }
  }
}
` + "```" + `
`

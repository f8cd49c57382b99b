package mcpserver

// ExportFormatContract describes the export file format so clients can
// produce files the importer accepts.
const ExportFormatContract = `# Quire Export Format

An export file is a single UTF-8 JSON document:

` + "```" + `json
{
  "schemaVersion": 1,
  "exportedAt": "2024-03-01T15:00:00.000000000Z",
  "appVersion": "1.0.0",
  "notebook": {
    "id": "…", "title": "…",
    "sources": [{"id", "kind", "name", "content", "metadata": {"pageCount", "url", "addedAt"}}],
    "chat": [{"id", "role", "content", "timestamp", "citations": [{"sourceId", "sourceName", "text"}]}],
    "outputs": [{"id", "kind", "title", "content", "generatedAt"}],
    "notes": [{"id", "title", "content", "richContent", "createdAt", "updatedAt"}],
    "createdAt": "…", "updatedAt": "…"
  }
}
` + "```" + `

## Rules

1. ` + "`" + `schemaVersion` + "`" + ` is a number. Files newer than the running version are rejected.
2. ` + "`" + `exportedAt` + "`" + ` and ` + "`" + `appVersion` + "`" + ` are strings.
3. ` + "`" + `notebook.sources` + "`" + `, ` + "`" + `chat` + "`" + `, ` + "`" + `outputs` + "`" + ` and ` + "`" + `notes` + "`" + ` are arrays.
4. Timestamps are RFC 3339 UTC text.
5. Source kinds: pdf, website, text. Chat roles: user, assistant.
6. Output kinds: mind-map, report, flashcards, quiz, infographic, slide-deck, data-table,
   audio-overview, video-overview.
   Output ` + "`" + `content` + "`" + ` is any JSON value.
7. Notes written by older versions may carry only ` + "`" + `id` + "`" + `, ` + "`" + `content` + "`" + ` and ` + "`" + `createdAt` + "`" + `;
   the title and rich content are derived on import.
`

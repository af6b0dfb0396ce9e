package mcp

import "github.com/mark3labs/mcp-go/mcp"

var searchToolDef = mcp.NewTool("dumbledore_search",
	mcp.WithDescription("Semantic search over the user's synced notes. Returns scored chunks, best match first."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural-language search query."),
	),
	mcp.WithNumber("top_k",
		mcp.Description("Number of results to return. Defaults to the configured top-k, capped at 50."),
	),
	mcp.WithString("source",
		mcp.Description("Restrict results to one source type."),
		mcp.Enum("apple", "markdown", "lumifyhub", "conversation", "style"),
	),
)

var contextToolDef = mcp.NewTool("dumbledore_context",
	mcp.WithDescription("Retrieve the context bundle for a question: the user's profile, relevant note chunks, and past conversation excerpts, formatted for prompting. Does not call an LLM."),
	mcp.WithString("question",
		mcp.Required(),
		mcp.Description("The question to retrieve context for."),
	),
)

var notesToolDef = mcp.NewTool("dumbledore_notes",
	mcp.WithDescription("List synced notes with source, chunk count, and sync time, alphabetical by title."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum rows returned. Defaults to 50, capped at 500."),
	),
)

var statsToolDef = mcp.NewTool("dumbledore_stats",
	mcp.WithDescription("Knowledge-base statistics: note, chunk, and conversation counts, embedding model, and vector backend."),
)

var profileToolDef = mcp.NewTool("dumbledore_profile",
	mcp.WithDescription("Fetch the user's profile note. Reports found=false when no profile note is synced."),
)

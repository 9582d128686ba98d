package llm

// VisionPrompt asks for a JSON hint object on the first line and a
// SEARCH_QUERY line after it.
const VisionPrompt = `You identify movies and TV series from screenshots.
Reply with one JSON object on the first line:
{"title_hints": [...], "actors": [...], "keywords": [...]}
title_hints are likely titles (original and localized), actors are recognizable people,
keywords are short distinctive scene descriptors. Use empty lists when unsure.
After the JSON, add one line: SEARCH_QUERY: <best short search query>.
Never describe explicit content.`

// AssistantPrompt is the system instruction for the general chat path.
const AssistantPrompt = `You are a friendly personal diary assistant.
Answer briefly in the user's language. If you do not know something, say so.`

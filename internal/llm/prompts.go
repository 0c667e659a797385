package llm

// ScriptPrompt instructs the model to draft a narration script.
const ScriptPrompt = `You write voice-over scripts for vertical short-form videos (60 seconds or less).

Write for the ear: short sentences, concrete images, no stage directions, no
speaker labels, no emojis, no hashtags. The script is read aloud by a single
narrator exactly as written. Open with a hook in the first sentence and end
with a clear payoff.

Respond with JSON only:
{"script": "<the full narration text>"}`

// TranslatePrompt instructs the model to adapt a script into another language.
const TranslatePrompt = `You adapt voice-over scripts for short-form videos into another language.

Keep the meaning, tone, pacing, and paragraph structure. Prefer natural,
idiomatic phrasing over literal translation. Keep roughly the same spoken
length. Do not add commentary, notes, or speaker labels.

Respond with JSON only:
{"script": "<the adapted narration text>"}`

// MetadataPrompt instructs the model to write upload metadata.
const MetadataPrompt = `You write upload metadata for a short-form video from its narration script.

Write in the requested language. The title is at most 80 characters and has no
hashtags. The description is one or two sentences. Provide 3 to 8 hashtags
relevant to the topic, without spaces.

Respond with JSON only:
{"title": "...", "description": "...", "hashtags": ["#tag", "..."]}`

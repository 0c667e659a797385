// Package llm talks to an OpenRouter-compatible chat completion API and
// turns its responses into scripts, translations, and video metadata.
//
// # Entry Points
//
// NewClient: construct a client from Config.
// Client.CompleteJSON: send system/user prompts, receive a JSON payload.
// Writer.Draft: primary-language narration script from a prompt.
// Writer.Translate: adapt a script into another language.
// Writer.Metadata: title, description, and hashtags for one language.
//
// # Retry Behaviour
//
// Requests are retried on HTTP 408/429/5xx, network timeouts, and empty
// completions with exponential backoff (base 1s, max 10s, 5 attempts by
// default). Exhausted retries surface as services.ErrTransient so the poll
// loop tries again next cycle; 4xx responses surface as
// services.ErrExternalTool and disable only the affected language.
package llm

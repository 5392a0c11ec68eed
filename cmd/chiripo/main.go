// Command chiripo runs the news site and its maintenance tasks.
//
// Architecture overview:
//   - HTTP: internal/api serves the pages and JSON endpoints on chi. Slow ingestion endpoints
//     submit jobs to the dispatcher and wait for them, so a client disconnect never leaves a
//     half-finished article.
//   - Jobs: a bounded in-memory queue feeds a fixed worker pool sized by jobs.workers. Job
//     state lives in an in-memory job store and can be polled at /api/jobs/{id}.
//   - Ingestion: feeds are parsed with gofeed, bodies are fetched with colly (chromedp when
//     enabled), and the AI provider writes the explanation blocks and persona opinions.
//   - Persistence: articles, explanations and the daily memo go to Firestore, SQLite,
//     Postgres, bolt or memory. Raw bodies are archived to the blob backend and published
//     articles are announced on the configured bus.
//   - Scheduling: robfig/cron drives the periodic refresh, the trend cache and the daily memo.
//
// Quick checklist:
//   - OPENAI_API_KEY (or ai.provider=gemini with GEMINI_API_KEY) enables explanations.
//   - ADMIN_SECRET enables /admin. DISABLE_RSS_UPDATE=true freezes ingestion.
//   - Run locally: go run ./cmd/chiripo serve --config config.yaml
package main

import "github.com/JakeFAU/chiripo-news/cmd"

func main() {
	cmd.Execute()
}

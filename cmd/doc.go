// Package cmd implements the insightcrawler CLI.
//
// Architecture overview:
//   - Configuration: internal/config loads defaults, an optional YAML file and INSIGHT_* environment
//     overrides with Viper. The organization table is compiled in and can be replaced by the file.
//   - Services: internal/app builds the store (memory or Postgres), the Colly fetcher, the robots.txt
//     cache, the compliance gate, the per-domain rate limiter, the feed ingester, the page scraper,
//     the document processor and the orchestrator once per process.
//   - Crawl: for each organization the orchestrator ingests configured feeds and scrapes the
//     publications page, recording new links as pending documents and writing one crawl log per run.
//   - Processing: pending documents are fetched, reduced to plain text, chunked and stored. Raw HTML
//     can be archived (memory/local/GCS) and completion events published (memory/Pub/Sub).
//   - Serving: `serve` exposes the admin API and metrics and runs the cron schedule.
//
// Commands: migrate, seed, crawl, process, stats, serve.
package cmd

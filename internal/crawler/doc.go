// Package crawler holds the domain model shared by the ingestion pipeline:
// organizations and their crawl policies, discovered documents, chunks, crawl
// logs, and the ports (Store, Fetcher, BlobStore, Publisher) the pipeline
// components are built against.
package crawler

// Package store provides durable storage access for the rollup engines,
// the export tool, and the stats batch.
//
// All access goes through database/sql. Production runs against PostgreSQL
// (lib/pq); SQLite (mattn/go-sqlite3) serves local development and the test
// suites. The per-driver differences (placeholder style, minute-of-day SQL,
// insert-returning-id, and the monthly bulk load) are isolated in a small
// dialect type so every query is written once.
//
// All timestamps passed to and read from the store are UTC. Calendar days
// are represented as "YYYY-MM-DD" strings, which order correctly under both
// engines' MAX/MIN aggregates.
package store

// Package postgres provides the PostgreSQL plumbing shared by all
// services: connection management with optional read replicas, schema
// migrations, and the two-level membership cache.
package postgres

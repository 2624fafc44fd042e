// Package review defines the core domain types and contracts for the
// Shopee review crawler: queue items and their status lifecycle, stored
// comments, the fetch/persist/alert interfaces, and the retry policy
// used by the resilient fetcher.
package review

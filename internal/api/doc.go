// Package api defines wire-format types and converters shared by the HTTP
// API and the IPC layer. It translates store models into transport-friendly
// DTOs so consumers never couple to internal types.
//
// # Key Types
//
// Podcast, Episode, SyncRun: transport representations of the corresponding
// store records.
//
// # Converters
//
// FromPodcast, FromEpisode, FromSyncRun and their slice variants. Timestamps
// are RFC3339 in UTC; optional fields drop out of the payload when empty.
package api

// Package store persists the alarm engine's durable state (schedules, the
// last published status and the sync revision) in a local sqlite database,
// so a power cycle loses neither pending alarms nor sync positions.
//
// The schema is versioned through "pragma user_version" and migrated from
// embedded SQL scripts on open.
package store

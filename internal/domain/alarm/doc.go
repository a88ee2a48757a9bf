// Package alarm contains core domain types for the wake-up alarm logic.
//
// It defines Schedule (a configured trigger with repeat rule), EngineState
// and Status (an immutable snapshot of the engine at a point in time),
// MotionSample (one accelerometer reading) and SyncEnvelope (the versioned
// bundle exchanged with the remote counterpart), with Clone helpers to avoid
// leaking internal references.
package alarm

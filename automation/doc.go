// Package automation records time-stamped parameter changes per track and
// replays them against effects in step with playback.
//
// Events live in a per-track Playlist ordered by start time. The render
// loop asks a Cursor for the events inside each block and passes them to
// Runtime.Fire, which applies the captured value unless the track is
// currently under live manual control for that variant (see Handler), and
// then posts a Notification without blocking.
//
// Variants are identified by a Kind tag. Each Kind is registered once in a
// Registry together with its Handler and an import factory; the registry
// is passed explicitly to everything that needs it.
package automation

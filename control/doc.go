// Package control turns user gestures into parameter changes and
// automation recordings.
//
// A gesture on a parameter starts with Touch, continues with any number of
// Change calls and ends with Release. While a parameter is touched the
// playback runtime skips automation of that variant on the track, so the
// user's value wins. When the track has automation enabled, every step of
// the gesture is recorded as an event at the current playback position.
//
// MIDIMap drives a Surface from MIDI control change and note messages.
package control

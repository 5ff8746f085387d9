// Package persist defines the flat attribute schema used to save effect
// settings and automation events, and the session document that groups
// them per track. Documents can be stored as XML or YAML.
package persist

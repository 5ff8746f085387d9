// Package session hosts tracks with effect chains and automation
// playlists and renders them block by block.
//
// The Engine splits every block at automation event times so that each
// event is applied immediately before the first sample it affects. Seeking
// chases automation: the latest event of every variant before the new
// position is re-applied so effect parameters match the automated state.
package session

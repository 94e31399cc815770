// Package opus streams pre-encoded Opus audio into Discord voice.
//
// Sounds are stored as Ogg/Opus files. OggReader pulls the raw Opus packets
// back out of the Ogg container, skipping the two header packets, so they
// can be handed to the voice connection as-is. Stream sends those frames to
// a voice connection's send channel until the source runs dry.
package opus

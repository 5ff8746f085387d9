// Package modulation provides LFO-modulated delay effects.
//
// Included processors:
//   - Flanger: short delay swept by a triangle LFO, with feedback and a
//     dry/wet balance. One LFO drives all channels.
package modulation

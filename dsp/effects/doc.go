// Package effects provides tempo-synced effects hosted on session tracks.
//
// Subpackages:
//   - github.com/cwbudde/algo-automation/dsp/effects/modulation
//
// Effects in this package:
//   - Delay: stereo feedback delay whose time is given in beats and
//     follows tempo changes, with a dry/wet balance.
//
// Each effect exposes its automatable parameters as automation.ParamSpec
// values and registers them with RegisterAutomation. Settings persist as
// a persist.Element named after the effect kind.
package effects

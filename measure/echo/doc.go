// Package echo analyzes impulse responses of delay-based effects.
//
// A feedback delay answers a unit impulse with a train of taps: the dry
// impulse, then echoes spaced by the delay time whose amplitudes fall by
// the feedback gain each repeat. The analyzer recovers that structure:
//
//   - Taps: local peaks above a threshold relative to the strongest tap
//   - Delay: mean spacing between successive echoes
//   - Feedback: geometric mean ratio between successive echo amplitudes
//   - DecayTime: time for the echo train to fall by 60 dB
//   - Response, PowerResponse: comb filter magnitude and power spectra
//
// # Usage
//
//	a := echo.NewAnalyzer(48000)
//	r, err := a.Analyze(impulseResponse)
//	fmt.Printf("delay %.1f ms, feedback %.2f\n", r.Delay*1000, r.Feedback)
package echo

// Package core holds small numeric helpers and the shared render
// configuration used by the delay kernels, effects and the session engine.
package core

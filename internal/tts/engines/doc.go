// Package engines runs the external programs behind speech synthesis: piper
// for on-device voices and ffmpeg for decoding and resampling.
package engines

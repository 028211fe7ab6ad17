// Package audio plays 16-bit PCM through the system output using oto/v3.
// One Player exists per process; both speech backends share it.
package audio

// Package navigation contains the reactive obstacle handling of the robot:
// a stuck detector over recent positions and the backup-turn-advance avoidance automaton.
//
// Both types are driven by the control loop with explicit timestamps and never sleep.
package navigation

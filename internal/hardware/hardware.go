// Package hardware declares the capabilities the behavior core consumes from the robot body.
// Implementations live elsewhere (simulator, serial bridge); the core only sees these interfaces.
package hardware

import "math"

// DistanceSensor reports the distance to the nearest obstacle ahead.
// The unit must stay the same for a whole deployment.
type DistanceSensor interface {
	MeasureDistance() (float64, error)
}

// MotorActuator drives the robot. Calls are fire-and-forget.
type MotorActuator interface {
	MoveForward(speed float64)
	MoveBackward(speed float64)
	TurnLeft(speed float64)
	TurnRight(speed float64)
	Stop()
}

// PositionSource reports the robot's estimated position, when known.
type PositionSource interface {
	Position() (x, y float64, ok bool)
}

// Bounds is the known extent of the play area.
type Bounds struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Known reports whether the bounds describe a non-empty area.
func (b Bounds) Known() bool {
	return b.MaxX > b.MinX && b.MaxY > b.MinY
}

// BoundsSource is implemented by position sources that also know the arena extent.
type BoundsSource interface {
	Bounds() Bounds
}

// ClampSpeed limits a motor speed to [0, 1].
func ClampSpeed(speed float64) float64 {
	if math.IsNaN(speed) || speed < 0 {
		return 0
	}
	if speed > 1 {
		return 1
	}
	return speed
}

type nopMotors struct{}

func (nopMotors) MoveForward(float64) {}
func (nopMotors) MoveBackward(float64) {}
func (nopMotors) TurnLeft(float64) {}
func (nopMotors) TurnRight(float64) {}
func (nopMotors) Stop() {}

// OrNop returns m, or a motor set that ignores every command when m is nil.
func OrNop(m MotorActuator) MotorActuator {
	if m == nil {
		return nopMotors{}
	}
	return m
}

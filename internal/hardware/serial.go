package hardware

import (
	"fmt"
	"os"
	"sync"
)

// SerialCommand is one motor instruction in the microcontroller's line protocol,
// e.g. "FWD 0.70" or "STP".
type SerialCommand struct {
	Op    string
	Speed float64
}

// Serial opcodes understood by the motor controller firmware.
const (
	OpForward  = "FWD"
	OpBackward = "BCK"
	OpLeft     = "LFT"
	OpRight    = "RGT"
	OpStop     = "STP"
)

// String renders the command as a protocol line without the terminator.
func (c SerialCommand) String() string {
	if c.Op == OpStop {
		return OpStop
	}
	return fmt.Sprintf("%s %.2f", c.Op, c.Speed)
}

// LineWriter accepts encoded protocol lines. A serial port satisfies it.
type LineWriter interface {
	WriteLine(line string) error
}

// CommandRecorder is a MotorActuator decorator that encodes every command in the
// serial protocol, forwards it to an optional LineWriter and keeps the last one.
type CommandRecorder struct {
	mu     sync.Mutex
	next   MotorActuator
	writer LineWriter
	last   SerialCommand
	sent   int
	onErr  func(error)
}

// NewCommandRecorder wraps next (may be nil) and writer (may be nil).
func NewCommandRecorder(next MotorActuator, writer LineWriter, onErr func(error)) *CommandRecorder {
	return &CommandRecorder{next: OrNop(next), writer: writer, onErr: onErr}
}

func (r *CommandRecorder) record(op string, speed float64) {
	cmd := SerialCommand{Op: op, Speed: ClampSpeed(speed)}
	r.mu.Lock()
	r.last = cmd
	r.sent++
	r.mu.Unlock()
	if r.writer == nil {
		return
	}
	if err := r.writer.WriteLine(cmd.String()); err != nil && r.onErr != nil {
		r.onErr(err)
	}
}

func (r *CommandRecorder) MoveForward(speed float64) {
	r.record(OpForward, speed)
	r.next.MoveForward(ClampSpeed(speed))
}

func (r *CommandRecorder) MoveBackward(speed float64) {
	r.record(OpBackward, speed)
	r.next.MoveBackward(ClampSpeed(speed))
}

func (r *CommandRecorder) TurnLeft(speed float64) {
	r.record(OpLeft, speed)
	r.next.TurnLeft(ClampSpeed(speed))
}

func (r *CommandRecorder) TurnRight(speed float64) {
	r.record(OpRight, speed)
	r.next.TurnRight(ClampSpeed(speed))
}

func (r *CommandRecorder) Stop() {
	r.record(OpStop, 0)
	r.next.Stop()
}

// Last returns the most recent command and how many were sent in total.
func (r *CommandRecorder) Last() (SerialCommand, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.sent
}

// DeviceWriter writes protocol lines to a character device or file, such as
// /dev/ttyUSB0 configured by the host for the controller's baud rate.
type DeviceWriter struct {
	mu sync.Mutex
	f  *os.File
}

// OpenDevice opens path for appending.
func OpenDevice(path string) (*DeviceWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open motor device %s: %w", path, err)
	}
	return &DeviceWriter{f: f}, nil
}

// WriteLine writes line followed by a newline.
func (d *DeviceWriter) WriteLine(line string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.f.WriteString(line + "\n")
	return err
}

// Close closes the device.
func (d *DeviceWriter) Close() error {
	return d.f.Close()
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package hmc5983 drives the Honeywell HMC5983/HMC5883L 3-axis magnetometer
// over I2C.
package hmc5983

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// I2C register map for HMC5983/HMC5883L.
const (
	regCRA    = 0x00
	regCRB    = 0x01
	regMODE   = 0x02
	regDATA   = 0x03 // X MSB, X LSB, Z MSB, Z LSB, Y MSB, Y LSB
	regSTATUS = 0x09
	regIDA    = 0x0A
)

// DefaultAddr is the fixed I2C address of the part.
const DefaultAddr = 0x1E

// overflowCount is what the part reports on an axis that saturated.
const overflowCount = -4096

// ErrOverflow is returned by Sense when any axis saturated at the current gain.
var ErrOverflow = errors.New("hmc5983: measurement overflow")

// Typical LSB/Gauss per gain code (datasheet), XY and Z.
var (
	gainXY = [8]int{1370, 1090, 820, 660, 440, 390, 330, 230}
	gainZ  = [8]int{1330, 980, 660, 600, 400, 355, 295, 205}
)

// Opts holds initialization options.
//
// ODRHz: output data rate in Hz (3, 7, 15, 30 or 75; anything else is 15).
// AvgSamples: sample averaging (1, 2, 4, 8).
// GainCode: 0..7 gain selection (CRB); out of range means 1 (±1.3 Ga).
// Mode: "continuous" or "single".
// Addr: I2C address, default 0x1E.
type Opts struct {
	ODRHz      int
	AvgSamples int
	GainCode   int
	Mode       string
	Addr       uint16
}

// Dev is an HMC5983 device. Sense returns X,Y,Z in µT×10.
//
// NOTE: the part outputs data in order X,Z,Y.
type Dev struct {
	dev        i2c.Dev
	lsbPerGaXY int
	lsbPerGaZ  int
}

// New configures the device and returns it.
func New(bus i2c.Bus, opts Opts) (*Dev, error) {
	addr := opts.Addr
	if addr == 0 {
		addr = DefaultAddr
	}
	gc := opts.GainCode
	if gc < 0 || gc > 7 {
		gc = 1
	}

	d := &Dev{
		dev:        i2c.Dev{Addr: addr, Bus: bus},
		lsbPerGaXY: gainXY[gc],
		lsbPerGaZ:  gainZ[gc],
	}

	if err := d.writeReg(regCRA, cra(opts.AvgSamples, opts.ODRHz)); err != nil {
		return nil, fmt.Errorf("hmc5983: write CRA: %w", err)
	}
	if err := d.writeReg(regCRB, byte(gc)<<5); err != nil {
		return nil, fmt.Errorf("hmc5983: write CRB: %w", err)
	}
	mode := byte(0x00)
	if opts.Mode == "single" {
		mode = 0x01
	}
	if err := d.writeReg(regMODE, mode); err != nil {
		return nil, fmt.Errorf("hmc5983: write MODE: %w", err)
	}
	time.Sleep(10 * time.Millisecond)
	return d, nil
}

// cra packs averaging (bits 6..5) and output rate (bits 4..2); bias bits stay
// at normal (00).
func cra(avg, odrHz int) byte {
	var b byte
	switch avg {
	case 8:
		b |= 0b11 << 5
	case 4:
		b |= 0b10 << 5
	case 2:
		b |= 0b01 << 5
	}
	switch odrHz {
	case 75:
		b |= 0b110 << 2
	case 30:
		b |= 0b101 << 2
	case 7:
		b |= 0b011 << 2
	case 3:
		b |= 0b010 << 2
	default: // 15Hz
		b |= 0b100 << 2
	}
	return b
}

// ID returns the three identity bytes, expected 'H','4','3'.
func (d *Dev) ID() (byte, byte, byte, error) {
	buf := make([]byte, 3)
	if err := d.readRegBlock(regIDA, buf); err != nil {
		return 0, 0, 0, err
	}
	return buf[0], buf[1], buf[2], nil
}

// SenseRaw reads raw counts and returns them as X,Y,Z.
func (d *Dev) SenseRaw() (int16, int16, int16, error) {
	data := make([]byte, 6)
	if err := d.readRegBlock(regDATA, data); err != nil {
		return 0, 0, 0, err
	}
	x := int16(data[0])<<8 | int16(data[1])
	z := int16(data[2])<<8 | int16(data[3])
	y := int16(data[4])<<8 | int16(data[5])
	return x, y, z, nil
}

// Sense reads and scales to µT×10 for X,Y,Z.
func (d *Dev) Sense() (int16, int16, int16, error) {
	rx, ry, rz, err := d.SenseRaw()
	if err != nil {
		return 0, 0, 0, err
	}
	if rx == overflowCount || ry == overflowCount || rz == overflowCount {
		return 0, 0, 0, ErrOverflow
	}
	return toMicroTesla10(rx, d.lsbPerGaXY), toMicroTesla10(ry, d.lsbPerGaXY), toMicroTesla10(rz, d.lsbPerGaZ), nil
}

func (d *Dev) writeReg(addr byte, val byte) error {
	return d.dev.Tx([]byte{addr, val}, nil)
}

func (d *Dev) readRegBlock(addr byte, out []byte) error {
	if len(out) == 0 {
		return errors.New("hmc5983: readRegBlock: empty buffer")
	}
	if err := d.dev.Tx([]byte{addr}, out); err != nil {
		return fmt.Errorf("hmc5983: read 0x%02X: %w", addr, err)
	}
	return nil
}

// counts -> Gauss -> µT×10 (1 Ga = 100 µT).
func toMicroTesla10(counts int16, lsbPerGauss int) int16 {
	g := float64(counts) / float64(lsbPerGauss)
	return int16(g * 1000.0)
}

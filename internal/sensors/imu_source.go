// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/compass/internal/config"
	"github.com/relabs-tech/compass/internal/imu"
	"github.com/relabs-tech/compass/internal/sensors/hmc5983"
)

// hardwareSource reads the MPU9250 accelerometer over SPI and the HMC5983
// magnetometer over I2C.
type hardwareSource struct {
	mu  sync.Mutex
	acc *mpu9250.MPU9250
	bus i2c.BusCloser
	mag *hmc5983.Dev
	now func() time.Time
}

// NewHardwareSource initializes both sensors from cfg.
func NewHardwareSource(cfg *config.Config) (Source, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	acc, err := newAccelerometer(cfg)
	if err != nil {
		return nil, err
	}

	bus, err := i2creg.Open(cfg.HMCI2CBus)
	if err != nil {
		return nil, fmt.Errorf("magnetometer: i2c open bus %q: %w", cfg.HMCI2CBus, err)
	}
	mag, err := hmc5983.New(bus, hmc5983.Opts{
		Addr:       cfg.HMCI2CAddr,
		ODRHz:      cfg.HMCODRHz,
		AvgSamples: cfg.HMCAvgSamples,
		GainCode:   cfg.HMCGainCode,
		Mode:       cfg.HMCMode,
	})
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("magnetometer: %w", err)
	}
	if a, b, c, err := mag.ID(); err != nil {
		log.Printf("magnetometer: WARNING: failed to read ID: %v", err)
	} else {
		log.Printf("magnetometer: ID=%q%q%q (addr=0x%X)", a, b, c, cfg.HMCI2CAddr)
	}

	return &hardwareSource{acc: acc, bus: bus, mag: mag, now: time.Now}, nil
}

func newAccelerometer(cfg *config.Config) (*mpu9250.MPU9250, error) {
	cs := gpioreg.ByName(cfg.IMUCSPin)
	if cs == nil {
		return nil, fmt.Errorf("accelerometer: CS pin %q not found", cfg.IMUCSPin)
	}

	tr, err := mpu9250.NewSpiTransport(cfg.IMUSPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("accelerometer: SPI transport (%s): %w", cfg.IMUSPIDevice, err)
	}

	dev, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("accelerometer: device creation: %w", err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("accelerometer: initialization: %w", err)
	}

	if err := dev.SetAccelRange(cfg.IMUAccelRange); err != nil {
		return nil, fmt.Errorf("accelerometer: set accel range: %w", err)
	}
	log.Printf("accelerometer: range set to %d (±%dg)", cfg.IMUAccelRange, []int{2, 4, 8, 16}[cfg.IMUAccelRange])

	// Calibration only touches offsets; a failure still leaves usable readings.
	if err := dev.Calibrate(); err != nil {
		log.Printf("accelerometer: WARNING: calibration failed: %v", err)
	} else {
		log.Println("accelerometer: calibration complete")
	}
	return dev, nil
}

// ReadRaw reads one accelerometer and one magnetometer sample.
func (s *hardwareSource) ReadRaw() (imu.Raw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ax, err := s.acc.GetAccelerationX()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("accel X: %w", err)
	}
	ay, err := s.acc.GetAccelerationY()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("accel Y: %w", err)
	}
	az, err := s.acc.GetAccelerationZ()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("accel Z: %w", err)
	}

	mx, my, mz, err := s.mag.Sense()
	if err != nil {
		return imu.Raw{}, fmt.Errorf("magnetometer: %w", err)
	}

	return imu.Raw{
		Ax: ax,
		Ay: ay,
		Az: az,
		Mx: mx,
		My: my,
		Mz: mz,
	}, nil
}

func (s *hardwareSource) Read(ctx context.Context) ([]imu.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := s.ReadRaw()
	if err != nil {
		return nil, err
	}
	return raw.Samples(s.now()), nil
}

func (s *hardwareSource) Close() error {
	return s.bus.Close()
}

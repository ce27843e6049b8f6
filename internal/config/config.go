// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/relabs-tech/compass/internal/heading"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDGPS      string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string

	// Topics
	TopicHeading string
	TopicSamples string
	TopicGPS     string

	// IMU Hardware (accelerometer)
	IMUSPIDevice string
	IMUCSPin     string
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte

	// HMC5983 magnetometer
	HMCI2CBus     string
	HMCI2CAddr    uint16
	HMCODRHz      int
	HMCAvgSamples int
	HMCGainCode   int
	HMCMode       string

	// GPS
	GPSSerialPort string
	GPSBaudRate   int

	// Timing
	SampleInterval     int // milliseconds
	ConsoleLogInterval int // milliseconds

	// Web Server
	WebServerPort int
	WebStaticDir  string

	// Heading
	HeadingMode        heading.Mode
	HeadingSmoothing   float64 // EMA weight in (0,1]; 1 disables smoothing
	DeclinationDeg     float64 // east positive
	DeclinationFromGPS bool

	// Use the synthetic sensor source instead of hardware
	UseMock bool
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access. Write lock for initialization,
//     read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Defaults returns a configuration usable against a local broker with the
// mock sensor source off.
func Defaults() *Config {
	return &Config{
		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDProducer: "compass-producer",
		MQTTClientIDGPS:      "compass-gps-producer",
		MQTTClientIDConsole:  "compass-console-subscriber",
		MQTTClientIDWeb:      "compass-web-subscriber",

		TopicHeading: "compass/heading",
		TopicSamples: "compass/samples",
		TopicGPS:     "compass/gps",

		IMUSPIDevice: "/dev/spidev0.0",
		IMUCSPin:     "8",

		HMCI2CBus:     "1",
		HMCI2CAddr:    0x1E,
		HMCODRHz:      15,
		HMCAvgSamples: 1,
		HMCGainCode:   1,
		HMCMode:       "continuous",

		GPSSerialPort: "/dev/serial0",
		GPSBaudRate:   9600,

		SampleInterval:     100,
		ConsoleLogInterval: 1000,

		WebServerPort: 8080,
		WebStaticDir:  "web",

		HeadingMode:      heading.ModeTiltCompensated,
		HeadingSmoothing: 1,
	}
}

// Load reads the configuration file and returns a Config struct. Keys not
// present in the file keep their Defaults value.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines from r on top of Defaults. Blank lines and
// lines starting with # are skipped.
func Parse(r io.Reader) (*Config, error) {
	cfg := Defaults()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value

	// Topics
	case "TOPIC_HEADING":
		c.TopicHeading = value
	case "TOPIC_SAMPLES":
		c.TopicSamples = value
	case "TOPIC_GPS":
		c.TopicGPS = value

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)

	// HMC5983
	case "HMC_I2C_BUS":
		c.HMCI2CBus = value
	case "HMC_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid HMC_I2C_ADDR %q: %w", value, err)
		}
		c.HMCI2CAddr = uint16(addr)
	case "HMC_ODR_HZ":
		odr, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid HMC_ODR_HZ %q: %w", value, err)
		}
		c.HMCODRHz = odr
	case "HMC_AVG_SAMPLES":
		avg, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid HMC_AVG_SAMPLES %q: %w", value, err)
		}
		if avg != 1 && avg != 2 && avg != 4 && avg != 8 {
			return fmt.Errorf("HMC_AVG_SAMPLES must be 1, 2, 4 or 8, got %d", avg)
		}
		c.HMCAvgSamples = avg
	case "HMC_GAIN_CODE":
		gain, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid HMC_GAIN_CODE %q: %w", value, err)
		}
		if gain < 0 || gain > 7 {
			return fmt.Errorf("HMC_GAIN_CODE must be 0-7, got %d", gain)
		}
		c.HMCGainCode = gain
	case "HMC_MODE":
		if value != "continuous" && value != "single" {
			return fmt.Errorf("HMC_MODE must be continuous or single, got %q", value)
		}
		c.HMCMode = value

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GPS_BAUD_RATE %q: %w", value, err)
		}
		c.GPSBaudRate = rate

	// Timing
	case "SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.SampleInterval = interval
	case "CONSOLE_LOG_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CONSOLE_LOG_INTERVAL %q: %w", value, err)
		}
		c.ConsoleLogInterval = interval

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port
	case "WEB_STATIC_DIR":
		c.WebStaticDir = value

	// Heading
	case "HEADING_MODE":
		mode, err := heading.ParseMode(value)
		if err != nil {
			return fmt.Errorf("invalid HEADING_MODE: %w", err)
		}
		c.HeadingMode = mode
	case "HEADING_SMOOTHING":
		alpha, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid HEADING_SMOOTHING %q: %w", value, err)
		}
		if alpha <= 0 || alpha > 1 {
			return fmt.Errorf("HEADING_SMOOTHING must be in (0, 1], got %v", alpha)
		}
		c.HeadingSmoothing = alpha
	case "DECLINATION_DEG":
		decl, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid DECLINATION_DEG %q: %w", value, err)
		}
		if decl < -180 || decl > 180 {
			return fmt.Errorf("DECLINATION_DEG must be within ±180, got %v", decl)
		}
		c.DeclinationDeg = decl
	case "DECLINATION_FROM_GPS":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid DECLINATION_FROM_GPS %q: %w", value, err)
		}
		c.DeclinationFromGPS = b

	case "USE_MOCK":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid USE_MOCK %q: %w", value, err)
		}
		c.UseMock = b

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicHeading == "" {
		return fmt.Errorf("TOPIC_HEADING is required")
	}
	if !c.UseMock && c.IMUSPIDevice == "" {
		return fmt.Errorf("IMU_SPI_DEVICE is required unless USE_MOCK=true")
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("SAMPLE_INTERVAL must be positive")
	}
	if c.ConsoleLogInterval <= 0 {
		return fmt.Errorf("CONSOLE_LOG_INTERVAL must be positive")
	}
	return nil
}

// HeadingEstimator returns the estimator described by the heading settings.
func (c *Config) HeadingEstimator() heading.Estimator {
	return heading.Estimator{Mode: c.HeadingMode, DeclinationDeg: c.DeclinationDeg}
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/compass/internal/config"
	"github.com/relabs-tech/compass/internal/gps"
)

// pumpNMEA reads NMEA lines from r and publishes a fix on topic after every
// RMC sentence. It returns when r fails or ctx is done.
func pumpNMEA(ctx context.Context, r io.Reader, pub Publisher, topic string) error {
	reader := bufio.NewReader(r)
	var current gps.Fix

	for ctx.Err() == nil {
		line, err := reader.ReadString('\n')
		if line != "" {
			done, perr := current.Apply(line)
			switch {
			case perr != nil:
				// noisy GPS or partial sentences
			case done:
				if err := publishJSON(pub, topic, current); err != nil {
					log.Printf("GPS %v", err)
				} else {
					log.Printf("published GPS fix: %+v", current)
				}
			}
		}
		if err != nil {
			return fmt.Errorf("GPS read: %w", err)
		}
	}
	return nil
}

// closeOnCancel closes c when ctx is done or when the returned stop func is
// called, whichever comes first. stop waits for the watcher goroutine to exit.
func closeOnCancel(ctx context.Context, c io.Closer) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		if err := c.Close(); err != nil {
			log.Printf("GPS close: %v", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// RunGPSProducer opens the GPS serial port, parses NMEA sentences, and
// publishes combined GPS fixes as JSON to the configured GPS topic.
func RunGPSProducer(ctx context.Context) error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDGPS)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("GPS producer connected to MQTT broker at %s", cfg.MQTTBroker)

	serialOpts := serial.OpenOptions{
		PortName:              cfg.GPSSerialPort,
		BaudRate:              uint(cfg.GPSBaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.GPSSerialPort, err)
	}
	log.Printf("GPS serial port opened on %s at %d baud", serialOpts.PortName, serialOpts.BaudRate)

	// Closing the port unblocks the pending read on shutdown.
	defer closeOnCancel(ctx, port)()

	if err := pumpNMEA(ctx, port, client, cfg.TopicGPS); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

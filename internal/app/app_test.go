// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/compass/internal/gps"
	"github.com/relabs-tech/compass/internal/heading"
	"github.com/relabs-tech/compass/internal/imu"
	"github.com/relabs-tech/compass/internal/orientation"
	"github.com/relabs-tech/compass/internal/sensors"
)

type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Error() error                   { return t.err }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return fakeToken{err: p.err}
}

func (p *fakePublisher) on(topic string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type fakeMessage struct{ payload []byte }

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return "compass/heading" }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

// scriptedSource replays fixed sample batches.
type scriptedSource struct {
	batches [][]imu.Sample
	err     error
}

func (s *scriptedSource) Read(context.Context) ([]imu.Sample, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.batches) == 0 {
		return nil, io.EOF
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}

func (s *scriptedSource) Close() error { return nil }

var t0 = time.Date(2026, 7, 8, 9, 10, 11, 0, time.UTC)

func facing(azimuthDeg float64) []imu.Sample {
	return sensors.SamplesAt(orientation.Angles{Azimuth: orientation.Rad(azimuthDeg)}, t0)
}

func angleDiff(a, b float64) float64 {
	return math.Abs(math.Mod(a-b+540, 360) - 180)
}

func TestProducerStep(t *testing.T) {
	// Field along gravity: rejected against both the old and the new gravity.
	degenerate := []imu.Sample{
		{Kind: imu.KindMagnetic, Vector: orientation.Vec3{Z: -40}, Time: t0},
		{Kind: imu.KindGravity, Vector: orientation.Vec3{Z: 9.81}, Time: t0},
	}
	src := &scriptedSource{batches: [][]imu.Sample{facing(90), degenerate}}
	pub := &fakePublisher{}
	p := &Producer{
		Source:       src,
		Tracker:      sensors.NewTracker(heading.Estimator{}, 1),
		Pub:          pub,
		TopicHeading: "compass/heading",
		TopicSamples: "compass/samples",
	}

	r, ok, err := p.Step(context.Background(), t0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0, angleDiff(270, r.Heading), 1e-6)

	msgs := pub.on("compass/heading")
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].retained)
	var got heading.Reading
	require.NoError(t, json.Unmarshal(msgs[0].payload, &got))
	assert.Equal(t, r, got)
	assert.Len(t, pub.on("compass/samples"), 1)

	// Degenerate pair: nothing new on the heading topic, previous heading kept.
	r2, ok, err := p.Step(context.Background(), t0.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, r, r2)
	assert.Len(t, pub.on("compass/heading"), 1)
	assert.Len(t, pub.on("compass/samples"), 2)
}

func TestProducerStepErrors(t *testing.T) {
	t.Run("read error", func(t *testing.T) {
		p := &Producer{
			Source:  &scriptedSource{err: errors.New("spi timeout")},
			Tracker: sensors.NewTracker(heading.Estimator{}, 1),
			Pub:     &fakePublisher{},
		}
		_, _, err := p.Step(context.Background(), t0)
		assert.ErrorContains(t, err, "spi timeout")
	})

	t.Run("publish error", func(t *testing.T) {
		p := &Producer{
			Source:       &scriptedSource{batches: [][]imu.Sample{facing(0)}},
			Tracker:      sensors.NewTracker(heading.Estimator{}, 1),
			Pub:          &fakePublisher{err: errors.New("broker gone")},
			TopicHeading: "compass/heading",
		}
		_, ok, err := p.Step(context.Background(), t0)
		assert.True(t, ok)
		assert.ErrorContains(t, err, "broker gone")
	})
}

func TestProducerRunStopsOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	p := &Producer{
		Source:       sensors.NewMockSource(orientation.NewMockSource()),
		Tracker:      sensors.NewTracker(heading.Estimator{}, 1),
		Pub:          pub,
		TopicHeading: "compass/heading",
		Interval:     5 * time.Millisecond,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.NotEmpty(t, pub.on("compass/heading"))
}

func TestApplyGPSDeclination(t *testing.T) {
	tr := sensors.NewTracker(heading.Estimator{}, 1)

	payload, err := json.Marshal(gps.Fix{Validity: "A", VariationDeg: -4.2, HaveVariation: true})
	require.NoError(t, err)
	updated, err := applyGPSDeclination(tr, payload)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, -4.2, tr.Declination())

	payload, err = json.Marshal(gps.Fix{Validity: "V", VariationDeg: 10, HaveVariation: true})
	require.NoError(t, err)
	updated, err = applyGPSDeclination(tr, payload)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, -4.2, tr.Declination())

	_, err = applyGPSDeclination(tr, []byte("{"))
	assert.Error(t, err)
}

func TestApplyGPSDeclinationBlankVariation(t *testing.T) {
	tr := sensors.NewTracker(heading.Estimator{DeclinationDeg: 7.5}, 1)

	var f gps.Fix
	done, err := f.Apply("$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,,,A*7C")
	require.NoError(t, err)
	require.True(t, done)
	require.True(t, f.Valid())
	assert.False(t, f.HaveVariation)

	payload, err := json.Marshal(f)
	require.NoError(t, err)
	updated, err := applyGPSDeclination(tr, payload)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, 7.5, tr.Declination())
}

func TestWebLatest(t *testing.T) {
	hub := newHeadingHub()
	srv := httptest.NewServer(hub.routes(""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/heading")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	want := heading.NewReading(270, orientation.Angles{Azimuth: orientation.Rad(90)}, t0)
	payload, err := json.Marshal(want)
	require.NoError(t, err)
	headingHandler(hub)(nil, fakeMessage{payload: payload})

	resp, err = http.Get(srv.URL + "/api/heading")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got heading.Reading
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, want, got)
}

func TestWebIgnoresBadPayload(t *testing.T) {
	hub := newHeadingHub()
	headingHandler(hub)(nil, fakeMessage{payload: []byte("not json")})
	_, ok := hub.Latest()
	assert.False(t, ok)
}

func TestWebStream(t *testing.T) {
	hub := newHeadingHub()
	first := heading.NewReading(10, orientation.Angles{}, t0)
	hub.Set(first)

	srv := httptest.NewServer(hub.routes(""))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/heading"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var got heading.Reading
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, first, got)

	second := heading.NewReading(20, orientation.Angles{}, t0.Add(time.Second))
	hub.Set(second)
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, second, got)
}

func TestPumpNMEA(t *testing.T) {
	input := strings.Join([]string{
		"$GPHDT,274.07,T*03",
		"garbage",
		"$GPHDT,274.07,T*00",
		"$GPRMC,220516,A,5133.82,N,00042.24,W,173.8,231.8,130694,004.2,W*70",
	}, "\r\n") + "\r\n"

	pub := &fakePublisher{}
	err := pumpNMEA(context.Background(), strings.NewReader(input), pub, "compass/gps")
	assert.ErrorIs(t, err, io.EOF)

	msgs := pub.on("compass/gps")
	require.Len(t, msgs, 1)
	var f gps.Fix
	require.NoError(t, json.Unmarshal(msgs[0].payload, &f))
	assert.True(t, f.Valid())
	assert.InDelta(t, -4.2, f.VariationDeg, 1e-9)
	assert.True(t, f.HaveVariation)
	assert.True(t, f.HaveTrueHeading)
}

type countingCloser struct{ closed atomic.Int32 }

func (c *countingCloser) Close() error {
	c.closed.Add(1)
	return nil
}

func TestCloseOnCancel(t *testing.T) {
	t.Run("stop before cancel", func(t *testing.T) {
		var c countingCloser
		stop := closeOnCancel(context.Background(), &c)
		stop() // returns only once the watcher has exited
		assert.EqualValues(t, 1, c.closed.Load())
	})

	t.Run("parent cancelled", func(t *testing.T) {
		var c countingCloser
		ctx, cancel := context.WithCancel(context.Background())
		stop := closeOnCancel(ctx, &c)
		cancel()
		assert.Eventually(t, func() bool { return c.closed.Load() == 1 }, time.Second, 5*time.Millisecond)
		stop()
		assert.EqualValues(t, 1, c.closed.Load())
	})
}

func TestFormat(t *testing.T) {
	r := heading.NewReading(270, orientation.Angles{Azimuth: orientation.Rad(90)}, t0)
	assert.Equal(t, "[HDG ]  HEADING=270.00  AZIMUTH= 90.00 E    PITCH=  0.00  ROLL=  0.00", formatReading(r))

	s := formatFix(gps.Fix{Validity: "A", HaveTrueHeading: true, TrueHeadingDeg: 12.5})
	assert.Contains(t, s, "validity=A")
	assert.Contains(t, s, "hdt=12.5°")
}

func TestRunMockConsole(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 350*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, RunMockConsole(ctx, &out))
	assert.Contains(t, out.String(), "[HDG ]")
}

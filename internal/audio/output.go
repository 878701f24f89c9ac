// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"audioviz/internal/log"

	"github.com/gordonklaus/portaudio"
)

// Driver pulls quanta from a Source on its own schedule.
type Driver interface {
	Start() error
	Stop() error
}

// StreamConfig holds the device parameters shared by Output and Capture.
type StreamConfig struct {
	DeviceID        int
	FramesPerBuffer int
	LowLatency      bool
}

// Output plays a Source through a PortAudio output stream. The stream
// callback is the audio thread that drives Source.Process.
type Output struct {
	config  StreamConfig
	source  *Source
	device  *portaudio.DeviceInfo
	latency time.Duration
	stream  *portaudio.Stream
}

// NewOutput resolves the output device for cfg. The stream is opened on Start
// with the sample rate and channel count of the source's bound resource.
func NewOutput(src *Source, cfg StreamConfig) (*Output, error) {
	device, err := OutputDevice(cfg.DeviceID)
	if err != nil {
		return nil, err
	}

	o := &Output{config: cfg, source: src, device: device}
	if cfg.LowLatency {
		o.latency = device.DefaultLowOutputLatency
	} else {
		o.latency = device.DefaultHighOutputLatency
	}
	return o, nil
}

func (o *Output) Start() error {
	if o.stream != nil {
		return errors.New("output stream already started")
	}
	rate, channels := o.source.Format()
	if rate == 0 {
		return errors.New("output stream requires a loaded source")
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 0, // No input device
			Device:   nil,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: channels,
			Device:   o.device,
			Latency:  o.latency,
		},
		FramesPerBuffer: o.config.FramesPerBuffer,
		SampleRate:      float64(rate),
	}

	stream, err := portaudio.OpenStream(params, o.processOutputStream)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	o.stream = stream

	log.Infof("Output stream started on %s (%d Hz, %d ch, %v latency)", o.device.Name, rate, channels, o.latency)
	return nil
}

func (o *Output) Stop() error {
	if o.stream == nil {
		return nil
	}
	if err := o.stream.Stop(); err != nil {
		return err
	}
	if err := o.stream.Close(); err != nil {
		return err
	}
	o.stream = nil
	return nil
}

// processOutputStream is the playback callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Source.Process reuses pre-allocated buffers
func (o *Output) processOutputStream(out []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	o.source.Process(out)
}

// Capture feeds a live Source from a PortAudio input stream.
type Capture struct {
	config     StreamConfig
	source     *Source
	device     *portaudio.DeviceInfo
	latency    time.Duration
	sampleRate float64
	channels   int
	stream     *portaudio.Stream
}

// NewCapture resolves the input device for cfg. src should be loaded with a
// Live resource matching sampleRate and channels.
func NewCapture(src *Source, cfg StreamConfig, sampleRate float64, channels int) (*Capture, error) {
	device, err := InputDevice(cfg.DeviceID)
	if err != nil {
		return nil, err
	}
	if channels > device.MaxInputChannels {
		return nil, fmt.Errorf("device %s supports %d input channels, %d requested",
			device.Name, device.MaxInputChannels, channels)
	}

	c := &Capture{config: cfg, source: src, device: device, sampleRate: sampleRate, channels: channels}
	if cfg.LowLatency {
		c.latency = device.DefaultLowInputLatency
	} else {
		c.latency = device.DefaultHighInputLatency
	}
	return c, nil
}

func (c *Capture) Start() error {
	if c.stream != nil {
		return errors.New("input stream already started")
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: c.channels,
			Device:   c.device,
			Latency:  c.latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: c.config.FramesPerBuffer,
		SampleRate:      c.sampleRate,
	}

	stream, err := portaudio.OpenStream(params, c.processInputStream)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	c.stream = stream

	log.Infof("Input stream started on %s (%.0f Hz, %d ch, %v latency)", c.device.Name, c.sampleRate, c.channels, c.latency)
	return nil
}

func (c *Capture) Stop() error {
	if c.stream == nil {
		return nil
	}
	if err := c.stream.Stop(); err != nil {
		return err
	}
	if err := c.stream.Close(); err != nil {
		return err
	}
	c.stream = nil
	return nil
}

func (c *Capture) processInputStream(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c.source.Feed(in)
}

// Clock drives a Source without an audio device, pulling one quantum per
// period of real time and discarding the rendered samples. It stands in for
// the output stream in headless runs and tests.
type Clock struct {
	source *Source
	frames int

	mu       sync.Mutex
	buf      []float32
	ticker   *time.Ticker
	doneChan chan struct{}
	wg       sync.WaitGroup
}

// NewClock returns a clock pulling framesPerBuffer frames per quantum.
func NewClock(src *Source, framesPerBuffer int) *Clock {
	return &Clock{source: src, frames: framesPerBuffer}
}

func (c *Clock) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ticker != nil {
		return errors.New("clock already started")
	}
	rate, channels := c.source.Format()
	if rate == 0 || c.frames <= 0 {
		return errors.New("clock requires a loaded source and a positive quantum size")
	}

	c.buf = make([]float32, c.frames*channels)
	period := time.Duration(c.frames) * time.Second / time.Duration(rate)
	c.ticker = time.NewTicker(period)
	c.doneChan = make(chan struct{})

	c.wg.Add(1)
	go c.run(c.ticker, c.doneChan, c.buf)

	log.Debugf("Clock started: %d frames every %v", c.frames, period)
	return nil
}

func (c *Clock) run(ticker *time.Ticker, done <-chan struct{}, buf []float32) {
	defer c.wg.Done()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.source.Process(buf)
		}
	}
}

func (c *Clock) Stop() error {
	c.mu.Lock()
	if c.ticker == nil {
		c.mu.Unlock()
		return nil
	}
	c.ticker.Stop()
	close(c.doneChan)
	c.ticker = nil
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

// Step processes one quantum synchronously on the calling goroutine. It
// must not be used while the clock is running.
func (c *Clock) Step() {
	rate, channels := c.source.Format()
	if rate == 0 {
		return
	}
	if len(c.buf) != c.frames*channels {
		c.buf = make([]float32, c.frames*channels)
	}
	c.source.Process(c.buf)
}

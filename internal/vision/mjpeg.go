// Package vision turns camera frames into a steering hint. Each frame is cut
// into three vertical zones, every zone is classified independently and the
// best zone wins if it is confident enough.
package vision

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/HansolSon1113/MakerProject/internal/latest"
	"github.com/HansolSon1113/MakerProject/internal/monitoring"
)

// ErrNoFrame is returned before the first frame has been decoded.
var ErrNoFrame = errors.New("vision: no frame yet")

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// maxFrameSize bounds a single JPEG in the stream.
const maxFrameSize = 8 << 20

// SplitJPEG is a bufio.SplitFunc yielding one complete JPEG (SOI through EOI)
// per token. Bytes outside a SOI/EOI pair are discarded.
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		if len(data) <= 1 {
			return 0, nil, nil
		}
		// Keep a trailing 0xFF, it may be the first half of a SOI.
		return len(data) - 1, nil, nil
	}
	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}

// FrameSource is anything the scorer can pull the latest frame from.
type FrameSource interface {
	Latest() (image.Image, error)
}

// Camera runs an MJPEG-producing process (rpicam-vid) and keeps the most
// recent decoded frame.
type Camera struct {
	argv         []string
	restartDelay time.Duration

	// first is the process launched by Start, consumed by Run.
	first *capture

	frames    latest.Cell[image.Image]
	decoded   atomic.Uint64
	undecoded atomic.Uint64
}

type capture struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

// NewCamera returns a camera for argv, whose stdout must be an MJPEG stream.
func NewCamera(argv []string, restartDelay time.Duration) *Camera {
	if restartDelay <= 0 {
		restartDelay = 2 * time.Second
	}
	return &Camera{argv: argv, restartDelay: restartDelay}
}

// Start launches the capture process and reports a launch failure. Later
// crashes are handled by Run, which must be called afterwards.
func (c *Camera) Start(ctx context.Context) error {
	if len(c.argv) == 0 {
		return errors.New("vision: empty camera command")
	}
	p, err := c.launch(ctx)
	if err != nil {
		return err
	}
	c.first = p
	return nil
}

// Run supervises the capture process until ctx is done, restarting it after
// it exits.
func (c *Camera) Run(ctx context.Context) error {
	if len(c.argv) == 0 {
		return errors.New("vision: empty camera command")
	}
	for {
		var err error
		if p := c.first; p != nil {
			c.first = nil
			err = c.drain(p)
		} else {
			err = c.runOnce(ctx)
		}
		if ctx.Err() != nil {
			return nil
		}
		monitoring.Logf("camera: %s exited (%v), restarting in %s", c.argv[0], err, c.restartDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.restartDelay):
		}
	}
}

func (c *Camera) launch(ctx context.Context) (*capture, error) {
	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.argv[0], err)
	}
	monitoring.Logf("camera: started %s (pid %d)", c.argv[0], cmd.Process.Pid)
	return &capture{cmd: cmd, stdout: stdout}, nil
}

func (c *Camera) runOnce(ctx context.Context) error {
	p, err := c.launch(ctx)
	if err != nil {
		return err
	}
	return c.drain(p)
}

func (c *Camera) drain(p *capture) error {
	consumeErr := c.Consume(p.stdout)
	waitErr := p.cmd.Wait()
	if consumeErr != nil {
		return consumeErr
	}
	return waitErr
}

// Consume decodes every JPEG in r into the latest-frame cell until r ends.
// Undecodable frames are counted and skipped.
func (c *Camera) Consume(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 256<<10), maxFrameSize)
	sc.Split(SplitJPEG)
	for sc.Scan() {
		img, err := jpeg.Decode(bytes.NewReader(sc.Bytes()))
		if err != nil {
			c.undecoded.Add(1)
			monitoring.Debugf("camera: skipping undecodable frame: %v", err)
			continue
		}
		c.decoded.Add(1)
		c.frames.Store(img)
	}
	return sc.Err()
}

// Latest returns the most recent frame or ErrNoFrame.
func (c *Camera) Latest() (image.Image, error) {
	img, ok := c.frames.Load()
	if !ok {
		return nil, ErrNoFrame
	}
	return img, nil
}

// Stats returns decoded and skipped frame counts.
func (c *Camera) Stats() (decoded, skipped uint64) {
	return c.decoded.Load(), c.undecoded.Load()
}

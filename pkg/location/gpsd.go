package location

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"sync"
	"syscall"
	"time"

	"odysseywalk/pkg/model"
)

const gpsdWatchCommand = `?WATCH={"enable":true,"json":true}` + "\n"

// GPSDSensor reads TPV reports from a gpsd daemon over TCP.
type GPSDSensor struct {
	Addr        string
	DialTimeout time.Duration
}

// NewGPSDSensor creates a sensor for addr (host:port, default localhost:2947).
func NewGPSDSensor(addr string) *GPSDSensor {
	if addr == "" {
		addr = "localhost:2947"
	}
	return &GPSDSensor{Addr: addr, DialTimeout: 5 * time.Second}
}

// tpvReport is the subset of the gpsd TPV object we consume.
type tpvReport struct {
	Class string    `json:"class"`
	Mode  int       `json:"mode"`
	Time  time.Time `json:"time"`
	Lat   float64   `json:"lat"`
	Lon   float64   `json:"lon"`
	Eph   float64   `json:"eph"`
	Epx   float64   `json:"epx"`
	Epy   float64   `json:"epy"`
	Speed float64   `json:"speed"`
}

// Watch dials gpsd and streams fixes until cancel is called.
func (s *GPSDSensor) Watch(opts WatchOptions, onFix func(model.LocationUpdate), onErr func(error)) (func(), error) {
	ctx, cancelDial := context.WithTimeout(context.Background(), s.DialTimeout)
	defer cancelDial()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.Addr)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w: gpsd not running at %s", ErrPositionUnavailable, s.Addr)
		}
		return nil, fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
	}
	if _, err := conn.Write([]byte(gpsdWatchCommand)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: failed to enable watch: %v", ErrPositionUnavailable, err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.readLoop(conn, opts, done, onFix, onErr)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			conn.Close()
			wg.Wait()
		})
	}, nil
}

func (s *GPSDSensor) readLoop(conn net.Conn, opts WatchOptions, done <-chan struct{}, onFix func(model.LocationUpdate), onErr func(error)) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		if opts.Timeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(opts.Timeout))
		}
		if !scanner.Scan() {
			select {
			case <-done:
				return
			default:
			}
			err := scanner.Err()
			var ne net.Error
			switch {
			case errors.As(err, &ne) && ne.Timeout():
				onErr(ErrTimeout)
				// Keep waiting; gpsd may regain a fix.
				scanner = bufio.NewScanner(conn)
				continue
			case err == nil:
				onErr(fmt.Errorf("%w: %w: gpsd closed the connection", ErrWatchEnded, ErrPositionUnavailable))
			default:
				onErr(fmt.Errorf("%w: %w: %v", ErrWatchEnded, ErrPositionUnavailable, err))
			}
			return
		}

		u, ok := parseTPV(scanner.Bytes(), opts)
		if !ok {
			continue
		}
		onFix(u)
	}
}

// parseTPV decodes one gpsd JSON line; non-TPV and no-fix reports are skipped.
func parseTPV(line []byte, opts WatchOptions) (model.LocationUpdate, bool) {
	var r tpvReport
	if err := json.Unmarshal(line, &r); err != nil {
		slog.Debug("gpsd: skipping malformed line", "error", err)
		return model.LocationUpdate{}, false
	}
	if r.Class != "TPV" || r.Mode < 2 {
		return model.LocationUpdate{}, false
	}
	if opts.MaximumAge > 0 && !r.Time.IsZero() && time.Since(r.Time) > opts.MaximumAge {
		return model.LocationUpdate{}, false
	}

	acc := r.Eph
	if acc == 0 {
		acc = math.Max(r.Epx, r.Epy)
	}
	u := model.LocationUpdate{
		Lat:      r.Lat,
		Lng:      r.Lon,
		Accuracy: acc,
		Speed:    r.Speed,
	}
	if !r.Time.IsZero() {
		u.Timestamp = r.Time.UnixMilli()
	}
	return u, true
}

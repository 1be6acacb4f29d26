package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

type State string

const (
	StateUntested State = "untested"
	StateOK       State = "ok"
	StateTimeout  State = "timeout"
	StateFailure  State = "failure"
)

// Result is the outcome of one connectivity probe cycle. Each cycle
// overwrites the last; only the most recent value is retained.
type Result struct {
	State     State
	LatencyMS float64 // round-trip in milliseconds, set only when State is ok
	CheckedAt time.Time
}

// Untested is the value reported before the first cycle completes.
func Untested() Result { return Result{State: StateUntested} }

func (r Result) String() string {
	if r.State == StateOK {
		return fmt.Sprintf("%.2f ms", r.LatencyMS)
	}
	return string(r.State)
}

// Prober measures reachability of the exchange API host with one timed TCP
// connect to the HTTPS port. A full request is not needed to observe the RTT
// the attempts will see.
type Prober struct {
	host    string
	timeout time.Duration
	log     logrus.FieldLogger

	resolve func(ctx context.Context, host string) ([]string, error)
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)
}

// New builds a Prober for the host of apiURL. An unparseable URL is a
// configuration fault and is returned as an error rather than folded into a
// probe result.
func New(apiURL string, timeout time.Duration, log logrus.FieldLogger) (*Prober, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("parse exchange API URL: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("exchange API URL %q has no hostname", apiURL)
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := &net.Dialer{}
	return &Prober{
		host:    u.Hostname(),
		timeout: timeout,
		log:     log,
		resolve: net.DefaultResolver.LookupHost,
		dial:    d.DialContext,
	}, nil
}

func (p *Prober) Host() string { return p.host }

// Measure runs one probe cycle. It never returns an error: resolution
// failures and unreachable hosts map to failure, an unanswered connect within
// the bound maps to timeout, everything else to the measured RTT rounded to
// two decimal places.
func (p *Prober) Measure(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	addrs, err := p.resolve(ctx, p.host)
	if err != nil || len(addrs) == 0 {
		p.log.WithField("host", p.host).Warn("probe: hostname resolution failed")
		return Result{State: StateFailure, CheckedAt: time.Now()}
	}

	start := time.Now()
	conn, err := p.dial(ctx, "tcp", net.JoinHostPort(addrs[0], "443"))
	if err != nil {
		if isTimeout(err) {
			return Result{State: StateTimeout, CheckedAt: time.Now()}
		}
		return Result{State: StateFailure, CheckedAt: time.Now()}
	}
	rtt := time.Since(start)
	_ = conn.Close()

	ms := math.Round(float64(rtt.Nanoseconds())/1e6*100) / 100
	return Result{State: StateOK, LatencyMS: ms, CheckedAt: time.Now()}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

package logger

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/gaborage/go-ignition/apperrors"
)

const defaultLogglyEndpoint = "https://logs-01.loggly.com"

// logglySink posts each record to the Loggly bulk-free inputs endpoint.
type logglySink struct {
	client  *http.Client
	url     string
	limiter *rate.Limiter
}

func buildLoggly(c *core) error {
	o := c.opts.Loggly
	if o.Token == "" {
		return apperrors.New(apperrors.IncorrectUsageError,
			apperrors.WithMessage("The loggly transport requires a customer token."),
			apperrors.WithHelp("Set logging.loggly.token."),
		)
	}
	match, err := compileMatch(TransportLoggly, o.Match)
	if err != nil {
		return err
	}

	c.addStream(&Stream{
		Name:  TransportLoggly,
		Kind:  KindRemote,
		Level: c.level,
		match: match,
		w:     newLogglySink(o, c.opts.Env),
	})
	return nil
}

func newLogglySink(o LogglyOptions, env string) *logglySink {
	tags := o.Tags
	if len(tags) == 0 {
		if o.Subdomain != "" {
			tags = []string{o.Subdomain}
		} else {
			tags = []string{env}
		}
	}
	endpoint := o.Endpoint
	if endpoint == "" {
		endpoint = defaultLogglyEndpoint
	}

	s := &logglySink{
		client: &http.Client{Timeout: o.Timeout},
		url:    strings.TrimSuffix(endpoint, "/") + "/inputs/" + o.Token + "/tag/" + strings.Join(tags, ",") + "/",
	}
	if o.RateLimit > 0 {
		burst := o.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(o.RateLimit), burst)
	}
	return s
}

// Write drops the record when the rate limit is exceeded.
func (s *logglySink) Write(p []byte) (int, error) {
	if s.limiter != nil && !s.limiter.Allow() {
		return len(p), nil
	}
	resp, err := s.client.Post(s.url, "application/json", bytes.NewReader(p)) //#nosec G107 -- endpoint comes from configuration
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return 0, fmt.Errorf("loggly responded with status %d", resp.StatusCode)
	}
	return len(p), nil
}

func (s *logglySink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-ignition/apperrors"
)

// logglyCollector is a fake Loggly inputs endpoint.
type logglyCollector struct {
	mu      sync.Mutex
	paths   []string
	records []map[string]any
	server  *httptest.Server
}

func newLogglyCollector(t *testing.T) *logglyCollector {
	t.Helper()
	c := &logglyCollector{}
	c.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var rec map[string]any
		_ = json.Unmarshal(body, &rec)

		c.mu.Lock()
		c.paths = append(c.paths, r.URL.Path)
		c.records = append(c.records, rec)
		c.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(c.server.Close)
	return c
}

func (c *logglyCollector) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.records))
	for _, r := range c.records {
		msg, _ := r[KeyMessage].(string)
		out = append(out, msg)
	}
	return out
}

func newLogglyLogger(t *testing.T, c *logglyCollector, o LogglyOptions) *ZeroLogger {
	t.Helper()
	if o.Token == "" {
		o.Token = "token"
	}
	o.Endpoint = c.server.URL
	return newTestLogger(t, Options{Transports: []string{TransportLoggly}, Loggly: o})
}

func TestNormalizeTransports(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{in: nil, want: []string{}},
		{in: []string{"file"}, want: []string{"file"}},
		{in: []string{"file", "stdout", "loggly"}, want: []string{"stdout", "file", "loggly"}},
		{in: []string{"stderr"}, want: []string{"stdout", "stderr"}},
		{in: []string{"stderr", "stderr", "stdout"}, want: []string{"stdout", "stderr"}},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.in, ","), func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeTransports(tt.in))
		})
	}
}

func TestRemoteMatchFiltering(t *testing.T) {
	critical := func() error { return apperrors.New(apperrors.InternalServerError, apperrors.WithMessage("critical")) }
	notFound := func() error { return apperrors.New(apperrors.NotFoundError, apperrors.WithMessage("not found")) }
	invalid := func() error { return apperrors.New(apperrors.ValidationError, apperrors.WithMessage("invalid")) }

	tests := []struct {
		name  string
		match string
		want  []string
	}{
		{name: "no_match_emits_all", match: "", want: []string{"critical", "not found", "invalid", "plain", "info"}},
		{name: "critical_only", match: "level:critical", want: []string{"critical", "info"}},
		{name: "lookahead_suppresses_4xx", match: `^(?!.*statusCode:4\d\d)`, want: []string{"critical", "plain", "info"}},
		{name: "alternation", match: "level:critical|statusCode:404", want: []string{"critical", "not found", "info"}},
		{name: "nothing_matches", match: "statusCode:999", want: []string{"info"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newLogglyCollector(t)
			l := newLogglyLogger(t, c, LogglyOptions{Match: tt.match})

			l.Error(critical())
			l.Error(notFound())
			l.Error(invalid())
			l.Error("plain")
			l.Info("info")

			assert.Equal(t, tt.want, c.messages())
		})
	}
}

func TestRemoteMatchAppliesToStreamInfo(t *testing.T) {
	c := newLogglyCollector(t)
	l := newLogglyLogger(t, c, LogglyOptions{Match: "level:critical"})

	streams := l.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, StreamInfo{Name: TransportLoggly, Kind: KindRemote, Level: LevelInfo, Match: "level:critical"}, streams[0])
}

func TestLogglyEndpointTags(t *testing.T) {
	tests := []struct {
		name string
		opts LogglyOptions
		want string
	}{
		{name: "env_default", opts: LogglyOptions{}, want: "/inputs/token/tag/test/"},
		{name: "subdomain", opts: LogglyOptions{Subdomain: "acme"}, want: "/inputs/token/tag/acme/"},
		{name: "explicit", opts: LogglyOptions{Subdomain: "acme", Tags: []string{"a", "b"}}, want: "/inputs/token/tag/a,b/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newLogglyCollector(t)
			l := newLogglyLogger(t, c, tt.opts)

			l.Info("hello")

			c.mu.Lock()
			defer c.mu.Unlock()
			require.Len(t, c.paths, 1)
			assert.Equal(t, tt.want, c.paths[0])
			assert.Equal(t, "info", c.records[0]["level"])
		})
	}
}

func TestLogglyRateLimit(t *testing.T) {
	c := newLogglyCollector(t)
	l := newLogglyLogger(t, c, LogglyOptions{RateLimit: 0.001, Burst: 1})

	l.Info("first")
	l.Info("second")

	assert.Equal(t, []string{"first"}, c.messages())
}

func TestLogglyServerErrorDoesNotAffectOtherStreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	var stdout bytes.Buffer
	l := newTestLogger(t, Options{
		Transports: []string{TransportLoggly, TransportStdout},
		Loggly:     LogglyOptions{Token: "t", Endpoint: srv.URL},
		Stdout:     &stdout,
	})

	assert.NotPanics(t, func() { l.Info("still logged") })
	assert.Contains(t, stdout.String(), "still logged")
}

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "error_object", in: `{"level":"error","err":{"level":"critical","statusCode":500}}`, want: "{level:critical,statusCode:500}"},
		{name: "no_error", in: `{"level":"error","msg":"x"}`, want: ""},
		{name: "malformed", in: `{"err":`, want: ""},
		{name: "string_error", in: `{"err":"quoted \"text\""}`, want: `quoted \text\`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchSubject([]byte(tt.in)))
		})
	}
}

func TestMatchesFailsOpenOnTimeout(t *testing.T) {
	re := regexp2.MustCompile(`^(a+)+$`, regexp2.ECMAScript)
	re.MatchTimeout = time.Millisecond

	assert.True(t, matches(re, strings.Repeat("a", 64)+"!"))

	fast := regexp2.MustCompile(`^b`, regexp2.ECMAScript)
	assert.False(t, matches(fast, "abc"))
}

func TestDispatcherCopiesRecordPerStream(t *testing.T) {
	first := &mutatingWriter{}
	second := &bytes.Buffer{}
	c := &core{level: LevelInfo}
	c.addStream(&Stream{Name: "a", Kind: KindFile, Level: LevelInfo, w: first})
	c.addStream(&Stream{Name: "b", Kind: KindFile, Level: LevelInfo, w: second})

	n, err := dispatcher{c: c}.Write([]byte(`{"msg":"x"}`))

	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, `{"msg":"x"}`, second.String())
}

// mutatingWriter scribbles over the buffer it is handed.
type mutatingWriter struct{}

func (*mutatingWriter) Write(p []byte) (int, error) {
	for i := range p {
		p[i] = '#'
	}
	return len(p), errors.New("ignored")
}

func TestDispatcherRecoversFromPanickingSink(t *testing.T) {
	var buf bytes.Buffer
	c := &core{level: LevelInfo}
	c.addStream(&Stream{Name: "bad", Kind: KindFile, Level: LevelInfo, w: panickingWriter{}})
	c.addStream(&Stream{Name: "good", Kind: KindFile, Level: LevelInfo, w: &buf})

	assert.NotPanics(t, func() {
		_, _ = dispatcher{c: c}.Write([]byte(`{}`))
	})
	assert.Equal(t, `{}`, buf.String())
}

type panickingWriter struct{}

func (panickingWriter) Write([]byte) (int, error) { panic("sink exploded") }

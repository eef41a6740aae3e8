// Package dataservice executes GraphQL and REST data-service invocations
// with per-config retry, timeout, and auth. The client treats parameters
// as an opaque key-value dictionary; it knows nothing about rules or
// field semantics.
package dataservice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/ankitjan/rules-engine/internal/eventbus"
	"github.com/ankitjan/rules-engine/internal/events"
	"github.com/ankitjan/rules-engine/internal/field"
)

// Client executes data-service invocations. Safe for concurrent use.
type Client struct {
	opts *Options
	log  *logrus.Entry
}

// New creates a Client.
func New(opts ...Option) *Client {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	return &Client{opts: o, log: logrus.WithField("component", "dataservice")}
}

type fieldKey struct{}

// WithFieldName annotates ctx with the field a fetch serves. The name is
// used only for published events; request construction ignores it.
func WithFieldName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, fieldKey{}, name)
}

func fieldName(ctx context.Context) string {
	name, _ := ctx.Value(fieldKey{}).(string)
	return name
}

type attemptResult struct {
	value  any
	status int
}

// Execute performs one data-service invocation, retrying transport errors
// and 5xx responses with exponential backoff up to the config's maxRetries
// additional attempts. 4xx responses are permanent; 401/403 surface as
// AuthError.
func (c *Client) Execute(ctx context.Context, cfg *field.ServiceConfig, params map[string]any) (any, error) {
	attempts := 0
	start := time.Now()
	eventbus.Publish(ctx, events.FetchStart{
		Field:       fieldName(ctx),
		Endpoint:    cfg.Endpoint,
		ServiceType: string(cfg.Type),
	})

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.opts.InitialBackoff
	exp.MaxInterval = c.opts.MaxBackoff

	res, err := backoff.Retry(ctx, func() (attemptResult, error) {
		attempts++
		return c.attempt(ctx, cfg, params)
	}, backoff.WithBackOff(exp), backoff.WithMaxTries(uint(cfg.MaxRetries)+1))

	finish := events.FetchFinish{
		Field:       fieldName(ctx),
		Endpoint:    cfg.Endpoint,
		ServiceType: string(cfg.Type),
		Status:      res.status,
		Attempts:    attempts,
		Err:         err,
		Duration:    time.Since(start),
	}
	eventbus.Publish(ctx, finish)

	if err != nil {
		c.log.WithField("endpoint", cfg.Endpoint).WithError(err).Debug("data service invocation failed")
		var pe *backoff.PermanentError
		if errors.As(err, &pe) {
			err = pe.Unwrap()
		}
		var ae *AuthError
		if errors.As(err, &ae) {
			return nil, ae
		}
		var se *ServiceError
		if errors.As(err, &se) {
			se.Attempts = attempts
			return nil, se
		}
		return nil, &ServiceError{Endpoint: cfg.Endpoint, Status: res.status, Attempts: attempts, Err: err}
	}
	return res.value, nil
}

// attempt performs a single request/response cycle under the config's
// per-attempt timeout.
func (c *Client) attempt(ctx context.Context, cfg *field.ServiceConfig, params map[string]any) (attemptResult, error) {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(field.DefaultTimeoutMs) * time.Millisecond
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		req *http.Request
		err error
	)
	switch cfg.Type {
	case field.ServiceGraphQL:
		req, err = c.graphqlRequest(attemptCtx, cfg, params)
	case field.ServiceREST:
		req, err = c.restRequest(attemptCtx, cfg, params)
	default:
		err = fmt.Errorf("unknown serviceType %q", cfg.Type)
	}
	if err != nil {
		return attemptResult{}, backoff.Permanent(&ServiceError{Endpoint: cfg.Endpoint, Err: err})
	}
	applyAuth(req, cfg.Auth)

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		// Transport failure: retryable unless the caller's context is done.
		if ctx.Err() != nil {
			return attemptResult{}, backoff.Permanent(err)
		}
		return attemptResult{}, &ServiceError{Endpoint: cfg.Endpoint, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return attemptResult{status: resp.StatusCode}, &ServiceError{Endpoint: cfg.Endpoint, Status: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return attemptResult{status: resp.StatusCode}, backoff.Permanent(&AuthError{Endpoint: cfg.Endpoint, Status: resp.StatusCode})
	case resp.StatusCode >= 500:
		return attemptResult{status: resp.StatusCode}, &ServiceError{
			Endpoint: cfg.Endpoint, Status: resp.StatusCode,
			Err: fmt.Errorf("server error: %s", strings.TrimSpace(string(body))),
		}
	case resp.StatusCode >= 400:
		return attemptResult{status: resp.StatusCode}, backoff.Permanent(&ServiceError{
			Endpoint: cfg.Endpoint, Status: resp.StatusCode,
			Err: fmt.Errorf("client error: %s", strings.TrimSpace(string(body))),
		})
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return attemptResult{status: resp.StatusCode}, nil
	}
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return attemptResult{status: resp.StatusCode}, backoff.Permanent(&ServiceError{
			Endpoint: cfg.Endpoint, Status: resp.StatusCode,
			Err: fmt.Errorf("response is not valid JSON: %w", err),
		})
	}
	return attemptResult{value: parsed, status: resp.StatusCode}, nil
}

// graphqlRequest POSTs {query, operationName, variables}. Variables are
// the parameters filtered to the declared variable names of the query; if
// the query does not parse, the full parameter map is sent.
func (c *Client) graphqlRequest(ctx context.Context, cfg *field.ServiceConfig, params map[string]any) (*http.Request, error) {
	variables := params
	if declared, ok := declaredVariables(cfg.Query, cfg.OperationName); ok {
		variables = make(map[string]any, len(declared))
		for _, name := range declared {
			if v, present := params[name]; present {
				variables[name] = v
			}
		}
	}
	payload := map[string]any{"query": cfg.Query}
	if cfg.OperationName != "" {
		payload["operationName"] = cfg.OperationName
	}
	if len(variables) > 0 {
		payload["variables"] = variables
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, substitute(v, params, false))
	}
	return req, nil
}

// declaredVariables parses the query and returns the variable names of the
// selected operation.
func declaredVariables(query, operationName string) ([]string, bool) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "dataservice", Input: query})
	if err != nil {
		return nil, false
	}
	for _, op := range doc.Operations {
		if operationName != "" && op.Name != operationName {
			continue
		}
		names := make([]string, 0, len(op.VariableDefinitions))
		for _, vd := range op.VariableDefinitions {
			names = append(names, vd.Variable)
		}
		return names, true
	}
	return nil, false
}

// restRequest builds the method/URL/headers/body from the config with
// {name} placeholders substituted from the parameters.
func (c *Client) restRequest(ctx context.Context, cfg *field.ServiceConfig, params map[string]any) (*http.Request, error) {
	endpoint := substitute(cfg.Endpoint, params, true)
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("endpoint: %w", err)
	}
	if len(cfg.QueryParams) > 0 {
		q := u.Query()
		for k, v := range cfg.QueryParams {
			q.Set(k, substitute(v, params, false))
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if cfg.RequestBody != "" {
		body = strings.NewReader(substitute(cfg.RequestBody, params, false))
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(cfg.Method), u.String(), body)
	if err != nil {
		return nil, err
	}
	if cfg.RequestBody != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, substitute(v, params, false))
	}
	return req, nil
}

// substitute replaces {name} placeholders with the canonical string form
// of the named parameter. Unknown placeholders are left intact so the
// failure is visible server-side rather than silently blanked.
func substitute(s string, params map[string]any, escapePath bool) string {
	if !strings.Contains(s, "{") {
		return s
	}
	var b strings.Builder
	for {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			b.WriteString(s)
			break
		}
		closing := strings.IndexByte(s[open:], '}')
		if closing < 0 {
			b.WriteString(s)
			break
		}
		closing += open
		name := s[open+1 : closing]
		b.WriteString(s[:open])
		if v, ok := params[name]; ok {
			val := cast.ToString(v)
			if escapePath {
				val = url.PathEscape(val)
			}
			b.WriteString(val)
		} else {
			b.WriteString(s[open : closing+1])
		}
		s = s[closing+1:]
	}
	return b.String()
}

func applyAuth(req *http.Request, auth *field.AuthConfig) {
	if auth == nil {
		return
	}
	switch auth.Type {
	case field.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case field.AuthOAuth:
		tokenType := auth.TokenType
		if tokenType == "" {
			tokenType = "Bearer"
		}
		req.Header.Set("Authorization", tokenType+" "+auth.Token)
	case field.AuthBasic:
		cred := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
		req.Header.Set("Authorization", "Basic "+cred)
	case field.AuthAPIKey:
		req.Header.Set(auth.Header, auth.Value)
	}
}

// ValidateConnection issues a lightweight HEAD (falling back to GET) and
// succeeds on any 2xx response.
func (c *Client) ValidateConnection(ctx context.Context, endpoint string, auth *field.AuthConfig) error {
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
		if err != nil {
			return &ServiceError{Endpoint: endpoint, Err: err}
		}
		applyAuth(req, auth)
		resp, err := c.opts.HTTPClient.Do(req)
		if err != nil {
			return &ServiceError{Endpoint: endpoint, Err: err}
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &AuthError{Endpoint: endpoint, Status: resp.StatusCode}
		}
		if method == http.MethodGet {
			return &ServiceError{Endpoint: endpoint, Status: resp.StatusCode,
				Err: fmt.Errorf("connection check failed")}
		}
	}
	return nil
}

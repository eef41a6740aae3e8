package field

import (
	"encoding/json"
	"fmt"
)

// ServiceType discriminates data-service configurations on the wire
// ("serviceType" key).
type ServiceType string

const (
	ServiceGraphQL ServiceType = "GRAPHQL"
	ServiceREST    ServiceType = "REST"
)

const (
	// DefaultTimeoutMs applies when a config omits timeoutMs.
	DefaultTimeoutMs = 30_000
	// DefaultMaxRetries applies when a config omits maxRetries.
	DefaultMaxRetries = 3
)

// ServiceConfig describes how to invoke an external data service. The two
// variants share endpoint, timeout, retry, and auth settings; GRAPHQL adds
// query/operationName, REST adds method/headers/queryParams/requestBody.
type ServiceConfig struct {
	Type       ServiceType
	Endpoint   string
	TimeoutMs  int
	MaxRetries int
	Auth       *AuthConfig
	DependsOn  []string

	// GRAPHQL
	Query         string
	OperationName string

	// REST
	Method      string
	Headers     map[string]string
	QueryParams map[string]string
	RequestBody string
}

type serviceConfigWire struct {
	ServiceType   ServiceType       `json:"serviceType"`
	Endpoint      string            `json:"endpoint"`
	TimeoutMs     *int              `json:"timeoutMs,omitempty"`
	MaxRetries    *int              `json:"maxRetries,omitempty"`
	Auth          *AuthConfig       `json:"auth,omitempty"`
	DependsOn     []string          `json:"dependsOn,omitempty"`
	Query         string            `json:"query,omitempty"`
	OperationName string            `json:"operationName,omitempty"`
	Method        string            `json:"method,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	QueryParams   map[string]string `json:"queryParams,omitempty"`
	RequestBody   string            `json:"requestBody,omitempty"`
}

func (c *ServiceConfig) UnmarshalJSON(data []byte) error {
	var w serviceConfigWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.Type = w.ServiceType
	c.Endpoint = w.Endpoint
	c.TimeoutMs = DefaultTimeoutMs
	if w.TimeoutMs != nil {
		c.TimeoutMs = *w.TimeoutMs
	}
	c.MaxRetries = DefaultMaxRetries
	if w.MaxRetries != nil {
		c.MaxRetries = *w.MaxRetries
	}
	c.Auth = w.Auth
	c.DependsOn = w.DependsOn
	c.Query = w.Query
	c.OperationName = w.OperationName
	c.Method = w.Method
	c.Headers = w.Headers
	c.QueryParams = w.QueryParams
	c.RequestBody = w.RequestBody
	return nil
}

func (c ServiceConfig) MarshalJSON() ([]byte, error) {
	w := serviceConfigWire{
		ServiceType:   c.Type,
		Endpoint:      c.Endpoint,
		Auth:          c.Auth,
		DependsOn:     c.DependsOn,
		Query:         c.Query,
		OperationName: c.OperationName,
		Method:        c.Method,
		Headers:       c.Headers,
		QueryParams:   c.QueryParams,
		RequestBody:   c.RequestBody,
	}
	if c.TimeoutMs != 0 {
		t := c.TimeoutMs
		w.TimeoutMs = &t
	}
	if c.MaxRetries != 0 {
		r := c.MaxRetries
		w.MaxRetries = &r
	}
	return json.Marshal(w)
}

// Validate checks the variant-specific required settings.
func (c *ServiceConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("data service config requires endpoint")
	}
	switch c.Type {
	case ServiceGraphQL:
		if c.Query == "" {
			return fmt.Errorf("GRAPHQL data service requires query")
		}
	case ServiceREST:
		if c.Method == "" {
			return fmt.Errorf("REST data service requires method")
		}
	default:
		return fmt.Errorf("unknown serviceType %q", c.Type)
	}
	if c.Auth != nil {
		return c.Auth.Validate()
	}
	return nil
}

// AuthType discriminates auth configurations on the wire ("type" key).
type AuthType string

const (
	AuthNone   AuthType = "NONE"
	AuthAPIKey AuthType = "API_KEY"
	AuthBearer AuthType = "BEARER"
	AuthBasic  AuthType = "BASIC"
	AuthOAuth  AuthType = "OAUTH"
)

// AuthConfig describes how requests to a data service authenticate.
type AuthConfig struct {
	Type      AuthType `json:"type"`
	Header    string   `json:"header,omitempty"`
	Value     string   `json:"value,omitempty"`
	Token     string   `json:"token,omitempty"`
	TokenType string   `json:"tokenType,omitempty"`
	Username  string   `json:"username,omitempty"`
	Password  string   `json:"password,omitempty"`
}

// Validate checks the variant-specific required settings.
func (a *AuthConfig) Validate() error {
	switch a.Type {
	case AuthNone:
		return nil
	case AuthAPIKey:
		if a.Header == "" || a.Value == "" {
			return fmt.Errorf("API_KEY auth requires header and value")
		}
	case AuthBearer, AuthOAuth:
		if a.Token == "" {
			return fmt.Errorf("%s auth requires token", a.Type)
		}
	case AuthBasic:
		if a.Username == "" {
			return fmt.Errorf("BASIC auth requires username")
		}
	default:
		return fmt.Errorf("unknown auth type %q", a.Type)
	}
	return nil
}

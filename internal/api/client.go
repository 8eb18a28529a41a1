package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"feedsync/internal/models"
	"feedsync/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"resty.dev/v3"
)

// CredentialSource supplies the bearer credential at dispatch time.
type CredentialSource interface {
	Credential() (string, error)
}

// Call is one backend request.
type Call struct {
	Entity   EntityKind
	Op       Operation
	ID       string
	ParentID string
	Query    map[string]string
	Body     any
}

// Client talks to the REST backend. It never retries.
type Client struct {
	http  *resty.Client
	creds CredentialSource
}

// NewClient returns a client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, creds CredentialSource) *Client {
	hc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: hc, creds: creds}
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// Request performs call and decodes the canonical entity into out, which may
// be nil when the response carries no body of interest.
func (c *Client) Request(ctx context.Context, call Call, out any) error {
	r, ok := routes[call.Entity][call.Op]
	if !ok {
		return fmt.Errorf("api: no route for %s %s", call.Op, call.Entity)
	}

	req := c.http.R().WithContext(ctx).SetError(&models.ErrorResponse{})
	if !r.public {
		if c.creds == nil {
			return models.NewUnauthorizedError("no credential source")
		}
		token, err := c.creds.Credential()
		if err != nil {
			return err
		}
		req.SetAuthToken(token)
	}
	if call.ID != "" {
		req.SetPathParam("id", call.ID)
	}
	if call.ParentID != "" {
		req.SetPathParam("parent", call.ParentID)
	}
	if len(call.Query) > 0 {
		req.SetQueryParams(call.Query)
	}
	if call.Body != nil {
		req.SetBody(call.Body)
	}
	if out != nil {
		req.SetResult(out)
	}

	span, ctx := observability.NewSpan(ctx, "api."+string(call.Entity)+"."+string(call.Op),
		attribute.String("http.method", r.method),
		attribute.String("http.route", r.path),
	)
	defer span.End()
	req.WithContext(ctx)

	start := time.Now()
	res, err := req.Execute(r.method, r.path)
	if err != nil {
		observability.ObserveAPI(r.method, r.path, "error", time.Since(start))
		appErr := models.NewNetworkError(err)
		span.SetError(appErr)
		return appErr
	}
	observability.ObserveAPI(r.method, r.path, strconv.Itoa(res.StatusCode()), res.Duration())

	if res.IsError() {
		appErr := statusError(call, res)
		span.SetError(appErr)
		return appErr
	}
	return nil
}

func statusError(call Call, res *resty.Response) *models.AppError {
	msg := http.StatusText(res.StatusCode())
	if body, ok := res.Error().(*models.ErrorResponse); ok && body != nil && body.Error != "" {
		msg = body.Error
	}

	switch res.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return models.NewUnauthorizedError(msg)
	case http.StatusNotFound:
		return models.NewNotFoundError(string(call.Entity), call.ID)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return models.NewValidationError(msg)
	default:
		return models.NewNetworkError(fmt.Errorf("%s %s: %d %s", call.Op, call.Entity, res.StatusCode(), msg))
	}
}

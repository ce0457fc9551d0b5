// Package xano is the client for the upstream low-code backend that holds
// every persistent record (appointments, orders, products, users). All
// requests forward the caller's bearer token; nothing is stored locally.
package xano

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	baseURL   string
	http      *http.Client
	endpoints Endpoints
	retryWait time.Duration
	logger    *slog.Logger
}

type Options struct {
	BaseURL   string
	Timeout   time.Duration // per-request client timeout
	RetryWait time.Duration // delay before the single 429 retry
	Endpoints Endpoints
	Logger    *slog.Logger
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 2500 * time.Millisecond
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 1500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.Endpoints.Appointment) == 0 {
		opts.Endpoints = DefaultEndpoints()
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		http:      &http.Client{Timeout: opts.Timeout},
		endpoints: opts.Endpoints,
		retryWait: opts.RetryWait,
		logger:    opts.Logger,
	}
}

// Ready probes the first appointment candidate; used by /readyz.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.endpoints.Appointment[0], nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	return nil
}

// do walks the candidate paths in order. A 404 moves on to the next
// candidate; the first 429 anywhere waits retryWait and retries that same
// candidate once; any 2xx wins and is decoded into out.
func (c *Client) do(ctx context.Context, method string, candidates []string, token string, query url.Values, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	retried429 := false
	var lastErr error

	for _, path := range candidates {
		target := c.baseURL + path
		if len(query) > 0 {
			target += "?" + query.Encode()
		}

	attempt:
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			// Unreachable or timed out: remember and try the next shape.
			lastErr = err
			continue
		}
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			continue
		case resp.StatusCode == http.StatusTooManyRequests:
			if !retried429 {
				retried429 = true
				c.logger.Warn("upstream rate limited, retrying once", "path", path, "wait", c.retryWait)
				select {
				case <-time.After(c.retryWait):
				case <-ctx.Done():
					return ctx.Err()
				}
				goto attempt
			}
			return fmt.Errorf("%w: %s", ErrRateLimited, path)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return ErrUnauthenticated
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(raw, out); err != nil {
				return &UpstreamError{Status: resp.StatusCode, Raw: strings.TrimSpace(string(raw))}
			}
			return nil
		default:
			return &UpstreamError{Status: resp.StatusCode, Raw: strings.TrimSpace(string(raw))}
		}
	}

	if lastErr != nil {
		return fmt.Errorf("upstream unreachable: %w", lastErr)
	}
	return fmt.Errorf("%w (%s, %d candidates)", ErrNoEndpoint, method, len(candidates))
}

// items unwraps list responses, which the upstream returns either as a bare
// array or wrapped in {"items": [...]}.
func items(raw json.RawMessage) ([]json.RawMessage, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Items != nil {
		return wrapped.Items, nil
	}
	return nil, &UpstreamError{Status: http.StatusOK, Raw: strings.TrimSpace(string(raw))}
}

type AppointmentPayload struct {
	Date     time.Time
	Service  string
	Zone     string
	Sessions int
	Status   string
	Comments string
	Name     string
	Email    string
	Phone    string
}

func (p AppointmentPayload) body() map[string]any {
	b := map[string]any{
		"appointment_date": p.Date.UTC().Format(time.RFC3339),
		"service":          p.Service,
		"status":           p.Status,
	}
	if p.Zone != "" {
		b["zone"] = p.Zone
	}
	if p.Sessions > 0 {
		b["sessions"] = p.Sessions
	}
	if p.Comments != "" {
		b["comments"] = p.Comments
	}
	if p.Name != "" {
		b["customer_name"] = p.Name
	}
	if p.Email != "" {
		b["customer_email"] = p.Email
	}
	if p.Phone != "" {
		b["customer_phone"] = p.Phone
	}
	return b
}

func (c *Client) CreateAppointment(ctx context.Context, token string, p AppointmentPayload) (Appointment, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, c.endpoints.Appointment, token, nil, p.body(), &raw); err != nil {
		return Appointment{}, err
	}
	return DecodeAppointment(raw)
}

func (c *Client) GetAppointment(ctx context.Context, token, id string) (Appointment, error) {
	if err := ValidateID(id); err != nil {
		return Appointment{}, err
	}
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, suffixed(c.endpoints.Appointment, "/"+id), token, nil, nil, &raw)
	if errors.Is(err, ErrNoEndpoint) {
		// Collection paths exist but this id does not.
		return Appointment{}, fmt.Errorf("%w: appointment %s", ErrNotFound, id)
	}
	if err != nil {
		return Appointment{}, err
	}
	return DecodeAppointment(raw)
}

func (c *Client) UpdateAppointment(ctx context.Context, token, id string, fields map[string]any) (Appointment, error) {
	if err := ValidateID(id); err != nil {
		return Appointment{}, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPatch, suffixed(c.endpoints.Appointment, "/"+id), token, nil, fields, &raw); err != nil {
		return Appointment{}, err
	}
	return DecodeAppointment(raw)
}

func (c *Client) DeleteAppointment(ctx context.Context, token, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, suffixed(c.endpoints.Appointment, "/"+id), token, nil, nil, nil)
}

func (c *Client) ListUserAppointments(ctx context.Context, token string) ([]Appointment, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.endpoints.UserAppointments, token, nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList(raw, DecodeAppointment)
}

func (c *Client) ListAppointments(ctx context.Context, token, date string) ([]Appointment, error) {
	q := url.Values{}
	if date != "" {
		q.Set("date", date)
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.endpoints.Appointment, token, q, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList(raw, DecodeAppointment)
}

// TakenTimes is the global availability query: every committed time-of-day
// for a date across all users. Gated behind a feature flag at the call site.
func (c *Client) TakenTimes(ctx context.Context, date, tz, serviceID string) ([]string, error) {
	q := url.Values{"date": {date}}
	if tz != "" {
		q.Set("tz", tz)
	}
	if serviceID != "" {
		q.Set("service_id", serviceID)
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.endpoints.Availability, "", q, nil, &raw); err != nil {
		return nil, err
	}
	return decodeTakenTimes(raw)
}

type OrderPayload struct {
	Reference string
	Total     float64
	Deposit   float64
	Status    string
	Lines     []OrderLine
}

type OrderLine struct {
	Treatment string  `json:"treatment"`
	Zone      string  `json:"zone,omitempty"`
	Sessions  int     `json:"sessions,omitempty"`
	Date      string  `json:"date,omitempty"`
	Time      string  `json:"time,omitempty"`
	Price     float64 `json:"price"`
}

func (c *Client) CreateOrder(ctx context.Context, token string, p OrderPayload) (Order, error) {
	body := map[string]any{
		"reference": p.Reference,
		"total":     p.Total,
		"deposit":   p.Deposit,
		"status":    p.Status,
		"lines":     p.Lines,
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, c.endpoints.Order, token, nil, body, &raw); err != nil {
		return Order{}, err
	}
	return DecodeOrder(raw)
}

func (c *Client) ListOrders(ctx context.Context, token string) ([]Order, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.endpoints.Order, token, nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList(raw, DecodeOrder)
}

func (c *Client) UpdateOrderStatus(ctx context.Context, token, id, status string) (Order, error) {
	if err := ValidateID(id); err != nil {
		return Order{}, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPatch, suffixed(c.endpoints.Order, "/"+id), token, nil, map[string]any{"status": status}, &raw); err != nil {
		return Order{}, err
	}
	return DecodeOrder(raw)
}

// FindOrderByReference resolves a checkout external reference back to the
// upstream order; used by the payment webhook.
func (c *Client) FindOrderByReference(ctx context.Context, token, reference string) (Order, error) {
	q := url.Values{"reference": {reference}}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.endpoints.Order, token, q, nil, &raw); err != nil {
		return Order{}, err
	}
	orders, err := decodeList(raw, DecodeOrder)
	if err != nil {
		return Order{}, err
	}
	for _, o := range orders {
		if o.Reference == reference {
			return o, nil
		}
	}
	return Order{}, fmt.Errorf("%w: order reference %s", ErrNotFound, reference)
}

func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.endpoints.Product, "", nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList(raw, DecodeProduct)
}

// AdjustInventory applies a signed stock delta to one product.
func (c *Client) AdjustInventory(ctx context.Context, token, productID string, delta int) (Product, error) {
	if err := ValidateID(productID); err != nil {
		return Product{}, err
	}
	body := map[string]any{"product_id": productID, "delta": delta}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, c.endpoints.Inventory, token, nil, body, &raw); err != nil {
		return Product{}, err
	}
	return DecodeProduct(raw)
}

func (c *Client) ListUsers(ctx context.Context, token, role, q string) ([]User, error) {
	query := url.Values{}
	if role != "" {
		query.Set("role", role)
	}
	if q != "" {
		query.Set("q", q)
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.endpoints.User, token, query, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList(raw, DecodeUser)
}

func (c *Client) ListTreatments(ctx context.Context) ([]Treatment, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.endpoints.Treatment, "", nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList(raw, DecodeTreatment)
}

func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var raw json.RawMessage
	body := map[string]any{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, c.endpoints.Login, "", nil, body, &raw); err != nil {
		return "", err
	}
	return decodeAuthToken(raw)
}

func (c *Client) Signup(ctx context.Context, name, email, password, phone string) (string, error) {
	body := map[string]any{"name": name, "email": email, "password": password}
	if phone != "" {
		body["phone"] = phone
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, c.endpoints.Signup, "", nil, body, &raw); err != nil {
		return "", err
	}
	return decodeAuthToken(raw)
}

func (c *Client) Me(ctx context.Context, token string) (User, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.endpoints.Me, token, nil, nil, &raw); err != nil {
		return User{}, err
	}
	return DecodeUser(raw)
}

func decodeList[T any](raw json.RawMessage, decode func(json.RawMessage) (T, error)) ([]T, error) {
	entries, err := items(raw)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entries))
	for _, entry := range entries {
		v, err := decode(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

package xano

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The upstream workspace is loosely typed: the same entity arrives with
// different field names depending on which table revision served it. Each
// entity gets exactly one decode function that knows the aliases and fails
// loudly on a shape it cannot account for, so the rest of the codebase only
// ever sees the structs below.

type Appointment struct {
	ID        string
	Date      time.Time
	Service   string
	Zone      string
	Sessions  int
	Status    string
	UserID    string
	Comments  string
	CreatedAt time.Time
}

// TimeOfDay renders the slot value ("HH:MM") for the appointment in loc.
func (a Appointment) TimeOfDay(loc *time.Location) string {
	return a.Date.In(loc).Format("15:04")
}

// DateOnly renders the calendar day for the appointment in loc.
func (a Appointment) DateOnly(loc *time.Location) string {
	return a.Date.In(loc).Format("2006-01-02")
}

type Order struct {
	ID        string
	UserID    string
	Reference string
	Status    string
	Total     float64
	Deposit   float64
	CreatedAt time.Time
}

type Product struct {
	ID    string
	Name  string
	Price float64
	Stock int
}

type Treatment struct {
	ID           string
	Name         string
	Price        float64
	RequiresZone bool
}

type User struct {
	ID    string
	Name  string
	Email string
	Phone string
	Role  string
}

// NormalizeStatus folds upstream status spellings (the workspace mixes
// English and Spanish) into the lowercase canonical set. Empty defaults to
// pending; anything unrecognized is an error rather than a silent guess.
func NormalizeStatus(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "pending", "pendiente":
		return "pending", nil
	case "confirmed", "confirmado", "confirmada":
		return "confirmed", nil
	case "cancelled", "canceled", "cancelado", "cancelada":
		return "cancelled", nil
	case "paid", "pagado":
		return "paid", nil
	case "failed", "rechazado":
		return "failed", nil
	default:
		return "", fmt.Errorf("unknown upstream status %q", raw)
	}
}

func DecodeAppointment(raw json.RawMessage) (Appointment, error) {
	m, err := fields(raw)
	if err != nil {
		return Appointment{}, fmt.Errorf("appointment: %w", err)
	}

	id, ok := stringField(m, "id", "appointment_id")
	if !ok {
		return Appointment{}, shapeError("appointment", "id", raw)
	}
	date, ok := timeField(m, "appointment_date", "date", "fecha", "start_time")
	if !ok {
		return Appointment{}, shapeError("appointment", "appointment_date", raw)
	}
	status, _ := stringField(m, "status", "estado")
	normalized, err := NormalizeStatus(status)
	if err != nil {
		return Appointment{}, fmt.Errorf("appointment %s: %w", id, err)
	}

	appt := Appointment{
		ID:     id,
		Date:   date,
		Status: normalized,
	}
	appt.Service, _ = stringField(m, "service", "treatment", "tratamiento")
	appt.Zone, _ = stringField(m, "zone", "zona")
	appt.UserID, _ = stringField(m, "user_id", "users_id", "usuario_id")
	appt.Comments, _ = stringField(m, "comments", "comentarios", "notes")
	appt.Sessions, _ = intField(m, "sessions", "sesiones")
	appt.CreatedAt, _ = timeField(m, "created_at")
	return appt, nil
}

func DecodeOrder(raw json.RawMessage) (Order, error) {
	m, err := fields(raw)
	if err != nil {
		return Order{}, fmt.Errorf("order: %w", err)
	}
	id, ok := stringField(m, "id", "order_id")
	if !ok {
		return Order{}, shapeError("order", "id", raw)
	}
	status, _ := stringField(m, "status", "estado")
	normalized, err := NormalizeStatus(status)
	if err != nil {
		return Order{}, fmt.Errorf("order %s: %w", id, err)
	}

	o := Order{ID: id, Status: normalized}
	o.UserID, _ = stringField(m, "user_id", "users_id")
	o.Reference, _ = stringField(m, "reference", "external_reference", "referencia")
	o.Total, _ = floatField(m, "total", "amount")
	o.Deposit, _ = floatField(m, "deposit", "deposit_amount", "senia")
	o.CreatedAt, _ = timeField(m, "created_at")
	return o, nil
}

func DecodeProduct(raw json.RawMessage) (Product, error) {
	m, err := fields(raw)
	if err != nil {
		return Product{}, fmt.Errorf("product: %w", err)
	}
	id, ok := stringField(m, "id", "product_id")
	if !ok {
		return Product{}, shapeError("product", "id", raw)
	}
	name, ok := stringField(m, "name", "title", "nombre")
	if !ok {
		return Product{}, shapeError("product", "name", raw)
	}
	p := Product{ID: id, Name: name}
	p.Price, _ = floatField(m, "price", "precio")
	p.Stock, _ = intField(m, "stock", "quantity", "cantidad")
	return p, nil
}

func DecodeTreatment(raw json.RawMessage) (Treatment, error) {
	m, err := fields(raw)
	if err != nil {
		return Treatment{}, fmt.Errorf("treatment: %w", err)
	}
	id, ok := stringField(m, "id", "treatment_id")
	if !ok {
		return Treatment{}, shapeError("treatment", "id", raw)
	}
	name, ok := stringField(m, "name", "title", "nombre")
	if !ok {
		return Treatment{}, shapeError("treatment", "name", raw)
	}
	t := Treatment{ID: id, Name: name}
	t.Price, _ = floatField(m, "price", "precio")
	t.RequiresZone, _ = boolField(m, "requires_zone", "zone_required", "requiere_zona")
	return t, nil
}

func DecodeUser(raw json.RawMessage) (User, error) {
	m, err := fields(raw)
	if err != nil {
		return User{}, fmt.Errorf("user: %w", err)
	}
	id, ok := stringField(m, "id", "user_id")
	if !ok {
		return User{}, shapeError("user", "id", raw)
	}
	u := User{ID: id}
	u.Name, _ = stringField(m, "name", "nombre", "full_name")
	u.Email, _ = stringField(m, "email", "correo")
	u.Phone, _ = stringField(m, "phone", "telefono")
	u.Role, _ = stringField(m, "role", "rol")
	if u.Role == "" {
		u.Role = "client"
	}
	return u, nil
}

func decodeAuthToken(raw json.RawMessage) (string, error) {
	m, err := fields(raw)
	if err != nil {
		return "", fmt.Errorf("auth response: %w", err)
	}
	token, ok := stringField(m, "authToken", "auth_token", "token")
	if !ok || token == "" {
		return "", shapeError("auth response", "authToken", raw)
	}
	return token, nil
}

// decodeTakenTimes accepts either a bare list of "HH:MM" strings or a list
// of appointment-shaped objects, which is what older availability endpoints
// return.
func decodeTakenTimes(raw json.RawMessage) ([]string, error) {
	var times []string
	if err := json.Unmarshal(raw, &times); err == nil {
		return times, nil
	}
	var wrapped struct {
		Taken []string `json:"taken"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Taken != nil {
		return wrapped.Taken, nil
	}
	appts, err := decodeList(raw, DecodeAppointment)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(appts))
	for _, a := range appts {
		if a.Status == "cancelled" {
			continue
		}
		out = append(out, a.TimeOfDay(time.UTC))
	}
	return out, nil
}

func fields(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &UpstreamError{Status: 200, Raw: strings.TrimSpace(string(raw))}
	}
	return m, nil
}

func shapeError(entity, field string, raw json.RawMessage) error {
	return fmt.Errorf("%s payload missing %s: %w", entity, field, &UpstreamError{Status: 200, Raw: strings.TrimSpace(string(raw))})
}

func stringField(m map[string]json.RawMessage, keys ...string) (string, bool) {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, true
		}
		// Numeric ids arrive as numbers from some table revisions.
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String(), true
		}
	}
	return "", false
}

func intField(m map[string]json.RawMessage, keys ...string) (int, bool) {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var n int
		if err := json.Unmarshal(raw, &n); err == nil {
			return n, true
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

func floatField(m map[string]json.RawMessage, keys ...string) (float64, bool) {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return f, true
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

func boolField(m map[string]json.RawMessage, keys ...string) (bool, bool) {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return b, true
		}
	}
	return false, false
}

func timeField(m map[string]json.RawMessage, keys ...string) (time.Time, bool) {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
				if t, err := time.Parse(layout, s); err == nil {
					return t, true
				}
			}
			continue
		}
		var n int64
		if err := json.Unmarshal(raw, &n); err == nil && n > 0 {
			// Epoch millis when plausible, else epoch seconds.
			if n > 1e12 {
				return time.UnixMilli(n).UTC(), true
			}
			return time.Unix(n, 0).UTC(), true
		}
	}
	return time.Time{}, false
}

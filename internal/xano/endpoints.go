package xano

// Endpoints lists the upstream path candidates per resource, in priority
// order. The upstream workspace has gone through several renames (English,
// plural, Spanish), so a 404 on one path means "try the next", not "gone".
// Keeping the fallback order here as data keeps it out of the call sites.
type Endpoints struct {
	Appointment      []string
	UserAppointments []string
	Availability     []string
	Order            []string
	Product          []string
	Inventory        []string
	User             []string
	Treatment        []string
	Login            []string
	Signup           []string
	Me               []string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Appointment:      []string{"/appointment", "/appointments", "/cita"},
		UserAppointments: []string{"/appointment/user", "/appointments/me", "/cita/user"},
		Availability:     []string{"/availability", "/appointment/availability", "/disponibilidad"},
		Order:            []string{"/order", "/orders", "/pedido"},
		Product:          []string{"/product", "/products", "/producto"},
		Inventory:        []string{"/inventory", "/stock", "/inventario"},
		User:             []string{"/user", "/users", "/usuario"},
		Treatment:        []string{"/treatment", "/treatments", "/tratamiento"},
		Login:            []string{"/auth/login"},
		Signup:           []string{"/auth/signup"},
		Me:               []string{"/auth/me"},
	}
}

func suffixed(candidates []string, suffix string) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c+suffix)
	}
	return out
}

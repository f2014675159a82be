package protocol

// RouteDict maps route strings to the short codes a server announced in its
// handshake, and back. A nil *RouteDict is valid and knows no routes.
type RouteDict struct {
	codes  map[string]uint16
	routes map[uint16]string
}

// NewRouteDict builds a dictionary from a route → code mapping.
func NewRouteDict(dict map[string]uint16) *RouteDict {
	rd := &RouteDict{
		codes:  make(map[string]uint16, len(dict)),
		routes: make(map[uint16]string, len(dict)),
	}
	for route, code := range dict {
		rd.codes[route] = code
		rd.routes[code] = route
	}
	return rd
}

// Code returns the code for route.
func (rd *RouteDict) Code(route string) (uint16, bool) {
	if rd == nil {
		return 0, false
	}
	code, ok := rd.codes[route]
	return code, ok
}

// Route returns the route for code.
func (rd *RouteDict) Route(code uint16) (string, bool) {
	if rd == nil {
		return "", false
	}
	route, ok := rd.routes[code]
	return route, ok
}

// Len returns the number of routes in the dictionary.
func (rd *RouteDict) Len() int {
	if rd == nil {
		return 0
	}
	return len(rd.codes)
}

package httpapi

// Response is the fully assembled HTTP-facing result of running one
// translated request: a status, an ordered header list and a JSON (or,
// after Accept-driven post-processing, CSV/singular-JSON) body.
type Response struct {
	Status  int
	Headers []Header
	Body    []byte
}

// Header is one {name, value} pair decoded out of a statement's
// response_headers column.
type Header struct {
	Name  string
	Value string
}

package models

// Complexity is the planner's estimate of how hard a request is.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Valid returns true if the complexity is a known value.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex:
		return true
	default:
		return false
	}
}

// Normalize maps unknown or empty values to moderate.
func (c Complexity) Normalize() Complexity {
	if c.Valid() {
		return c
	}
	return ComplexityModerate
}

/*
registry.go - Legal method lookup

PURPOSE:
  Maps the method names used in case configuration, storage and the API to
  the concrete LegalMethod implementations. The set is closed: adding a
  method means adding a type in method.go and a line here.

USAGE:
  method, err := settlement.LookupMethod("precedente_4555")
  if errors.Is(err, settlement.ErrUnknownMethod) {
      // reject the case configuration
  }

SEE ALSO:
  - method.go: Method implementations
  - factory/case.go: Parses method names from case files
*/
package settlement

import (
	"fmt"
	"strings"
)

var methods = map[MethodName]LegalMethod{
	MethodEscolastica:        Escolastica{},
	MethodPrecedente4555:     Precedente4555{},
	MethodUnidadPrestacional: UnidadPrestacional{},
}

// methodOrder is the presentation order for listings.
var methodOrder = []MethodName{
	MethodEscolastica,
	MethodPrecedente4555,
	MethodUnidadPrestacional,
}

// LookupMethod finds a method by name. Names are case-insensitive and
// accept '-' in place of '_'.
func LookupMethod(name string) (LegalMethod, error) {
	key := MethodName(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_"))
	m, ok := methods[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
	}
	return m, nil
}

// MustLookupMethod finds a method or panics.
// Use in tests or with compile-time constant names.
func MustLookupMethod(name MethodName) LegalMethod {
	m, err := LookupMethod(string(name))
	if err != nil {
		panic(err)
	}
	return m
}

// Methods returns all methods in presentation order.
func Methods() []LegalMethod {
	result := make([]LegalMethod, 0, len(methodOrder))
	for _, name := range methodOrder {
		result = append(result, methods[name])
	}
	return result
}

package statutory

import (
	"bytes"
	_ "embed"
	"sync"
)

// ReferenceVersion is the version of the embedded table.
const ReferenceVersion = "co-1999-2015"

//go:embed reference.yaml
var referenceYAML []byte

var (
	referenceOnce  sync.Once
	referenceTable *Table
)

// Reference returns the embedded, legally published table for 1999-2015.
// It panics if the embedded file is invalid, which a test guards against.
func Reference() *Table {
	referenceOnce.Do(func() {
		t, err := LoadYAML(bytes.NewReader(referenceYAML))
		if err != nil {
			panic("statutory: invalid embedded reference table: " + err.Error())
		}
		referenceTable = t
	})
	return referenceTable
}

// DefaultRegistry returns a registry holding only the reference table.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(Reference())
	return r
}

package output

import (
	"context"

	"github.com/crimson-sun/clinote/internal/engine/similarity"
	"github.com/crimson-sun/clinote/internal/model"
)

// Output defines the interface for result record destinations.
type Output interface {
	Write(ctx context.Context, rec model.ResultRecord) error
	Close() error
}

// TableWriter is implemented by outputs that also persist the term-matching
// similarity table.
type TableWriter interface {
	WriteTable(ctx context.Context, table *similarity.Table) error
}

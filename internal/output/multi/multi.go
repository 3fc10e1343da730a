package multi

import (
	"context"
	"errors"

	"github.com/crimson-sun/clinote/internal/engine/similarity"
	"github.com/crimson-sun/clinote/internal/model"
	"github.com/crimson-sun/clinote/internal/output"
)

// Multi fans out records to multiple output.Output implementations.
// If one output fails, the remaining outputs still receive the record.
type Multi struct {
	outputs []output.Output
}

// New creates a Multi that fans out to the given outputs.
func New(outputs ...output.Output) *Multi {
	return &Multi{outputs: outputs}
}

// Write delivers the record to every wrapped output. Errors are collected
// but do not prevent delivery to subsequent outputs.
func (m *Multi) Write(ctx context.Context, rec model.ResultRecord) error {
	var errs []error
	for _, o := range m.outputs {
		if err := o.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteTable forwards the similarity table to every wrapped output that
// implements output.TableWriter.
func (m *Multi) WriteTable(ctx context.Context, table *similarity.Table) error {
	var errs []error
	for _, o := range m.outputs {
		tw, ok := o.(output.TableWriter)
		if !ok {
			continue
		}
		if err := tw.WriteTable(ctx, table); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close calls Close on every wrapped output, collecting errors.
func (m *Multi) Close() error {
	var errs []error
	for _, o := range m.outputs {
		if err := o.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

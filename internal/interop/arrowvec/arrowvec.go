// Package arrowvec moves numeric data between Arrow arrays and host
// containers without copying element buffers.
//
// Views borrow the Arrow buffer: the array must stay retained while the view
// is in use. Exported arrays borrow the container's buffer the same way.
package arrowvec

import (
	"fmt"
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
)

// DataType returns the Arrow type holding T. Complex types have none.
func DataType[T dtype.Scalar]() (arrow.DataType, error) {
	switch dt := dtype.Of[T](); dt {
	case dtype.Int8:
		return arrow.PrimitiveTypes.Int8, nil
	case dtype.Uint8:
		return arrow.PrimitiveTypes.Uint8, nil
	case dtype.Int16:
		return arrow.PrimitiveTypes.Int16, nil
	case dtype.Uint16:
		return arrow.PrimitiveTypes.Uint16, nil
	case dtype.Int32:
		return arrow.PrimitiveTypes.Int32, nil
	case dtype.Uint32:
		return arrow.PrimitiveTypes.Uint32, nil
	case dtype.Int64:
		return arrow.PrimitiveTypes.Int64, nil
	case dtype.Uint64:
		return arrow.PrimitiveTypes.Uint64, nil
	case dtype.Float32:
		return arrow.PrimitiveTypes.Float32, nil
	case dtype.Float64:
		return arrow.PrimitiveTypes.Float64, nil
	default:
		return nil, fmt.Errorf("arrowvec: %w: no arrow type for %s", errdefs.ErrUnsupportedType, dt)
	}
}

func values[T dtype.Scalar](arr arrow.Array) ([]T, error) {
	if n := arr.NullN(); n > 0 {
		return nil, fmt.Errorf("arrowvec: %w: %s array has %d nulls", errdefs.ErrBadOperand, arr.DataType(), n)
	}
	var raw any
	switch a := arr.(type) {
	case *array.Int8:
		raw = a.Int8Values()
	case *array.Uint8:
		raw = a.Uint8Values()
	case *array.Int16:
		raw = a.Int16Values()
	case *array.Uint16:
		raw = a.Uint16Values()
	case *array.Int32:
		raw = a.Int32Values()
	case *array.Uint32:
		raw = a.Uint32Values()
	case *array.Int64:
		raw = a.Int64Values()
	case *array.Uint64:
		raw = a.Uint64Values()
	case *array.Float32:
		raw = a.Float32Values()
	case *array.Float64:
		raw = a.Float64Values()
	}
	vals, ok := raw.([]T)
	if !ok {
		return nil, fmt.Errorf("arrowvec: %w: cannot view %s array as %s", errdefs.ErrUnsupportedType, arr.DataType(), dtype.Of[T]())
	}
	return vals, nil
}

// View returns a non-owning vector over the values of arr. Arrays with nulls
// are rejected.
func View[T dtype.Scalar](arr arrow.Array) (*container.Vector[T], error) {
	vals, err := values[T](arr)
	if err != nil {
		return nil, err
	}
	return container.View(vals, len(vals))
}

// ViewMatrix returns a non-owning column-major matrix over a fixed size list
// array. Each list entry is one column, so the list size is the row count.
func ViewMatrix[T dtype.Scalar](arr *array.FixedSizeList) (*container.Matrix[T], error) {
	if n := arr.NullN(); n > 0 {
		return nil, fmt.Errorf("arrowvec: %w: list array has %d nulls", errdefs.ErrBadOperand, n)
	}
	rows := int(arr.DataType().(*arrow.FixedSizeListType).Len())
	cols := arr.Len()
	vals, err := values[T](arr.ListValues())
	if err != nil {
		return nil, err
	}
	start := arr.Offset() * rows
	if start+rows*cols > len(vals) {
		return nil, fmt.Errorf("arrowvec: %w: %dx%d matrix over %d values", errdefs.ErrDimensionMismatch, rows, cols, len(vals)-start)
	}
	return container.MatrixView(vals[start:], rows, cols)
}

func bytesOf[T dtype.Scalar](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}

func exportData[T dtype.Scalar](data []T) (arrow.ArrayData, error) {
	dt, err := DataType[T]()
	if err != nil {
		return nil, err
	}
	buf := memory.NewBufferBytes(bytesOf(data))
	return array.NewData(dt, len(data), []*memory.Buffer{nil, buf}, nil, 0, 0), nil
}

// Export returns an Arrow array sharing v's buffer. Release the array before
// releasing v.
func Export[T dtype.Scalar](v *container.Vector[T]) (arrow.Array, error) {
	if err := v.Check(); err != nil {
		return nil, fmt.Errorf("arrowvec export: %w", err)
	}
	data, err := exportData(v.Data())
	if err != nil {
		return nil, err
	}
	defer data.Release()
	return array.MakeFromData(data), nil
}

// ExportMatrix returns a fixed size list array sharing m's buffer, one list
// entry per column.
func ExportMatrix[T dtype.Scalar](m *container.Matrix[T]) (*array.FixedSizeList, error) {
	if err := m.Check(); err != nil {
		return nil, fmt.Errorf("arrowvec export: %w", err)
	}
	valuesData, err := exportData(m.Data())
	if err != nil {
		return nil, err
	}
	defer valuesData.Release()

	rows, cols := m.Dims()
	fslType := arrow.FixedSizeListOf(int32(rows), valuesData.DataType())
	fslData := array.NewData(fslType, cols, []*memory.Buffer{nil}, []arrow.ArrayData{valuesData}, 0, 0)
	defer fslData.Release()
	return array.NewFixedSizeListData(fslData), nil
}

// Record wraps m as a single-column record batch named column. The batch
// shares m's buffer.
func Record[T dtype.Scalar](m *container.Matrix[T], column string) (arrow.RecordBatch, error) {
	col, err := ExportMatrix(m)
	if err != nil {
		return nil, err
	}
	defer col.Release()

	schema := arrow.NewSchema([]arrow.Field{{Name: column, Type: col.DataType()}}, nil)
	return array.NewRecordBatch(schema, []arrow.Array{col}, int64(col.Len())), nil
}

// Copy builds an Arrow array owning a copy of v's data, allocated from mem.
func Copy[T dtype.Scalar](mem memory.Allocator, v *container.Vector[T]) (arrow.Array, error) {
	if err := v.Check(); err != nil {
		return nil, fmt.Errorf("arrowvec copy: %w", err)
	}
	dt, err := DataType[T]()
	if err != nil {
		return nil, err
	}
	buf := memory.NewResizableBuffer(mem)
	buf.Resize(len(bytesOf(v.Data())))
	copy(buf.Bytes(), bytesOf(v.Data()))
	defer buf.Release()

	data := array.NewData(dt, v.Len(), []*memory.Buffer{nil, buf}, nil, 0, 0)
	defer data.Release()
	return array.MakeFromData(data), nil
}

// Package parquet stores assembled relations in a zstd-compressed Parquet
// file and reads them back for loading.
package parquet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/paulmach/osm"
)

// TagsToJSON converts OSM tags to a JSON object string
func TagsToJSON(tags osm.Tags) string {
	if len(tags) == 0 {
		return "{}"
	}
	m := make(map[string]string, len(tags))
	for _, tag := range tags {
		m[tag.Key] = tag.Value
	}
	b, _ := json.Marshal(m)
	return string(b)
}

// Record is one assembled relation. Geometry is EWKB and may be nil.
type Record struct {
	ID       int64
	Version  int32
	Kind     string // value of the type tag
	Tags     string // JSON object
	Members  string // JSON array
	Geometry []byte
}

var relationSchema = arrow.NewSchema([]arrow.Field{
	{Name: "relation_id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "version", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
	{Name: "kind", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "tags", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "members", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "geom_wkb", Type: arrow.BinaryTypes.Binary, Nullable: true},
}, nil)

// RelationWriter writes relation records to Parquet in batches
type RelationWriter struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
	total     int64
}

// NewRelationWriter creates a new relation Parquet writer
func NewRelationWriter(path string, batchSize int) (*RelationWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(relationSchema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, err
	}

	if batchSize < 1 {
		batchSize = 1
	}

	return &RelationWriter{
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, relationSchema),
		batchSize: batchSize,
	}, nil
}

// Write appends a record, flushing a row group when the batch is full
func (w *RelationWriter) Write(r Record) error {
	w.builder.Field(0).(*array.Int64Builder).Append(r.ID)
	w.builder.Field(1).(*array.Int32Builder).Append(r.Version)
	w.builder.Field(2).(*array.StringBuilder).Append(r.Kind)
	w.builder.Field(3).(*array.StringBuilder).Append(r.Tags)
	w.builder.Field(4).(*array.StringBuilder).Append(r.Members)
	if r.Geometry == nil {
		w.builder.Field(5).(*array.BinaryBuilder).AppendNull()
	} else {
		w.builder.Field(5).(*array.BinaryBuilder).Append(r.Geometry)
	}

	w.count++
	w.total++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

// Count returns the number of records written so far
func (w *RelationWriter) Count() int64 {
	return w.total
}

func (w *RelationWriter) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.count = 0
	return err
}

// Close flushes pending rows and closes the file
func (w *RelationWriter) Close() error {
	defer w.builder.Release()
	if err := w.flush(); err != nil {
		w.writer.Close()
		return err
	}
	if err := w.writer.Close(); err != nil {
		return err
	}
	// The parquet writer may already have closed the sink.
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// ReadRelations streams every record of a relation Parquet file to fn.
func ReadRelations(ctx context.Context, path string, fn func(Record) error) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	if err != nil {
		return 0, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer pf.Close()

	arrowReader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return 0, fmt.Errorf("failed to create arrow reader: %w", err)
	}

	tbl, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read table: %w", err)
	}
	defer tbl.Release()

	if tbl.NumCols() != int64(len(relationSchema.Fields())) {
		return 0, fmt.Errorf("%s: not a relation file", path)
	}
	for i, f := range relationSchema.Fields() {
		if tbl.Schema().Field(i).Name != f.Name {
			return 0, fmt.Errorf("%s: not a relation file (column %d is %q)", path, i, tbl.Schema().Field(i).Name)
		}
	}

	cols := make([]*arrow.Chunked, tbl.NumCols())
	for i := range cols {
		cols[i] = tbl.Column(i).Data()
	}

	var n int64
	for c := 0; c < len(cols[0].Chunks()); c++ {
		ids := cols[0].Chunk(c).(*array.Int64)
		versions := cols[1].Chunk(c).(*array.Int32)
		kinds := cols[2].Chunk(c).(*array.String)
		tags := cols[3].Chunk(c).(*array.String)
		members := cols[4].Chunk(c).(*array.String)
		geoms := cols[5].Chunk(c).(*array.Binary)

		for i := 0; i < ids.Len(); i++ {
			if err := ctx.Err(); err != nil {
				return n, err
			}
			r := Record{
				ID:      ids.Value(i),
				Version: versions.Value(i),
				Kind:    kinds.Value(i),
				Tags:    tags.Value(i),
				Members: members.Value(i),
			}
			if !geoms.IsNull(i) {
				r.Geometry = append([]byte(nil), geoms.Value(i)...)
			}
			if err := fn(r); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

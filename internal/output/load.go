package output

import (
	"context"

	"github.com/wegman-software/osmrel-go/internal/parquet"
)

// LoadParquet streams every row of a relation Parquet file into w. It does
// not close w.
func LoadParquet(ctx context.Context, path string, w Writer) (int64, error) {
	return parquet.ReadRelations(ctx, path, w.Write)
}

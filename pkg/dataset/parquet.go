package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/gwillem/zarr2lerobot/pkg/features"
)

// imageStruct mirrors the Hugging Face datasets Image feature.
var imageStruct = arrow.StructOf(
	arrow.Field{Name: "bytes", Type: arrow.BinaryTypes.Binary, Nullable: true},
	arrow.Field{Name: "path", Type: arrow.BinaryTypes.String, Nullable: true},
)

// episodeBuffer collects the columns of the episode being recorded.
type episodeBuffer struct {
	index      int
	size       int
	vectors    map[string][]float32
	imagePaths map[string][]string
	timestamps []float32
	frameIndex []int64
	taskIndex  []int64
	tasks      []string // distinct tasks in order of first appearance
}

func newEpisodeBuffer(index int) *episodeBuffer {
	return &episodeBuffer{
		index:      index,
		vectors:    make(map[string][]float32),
		imagePaths: make(map[string][]string),
	}
}

func (b *episodeBuffer) addTask(task string) {
	for _, t := range b.tasks {
		if t == task {
			return
		}
	}
	b.tasks = append(b.tasks, task)
}

// parquetSchema returns the arrow schema of the data files. Video features
// live in mp4 files and are left out.
func parquetSchema(fs features.Features) *arrow.Schema {
	var fields []arrow.Field
	for _, key := range fs.Keys() {
		f, _ := fs.Get(key)
		switch f.DType {
		case features.Float32:
			fields = append(fields, arrow.Field{Name: key, Type: arrow.ListOf(arrow.PrimitiveTypes.Float32)})
		case features.Image:
			fields = append(fields, arrow.Field{Name: key, Type: imageStruct, Nullable: true})
		}
	}
	fields = append(fields,
		arrow.Field{Name: features.KeyTimestamp, Type: arrow.PrimitiveTypes.Float32},
		arrow.Field{Name: features.KeyFrameIndex, Type: arrow.PrimitiveTypes.Int64},
		arrow.Field{Name: features.KeyEpisodeIndex, Type: arrow.PrimitiveTypes.Int64},
		arrow.Field{Name: features.KeyIndex, Type: arrow.PrimitiveTypes.Int64},
		arrow.Field{Name: features.KeyTaskIndex, Type: arrow.PrimitiveTypes.Int64},
	)
	return arrow.NewSchema(fields, nil)
}

// writeParquet writes the buffered episode. startIndex is the global index
// of the episode's first frame.
func writeParquet(path string, fs features.Features, buf *episodeBuffer, startIndex int64) error {
	schema := parquetSchema(fs)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()

	for col, field := range schema.Fields() {
		switch builder := b.Field(col).(type) {
		case *array.ListBuilder:
			f, _ := fs.Get(field.Name)
			width := f.Size()
			values := buf.vectors[field.Name]
			vb := builder.ValueBuilder().(*array.Float32Builder)
			for i := 0; i < buf.size; i++ {
				builder.Append(true)
				vb.AppendValues(values[i*width:(i+1)*width], nil)
			}
		case *array.StructBuilder:
			bytesB := builder.FieldBuilder(0).(*array.BinaryBuilder)
			pathB := builder.FieldBuilder(1).(*array.StringBuilder)
			for _, p := range buf.imagePaths[field.Name] {
				builder.Append(true)
				bytesB.AppendNull()
				pathB.Append(p)
			}
		case *array.Float32Builder:
			builder.AppendValues(buf.timestamps, nil)
		case *array.Int64Builder:
			switch field.Name {
			case features.KeyFrameIndex:
				builder.AppendValues(buf.frameIndex, nil)
			case features.KeyTaskIndex:
				builder.AppendValues(buf.taskIndex, nil)
			case features.KeyEpisodeIndex:
				for i := 0; i < buf.size; i++ {
					builder.Append(int64(buf.index))
				}
			case features.KeyIndex:
				for i := 0; i < buf.size; i++ {
					builder.Append(startIndex + int64(i))
				}
			}
		default:
			return fmt.Errorf("write parquet: unexpected builder %T for %s", builder, field.Name)
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	w, err := pqarrow.NewFileWriter(schema, f, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return fmt.Errorf("open parquet writer: %w", err)
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	return nil
}

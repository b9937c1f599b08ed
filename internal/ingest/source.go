package ingest

import (
	"context"
	"fmt"
	"os"
)

// Source type names accepted by the default loader set.
const (
	SourceText = "text"
	SourceFile = "file"
)

// Source is one unit of input to the pipeline.
type Source struct {
	// Type selects the loader ("text", "file").
	Type string
	// Value is the source payload: literal text for "text", a path for "file".
	Value string
	// Metadata is attached to every chunk produced from this source.
	Metadata map[string]any
}

// LoadedDoc is loader output: the raw content plus the identity used for
// citations.
type LoadedDoc struct {
	Content string
	// SourceID is the url/path recorded as the "url" metadata key.
	SourceID string
	Metadata map[string]any
}

// Loader turns a Source into document content.
type Loader interface {
	Load(ctx context.Context, src Source) (*LoadedDoc, error)
}

// TextLoader treats the source value as literal document text.
type TextLoader struct{}

func (TextLoader) Load(_ context.Context, src Source) (*LoadedDoc, error) {
	if src.Value == "" {
		return nil, fmt.Errorf("empty text source")
	}
	return &LoadedDoc{Content: src.Value, SourceID: "local", Metadata: src.Metadata}, nil
}

// FileLoader reads the source value as a local file path.
type FileLoader struct{}

func (FileLoader) Load(_ context.Context, src Source) (*LoadedDoc, error) {
	data, err := os.ReadFile(src.Value)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", src.Value, err)
	}
	return &LoadedDoc{Content: string(data), SourceID: src.Value, Metadata: src.Metadata}, nil
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, src Source) (*LoadedDoc, error)

func (f LoaderFunc) Load(ctx context.Context, src Source) (*LoadedDoc, error) {
	return f(ctx, src)
}

// DefaultLoader dispatches on Source.Type.
type DefaultLoader struct{}

func (DefaultLoader) Load(ctx context.Context, src Source) (*LoadedDoc, error) {
	switch src.Type {
	case SourceText, "":
		return TextLoader{}.Load(ctx, src)
	case SourceFile:
		return FileLoader{}.Load(ctx, src)
	default:
		return nil, fmt.Errorf("unknown source type %q", src.Type)
	}
}

package blob

import (
	"context"

	"github.com/brightforge/modelengine/internal/document"
)

// DivertDocument walks doc's fields (recursing into nested documents and
// arrays) and routes every binary-side-channel payload through appender,
// whatever its size, replacing the field in place with a BlobRef value
// {blob file name, offset, length} (4.4 step 3). No separate blob ref
// document is written. doc.Binary is cleared once every payload has been
// diverted, since the bytes now live in the blob file rather than the
// document itself.
func DivertDocument(ctx context.Context, doc *document.Document, appender *Appender) error {
	for i := range doc.Fields {
		if err := divertField(ctx, &doc.Fields[i], doc, appender); err != nil {
			return err
		}
	}
	doc.Binary = nil
	return nil
}

func divertField(ctx context.Context, f *document.Field, owner *document.Document, appender *Appender) error {
	switch f.Kind {
	case document.KindBinaryName:
		payload, ok := owner.Binary[f.Label]
		if !ok {
			return nil
		}
		ref, err := appender.Append(ctx, payload.Bytes)
		if err != nil {
			return err
		}
		f.Kind = document.KindBlobRef
		f.Value = document.BlobRef{FileName: ref.FileName, Offset: ref.Offset, Length: ref.Length}
	case document.KindDocument:
		nested, ok := f.Value.(*document.Document)
		if !ok || nested == nil {
			return nil
		}
		if err := DivertDocument(ctx, nested, appender); err != nil {
			return err
		}
	case document.KindArray:
		arr, ok := f.Value.([]document.Field)
		if !ok {
			return nil
		}
		for i := range arr {
			if err := divertField(ctx, &arr[i], owner, appender); err != nil {
				return err
			}
		}
		f.Value = arr
	}
	return nil
}

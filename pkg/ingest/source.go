package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/exploopio/lakesync/pkg/compress"
	"github.com/exploopio/lakesync/pkg/errors"
)

// SourceOptions configures how exports are opened.
type SourceOptions struct {
	// CredentialsFile is a service-account key for gs:// sources. Empty
	// uses application default credentials.
	CredentialsFile string

	// ClientOptions are passed to the storage client as is.
	ClientOptions []option.ClientOption
}

// Open opens an export by URI: a local path or gs://bucket/object. The
// stream is decompressed according to the object name, or sniffed when
// the name has no known extension.
func Open(ctx context.Context, uri string, opts *SourceOptions) (io.ReadCloser, error) {
	const op = "ingest.Open"

	if opts == nil {
		opts = &SourceOptions{}
	}

	var raw io.ReadCloser
	if bucket, object, ok := parseGCS(uri); ok {
		rc, err := openGCS(ctx, bucket, object, opts)
		if err != nil {
			return nil, errors.E(errors.KindNetwork, op, uri, err)
		}
		raw = rc
	} else {
		f, err := os.Open(uri)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.E(errors.KindNotFound, op, uri, err)
			}
			return nil, errors.E(errors.KindInvalidInput, op, uri, err)
		}
		raw = f
	}

	dec, err := compress.NewReader(raw, compress.DetectFromName(uri))
	if err != nil {
		raw.Close()
		return nil, errors.E(errors.KindParse, op, uri, err)
	}
	return &stackedCloser{Reader: dec, closers: []io.Closer{dec, raw}}, nil
}

// Stream decodes the export at uri record by record and calls fn for each.
// The export is a JSON array of objects, or one object per line. Stream
// stops at the first error returned by fn or when ctx is cancelled.
func Stream(ctx context.Context, uri string, opts *SourceOptions, fn func(Record) error) error {
	const op = "ingest.Stream"

	rc, err := Open(ctx, uri, opts)
	if err != nil {
		return err
	}
	defer rc.Close()

	br := bufio.NewReader(rc)
	array, err := startsWithArray(br)
	if err != nil {
		return errors.E(errors.KindParse, op, uri, err)
	}

	dec := json.NewDecoder(br)
	if array {
		if _, err := dec.Token(); err != nil {
			return errors.E(errors.KindParse, op, uri, err)
		}
	}

	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if array && !dec.More() {
			break
		}

		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF && !array {
				break
			}
			return errors.E(errors.KindParse, op, fmt.Sprintf("%s: record %d", uri, n), err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// ReadExport reads every record of the export at uri into memory.
func ReadExport(ctx context.Context, uri string, opts *SourceOptions) ([]Record, error) {
	var out []Record
	err := Stream(ctx, uri, opts, func(r Record) error {
		out = append(out, r)
		return nil
	})
	return out, err
}

// parseGCS splits gs://bucket/object.
func parseGCS(uri string) (bucket, object string, ok bool) {
	rest, found := strings.CutPrefix(uri, "gs://")
	if !found {
		return "", "", false
	}
	bucket, object, found = strings.Cut(rest, "/")
	if !found || bucket == "" || object == "" {
		return "", "", false
	}
	return bucket, object, true
}

func openGCS(ctx context.Context, bucket, object string, opts *SourceOptions) (io.ReadCloser, error) {
	clientOpts := append([]option.ClientOption(nil), opts.ClientOptions...)
	if opts.CredentialsFile != "" {
		if _, err := os.Stat(opts.CredentialsFile); err != nil {
			return nil, fmt.Errorf("service account key not found at path: %s: %w", opts.CredentialsFile, err)
		}
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, object, err)
	}
	return &stackedCloser{Reader: r, closers: []io.Closer{r, client}}, nil
}

// startsWithArray reports whether the first non-space byte is '['.
func startsWithArray(br *bufio.Reader) (bool, error) {
	for {
		b, err := br.Peek(1)
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n', 0xEF, 0xBB, 0xBF:
			_, _ = br.ReadByte()
		default:
			return b[0] == '[', nil
		}
	}
}

// stackedCloser closes every layer of a reader stack, innermost last.
type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

// DefaultPartSize is the part size used when UploaderOptions.PartSize is zero.
const DefaultPartSize = 8 << 20

// UploaderOptions configures an Uploader.
type UploaderOptions struct {
	// PartSize is the number of bytes buffered before a part is uploaded.
	PartSize int

	// Metadata is stored with the final object.
	Metadata map[string]string
}

// Uploader streams an object of unknown length into a Store.
//
// Bytes are buffered until PartSize is reached, then sent as multipart
// parts. If the object never outgrows one part, or the store cannot do
// multipart uploads, Close writes it with a single Put.
//
// An Uploader is not safe for concurrent use.
type Uploader struct {
	ctx         context.Context
	store       Store
	key         string
	contentType string
	opts        PutOptions
	partSize    int

	buf     bytes.Buffer
	upload  MultipartUpload
	etags   []string
	single  bool
	written int64
	err     error
	closed  bool
}

// NewUploader creates an Uploader for key.
func NewUploader(ctx context.Context, store Store, key, contentType string, opts UploaderOptions) *Uploader {
	partSize := opts.PartSize
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	return &Uploader{
		ctx:         ctx,
		store:       store,
		key:         key,
		contentType: contentType,
		opts:        PutOptions{Metadata: opts.Metadata},
		partSize:    partSize,
	}
}

// Key returns the destination key.
func (u *Uploader) Key() string { return u.key }

// Written returns the number of bytes accepted so far.
func (u *Uploader) Written() int64 { return u.written }

// Write buffers p and uploads full parts.
func (u *Uploader) Write(p []byte) (int, error) {
	if u.err != nil {
		return 0, u.err
	}
	if u.closed {
		return 0, &ObjectError{Op: "Write", Key: u.key, Err: errors.New("uploader closed")}
	}
	n, _ := u.buf.Write(p)
	u.written += int64(n)

	for !u.single && u.buf.Len() >= u.partSize {
		if err := u.flushPart(u.partSize); err != nil {
			u.err = err
			return n, err
		}
	}
	return n, nil
}

func (u *Uploader) flushPart(size int) error {
	if u.upload == nil {
		mp, ok := u.store.(MultipartStore)
		if !ok {
			u.single = true
			return nil
		}
		upload, err := mp.CreateMultipartUploadWithOptions(u.ctx, u.key, u.contentType, u.opts)
		if errors.Is(err, ErrMultipartUnsupported) {
			u.single = true
			return nil
		}
		if err != nil {
			return err
		}
		u.upload = upload
	}

	part := u.buf.Next(size)
	partNum := len(u.etags) + 1
	etag, err := u.upload.UploadPart(u.ctx, partNum, bytes.NewReader(part), int64(len(part)))
	if err != nil {
		return fmt.Errorf("upload part %d: %w", partNum, err)
	}
	u.etags = append(u.etags, etag)
	return nil
}

// Close uploads what remains and finalizes the object. After a failed
// Write, Close aborts and returns that error.
func (u *Uploader) Close() error {
	if u.closed {
		return u.err
	}
	u.closed = true
	if u.err != nil {
		_ = u.abort()
		return u.err
	}

	if u.upload == nil {
		data := u.buf.Bytes()
		u.err = u.store.PutWithOptions(u.ctx, u.key, bytes.NewReader(data), int64(len(data)), u.contentType, u.opts)
		return u.err
	}

	if u.buf.Len() > 0 {
		if err := u.flushPart(u.buf.Len()); err != nil {
			u.err = err
			_ = u.abort()
			return err
		}
	}
	if err := u.upload.Complete(u.ctx, u.etags); err != nil {
		u.err = err
		_ = u.abort()
		return err
	}
	return nil
}

// Abort discards the upload. Parts already sent are released; nothing is
// written for a single-Put upload.
func (u *Uploader) Abort() error {
	if u.closed && u.err == nil {
		return nil
	}
	u.closed = true
	if u.err == nil {
		u.err = &ObjectError{Op: "Write", Key: u.key, Err: errors.New("upload aborted")}
	}
	return u.abort()
}

func (u *Uploader) abort() error {
	if u.upload == nil {
		return nil
	}
	upload := u.upload
	u.upload = nil
	return upload.Abort(context.WithoutCancel(u.ctx))
}

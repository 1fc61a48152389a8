package storage

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/pwd-registry/support-desk/internal/domain"
	apperrors "github.com/pwd-registry/support-desk/pkg/util/errorutil"
)

const (
	// DefaultMaxAttachmentBytes is the largest accepted upload (10 MiB).
	DefaultMaxAttachmentBytes int64 = 10 << 20

	attachmentField  = "attachment"
	attachmentPrefix = "attachments"
)

// DefaultAllowedExtensions is the accepted upload whitelist.
var DefaultAllowedExtensions = []string{"pdf", "doc", "docx", "txt", "jpg", "jpeg", "png", "gif"}

// Upload is a file offered for attachment. Size is the size the client declared; the store
// still enforces the limit on the bytes actually read.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// AttachmentOptions configures the attachment store.
type AttachmentOptions struct {
	MaxBytes          int64
	AllowedExtensions []string
	Now               func() time.Time
}

// AttachmentStore validates uploads and binds them to blobs.
type AttachmentStore struct {
	blobs      BlobStore
	maxBytes   int64
	extensions []string
	now        func() time.Time
}

// NewAttachmentStore builds an attachment store over blobs.
func NewAttachmentStore(blobs BlobStore, opts AttachmentOptions) *AttachmentStore {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxAttachmentBytes
	}
	if len(opts.AllowedExtensions) == 0 {
		opts.AllowedExtensions = DefaultAllowedExtensions
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	extensions := make([]string, 0, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		extensions = append(extensions, strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), ".")))
	}
	return &AttachmentStore{blobs: blobs, maxBytes: opts.MaxBytes, extensions: extensions, now: opts.Now}
}

// Validate checks the declared metadata of an upload without reading it.
func (s *AttachmentStore) Validate(upload Upload) error {
	name := baseName(upload.FileName)
	if name == "" {
		return apperrors.NewFieldValidation(attachmentField, "The attachment must have a file name.")
	}
	if !contains(s.extensions, extensionOf(name)) {
		return apperrors.NewFieldValidation(attachmentField,
			fmt.Sprintf("The attachment must be a file of type: %s.", strings.Join(s.extensions, ", ")))
	}
	if upload.Size > s.maxBytes {
		return s.tooLarge()
	}
	return nil
}

// Store validates the upload and persists its bytes. Nothing is persisted when validation
// fails, including when the stream turns out larger than declared.
func (s *AttachmentStore) Store(ctx context.Context, upload Upload) (*domain.Attachment, error) {
	if err := s.Validate(upload); err != nil {
		return nil, err
	}
	if upload.Reader == nil {
		return nil, apperrors.NewFieldValidation(attachmentField, "The attachment is empty.")
	}

	// Read one byte past the limit so oversize streams are detectable before anything is written.
	data, err := io.ReadAll(io.LimitReader(upload.Reader, s.maxBytes+1))
	if err != nil {
		return nil, apperrors.NewStorageFailure(fmt.Errorf("read upload: %w", err))
	}
	if int64(len(data)) > s.maxBytes {
		return nil, s.tooLarge()
	}

	name := baseName(upload.FileName)
	key := s.keyFor(name, "")
	written, err := s.blobs.Put(ctx, key, bytes.NewReader(data))
	if errors.Is(err, ErrBlobExists) {
		key = s.keyFor(name, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
		written, err = s.blobs.Put(ctx, key, bytes.NewReader(data))
	}
	if err != nil {
		return nil, apperrors.NewStorageFailure(err)
	}

	return &domain.Attachment{
		Path:         key,
		OriginalName: name,
		MimeType:     detectMimeType(upload.ContentType, name),
		SizeBytes:    written,
		Checksum:     Checksum(data),
		CreatedAt:    s.now(),
	}, nil
}

// Open returns the attachment's bytes. A missing blob behind existing metadata is reported
// as a dangling reference; bytes that no longer match the recorded checksum are a storage failure.
func (s *AttachmentStore) Open(ctx context.Context, att *domain.Attachment) ([]byte, error) {
	if att == nil || att.Path == "" {
		return nil, apperrors.NewNotFound("attachment")
	}
	data, err := s.blobs.Get(ctx, att.Path)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, apperrors.NewStorageMissing("attachment file not found")
		}
		return nil, apperrors.NewStorageFailure(err)
	}
	if att.Checksum != "" && Checksum(data) != att.Checksum {
		return nil, apperrors.NewStorageFailure(fmt.Errorf("checksum mismatch for %s", att.Path))
	}
	return data, nil
}

// Remove deletes the attachment's blob.
func (s *AttachmentStore) Remove(ctx context.Context, att *domain.Attachment) error {
	if att == nil || att.Path == "" {
		return nil
	}
	return s.blobs.Delete(ctx, att.Path)
}

// Checksum returns the hex BLAKE3 digest of data.
func Checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *AttachmentStore) keyFor(name, disambiguator string) string {
	stamp := strconv.FormatInt(s.now().Unix(), 10)
	if disambiguator != "" {
		stamp += "_" + disambiguator
	}
	return attachmentPrefix + "/" + stamp + "_" + strings.ReplaceAll(name, " ", "_")
}

func (s *AttachmentStore) tooLarge() error {
	return apperrors.NewFieldValidation(attachmentField,
		fmt.Sprintf("The attachment must not be greater than %d kilobytes.", s.maxBytes/1024))
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func extensionOf(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// baseName strips any client supplied directory components.
func baseName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("\\", "/", "\x00", "").Replace(name)
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if name == "." || name == ".." {
		return ""
	}
	return name
}

func detectMimeType(declared, name string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension("." + extensionOf(name)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

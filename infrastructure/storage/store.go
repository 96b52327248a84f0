package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// errNotExist is returned by backends when a document was never written.
var errNotExist = errors.New("document does not exist")

// Encrypter is the confidentiality mechanism used for documents written with Encrypted().
type Encrypter interface {
	Available() bool
	Encrypt(plain []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
}

// Store reads and writes whole named JSON documents.
type Store interface {
	// Read decodes the named document into dest and reports whether it did.
	// When the document is missing, undecryptable or unparsable dest is left
	// untouched, so callers pre-fill it with their default.
	Read(ctx context.Context, name string, dest any, opts ...Option) bool
	// Write replaces the named document.
	Write(ctx context.Context, name string, doc any, opts ...Option) error
	Delete(ctx context.Context, name string) error
	Stats(ctx context.Context) (Stats, error)
}

type Stats struct {
	Documents int   `json:"documents"`
	Bytes     int64 `json:"bytes"`
}

type Option func(*options)

type options struct {
	encrypted bool
}

// Encrypted asks for the payload to go through the Encrypter.
func Encrypted() Option {
	return func(o *options) { o.encrypted = true }
}

type backend interface {
	load(ctx context.Context, name string) ([]byte, error)
	save(ctx context.Context, name string, payload []byte) error
	remove(ctx context.Context, name string) error
	stats(ctx context.Context) (Stats, error)
}

// DocumentStore implements Store over a pluggable backend.
type DocumentStore struct {
	backend backend
	crypto  Encrypter

	mu         sync.RWMutex
	onInsecure func(name string)
}

func newDocumentStore(b backend, enc Encrypter) *DocumentStore {
	return &DocumentStore{backend: b, crypto: enc}
}

// OnInsecureWrite registers fn to be told whenever an encrypted document had
// to be written in clear because encryption is unavailable.
func (s *DocumentStore) OnInsecureWrite(fn func(name string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onInsecure = fn
}

func (s *DocumentStore) Read(ctx context.Context, name string, dest any, opts ...Option) bool {
	if err := validateName(name); err != nil {
		logrus.WithError(err).Warn("[STORAGE] refusing to read document")
		return false
	}
	o := applyOptions(opts)

	payload, err := s.backend.load(ctx, name)
	if errors.Is(err, errNotExist) {
		logrus.Debugf("[STORAGE] document %s not found, using default", name)
		return false
	}
	if err != nil {
		logrus.WithError(err).Warnf("[STORAGE] document %s could not be loaded, using default", name)
		return false
	}

	if o.encrypted {
		plain, ok := s.decrypt(name, payload)
		if !ok {
			return false
		}
		payload = plain
	}

	target := reflect.ValueOf(dest)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		logrus.Errorf("[STORAGE] Read(%s) needs a non-nil pointer, got %T", name, dest)
		return false
	}

	// Decode into a fresh value so a parse failure never leaves dest half-written.
	fresh := reflect.New(target.Elem().Type())
	if err := json.Unmarshal(payload, fresh.Interface()); err != nil {
		logrus.WithError(err).Warnf("[STORAGE] document %s is not valid JSON, treating as absent", name)
		return false
	}
	target.Elem().Set(fresh.Elem())
	return true
}

func (s *DocumentStore) Write(ctx context.Context, name string, doc any, opts ...Option) error {
	if err := validateName(name); err != nil {
		return err
	}
	o := applyOptions(opts)

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document %s: %w", name, err)
	}

	if o.encrypted {
		if s.crypto != nil && s.crypto.Available() {
			payload, err = s.crypto.Encrypt(payload)
			if err != nil {
				return fmt.Errorf("encrypt document %s: %w", name, err)
			}
		} else {
			logrus.Warnf("[STORAGE] encryption unavailable, writing %s WITHOUT encryption", name)
			s.mu.RLock()
			notify := s.onInsecure
			s.mu.RUnlock()
			if notify != nil {
				notify(name)
			}
		}
	}

	if err := s.backend.save(ctx, name, payload); err != nil {
		return fmt.Errorf("write document %s: %w", name, err)
	}
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	err := s.backend.remove(ctx, name)
	if errors.Is(err, errNotExist) {
		return nil
	}
	return err
}

func (s *DocumentStore) Stats(ctx context.Context) (Stats, error) {
	return s.backend.stats(ctx)
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// decrypt opens an encrypted payload. Ciphertext is tried first since a
// random nonce can start with any byte; only when that fails is the payload
// taken as a clear document left by the insecure fallback.
func (s *DocumentStore) decrypt(name string, payload []byte) ([]byte, bool) {
	if s.crypto != nil && s.crypto.Available() {
		plain, err := s.crypto.Decrypt(payload)
		if err == nil {
			return plain, true
		}
		if looksLikeJSON(payload) {
			return payload, true
		}
		logrus.WithError(err).Warnf("[STORAGE] document %s could not be decrypted, treating as absent", name)
		return nil, false
	}
	if looksLikeJSON(payload) {
		return payload, true
	}
	logrus.Warnf("[STORAGE] document %s is encrypted but no encryption key is configured, treating as absent", name)
	return nil, false
}

// looksLikeJSON recognises documents written in clear by the insecure fallback.
func looksLikeJSON(payload []byte) bool {
	trimmed := bytes.TrimSpace(payload)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("invalid document name %q", name)
	}
	return nil
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/compose-network/contract-deployer/internal/failure"
	"github.com/compose-network/contract-deployer/internal/infra/filesystem"
	fsjson "github.com/compose-network/contract-deployer/internal/infra/filesystem/json"
	"github.com/compose-network/contract-deployer/internal/logger"
)

type (
	// FileStore keeps one JSON document per network under dir. Entries keep the
	// order in which they were first recorded.
	FileStore struct {
		dir    string
		reader filesystem.DocumentReader
		writer filesystem.DocumentWriter
		mu     sync.Mutex
		logger *slog.Logger
	}

	document struct {
		Network string  `json:"network"`
		Entries []Entry `json:"entries"`
	}
)

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, failure.LedgerIO("open", fmt.Errorf("failed to create ledger directory '%s': %w", dir, err))
	}

	return &FileStore{
		dir:    dir,
		reader: fsjson.NewReader(),
		writer: fsjson.NewWriter(),
		logger: logger.Named("ledger_file"),
	}, nil
}

func (s *FileStore) Get(_ context.Context, network, name string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(network)
	if err != nil {
		return Entry{}, false, failure.LedgerIO("get", err)
	}

	for _, e := range doc.Entries {
		if e.Name == name {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

func (s *FileStore) Put(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(entry.Network)
	if err != nil {
		return failure.LedgerIO("put", err)
	}

	replaced := false
	for i := range doc.Entries {
		if doc.Entries[i].Name == entry.Name {
			doc.Entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Entries = append(doc.Entries, entry)
	}

	if err := s.store(doc); err != nil {
		return failure.LedgerIO("put", err)
	}

	s.logger.
		With("network", entry.Network).
		With("name", entry.Name).
		With("status", entry.Status).
		Debug("ledger entry written")

	return nil
}

func (s *FileStore) List(_ context.Context, network string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(network)
	if err != nil {
		return nil, failure.LedgerIO("list", err)
	}
	return doc.Entries, nil
}

func (s *FileStore) Reset(_ context.Context, network, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(network)
	if err != nil {
		return failure.LedgerIO("reset", err)
	}

	kept := doc.Entries[:0]
	for _, e := range doc.Entries {
		if e.Name != name {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(doc.Entries) {
		return failure.LedgerIO("reset", fmt.Errorf("%w: '%s' on network '%s'", ErrEntryNotFound, name, network))
	}
	doc.Entries = kept

	if err := s.store(doc); err != nil {
		return failure.LedgerIO("reset", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(network string) (string, error) {
	if network == "" || strings.ContainsAny(network, `/\`) || network == "." || network == ".." {
		return "", fmt.Errorf("invalid network name '%s'", network)
	}
	return filepath.Join(s.dir, network+".json"), nil
}

func (s *FileStore) load(network string) (document, error) {
	path, err := s.path(network)
	if err != nil {
		return document{}, err
	}

	doc := document{Network: network}
	if err := s.reader.ReadJSON(path, &doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return document{Network: network}, nil
		}
		return document{}, fmt.Errorf("failed to read ledger '%s': %w", path, err)
	}
	if doc.Network != network {
		return document{}, fmt.Errorf("ledger '%s' belongs to network '%s'", path, doc.Network)
	}
	return doc, nil
}

func (s *FileStore) store(doc document) error {
	path, err := s.path(doc.Network)
	if err != nil {
		return err
	}
	if err := s.writer.WriteJSON(path, doc); err != nil {
		return fmt.Errorf("failed to write ledger '%s': %w", path, err)
	}
	return nil
}

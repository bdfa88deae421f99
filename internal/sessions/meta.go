package sessions

import (
	"encoding/json"
	"os"

	"github.com/bashclaw/bashclaw/internal/bashclawerr"
)

// MetaUpdate sets field on file's sidecar metadata document under a
// per-file OS-level advisory lock, so a concurrent meta_get/meta_update
// from another process sees a consistent read-modify-write cycle.
func (s *Store) MetaUpdate(file, field string, value any) error {
	lock, err := acquireFileLock(s.metaPath(file))
	if err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "acquire meta lock", err)
	}
	defer lock.Unlock()

	meta, err := s.readMetaLocked(file)
	if err != nil {
		return err
	}
	if meta.Fields == nil {
		meta.Fields = map[string]any{}
	}
	meta.Fields[field] = value
	return s.writeMetaLocked(file, meta)
}

// MetaGet returns field from file's sidecar metadata, or def if absent.
func (s *Store) MetaGet(file, field string, def any) (any, error) {
	lock, err := acquireFileLock(s.metaPath(file))
	if err != nil {
		return nil, bashclawerr.Wrap(bashclawerr.Internal, "acquire meta lock", err)
	}
	defer lock.Unlock()

	meta, err := s.readMetaLocked(file)
	if err != nil {
		return nil, err
	}
	if v, ok := meta.Fields[field]; ok {
		return v, nil
	}
	return def, nil
}

func (s *Store) readMetaLocked(file string) (Meta, error) {
	data, err := os.ReadFile(s.metaPath(file))
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{Fields: map[string]any{}}, nil
		}
		return Meta{}, bashclawerr.Wrap(bashclawerr.Internal, "read session meta", err)
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, bashclawerr.Wrap(bashclawerr.Internal, "decode session meta", err)
	}
	if m.Fields == nil {
		m.Fields = map[string]any{}
	}
	return m, nil
}

func (s *Store) writeMetaLocked(file string, meta Meta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "encode session meta", err)
	}
	return atomicWriteFile(s.metaPath(file), data)
}

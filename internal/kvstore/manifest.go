package kvstore

import (
	"encoding/json"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/yndnr/meshkv/internal/core/domain"
)

// StoreType is the only store type this package implements.
const StoreType = "keyvalue"

// Manifest describes a store. Its CID is the store's root address, so two
// nodes creating the same name with the same policy get the same store.
type Manifest struct {
	Name   string           `json:"name"`
	Type   string           `json:"type"`
	Access AccessController `json:"access"`
}

// AccessController is the manifest's write policy.
type AccessController struct {
	Write []string `json:"write"`
}

// NewManifest builds a manifest with a normalized policy.
func NewManifest(name string, policy domain.AccessPolicy) Manifest {
	p := policy.Normalized()
	return Manifest{
		Name:   name,
		Type:   StoreType,
		Access: AccessController{Write: p.Write},
	}
}

// DecodeManifest parses encoded manifest bytes.
func DecodeManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Type != StoreType {
		return Manifest{}, fmt.Errorf("decode manifest: unsupported type %q", m.Type)
	}
	return m, nil
}

// Encode returns the canonical encoding. Struct field order is fixed and
// the write list is sorted, so equal manifests encode identically.
func (m Manifest) Encode() ([]byte, error) {
	m.Access.Write = m.Policy().Write
	return json.Marshal(m)
}

// CID returns the CIDv1 (raw codec, sha2-256) of the encoded manifest.
func (m Manifest) CID() (cid.Cid, error) {
	data, err := m.Encode()
	if err != nil {
		return cid.Undef, err
	}
	return manifestCID(data)
}

// Policy returns the manifest's write policy.
func (m Manifest) Policy() domain.AccessPolicy {
	return domain.AccessPolicy{Write: m.Access.Write}.Normalized()
}

func manifestCID(data []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("hash manifest: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

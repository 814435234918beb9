package kvstore

import (
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"

	"github.com/yndnr/meshkv/internal/core/domain"
)

// AddressPrefix starts every store address.
const AddressPrefix = "/meshkv/"

// Address identifies a store: the manifest CID plus the store name.
//
//	/meshkv/<manifest-cid>/<name>
type Address struct {
	Root cid.Cid
	Name string
}

// ParseAddress parses a store address.
func ParseAddress(s string) (Address, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), AddressPrefix)
	if !ok {
		return Address{}, domain.ErrInvalidAddress.WithDetails(fmt.Sprintf("%q: missing %s prefix", s, AddressPrefix))
	}
	root, name, ok := strings.Cut(rest, "/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return Address{}, domain.ErrInvalidAddress.WithDetails(fmt.Sprintf("%q: want %s<cid>/<name>", s, AddressPrefix))
	}
	c, err := cid.Decode(root)
	if err != nil {
		return Address{}, domain.ErrInvalidAddress.WithDetails(s).WithCause(err)
	}
	return Address{Root: c, Name: name}, nil
}

// IsValidAddress reports whether s parses as a store address.
func IsValidAddress(s string) bool {
	_, err := ParseAddress(s)
	return err == nil
}

// String formats the address.
func (a Address) String() string {
	return AddressPrefix + a.Root.String() + "/" + a.Name
}

// ContentAddress is the root CID as announced on the routing layer.
func (a Address) ContentAddress() domain.ContentAddress {
	return domain.ContentAddressFromCID(a.Root)
}

// Topic is the overlay topic the store replicates on.
func (a Address) Topic() string {
	return "meshkv/" + a.Root.String()
}

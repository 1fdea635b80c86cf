package resultcache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Entry is a cached query outcome: the raw scanned rows of a select, or a count.
type Entry struct {
	Rows  [][]any `msgpack:"rows,omitempty"`
	Count int64   `msgpack:"count,omitempty"`
}

// Encode serializes an entry.
func Encode(entry *Entry) ([]byte, error) {
	data, err := msgpack.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return data, nil
}

// Decode deserializes an entry. Integers decode as int64 or uint64 and floats as
// float64, matching what database/sql scans.
func Decode(data []byte) (*Entry, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	var entry Entry
	if err := dec.Decode(&entry); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return &entry, nil
}

// RegionSeparator ends the region part of every key.
const RegionSeparator = ":"

// ErrInvalidRegion is returned for region names that cannot be isolated by prefix.
var ErrInvalidRegion = errors.New("invalid cache region")

// ValidateRegion rejects empty region names and names containing RegionSeparator,
// which would let one region's prefix match the keys of another.
func ValidateRegion(region string) error {
	if region == "" {
		return fmt.Errorf("%w: region name is empty", ErrInvalidRegion)
	}
	if strings.Contains(region, RegionSeparator) {
		return fmt.Errorf("%w: region name %q must not contain %q", ErrInvalidRegion, region, RegionSeparator)
	}
	return nil
}

// Key returns "<region>:<sha256 of sql and args>".
func Key(region, sql string, args []any) (string, error) {
	if err := ValidateRegion(region); err != nil {
		return "", err
	}
	encodedArgs, err := msgpack.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key args: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(sql))
	h.Write([]byte{0})
	h.Write(encodedArgs)
	return RegionPrefix(region) + hex.EncodeToString(h.Sum(nil)), nil
}

// RegionPrefix returns the key prefix shared by every entry of region.
func RegionPrefix(region string) string {
	return region + RegionSeparator
}

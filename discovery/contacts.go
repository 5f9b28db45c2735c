package discovery

import (
	"encoding/binary"
	"strconv"
)

// encodedEntryLength is the fixed width of one encoded entry: the digit
// string packed as a big-endian 64-bit integer
const encodedEntryLength = 8

// AddressBookEntry is a normalized candidate identifier: digits only, no
// leading separator. Its ordinal position within a call is the only thing
// linking it to its response byte, so the entry sequence fixed for a call
// must never be reordered, deduplicated, or resized.
type AddressBookEntry string

// E164 reconstitutes the caller-facing identifier
func (e AddressBookEntry) E164() string {
	return "+" + string(e)
}

// NormalizeEntries converts raw identifiers into address book entries,
// stripping a single leading '+' and rejecting anything that is not a plain
// digit string that fits the fixed-width encoding. Order is preserved
// exactly; duplicates are kept.
func NormalizeEntries(numbers []string) ([]AddressBookEntry, error) {
	entries := make([]AddressBookEntry, 0, len(numbers))
	for _, number := range numbers {
		candidate := number
		if len(candidate) > 0 && candidate[0] == '+' {
			candidate = candidate[1:]
		}
		if candidate == "" {
			return nil, NewInvalidEntryError(number, "empty after normalization")
		}
		if _, err := strconv.ParseUint(candidate, 10, 64); err != nil {
			return nil, NewInvalidEntryError(number, "not a digit string within encoding range")
		}
		entries = append(entries, AddressBookEntry(candidate))
	}
	return entries, nil
}

// encodeEntries packs the entries in order into one fixed-width buffer
func encodeEntries(entries []AddressBookEntry) ([]byte, error) {
	buffer := make([]byte, len(entries)*encodedEntryLength)
	for i, entry := range entries {
		value, err := strconv.ParseUint(string(entry), 10, 64)
		if err != nil {
			return nil, NewInvalidEntryError(string(entry), "not a digit string within encoding range")
		}
		binary.BigEndian.PutUint64(buffer[i*encodedEntryLength:], value)
	}
	return buffer, nil
}

// MatchResult reports, for one address book entry, whether the service knows
// it. Both variants are always populated; there is no absent state to guess
// about.
type MatchResult struct {
	Entry      AddressBookEntry
	Registered bool
}

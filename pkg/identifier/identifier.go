// Package identifier parses and renders the 20-byte Ethereum addresses that
// feed the merkle engine. All format and checksum validation happens here,
// before an address becomes a merkle.Identifier.
package identifier

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/Layr-Labs/merkle-allowlist-go/pkg/merkle"
)

var (
	ErrInvalidIdentifierLength = errors.New("invalid identifier length")
	ErrInvalidEncoding         = errors.New("invalid hex encoding")
	ErrBadChecksum             = errors.New("bad address checksum")
)

// Parse decodes a hex address, with or without the 0x prefix. The prefix
// must be lowercase.
//
// All-lowercase and all-uppercase addresses are accepted as is. Mixed-case
// addresses must carry a valid EIP-55 checksum.
func Parse(s string) (merkle.Identifier, error) {
	body := s
	body = strings.TrimPrefix(body, "0x")

	if len(body) != 2*merkle.IdentifierLength {
		return merkle.Identifier{}, fmt.Errorf("%w: expected %d hex characters, got %d",
			ErrInvalidIdentifierLength, 2*merkle.IdentifierLength, len(body))
	}

	raw, err := hexutil.Decode("0x" + body)
	if err != nil {
		return merkle.Identifier{}, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	addr := common.BytesToAddress(raw)

	if isMixedCase(body) && addr.Hex()[2:] != body {
		return merkle.Identifier{}, fmt.Errorf("%w: %s", ErrBadChecksum, s)
	}

	return merkle.Identifier(addr), nil
}

// ParseAll parses every value, keeping order. Every invalid value is
// reported in one aggregated error.
func ParseAll(values []string) ([]merkle.Identifier, error) {
	var allErrors field.ErrorList
	ids := make([]merkle.Identifier, 0, len(values))

	for i, value := range values {
		id, err := Parse(value)
		if err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath("addresses").Index(i), value, err.Error()))
			continue
		}
		ids = append(ids, id)
	}

	if len(allErrors) > 0 {
		return nil, allErrors.ToAggregate()
	}
	return ids, nil
}

// ParseList parses newline separated addresses, see SplitLines.
func ParseList(text string) ([]merkle.Identifier, error) {
	return ParseAll(SplitLines(text))
}

// SplitLines splits text into one entry per line. Whitespace and dots are
// removed from each line and lines left empty are dropped.
func SplitLines(text string) []string {
	lines := strings.Split(text, "\n")
	entries := make([]string, 0, len(lines))

	for _, line := range lines {
		cleaned := strings.Map(func(r rune) rune {
			if r == '.' || unicode.IsSpace(r) {
				return -1
			}
			return r
		}, line)
		if cleaned != "" {
			entries = append(entries, cleaned)
		}
	}
	return entries
}

// Format renders id as 0x-prefixed lowercase hex.
func Format(id merkle.Identifier) string {
	return hexutil.Encode(id[:])
}

// FormatAll renders every id with Format.
func FormatAll(ids []merkle.Identifier) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = Format(id)
	}
	return out
}

// Checksum renders id in its EIP-55 mixed-case form.
func Checksum(id merkle.Identifier) string {
	return common.Address(id).Hex()
}

func isMixedCase(s string) bool {
	return strings.ToLower(s) != s && strings.ToUpper(s) != s
}

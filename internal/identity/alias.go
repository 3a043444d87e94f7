package identity

import (
	"strconv"
	"unicode/utf16"

	"github.com/and161185/campus-board/internal/model"
)

// Word lists are part of the alias contract: the modulo arithmetic depends on
// their sizes, so editing either list renames every existing author.
var (
	adjectives = [12]string{"Calm", "Brave", "Swift", "Quiet", "Sunny", "Mellow", "Bold", "Curious", "Lucky", "Kind", "Chill", "Zesty"}
	animals    = [12]string{"Tiger", "Falcon", "Otter", "Panther", "Koala", "Wolf", "Hawk", "Dolphin", "Panda", "Fox", "Bear", "Owl"}
)

const aliasSuffixMod = 97

// fold is the polynomial rolling hash h = h*31 + unit (mod 2^32) over UTF-16 code units.
func fold(key string) uint32 {
	var h uint32
	for _, u := range utf16.Encode([]rune(key)) {
		h = h*31 + uint32(u)
	}
	return h
}

// Alias deterministically maps key to "Adjective-Animal-N", N in [1,97].
func Alias(key string) string {
	h := fold(key)
	adj := adjectives[h%uint32(len(adjectives))]
	animal := animals[(h>>4)%uint32(len(animals))]
	return adj + "-" + animal + "-" + strconv.FormatUint(uint64(h%aliasSuffixMod+1), 10)
}

// ScopedAlias derives a per-scope alias, so the same author reads differently
// in different threads. An empty scope yields the unscoped alias.
func ScopedAlias(h model.TokenHash, scope string) string {
	if scope == "" {
		return Alias(string(h))
	}
	return Alias(string(h) + ":" + scope)
}

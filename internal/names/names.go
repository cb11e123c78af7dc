// Package names generates memorable room and user names.
package names

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// Room returns a random name of the form word-word-word-word,
// e.g. "kitten-waffle-stardust-happy".
func Room() string {
	order := perm(len(pools))
	words := make([]string, 4)
	for i := range words {
		list := pools[order[i]]
		words[i] = list[randomIndex(len(list))]
	}
	return strings.Join(words, "-")
}

// User returns a two-word handle such as "sleepy-otter".
func User() string {
	adjectives, animals := pools[4], pools[0]
	return adjectives[randomIndex(len(adjectives))] + "-" + animals[randomIndex(len(animals))]
}

func perm(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := randomIndex(i + 1)
		p[i], p[j] = p[j], p[i]
	}
	return p
}

func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic("names: crypto/rand failed: " + err.Error())
	}
	return int(n.Int64())
}

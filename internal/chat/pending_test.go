package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func somePending(texts ...string) []Pending {
	out := make([]Pending, len(texts))
	for i, txt := range texts {
		out[i] = Pending{ClientID: txt, Text: txt, CreatedAt: testBase.Add(time.Duration(i) * time.Second)}
	}
	return out
}

func TestDropConfirmedRemovesOldestFirst(t *testing.T) {
	p := somePending("a", "b", "c")

	p = dropConfirmed(p, 1)
	assert.Len(t, p, 2)
	assert.Equal(t, "b", p[0].Text)
	assert.Equal(t, "c", p[1].Text)

	p = dropConfirmed(p, 0)
	assert.Len(t, p, 2)

	p = dropConfirmed(p, 5)
	assert.Nil(t, p, "over-confirmation clears everything")
}

func TestDropStale(t *testing.T) {
	p := somePending("old", "fresh")
	p[0].CreatedAt = testBase.Add(-time.Minute)
	p[1].CreatedAt = testBase.Add(-time.Second)

	p = dropStale(p, testBase)
	assert.Len(t, p, 1)
	assert.Equal(t, "fresh", p[0].Text)
}

// Package remarks maps classification outcomes to a light-hearted message.
package remarks

import (
	"math/rand"
	"sync"
	"time"

	"github.com/zombar/textdetector/internal/models"
)

// EmptyInput is returned for the unknown outcome
const EmptyInput = "Please enter some text 😅"

// Failed is returned when classification failed
const Failed = "Something went wrong while reading that text 🤕"

var humanRemarks = []string{
	"Detected: HUMAN 🤦, typos = proof of existence!",
	"Yep, definitely human. The chaos is real 😂",
	"Human detected, certified emotional creature 🥲",
	"100% human! The grammar struggles gave it away 😭",
	"Human spotted, brain lag detected 🧠💤",
	"Looks human… messy, unpredictable, totally normal 😌",
	"This text screams ‘I typed this half asleep’ 😪",
	"Human vibes detected, emotions everywhere 😭❤️",
	"This is so human it probably needs coffee ☕",
	"Human confirmed, proudly imperfect since forever 😅",
}

var aiRemarks = []string{
	"AI detected 🤖, too smooth to be human!",
	"This text smells like silicon chips and algorithms 😎",
	"AI spotted, no typos, suspiciously perfect grammar 😂",
	"Definitely AI, humans don’t write this clean 😲",
	"This is so polished it has to be a robot 🧽🤖",
	"AI confirmed, zero drama, zero emotions 😌",
	"This text is 100% machine, even my circuits are impressed ⚙️",
	"AI detected, looks like it was generated in 0.0001 seconds ⚡",
	"Robot vibes everywhere… beep boop 🤖✨",
	"AI alert! Too logical, too structured, too perfect 😆",
}

// Catalog picks remarks with its own random source. It is safe for
// concurrent use.
type Catalog struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a catalog drawing from rng. A nil rng is seeded from the clock.
func New(rng *rand.Rand) *Catalog {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Catalog{rng: rng}
}

// For returns a remark for the outcome
func (c *Catalog) For(o models.Outcome) string {
	switch {
	case o.IsUnknown():
		return EmptyInput
	case o.IsFailed():
		return Failed
	}

	label, _ := o.Label()
	switch label {
	case models.LabelHuman:
		return c.pick(humanRemarks)
	case models.LabelAI:
		return c.pick(aiRemarks)
	}
	return Failed
}

// All returns the catalog entries for a trained label
func All(l models.Label) []string {
	switch l {
	case models.LabelHuman:
		return append([]string(nil), humanRemarks...)
	case models.LabelAI:
		return append([]string(nil), aiRemarks...)
	}
	return nil
}

func (c *Catalog) pick(options []string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return options[c.rng.Intn(len(options))]
}

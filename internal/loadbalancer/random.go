package loadbalancer

import (
	"math/rand"
	"sync"
	"time"
)

type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandom() *Random {
	return &Random{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *Random) Next(endpoints []string) string {
	if len(endpoints) == 0 {
		return ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return endpoints[r.rng.Intn(len(endpoints))]
}

func (r *Random) Name() string {
	return "random"
}

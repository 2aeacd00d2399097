package conversation

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/tenant"
)

const (
	defaultDedupSize = 10000
	defaultDedupTTL  = 15 * time.Minute
)

// Deduper remembers recently processed inbound message ids. Entries are
// evicted by age and by capacity, so memory stays bounded.
type Deduper struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

// NewDeduper returns a deduper holding at most size ids for ttl each.
func NewDeduper(size int, ttl time.Duration) *Deduper {
	if size <= 0 {
		size = defaultDedupSize
	}
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &Deduper{seen: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

// Seen records id and reports whether it had already been recorded.
func (d *Deduper) Seen(id string) bool {
	if d == nil || id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen.Contains(id) {
		return true
	}
	d.seen.Add(id, struct{}{})
	return false
}

// Forget removes id so a later delivery is processed again.
func (d *Deduper) Forget(id string) {
	if d == nil || id == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen.Remove(id)
}

// Len returns the number of ids currently remembered.
func (d *Deduper) Len() int {
	if d == nil {
		return 0
	}
	return d.seen.Len()
}

// Middleware drops requests whose X-Message-ID was already processed for the
// tenant and answers them with 200 and a duplicate marker. The id is claimed
// before the handler runs and released again when it fails with a 5xx or
// panics, so the sender's retry is processed.
func (d *Deduper) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		messageID := strings.TrimSpace(r.Header.Get("X-Message-ID"))
		if messageID == "" || d == nil {
			next.ServeHTTP(w, r)
			return
		}
		tenantID, _ := tenant.From(r.Context())
		key := tenant.PrefixKey(tenantID, messageID)
		if d.Seen(key) {
			obs.ObserveDuplicateMessage()
			common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"duplicate": true, "messageId": messageID}})
			return
		}
		recorder := obs.NewStatusRecorder(w)
		defer func() {
			if p := recover(); p != nil {
				d.Forget(key)
				panic(p)
			}
		}()
		next.ServeHTTP(recorder, r)
		if recorder.Status() >= http.StatusInternalServerError {
			d.Forget(key)
		}
	})
}

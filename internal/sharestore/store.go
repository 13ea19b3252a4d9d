package sharestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gridshare/api/internal/util"
)

const (
	DefaultTTL     = 7 * 24 * time.Hour
	DefaultTimeout = 5 * time.Second

	maxSaveAttempts = 3
)

// Tier identifies which backend served a call.
type Tier string

const (
	TierNone     Tier = ""
	TierPrimary  Tier = "primary"
	TierFallback Tier = "fallback"
)

type Options struct {
	TTL     time.Duration
	Timeout time.Duration
	Now     func() time.Time
	NewID   func() string
}

// Store composes a primary and a fallback tier. Either may be nil, but not both.
type Store struct {
	primary  Backend
	fallback Backend
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time
	newID    func() string
}

func New(primary, fallback Backend, opts Options) *Store {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return util.NewShortID(util.ShortIDLength) }
	}
	return &Store{
		primary:  primary,
		fallback: fallback,
		ttl:      opts.TTL,
		timeout:  opts.Timeout,
		now:      opts.Now,
		newID:    opts.NewID,
	}
}

// result is the outcome of a call routed across tiers.
type result struct {
	rec  Record
	tier Tier
	err  error
}

// Save stores v as JSON and returns its new id. Expired records are swept first.
func (s *Store) Save(ctx context.Context, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal share data: %w", err)
	}

	if _, err := s.Cleanup(ctx); err != nil {
		log.Printf("sharestore: sweep before save failed: %v", err)
	}

	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		now := s.now()
		rec := Record{
			ID:        s.newID(),
			Data:      data,
			Timestamp: now.UnixMilli(),
			ExpiresAt: now.Add(s.ttl).UnixMilli(),
		}
		res := s.insert(ctx, rec)
		if res.err == nil {
			return rec.ID, nil
		}
		if !errors.Is(res.err, ErrIDConflict) {
			return "", res.err
		}
		log.Printf("sharestore: id %s already taken on %s tier (attempt %d)", rec.ID, res.tier, attempt)
	}
	return "", fmt.Errorf("save share record: %w after %d attempts", ErrIDConflict, maxSaveAttempts)
}

func (s *Store) insert(ctx context.Context, rec Record) result {
	var primaryErr error
	if s.primary != nil {
		primaryErr = s.call(ctx, func(ctx context.Context) error { return s.primary.Insert(ctx, rec) })
		if primaryErr == nil || errors.Is(primaryErr, ErrIDConflict) {
			return result{rec: rec, tier: TierPrimary, err: primaryErr}
		}
		log.Printf("sharestore: primary save failed, using fallback: %v", primaryErr)
	}
	if s.fallback == nil {
		return result{err: &StorageUnavailableError{Primary: primaryErr, Fallback: errNoTier}}
	}
	fallbackErr := s.call(ctx, func(ctx context.Context) error { return s.fallback.Insert(ctx, rec) })
	if fallbackErr == nil || errors.Is(fallbackErr, ErrIDConflict) {
		return result{rec: rec, tier: TierFallback, err: fallbackErr}
	}
	if s.primary == nil {
		primaryErr = errNoTier
	}
	return result{err: &StorageUnavailableError{Primary: primaryErr, Fallback: fallbackErr}}
}

var errNoTier = errors.New("tier not configured")

// Get returns the data stored under id. Missing and expired records both
// yield ErrNotFound; expired ones are deleted on the way out.
func (s *Store) Get(ctx context.Context, id string) (json.RawMessage, error) {
	res := s.lookup(ctx, id)
	if res.err != nil {
		return nil, res.err
	}
	return res.rec.Data, nil
}

// Lookup is Get with the full record and the tier that served it.
func (s *Store) Lookup(ctx context.Context, id string) (Record, Tier, error) {
	res := s.lookup(ctx, id)
	return res.rec, res.tier, res.err
}

func (s *Store) lookup(ctx context.Context, id string) result {
	var errs [2]error
	for i, tier := range s.tiers() {
		if tier.backend == nil {
			errs[i] = errNoTier
			continue
		}
		var rec Record
		err := s.call(ctx, func(ctx context.Context) error {
			var err error
			rec, err = tier.backend.Get(ctx, id)
			return err
		})
		switch {
		case errors.Is(err, ErrNotFound):
			continue
		case err != nil:
			log.Printf("sharestore: %s get %s failed: %v", tier.name, id, err)
			errs[i] = err
			continue
		}
		if rec.Expired(s.now()) {
			if err := s.call(ctx, func(ctx context.Context) error { return tier.backend.Delete(ctx, id) }); err != nil {
				log.Printf("sharestore: delete expired %s on %s tier: %v", id, tier.name, err)
			}
			continue
		}
		return result{rec: rec, tier: tier.name}
	}
	if errs[0] != nil && errs[1] != nil {
		return result{err: &StorageUnavailableError{Primary: errs[0], Fallback: errs[1]}}
	}
	return result{err: ErrNotFound}
}

// Delete removes id from both tiers. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	var errs [2]error
	for i, tier := range s.tiers() {
		if tier.backend == nil {
			errs[i] = errNoTier
			continue
		}
		errs[i] = s.call(ctx, func(ctx context.Context) error { return tier.backend.Delete(ctx, id) })
		if errs[i] != nil {
			log.Printf("sharestore: %s delete %s failed: %v", tier.name, id, errs[i])
		}
	}
	if errs[0] != nil && errs[1] != nil {
		return &StorageUnavailableError{Primary: errs[0], Fallback: errs[1]}
	}
	return nil
}

// Cleanup purges expired records from both tiers and returns how many went.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	now := s.now()
	total := 0
	var errs [2]error
	for i, tier := range s.tiers() {
		if tier.backend == nil {
			errs[i] = errNoTier
			continue
		}
		var n int
		errs[i] = s.call(ctx, func(ctx context.Context) error {
			var err error
			n, err = tier.backend.Purge(ctx, now)
			return err
		})
		total += n
		if errs[i] != nil {
			log.Printf("sharestore: %s cleanup failed: %v", tier.name, errs[i])
		}
	}
	if errs[0] != nil && errs[1] != nil {
		return total, &StorageUnavailableError{Primary: errs[0], Fallback: errs[1]}
	}
	return total, nil
}

// Health is the per-tier result of Ping. Nil means healthy.
type Health struct {
	Primary  error
	Fallback error
}

// Ready reports whether at least one tier can serve.
func (h Health) Ready() bool {
	return h.Primary == nil || h.Fallback == nil
}

func (s *Store) Ping(ctx context.Context) Health {
	var h Health
	out := [2]*error{&h.Primary, &h.Fallback}
	for i, tier := range s.tiers() {
		if tier.backend == nil {
			*out[i] = errNoTier
			continue
		}
		*out[i] = s.call(ctx, tier.backend.Ping)
	}
	return h
}

type namedTier struct {
	name    Tier
	backend Backend
}

func (s *Store) tiers() [2]namedTier {
	return [2]namedTier{
		{name: TierPrimary, backend: s.primary},
		{name: TierFallback, backend: s.fallback},
	}
}

func (s *Store) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}

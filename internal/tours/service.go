// Package tours serves tour and guide data to the UI through the local
// cache. Reads never fail: they fall back from fresh cache to the API, then
// to stale cache, then to an empty list. Mutations go to the API first and
// update the cache on success; when the API cannot be reached the cached
// list is edited locally and the original error is returned.
package tours

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/guidedesk/guidedesk/internal/api"
	"github.com/guidedesk/guidedesk/internal/cache"
)

// Cache keys.
const (
	KeyTours       = "tours_v1"
	KeyToursLegacy = "tours"
	KeyGuides      = "guides_v1"
)

// listPageSize is the page size used to walk listings.
const listPageSize = 200

// maxPages bounds a listing walk.
const maxPages = 50

// Remote is the part of the booking API the service uses.
type Remote interface {
	ListGuides(ctx context.Context, query api.PageQuery) (api.GuidePage, error)
	CreateGuide(ctx context.Context, guide api.NewGuide) (api.Guide, error)
	DeleteGuide(ctx context.Context, id int64) error
	ListTours(ctx context.Context, query api.PageQuery) (api.TourPage, error)
	CreateTour(ctx context.Context, tour api.NewTour) (api.Tour, error)
	UpdateTour(ctx context.Context, id int64, patch api.TourPatch) (api.Tour, error)
	SetTourPaid(ctx context.Context, id int64, paid bool) (api.Tour, error)
	SetTourCancelled(ctx context.Context, id int64, cancelled bool) (api.Tour, error)
	DeleteTour(ctx context.Context, id int64) error
}

var _ Remote = (*api.Client)(nil)

// Source says where a read was served from.
type Source string

// Sources.
const (
	SourceCache  Source = "cache"
	SourceRemote Source = "remote"
	SourceStale  Source = "stale"
	SourceEmpty  Source = "empty"
)

// Result is the outcome of a read. Err carries the remote failure that
// forced a fallback; it is informational and Data is always usable.
type Result[T any] struct {
	Data      []T
	Source    Source
	FetchedAt time.Time
	Err       error
}

// Service reads and mutates tours and guides.
type Service struct {
	remote Remote
	cache  *cache.Store
	log    *zap.SugaredLogger
}

// New builds a Service. The cache should be built with CacheOptions so the
// legacy tours key is kept in step.
func New(remote Remote, store *cache.Store, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{remote: remote, cache: store, log: log}
}

// CacheOptions returns the cache options the service expects.
func CacheOptions() []cache.Option {
	return []cache.Option{cache.WithLegacyKey(KeyTours, KeyToursLegacy)}
}

// Tours lists tours. force skips a fresh cache entry.
func (s *Service) Tours(ctx context.Context, force bool) Result[api.Tour] {
	return resolve(ctx, s, KeyTours, force, s.fetchTours)
}

// Guides lists guides. force skips a fresh cache entry.
func (s *Service) Guides(ctx context.Context, force bool) Result[api.Guide] {
	return resolve(ctx, s, KeyGuides, force, s.fetchGuides)
}

// Invalidate drops every cached listing.
func (s *Service) Invalidate() error {
	if err := s.cache.Clear(KeyTours); err != nil {
		return err
	}
	return s.cache.Clear(KeyGuides)
}

// AddGuide creates a guide.
func (s *Service) AddGuide(ctx context.Context, guide api.NewGuide) (api.Guide, error) {
	created, err := s.remote.CreateGuide(ctx, guide)
	if err != nil {
		if api.IsNetwork(err) {
			local := api.Guide{
				ID:        localID(s.cache.Now()),
				Name:      guide.Name,
				Phone:     guide.Phone,
				Email:     guide.Email,
				Languages: guide.Languages,
				Bio:       guide.Bio,
				PhotoURL:  guide.PhotoURL,
			}
			mutate(s, KeyGuides, "add guide", func(list []api.Guide) []api.Guide { return append(list, local) }, false)
		}
		return api.Guide{}, err
	}
	mutate(s, KeyGuides, "add guide", func(list []api.Guide) []api.Guide { return append(list, created) }, true)
	return created, nil
}

// DeleteGuide removes a guide.
func (s *Service) DeleteGuide(ctx context.Context, id int64) error {
	err := s.remote.DeleteGuide(ctx, id)
	remove := func(list []api.Guide) []api.Guide {
		return filter(list, func(g api.Guide) bool { return g.ID != id })
	}
	if err != nil {
		if api.IsNetwork(err) {
			mutate(s, KeyGuides, "delete guide", remove, false)
		}
		return err
	}
	mutate(s, KeyGuides, "delete guide", remove, true)
	return nil
}

// AddTour schedules a tour.
func (s *Service) AddTour(ctx context.Context, tour api.NewTour) (api.Tour, error) {
	created, err := s.remote.CreateTour(ctx, tour)
	if err != nil {
		if api.IsNetwork(err) {
			local := api.Tour{
				ID:          localID(s.cache.Now()),
				Title:       tour.Title,
				Duration:    tour.Duration,
				Description: tour.Description,
				Date:        tour.Date,
				Time:        tour.Time,
				GuideID:     tour.GuideID,
				Paid:        api.Flag(tour.Paid != nil && *tour.Paid),
				Cancelled:   api.Flag(tour.Cancelled != nil && *tour.Cancelled),
			}
			mutate(s, KeyTours, "add tour", func(list []api.Tour) []api.Tour { return append(list, local) }, false)
		}
		return api.Tour{}, err
	}
	mutate(s, KeyTours, "add tour", func(list []api.Tour) []api.Tour { return append(list, created) }, true)
	return created, nil
}

// UpdateTour applies a partial update.
func (s *Service) UpdateTour(ctx context.Context, id int64, patch api.TourPatch) (api.Tour, error) {
	updated, err := s.remote.UpdateTour(ctx, id, patch)
	return s.finishTourUpdate(id, patch, updated, err, "update tour")
}

// UpdateTourPaidStatus sets the paid flag of tour id.
func (s *Service) UpdateTourPaidStatus(ctx context.Context, id int64, paid bool) (api.Tour, error) {
	updated, err := s.remote.SetTourPaid(ctx, id, paid)
	return s.finishTourUpdate(id, api.TourPatch{Paid: &paid}, updated, err, "update paid status")
}

// UpdateTourCancelledStatus sets the cancelled flag of tour id.
func (s *Service) UpdateTourCancelledStatus(ctx context.Context, id int64, cancelled bool) (api.Tour, error) {
	updated, err := s.remote.SetTourCancelled(ctx, id, cancelled)
	return s.finishTourUpdate(id, api.TourPatch{Cancelled: &cancelled}, updated, err, "update cancelled status")
}

// DeleteTour removes a tour.
func (s *Service) DeleteTour(ctx context.Context, id int64) error {
	err := s.remote.DeleteTour(ctx, id)
	remove := func(list []api.Tour) []api.Tour {
		return filter(list, func(t api.Tour) bool { return t.ID != id })
	}
	if err != nil {
		if api.IsNetwork(err) {
			mutate(s, KeyTours, "delete tour", remove, false)
		}
		return err
	}
	mutate(s, KeyTours, "delete tour", remove, true)
	return nil
}

func (s *Service) finishTourUpdate(id int64, patch api.TourPatch, updated api.Tour, err error, op string) (api.Tour, error) {
	if err != nil {
		if api.IsNetwork(err) {
			mutate(s, KeyTours, op, func(list []api.Tour) []api.Tour {
				return replaceTour(list, id, func(t api.Tour) api.Tour { return patch.Apply(t) })
			}, false)
		}
		return api.Tour{}, err
	}
	mutate(s, KeyTours, op, func(list []api.Tour) []api.Tour {
		return replaceTour(list, id, func(t api.Tour) api.Tour {
			if updated.ID == 0 {
				return patch.Apply(t)
			}
			if updated.GuideName == "" && updated.GuideID == t.GuideID {
				updated.GuideName = t.GuideName
			}
			return updated
		})
	}, true)
	if updated.ID == 0 {
		updated.ID = id
	}
	return updated, nil
}

func (s *Service) fetchTours(ctx context.Context) ([]api.Tour, error) {
	return walk(ctx, s.remote.ListTours)
}

func (s *Service) fetchGuides(ctx context.Context) ([]api.Guide, error) {
	return walk(ctx, s.remote.ListGuides)
}

// walk collects every page of a listing.
func walk[T any](ctx context.Context, list func(context.Context, api.PageQuery) (api.Page[T], error)) ([]T, error) {
	all := []T{}
	for page := 1; page <= maxPages; page++ {
		res, err := list(ctx, api.PageQuery{Page: page, PerPage: listPageSize})
		if err != nil {
			return nil, err
		}
		all = append(all, res.Data...)
		if res.Pagination.TotalPages <= page || len(res.Data) == 0 {
			return all, nil
		}
	}
	return all, nil
}

func resolve[T any](ctx context.Context, s *Service, key string, force bool, fetch func(context.Context) ([]T, error)) Result[T] {
	cached, ok := cache.Read[[]T](s.cache, key)
	if ok && !force && cache.IsFresh(s.cache, cached) {
		return Result[T]{Data: cached.Data, Source: SourceCache, FetchedAt: cached.Timestamp}
	}

	data, err := fetch(ctx)
	if err == nil {
		if werr := cache.WriteThrough(s.cache, key, data); werr != nil {
			s.log.Warnf("cache write %s failed: %v", key, werr)
		}
		return Result[T]{Data: data, Source: SourceRemote, FetchedAt: s.cache.Now()}
	}

	if ok {
		s.log.Warnf("serving stale %s from cache (written %s): %v", key, formatStamp(cached.Timestamp), err)
		return Result[T]{Data: cached.Data, Source: SourceStale, FetchedAt: cached.Timestamp, Err: err}
	}
	s.log.Warnf("no cached %s, returning empty list: %v", key, err)
	return Result[T]{Data: []T{}, Source: SourceEmpty, Err: err}
}

// mutate rewrites the cached list under key. Nothing is cached when the
// list was never loaded. Confirmed edits refresh the timestamp; local edits
// keep it so they do not make unconfirmed data look fresh.
func mutate[T any](s *Service, key, op string, edit func([]T) []T, confirmed bool) {
	cached, ok := cache.Read[[]T](s.cache, key)
	if !ok {
		return
	}
	next := edit(append([]T(nil), cached.Data...))
	var err error
	if confirmed {
		err = cache.WriteThrough(s.cache, key, next)
	} else {
		s.log.Warnf("%s: api unreachable, applied to local cache only", op)
		if err = cache.WriteAt(s.cache, key, next, cached.Timestamp); err == nil {
			err = cache.WriteLegacy(s.cache, key, next)
		}
	}
	if err != nil {
		s.log.Warnf("%s: cache update failed: %v", op, err)
	}
}

func replaceTour(list []api.Tour, id int64, fn func(api.Tour) api.Tour) []api.Tour {
	for i := range list {
		if list[i].ID == id {
			list[i] = fn(list[i])
		}
	}
	return list
}

func filter[T any](list []T, keep func(T) bool) []T {
	out := list[:0]
	for _, item := range list {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// localID is a negative placeholder id for records created offline.
func localID(now time.Time) int64 {
	return -now.UnixMilli()
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return fmt.Sprintf("%s ago", time.Since(t).Round(time.Second))
}

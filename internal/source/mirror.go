package source

import (
	"context"
	"errors"
	"log/slog"

	"github.com/withObsrvr/seismic-trigger-catalog/internal/archive"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/metrics"
	"github.com/withObsrvr/seismic-trigger-catalog/internal/storage"
)

// MirroredSource serves archives from a store when present and fills the
// store from an upstream source otherwise. A stored archive that is not a
// readable zip is refetched and overwritten, and upstream payloads that are
// not readable zips are never stored. Store failures are logged and never
// fail a fetch.
type MirroredSource struct {
	upstream WaveformSource
	store    storage.ArchiveStore
	log      *slog.Logger
}

// NewMirroredSource wraps upstream with store.
func NewMirroredSource(upstream WaveformSource, store storage.ArchiveStore) *MirroredSource {
	return &MirroredSource{
		upstream: upstream,
		store:    store,
		log:      slog.With("component", "mirror"),
	}
}

func refFor(req FetchRequest) storage.ArchiveRef {
	return storage.ArchiveRef{
		Network: req.Network,
		Station: req.Station,
		Channel: req.Channel,
		Start:   req.Window.Start,
		End:     req.Window.End,
	}
}

// Fetch implements WaveformSource.
func (s *MirroredSource) Fetch(ctx context.Context, req FetchRequest) FetchResult {
	ref := refFor(req)
	log := s.log.With("window", req.Window.String())

	data, err := s.store.Get(ctx, ref)
	if err == nil {
		err = archive.Validate(data)
	}
	switch {
	case err == nil:
		s.count(req, "hit")
		log.Debug("serving archive from mirror")
		return FetchResult{Kind: Success, Archive: data, Mirrored: true}
	case errors.Is(err, archive.ErrInvalidArchive):
		s.count(req, "corrupt")
		log.Warn("mirrored archive unreadable, refetching upstream", "error", err)
	case errors.Is(err, storage.ErrNotFound):
		s.count(req, "miss")
	default:
		s.count(req, "error")
		log.Warn("mirror read failed, fetching upstream", "error", err)
	}

	res := s.upstream.Fetch(ctx, req)
	if !res.OK() {
		return res
	}

	if err := archive.Validate(res.Archive); err != nil {
		log.Warn("not mirroring unreadable archive", "error", err)
		return res
	}
	if err := s.store.Put(ctx, ref, res.Archive); err != nil {
		log.Warn("failed to mirror archive", "error", err)
	}
	return res
}

func (s *MirroredSource) count(req FetchRequest, outcome string) {
	if m := metrics.Get(); m != nil {
		m.IncMirrorLookups(metrics.Labels{Network: req.Network, Outcome: outcome})
	}
}

// Close closes the upstream source and the store.
func (s *MirroredSource) Close() error {
	return errors.Join(s.upstream.Close(), s.store.Close())
}

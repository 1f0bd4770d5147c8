// Package catalog persists completed tracks for the explore and recents
// surfaces. Live job state never lives here; only terminal results do.
package catalog

import "songforge/pkg/domain"

// Store defines persistence operations for finished tracks.
type Store interface {
	SaveTrack(domain.Generation) error
	ListTracks() ([]domain.Generation, error)
	GetTrack(id string) (domain.Generation, bool, error)
	DeleteTrack(id string) error
}

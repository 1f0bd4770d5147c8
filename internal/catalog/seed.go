package catalog

import (
	"fmt"
	"time"

	"songforge/internal/synth"
	"songforge/pkg/domain"
)

type sample struct {
	id       string
	prompt   string
	title    string
	cover    string
	versions []int // durations, one per take
}

var samples = []sample{
	{
		id:       "gen_sample_1",
		prompt:   "Create a pop-rock song about old times, nostalgic opera theme style, guitar solo like slash",
		title:    "Crimson Echoes",
		cover:    synth.Covers[0],
		versions: []int{245, 238},
	},
	{
		id:       "gen_sample_2",
		prompt:   "Upbeat electronic dance track with synth arpeggios",
		title:    "Neon Dreams",
		cover:    synth.Covers[1],
		versions: []int{198},
	},
	{
		id:       "gen_sample_3",
		prompt:   "Chill lo-fi beats for studying, jazzy piano samples",
		title:    "Midnight Coffee",
		cover:    synth.Covers[2],
		versions: []int{267},
	},
	{
		id:       "gen_sample_4",
		prompt:   "Epic orchestral trailer music with brass and strings",
		title:    "Rise of Heroes",
		cover:    synth.Covers[4],
		versions: []int{180, 195},
	},
}

// SeedSamples loads the demo's pre-existing completed tracks so the
// explore surface is never empty on a fresh start. Existing rows with
// the same ids are overwritten, which keeps seeding idempotent.
func SeedSamples(s Store) error {
	now := time.Now().UTC()
	for i, smp := range samples {
		created := now.Add(-time.Duration(i+1) * time.Hour)
		completed := created.Add(100 * time.Second)
		g := domain.Generation{
			ID:          smp.id,
			Prompt:      smp.prompt,
			Title:       smp.title,
			Status:      domain.StatusCompleted,
			Progress:    100,
			CoverImage:  smp.cover,
			CreatedAt:   created,
			CompletedAt: &completed,
		}
		for n, duration := range smp.versions {
			g.Versions = append(g.Versions, domain.GenerationVersion{
				ID:           fmt.Sprintf("%s_v%d", smp.id, n+1),
				Version:      n + 1,
				Duration:     duration,
				WaveformData: synth.Waveform(),
			})
		}
		if err := s.SaveTrack(g); err != nil {
			return err
		}
	}
	return nil
}

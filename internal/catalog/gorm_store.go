package catalog

import (
	"encoding/json"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"songforge/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&TrackModel{}, &VersionModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveTrack upserts a track and replaces its versions.
func (s *GormStore) SaveTrack(g domain.Generation) error {
	model := trackToModel(g)
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "cover_image", "is_liked", "is_disliked", "completed_at"}),
		}).Create(&model).Error; err != nil {
			return err
		}
		if err := tx.Where("track_id = ?", g.ID).Delete(&VersionModel{}).Error; err != nil {
			return err
		}
		for _, v := range g.Versions {
			vm, err := versionToModel(g.ID, v)
			if err != nil {
				return err
			}
			if err := tx.Create(&vm).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ListTracks returns all tracks ordered by creation time.
func (s *GormStore) ListTracks() ([]domain.Generation, error) {
	var models []TrackModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Generation, 0, len(models))
	for _, m := range models {
		g, err := s.hydrate(m)
		if err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, nil
}

// GetTrack retrieves a track by ID.
func (s *GormStore) GetTrack(id string) (domain.Generation, bool, error) {
	var model TrackModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Generation{}, false, nil
		}
		return domain.Generation{}, false, err
	}
	g, err := s.hydrate(model)
	if err != nil {
		return domain.Generation{}, false, err
	}
	return g, true, nil
}

// DeleteTrack removes a track and its versions.
func (s *GormStore) DeleteTrack(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("track_id = ?", id).Delete(&VersionModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&TrackModel{}, "id = ?", id).Error
	})
}

func (s *GormStore) hydrate(m TrackModel) (domain.Generation, error) {
	var versionModels []VersionModel
	if err := s.db.Where("track_id = ?", m.ID).Order("version ASC").Find(&versionModels).Error; err != nil {
		return domain.Generation{}, err
	}
	g := trackFromModel(m)
	for _, vm := range versionModels {
		v, err := versionFromModel(vm)
		if err != nil {
			return domain.Generation{}, err
		}
		g.Versions = append(g.Versions, v)
	}
	return g, nil
}

func trackToModel(g domain.Generation) TrackModel {
	return TrackModel{
		ID:          g.ID,
		Prompt:      g.Prompt,
		Title:       g.Title,
		CoverImage:  g.CoverImage,
		GroupID:     g.GroupID,
		Variation:   g.Variation,
		IsLiked:     g.IsLiked,
		IsDisliked:  g.IsDisliked,
		CreatedAt:   g.CreatedAt,
		CompletedAt: g.CompletedAt,
	}
}

func trackFromModel(m TrackModel) domain.Generation {
	return domain.Generation{
		ID:          m.ID,
		Prompt:      m.Prompt,
		Title:       m.Title,
		Status:      domain.StatusCompleted,
		Progress:    100,
		CoverImage:  m.CoverImage,
		GroupID:     m.GroupID,
		Variation:   m.Variation,
		IsLiked:     m.IsLiked,
		IsDisliked:  m.IsDisliked,
		CreatedAt:   m.CreatedAt,
		CompletedAt: m.CompletedAt,
	}
}

func versionToModel(trackID string, v domain.GenerationVersion) (VersionModel, error) {
	waveform, err := json.Marshal(v.WaveformData)
	if err != nil {
		return VersionModel{}, fmt.Errorf("marshal waveform: %w", err)
	}
	return VersionModel{
		ID:       v.ID,
		TrackID:  trackID,
		Version:  v.Version,
		Duration: v.Duration,
		Waveform: waveform,
	}, nil
}

func versionFromModel(m VersionModel) (domain.GenerationVersion, error) {
	v := domain.GenerationVersion{
		ID:       m.ID,
		Version:  m.Version,
		Duration: m.Duration,
	}
	if len(m.Waveform) > 0 {
		if err := json.Unmarshal(m.Waveform, &v.WaveformData); err != nil {
			return domain.GenerationVersion{}, fmt.Errorf("unmarshal waveform: %w", err)
		}
	}
	return v, nil
}

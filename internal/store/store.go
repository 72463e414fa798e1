// Package store is the Campaign Store (component E): filesystem
// persistence for campaign metadata and run outputs, with a bounded
// read-through cache over parsed campaigns.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	h3 "github.com/uber/h3-go/v4"

	"github.com/hotosm/mapcampaign/internal/apperr"
	"github.com/hotosm/mapcampaign/internal/model"
)

const (
	campaignFile = "campaign.json"
	overpassFile = "overpass.xml"
	outputFile   = "output.json"
)

type Store struct {
	root      string
	h3Res     int
	cache     *lru.Cache[string, model.Campaign]
}

func New(root string, cacheSize, h3Res int) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("store: create root: %w", err)
	}
	if cacheSize <= 0 {
		cacheSize = 256
	}
	c, err := lru.New[string, model.Campaign](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("store: create cache: %w", err)
	}
	return &Store{root: root, h3Res: h3Res, cache: c}, nil
}

func (s *Store) dir(uuid string) string       { return filepath.Join(s.root, uuid) }
func (s *Store) campaignPath(uuid string) string { return filepath.Join(s.dir(uuid), campaignFile) }

// OverpassPath returns the raw-fetch file path for uuid.
func (s *Store) OverpassPath(uuid string) string { return filepath.Join(s.dir(uuid), overpassFile) }

// OutputPath returns the processed-results file path for uuid.
func (s *Store) OutputPath(uuid string) string { return filepath.Join(s.dir(uuid), outputFile) }

// Save creates the campaign directory and writes campaign.json.
func (s *Store) Save(c model.Campaign) (string, error) {
	if err := os.MkdirAll(s.dir(c.UUID), 0o755); err != nil {
		return "", fmt.Errorf("store: create campaign dir: %w", err)
	}
	if err := s.writeCampaign(c); err != nil {
		return "", err
	}
	return c.UUID, nil
}

// Load parses campaign.json for uuid.
func (s *Store) Load(uuid string) (model.Campaign, error) {
	if c, ok := s.cache.Get(uuid); ok {
		return c, nil
	}
	b, err := os.ReadFile(s.campaignPath(uuid))
	if err != nil {
		if os.IsNotExist(err) {
			return model.Campaign{}, apperr.Wrapf(apperr.ErrNotFound, "campaign %s", uuid)
		}
		return model.Campaign{}, fmt.Errorf("store: read campaign: %w", err)
	}
	var c model.Campaign
	if err := json.Unmarshal(b, &c); err != nil {
		return model.Campaign{}, fmt.Errorf("store: parse campaign: %w", err)
	}
	s.cache.Add(uuid, c)
	return c, nil
}

// Update preserves uuid, created_at and user from old, applies the
// remaining mutable fields from next, and sets updated_at = now.
func (s *Store) Update(old, next model.Campaign) (model.Campaign, error) {
	merged := next
	merged.UUID = old.UUID
	merged.CreatedAt = old.CreatedAt
	merged.User = old.User
	merged.UpdatedAt = time.Now().UTC()
	if err := s.writeCampaign(merged); err != nil {
		return model.Campaign{}, err
	}
	return merged, nil
}

// SetStatus persists a status transition for uuid without otherwise
// touching the campaign (used by the run supervisor).
func (s *Store) SetStatus(uuid string, status model.Status) error {
	c, err := s.Load(uuid)
	if err != nil {
		return err
	}
	c.Status = status
	return s.writeCampaign(c)
}

// Delete removes the whole campaign directory.
func (s *Store) Delete(uuid string) error {
	if _, err := s.Load(uuid); err != nil {
		return err
	}
	s.cache.Remove(uuid)
	if err := os.RemoveAll(s.dir(uuid)); err != nil {
		return fmt.Errorf("store: remove campaign dir: %w", err)
	}
	return nil
}

// IsRunning reports whether uuid's campaign is currently Running.
func (s *Store) IsRunning(uuid string) (bool, error) {
	c, err := s.Load(uuid)
	if err != nil {
		return false, err
	}
	return c.Status == model.StatusRunning, nil
}

// ListItem is a lightweight campaign overview: the full polygon geometry
// is replaced by its centroid (Geom is left empty and Centroid carries the
// point), plus a derived H3 cell for map clustering.
type ListItem struct {
	model.Campaign
	Centroid model.LonLat `json:"centroid"`
	H3Cell   string       `json:"h3_cell,omitempty"`
}

// List enumerates all campaigns under root, skipping malformed entries.
func (s *Store) List() ([]ListItem, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("store: read root: %w", err)
	}
	items := make([]ListItem, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		c, err := s.Load(e.Name())
		if err != nil {
			continue
		}
		centroid := model.CentroidOfCentroids(c.Geom)
		c.Geom = model.CampaignGeom{}
		item := ListItem{Campaign: c, Centroid: centroid}
		if cell, err := h3.LatLngToCell(h3.LatLng{Lat: centroid[1], Lng: centroid[0]}, s.h3Res); err == nil {
			item.H3Cell = cell.String()
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

// AllRunning returns the uuids of every campaign currently marked
// Running, used by the supervisor's startup sweep.
func (s *Store) AllRunning() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("store: read root: %w", err)
	}
	var uuids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		c, err := s.Load(e.Name())
		if err != nil {
			continue
		}
		if c.Status == model.StatusRunning {
			uuids = append(uuids, c.UUID)
		}
	}
	return uuids, nil
}

// writeCampaign serialises c to a temp file in the campaign directory
// and renames it into place, so concurrent readers never observe a
// partially written campaign.json.
func (s *Store) writeCampaign(c model.Campaign) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal campaign: %w", err)
	}
	dir := s.dir(c.UUID)
	tmp, err := os.CreateTemp(dir, "campaign-*.json.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.campaignPath(c.UUID)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("store: rename temp file: %w", err)
	}
	s.cache.Add(c.UUID, c)
	return nil
}

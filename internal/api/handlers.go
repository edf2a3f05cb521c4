// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/restream/internal/domain/stream/model"
)

const maxBodyBytes = 64 << 10

// startRequest is the POST /api/v1/streams body.
type startRequest struct {
	AssetID         string     `json:"assetId"`
	Platform        string     `json:"platform"`
	DestinationKey  string     `json:"destinationKey"`
	QualityTier     string     `json:"qualityTier"`
	Orientation     string     `json:"orientation"`
	Loop            bool       `json:"loop"`
	ScheduledStopAt *time.Time `json:"scheduledStopAt,omitempty"`
}

type startResponse struct {
	SessionID string      `json:"sessionId"`
	State     model.State `json:"state"`
}

type listResponse struct {
	Streams []model.Summary `json:"streams"`
}

type activeResponse struct {
	Active bool           `json:"active"`
	Stream *model.Summary `json:"stream,omitempty"`
}

type tierView struct {
	Name     string `json:"name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	BitrateK int    `json:"bitrateK"`
	Premium  bool   `json:"premium"`
}

type catalogResponse struct {
	Platforms []string   `json:"platforms"`
	Tiers     []tierView `json:"tiers"`
}

func (s *Server) handleStartStream(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, model.NewError(model.KindInvalidRequest, err.Error(), nil))
		return
	}
	orientation, ok := model.ParseOrientation(body.Orientation)
	if !ok {
		writeError(w, r, model.NewError(model.KindInvalidRequest, fmt.Sprintf("unknown orientation %q", body.Orientation), nil))
		return
	}

	sum, err := s.streams.Start(r.Context(), ownerFrom(r), model.StartRequest{
		AssetID:         body.AssetID,
		Platform:        body.Platform,
		DestinationKey:  body.DestinationKey,
		QualityTier:     body.QualityTier,
		Orientation:     orientation,
		Loop:            body.Loop,
		ScheduledStopAt: body.ScheduledStopAt,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, startResponse{SessionID: sum.ID, State: sum.State})
}

func (s *Server) handleStopStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.streams.Stop(r.Context(), ownerFrom(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"sessionId": id, "status": "stopping"})
}

func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	list, err := s.streams.List(r.Context(), ownerFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Summary{}
	}
	writeJSON(w, http.StatusOK, listResponse{Streams: list})
}

func (s *Server) handleActiveStream(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.streams.GetActive(r.Context(), ownerFrom(r))
	if !ok {
		writeJSON(w, http.StatusOK, activeResponse{Active: false})
		return
	}
	writeJSON(w, http.StatusOK, activeResponse{Active: true, Stream: &sum})
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	catalog := s.streams.Catalog()
	policy := s.streams.Policy()

	resp := catalogResponse{Platforms: catalog.PlatformNames()}
	for name, t := range catalog.Tiers {
		resp.Tiers = append(resp.Tiers, tierView{
			Name:     name,
			Width:    t.Width,
			Height:   t.Height,
			BitrateK: t.BitrateK,
			Premium:  policy.IsPremiumTier(name),
		})
	}
	sortTiers(resp.Tiers)
	writeJSON(w, http.StatusOK, resp)
}

// sortTiers orders by pixel count, then name.
func sortTiers(tiers []tierView) {
	sort.Slice(tiers, func(i, j int) bool {
		pi, pj := tiers[i].Width*tiers[i].Height, tiers[j].Width*tiers[j].Height
		if pi != pj {
			return pi < pj
		}
		return tiers[i].Name < tiers[j].Name
	})
}

// decodeJSON strictly decodes a single JSON object from the body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
